package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/events"
	"github.com/spec-kit/support-hub/internal/observability"
	"github.com/spec-kit/support-hub/internal/policy"
	"github.com/spec-kit/support-hub/internal/repository"
	"github.com/spec-kit/support-hub/internal/workflow"
	"github.com/spec-kit/support-hub/pkg/util"
)

const (
	maxAttachmentCount = 3
	maxAttachmentSize  = 10 << 20
	numberAttempts     = 5
)

var allowedAttachmentTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"application/pdf": {},
}

// StatCache caches per-scope stat counts; the redis adapter implements it.
type StatCache interface {
	Get(ctx context.Context, key string) (*domain.TicketStatCounts, bool)
	Set(ctx context.Context, key string, counts domain.TicketStatCounts)
	Invalidate(ctx context.Context, keys ...string)
}

// TicketService coordinates every ticket lifecycle transition: it looks up
// the ticket, pre-checks authorization, then re-validates and applies the
// state machine under the ticket's exclusive lock.
type TicketService struct {
	tickets    repository.TicketStore
	users      repository.UserRepository
	dispatcher events.Dispatcher
	statCache  StatCache
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketStore repository.TicketStore
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
	StatCache   StatCache
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketStore,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		statCache:  deps.StatCache,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// AttachmentInput defines attachment metadata supplied at creation.
type AttachmentInput struct {
	FileName  string
	MimeType  string
	SizeBytes int64
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Category    domain.TicketCategory
	Attachments []AttachmentInput
}

// ListFilter describes listing parameters accepted from callers.
type ListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// CommentResult carries the outcome of RecordComment. Warnings holds the
// messages of an implicit transition that failed without sinking the comment.
type CommentResult struct {
	Comment  *domain.Comment
	Ticket   *domain.Ticket
	Warnings []string
}

// CreateTicket validates input, allocates the immutable reference number and
// stores the ticket in the open state.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if !policy.CanCreate(actor) {
		return nil, util.NewUnauthorized("sign in to create a ticket")
	}

	details := map[string]any{}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" {
		details["title"] = "can't be blank"
	}
	if description == "" {
		details["description"] = "can't be blank"
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	if !domain.ValidPriority(priority) {
		details["priority"] = "is not a valid priority"
	}
	category := input.Category
	if category == "" {
		category = domain.TicketCategoryOther
	}
	if !domain.ValidCategory(category) {
		details["category"] = "is not a valid category"
	}

	validateAttachments(input.Attachments, details)

	if len(details) > 0 {
		return nil, util.NewValidationFailed("ticket is invalid", details)
	}

	ticket := &domain.Ticket{
		CustomerID:  actor.ID,
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Category:    category,
	}
	for _, att := range input.Attachments {
		ticket.Attachments = append(ticket.Attachments, domain.Attachment{
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
		})
	}

	// The unique constraint on number is the collision check; retry with a
	// fresh token when another creation won the same one.
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		ticket.Number = generateTicketNumber()
		err = s.tickets.Create(ctx, ticket)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, s.fail(ctx, "create", err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorRef(actor),
		Payload: events.TicketCreatedPayload{
			Number:   ticket.Number,
			Title:    ticket.Title,
			Priority: ticket.Priority,
			Category: ticket.Category,
		},
	})
	s.invalidateStats(ctx, ticket.CustomerID)
	return ticket, nil
}

// AssignTicket assigns the ticket to the acting agent. The pre-lock
// authorization check is provisional; the locked guard closes the race where
// two agents pass the check simultaneously.
func (s *TicketService) AssignTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if _, err := s.fetchTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if !policy.CanAssign(actor) {
		return nil, util.NewUnauthorized("only agents can assign tickets")
	}

	var updated *domain.Ticket
	err := s.tickets.WithTicketLock(ctx, ticketID, func(ctx context.Context, tx repository.TicketTx) error {
		current := tx.Ticket()
		if current.AgentID != nil && *current.AgentID != actor.ID {
			return util.NewAlreadyAssigned(current.ID)
		}
		if err := workflow.Apply(current, workflow.EventAssign, actor.ID, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateTicket(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		s.recordTransition(workflow.EventAssign, err)
		return nil, s.fail(ctx, "assign", err)
	}
	s.recordTransition(workflow.EventAssign, nil)

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: updated.ID,
		Actor:    actorRef(actor),
		Payload:  events.TicketAssignedPayload{AgentID: actor.ID},
	})
	s.invalidateStats(ctx, updated.CustomerID)
	return updated, nil
}

// ResolveTicket marks the ticket resolved by its assigned agent.
func (s *TicketService) ResolveTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanResolve(actor, ticket) {
		return nil, util.NewUnauthorized("only the assigned agent can resolve this ticket")
	}
	return s.transition(ctx, actor, ticketID, workflow.EventResolve, "", func(current *domain.Ticket) error {
		if !policy.CanResolve(actor, current) {
			return util.NewUnauthorized("only the assigned agent can resolve this ticket")
		}
		return nil
	})
}

// CloseTicket closes the ticket, by the assigned agent or by the owning
// customer once resolved.
func (s *TicketService) CloseTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanClose(actor, ticket) {
		return nil, util.NewUnauthorized("you are not allowed to close this ticket")
	}
	return s.transition(ctx, actor, ticketID, workflow.EventClose, "", func(current *domain.Ticket) error {
		if !policy.CanClose(actor, current) {
			return util.NewUnauthorized("you are not allowed to close this ticket")
		}
		return nil
	})
}

// ReopenTicket moves a closed or resolved ticket back into the queue and
// clears its resolution fields.
func (s *TicketService) ReopenTicket(ctx context.Context, actor *domain.User, ticketID, reason string) (*domain.Ticket, error) {
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanReopen(actor, ticket) {
		return nil, util.NewUnauthorized("you are not allowed to reopen this ticket")
	}
	return s.transition(ctx, actor, ticketID, workflow.EventReopen, reason, func(current *domain.Ticket) error {
		if !policy.CanReopen(actor, current) {
			return util.NewUnauthorized("you are not allowed to reopen this ticket")
		}
		return nil
	})
}

// transition runs the shared coordinator protocol: lock, guard re-check,
// state machine, persist, event.
func (s *TicketService) transition(ctx context.Context, actor *domain.User, ticketID string, event workflow.Event, reason string, guard func(*domain.Ticket) error) (*domain.Ticket, error) {
	var updated *domain.Ticket
	var oldStatus domain.TicketStatus

	err := s.tickets.WithTicketLock(ctx, ticketID, func(ctx context.Context, tx repository.TicketTx) error {
		current := tx.Ticket()
		if err := guard(current); err != nil {
			return err
		}
		oldStatus = current.Status
		if err := workflow.Apply(current, event, actor.ID, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateTicket(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		s.recordTransition(event, err)
		return nil, s.fail(ctx, string(event), err)
	}
	s.recordTransition(event, nil)

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    actorRef(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: updated.Status,
			Event:     string(event),
			Reason:    reason,
		},
	})
	s.invalidateStats(ctx, updated.CustomerID)
	return updated, nil
}

// RecordComment persists a comment and then attempts the implicit state
// transition that follows from the author's role and the current state. A
// failed implicit transition never rolls the comment back; it surfaces as a
// warning on the successful result.
func (s *TicketService) RecordComment(ctx context.Context, actor *domain.User, ticketID, body string) (*CommentResult, error) {
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanComment(actor, ticket) {
		return nil, util.NewUnauthorized("you are not allowed to comment on this ticket")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, util.NewValidationFailed("comment is invalid", map[string]any{"body": "can't be blank"})
	}

	result := &CommentResult{}
	err = s.tickets.WithTicketLock(ctx, ticketID, func(ctx context.Context, tx repository.TicketTx) error {
		current := tx.Ticket()
		// authoritative re-check: the ticket may have closed since the
		// provisional check above
		if !policy.CanComment(actor, current) {
			return util.NewUnauthorized("you are not allowed to comment on this ticket")
		}

		comment := &domain.Comment{
			TicketID:   current.ID,
			AuthorID:   actor.ID,
			AuthorRole: actor.Role,
			Body:       body,
		}
		if err := tx.CreateComment(ctx, comment); err != nil {
			return err
		}
		result.Comment = comment

		if event, ok := implicitEvent(actor, current); ok {
			if err := workflow.Apply(current, event, actor.ID, s.now()); err != nil {
				// comment stays; the transition failure is a warning
				result.Warnings = append(result.Warnings, util.ToDomainError(err).Reasons()...)
			} else {
				if err := tx.UpdateTicket(ctx, current); err != nil {
					return err
				}
				s.recordTransition(event, nil)
			}
		}
		result.Ticket = current
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "comment", err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: result.Ticket.ID,
		Actor:    actorRef(actor),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   result.Comment.ID,
			AuthorID:    actor.ID,
			AuthorRole:  actor.Role,
			BodyPreview: bodyPreview(body, 120),
		},
	})
	s.invalidateStats(ctx, result.Ticket.CustomerID)
	return result, nil
}

// implicitEvent maps (author role, ticket state) to the side-effect
// transition a comment triggers, if any.
func implicitEvent(actor *domain.User, ticket *domain.Ticket) (workflow.Event, bool) {
	if actor.IsCustomer() && ticket.OwnedBy(actor.ID) {
		switch ticket.Status {
		case domain.TicketStatusWaitingOnCustomer, domain.TicketStatusResolved:
			return workflow.EventCustomerReply, true
		}
		return "", false
	}
	if actor.IsAgent() {
		switch ticket.Status {
		case domain.TicketStatusInProgress, domain.TicketStatusReopened:
			return workflow.EventAgentRespond, true
		}
	}
	return "", false
}

// ViewTicket returns the ticket with its comment thread, scoped by policy.
func (s *TicketService) ViewTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, []domain.Comment, error) {
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !policy.CanView(actor, ticket) {
		return nil, nil, util.NewUnauthorized("you are not allowed to view this ticket")
	}
	comments, err := s.tickets.ListComments(ctx, ticketID)
	if err != nil {
		return nil, nil, s.fail(ctx, "view", err)
	}
	return ticket, comments, nil
}

// ViewTicketByNumber resolves a ticket by its immutable reference number,
// scoped the same way as ViewTicket.
func (s *TicketService) ViewTicketByNumber(ctx context.Context, actor *domain.User, number string) (*domain.Ticket, []domain.Comment, error) {
	ticket, err := s.tickets.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, util.NewNotFound("ticket", map[string]any{"number": number})
		}
		return nil, nil, s.fail(ctx, "view", err)
	}
	if !policy.CanView(actor, ticket) {
		return nil, nil, util.NewUnauthorized("you are not allowed to view this ticket")
	}
	comments, err := s.tickets.ListComments(ctx, ticket.ID)
	if err != nil {
		return nil, nil, s.fail(ctx, "view", err)
	}
	return ticket, comments, nil
}

// ListTickets lists tickets visible to the actor: agents see every ticket,
// customers only their own.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter ListFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, util.NewUnauthenticated("sign in to list tickets")
	}
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if !actor.IsAgent() {
		customerID := actor.ID
		repoFilter.CustomerID = &customerID
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}
	return tickets, nil
}

// StatCounts summarizes the tickets visible to the actor. Results come from
// the stat cache when fresh; successful transitions invalidate it.
func (s *TicketService) StatCounts(ctx context.Context, actor *domain.User) (*domain.TicketStatCounts, error) {
	if actor == nil {
		return nil, util.NewUnauthenticated("sign in to view ticket stats")
	}

	key := statCacheKey(actor)
	if s.statCache != nil {
		if cached, ok := s.statCache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	repoFilter := repository.TicketFilter{}
	if !actor.IsAgent() {
		customerID := actor.ID
		repoFilter.CustomerID = &customerID
	}
	byStatus, err := s.tickets.CountByStatus(ctx, repoFilter)
	if err != nil {
		return nil, s.fail(ctx, "stats", err)
	}

	counts := &domain.TicketStatCounts{}
	for status, n := range byStatus {
		counts.Total += n
		switch status {
		case domain.TicketStatusOpen, domain.TicketStatusReopened:
			counts.Open += n
		case domain.TicketStatusInProgress, domain.TicketStatusWaitingOnCustomer:
			counts.Pending += n
		case domain.TicketStatusResolved, domain.TicketStatusClosed:
			counts.Completed += n
		}
	}

	if s.statCache != nil {
		s.statCache.Set(ctx, key, *counts)
	}
	return counts, nil
}

func (s *TicketService) fetchTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, s.fail(ctx, "fetch", err)
	}
	return ticket, nil
}

// fail recovers business-rule errors as-is and converts anything else
// (storage faults, lock waits that outlived the deadline) into a generic
// OPERATION_FAILED after logging the cause.
func (s *TicketService) fail(ctx context.Context, op string, err error) error {
	var domainErr *util.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return util.NewNotFound("ticket", nil)
	}
	s.logger.Error("ticket operation failed",
		zap.String("op", op),
		zap.Error(err))
	return util.NewOperationFailed(err)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *TicketService) invalidateStats(ctx context.Context, customerID string) {
	if s.statCache == nil {
		return
	}
	s.statCache.Invalidate(ctx, agentStatsKey, "stats:customer:"+customerID)
}

func (s *TicketService) recordTransition(event workflow.Event, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = util.ToDomainError(err).Code
	}
	s.metrics.RecordTransition(string(event), outcome)
}

const agentStatsKey = "stats:agents"

func statCacheKey(actor *domain.User) string {
	if actor.IsAgent() {
		return agentStatsKey
	}
	return "stats:customer:" + actor.ID
}

func actorRef(actor *domain.User) events.Actor {
	return events.Actor{UserID: actor.ID, Role: actor.Role}
}

func generateTicketNumber() string {
	return "SPT-" + strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func validateAttachments(attachments []AttachmentInput, details map[string]any) {
	if len(attachments) > maxAttachmentCount {
		details["attachments"] = "you can upload a maximum of 3 files"
		return
	}
	for _, att := range attachments {
		if att.SizeBytes > maxAttachmentSize {
			details["attachments"] = "file " + att.FileName + " is too large, max size is 10 MB"
			return
		}
		if _, ok := allowedAttachmentTypes[att.MimeType]; !ok {
			details["attachments"] = "file " + att.FileName + " has an invalid type, allowed types are: image/jpeg, image/png, application/pdf"
			return
		}
	}
}

func bodyPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
