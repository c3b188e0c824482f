package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/events"
	"github.com/spec-kit/support-hub/internal/observability"
	"github.com/spec-kit/support-hub/internal/repository"
	"github.com/spec-kit/support-hub/internal/workflow"
	"github.com/spec-kit/support-hub/pkg/util"
)

type fixture struct {
	store   *repository.MemoryStore
	svc     *TicketService
	metrics *observability.Metrics
	cache   *fakeStatCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	metrics := observability.NewMetrics()
	cache := newFakeStatCache()
	svc := NewTicketService(TicketDependencies{
		TicketStore: store,
		UserRepo:    store.Users(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		StatCache:   cache,
		Metrics:     metrics,
	})
	return &fixture{store: store, svc: svc, metrics: metrics, cache: cache}
}

func (f *fixture) addUser(t *testing.T, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{
		Email:        strings.ToLower(string(role)) + "-" + uuid.NewString()[:8] + "@example.com",
		FirstName:    "Test",
		LastName:     string(role),
		PasswordHash: "x",
		Role:         role,
	}
	if err := f.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (f *fixture) createTicket(t *testing.T, customer *domain.User) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "printer on fire",
		Description: "smoke is coming out of the tray",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

type fakeStatCache struct {
	mu          sync.Mutex
	entries     map[string]domain.TicketStatCounts
	invalidated []string
}

func newFakeStatCache() *fakeStatCache {
	return &fakeStatCache{entries: make(map[string]domain.TicketStatCounts)}
}

func (c *fakeStatCache) Get(ctx context.Context, key string) (*domain.TicketStatCounts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return &counts, true
}

func (c *fakeStatCache) Set(ctx context.Context, key string, counts domain.TicketStatCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = counts
}

func (c *fakeStatCache) Invalidate(ctx context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
		c.invalidated = append(c.invalidated, key)
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !util.IsCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

func TestCreateTicketDefaults(t *testing.T) {
	f := newFixture(t)
	customer := f.addUser(t, domain.RoleCustomer)

	ticket := f.createTicket(t, customer)

	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("status = %s, want OPEN", ticket.Status)
	}
	if !strings.HasPrefix(ticket.Number, "SPT-") || len(ticket.Number) != 14 {
		t.Fatalf("unexpected reference number %q", ticket.Number)
	}
	if ticket.Priority != domain.TicketPriorityNormal {
		t.Fatalf("priority = %s, want NORMAL", ticket.Priority)
	}
	if ticket.Category != domain.TicketCategoryOther {
		t.Fatalf("category = %s, want OTHER", ticket.Category)
	}
	if ticket.CustomerID != customer.ID {
		t.Fatalf("customer id = %s, want %s", ticket.CustomerID, customer.ID)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	customer := f.addUser(t, domain.RoleCustomer)

	tests := []struct {
		name   string
		input  TicketCreateInput
		detail string
	}{
		{
			name:   "blank title",
			input:  TicketCreateInput{Title: "  ", Description: "something broke"},
			detail: "title",
		},
		{
			name:   "blank description",
			input:  TicketCreateInput{Title: "help", Description: ""},
			detail: "description",
		},
		{
			name: "unknown priority",
			input: TicketCreateInput{
				Title: "help", Description: "broken", Priority: "CRITICAL",
			},
			detail: "priority",
		},
		{
			name: "unknown category",
			input: TicketCreateInput{
				Title: "help", Description: "broken", Category: "GOSSIP",
			},
			detail: "category",
		},
		{
			name: "too many attachments",
			input: TicketCreateInput{
				Title: "help", Description: "broken",
				Attachments: []AttachmentInput{
					{FileName: "a.png", MimeType: "image/png", SizeBytes: 1},
					{FileName: "b.png", MimeType: "image/png", SizeBytes: 1},
					{FileName: "c.png", MimeType: "image/png", SizeBytes: 1},
					{FileName: "d.png", MimeType: "image/png", SizeBytes: 1},
				},
			},
			detail: "attachments",
		},
		{
			name: "oversize attachment",
			input: TicketCreateInput{
				Title: "help", Description: "broken",
				Attachments: []AttachmentInput{
					{FileName: "big.pdf", MimeType: "application/pdf", SizeBytes: 11 << 20},
				},
			},
			detail: "attachments",
		},
		{
			name: "disallowed mime type",
			input: TicketCreateInput{
				Title: "help", Description: "broken",
				Attachments: []AttachmentInput{
					{FileName: "v.mp4", MimeType: "video/mp4", SizeBytes: 1},
				},
			},
			detail: "attachments",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTicket(context.Background(), customer, tc.input)
			assertCode(t, err, "VALIDATION_FAILED")
			domainErr := util.ToDomainError(err)
			if _, ok := domainErr.Details[tc.detail]; !ok {
				t.Fatalf("details missing %q: %v", tc.detail, domainErr.Details)
			}
		})
	}
}

func TestCreateTicketRequiresActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateTicket(context.Background(), nil, TicketCreateInput{
		Title: "help", Description: "broken",
	})
	assertCode(t, err, "UNAUTHORIZED")
}

// TestLifecycleWalkthrough drives a ticket through the full happy path:
// open, assigned, agent reply, customer reply, resolved, closed by customer.
func TestLifecycleWalkthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)

	ticket := f.createTicket(t, customer)

	assigned, err := f.svc.AssignTicket(ctx, agent, ticket.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != domain.TicketStatusInProgress {
		t.Fatalf("status after assign = %s, want IN_PROGRESS", assigned.Status)
	}
	if assigned.AgentID == nil || *assigned.AgentID != agent.ID {
		t.Fatalf("agent id not recorded: %v", assigned.AgentID)
	}

	reply, err := f.svc.RecordComment(ctx, agent, ticket.ID, "have you tried turning it off and on again?")
	if err != nil {
		t.Fatalf("agent comment: %v", err)
	}
	if reply.Ticket.Status != domain.TicketStatusWaitingOnCustomer {
		t.Fatalf("status after agent comment = %s, want WAITING_ON_CUSTOMER", reply.Ticket.Status)
	}
	if reply.Ticket.FirstResponseAt == nil || !reply.Ticket.AgentHasReplied {
		t.Fatal("first response not recorded")
	}
	if len(reply.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", reply.Warnings)
	}

	back, err := f.svc.RecordComment(ctx, customer, ticket.ID, "yes, it is still on fire")
	if err != nil {
		t.Fatalf("customer comment: %v", err)
	}
	if back.Ticket.Status != domain.TicketStatusInProgress {
		t.Fatalf("status after customer comment = %s, want IN_PROGRESS", back.Ticket.Status)
	}

	resolved, err := f.svc.ResolveTicket(ctx, agent, ticket.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.TicketStatusResolved {
		t.Fatalf("status after resolve = %s, want RESOLVED", resolved.Status)
	}
	if resolved.ResolvedAt == nil || resolved.ResolvedByID == nil || *resolved.ResolvedByID != agent.ID {
		t.Fatal("resolution fields not recorded")
	}

	closed, err := f.svc.CloseTicket(ctx, customer, ticket.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed {
		t.Fatalf("status after close = %s, want CLOSED", closed.Status)
	}
	if closed.ClosedAt == nil {
		t.Fatal("closed at not recorded")
	}

	_, comments, err := f.svc.ViewTicket(ctx, agent, ticket.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("comment count = %d, want 2", len(comments))
	}
}

func TestAssignTicketRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	ticket := f.createTicket(t, customer)

	const contenders = 8
	agents := make([]*domain.User, contenders)
	for i := range agents {
		agents[i] = f.addUser(t, domain.RoleAgent)
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.AssignTicket(ctx, agents[i], ticket.ID)
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case util.IsCode(err, "ALREADY_ASSIGNED"):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != contenders-1 {
		t.Fatalf("wins = %d, losses = %d, want 1 and %d", wins, losses, contenders-1)
	}

	stored, err := f.store.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.TicketStatusInProgress || stored.AgentID == nil {
		t.Fatalf("ticket not assigned exactly once: %+v", stored)
	}
}

func TestAssignTicketIdempotentForSameAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// second assign by the holder falls through to the state machine
	_, err := f.svc.AssignTicket(ctx, agent, ticket.ID)
	assertCode(t, err, "INVALID_TRANSITION")
}

func TestAssignTicketDeniedForCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	ticket := f.createTicket(t, customer)

	_, err := f.svc.AssignTicket(ctx, customer, ticket.ID)
	assertCode(t, err, "UNAUTHORIZED")
}

func TestResolveDeniedForUnassignedAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	assignee := f.addUser(t, domain.RoleAgent)
	bystander := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, assignee, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err := f.svc.ResolveTicket(ctx, bystander, ticket.ID)
	assertCode(t, err, "UNAUTHORIZED")

	stored, _ := f.store.GetByID(ctx, ticket.ID)
	if stored.Status != domain.TicketStatusInProgress {
		t.Fatalf("status mutated to %s", stored.Status)
	}
}

func TestCloseDeniedForCustomerBeforeResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err := f.svc.CloseTicket(ctx, customer, ticket.ID)
	assertCode(t, err, "UNAUTHORIZED")
}

func TestCustomerCommentOnOpenTicketDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	ticket := f.createTicket(t, customer)

	_, err := f.svc.RecordComment(ctx, customer, ticket.ID, "any update?")
	assertCode(t, err, "UNAUTHORIZED")

	comments, _ := f.store.ListComments(ctx, ticket.ID)
	if len(comments) != 0 {
		t.Fatalf("comment persisted despite denial: %d", len(comments))
	}
}

func TestCustomerCommentInProgressRequiresAgentReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// no agent reply yet
	_, err := f.svc.RecordComment(ctx, customer, ticket.ID, "hello?")
	assertCode(t, err, "UNAUTHORIZED")

	if _, err := f.svc.RecordComment(ctx, agent, ticket.ID, "looking into it"); err != nil {
		t.Fatalf("agent comment: %v", err)
	}
	// WAITING_ON_CUSTOMER now; a customer reply moves it back to IN_PROGRESS
	result, err := f.svc.RecordComment(ctx, customer, ticket.ID, "thanks")
	if err != nil {
		t.Fatalf("customer comment: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", result.Ticket.Status)
	}

	// agent replied already, so commenting while IN_PROGRESS is allowed and
	// triggers no transition for the customer
	again, err := f.svc.RecordComment(ctx, customer, ticket.ID, "one more detail")
	if err != nil {
		t.Fatalf("followup comment: %v", err)
	}
	if again.Ticket.Status != domain.TicketStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", again.Ticket.Status)
	}
}

func TestCommentOnClosedTicketDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.CloseTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := f.svc.RecordComment(ctx, agent, ticket.ID, "postscript")
	assertCode(t, err, "UNAUTHORIZED")
}

func TestCommentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err := f.svc.RecordComment(ctx, agent, ticket.ID, "   ")
	assertCode(t, err, "VALIDATION_FAILED")
}

func TestReopenClearsResolutionFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.ResolveTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.svc.CloseTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := f.svc.ReopenTicket(ctx, customer, ticket.ID, "still broken")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != domain.TicketStatusReopened {
		t.Fatalf("status = %s, want REOPENED", reopened.Status)
	}
	if reopened.ReopenedAt == nil {
		t.Fatal("reopened at not recorded")
	}
	if reopened.ClosedAt != nil || reopened.ResolvedAt != nil || reopened.ResolvedByID != nil {
		t.Fatalf("resolution fields not cleared: %+v", reopened)
	}
	// assignment survives a reopen
	if reopened.AgentID == nil || *reopened.AgentID != agent.ID {
		t.Fatal("assignment lost on reopen")
	}
}

func TestReopenDeniedForStranger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	stranger := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.ResolveTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	_, err := f.svc.ReopenTicket(ctx, stranger, ticket.ID, "me too")
	assertCode(t, err, "UNAUTHORIZED")
}

func TestViewTicketScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.addUser(t, domain.RoleCustomer)
	other := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, owner)

	if _, _, err := f.svc.ViewTicket(ctx, owner, ticket.ID); err != nil {
		t.Fatalf("owner view: %v", err)
	}
	if _, _, err := f.svc.ViewTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("agent view: %v", err)
	}
	_, _, err := f.svc.ViewTicket(ctx, other, ticket.ID)
	assertCode(t, err, "UNAUTHORIZED")

	_, _, err = f.svc.ViewTicket(ctx, agent, uuid.NewString())
	assertCode(t, err, "NOT_FOUND")
}

func TestViewTicketByNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.addUser(t, domain.RoleCustomer)
	other := f.addUser(t, domain.RoleCustomer)
	ticket := f.createTicket(t, owner)

	found, _, err := f.svc.ViewTicketByNumber(ctx, owner, ticket.Number)
	if err != nil {
		t.Fatalf("view by number: %v", err)
	}
	if found.ID != ticket.ID {
		t.Fatalf("resolved %s, want %s", found.ID, ticket.ID)
	}

	_, _, err = f.svc.ViewTicketByNumber(ctx, other, ticket.Number)
	assertCode(t, err, "UNAUTHORIZED")

	_, _, err = f.svc.ViewTicketByNumber(ctx, owner, "SPT-0000000000")
	assertCode(t, err, "NOT_FOUND")
}

func TestListTicketsScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, domain.RoleCustomer)
	bob := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)

	f.createTicket(t, alice)
	f.createTicket(t, alice)
	f.createTicket(t, bob)

	mine, err := f.svc.ListTickets(ctx, alice, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("customer sees %d tickets, want 2", len(mine))
	}
	for i := range mine {
		if mine[i].CustomerID != alice.ID {
			t.Fatalf("customer sees foreign ticket %s", mine[i].ID)
		}
	}

	all, err := f.svc.ListTickets(ctx, agent, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("agent sees %d tickets, want 3", len(all))
	}

	_, err = f.svc.ListTickets(ctx, nil, ListFilter{})
	assertCode(t, err, "UNAUTHENTICATED")
}

func TestStatCountsBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)

	f.createTicket(t, customer) // stays OPEN
	inProgress := f.createTicket(t, customer)
	resolved := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, inProgress.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.AssignTicket(ctx, agent, resolved.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.ResolveTicket(ctx, agent, resolved.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	counts, err := f.svc.StatCounts(ctx, customer)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.TicketStatCounts{Total: 3, Open: 1, Pending: 1, Completed: 1}
	if *counts != want {
		t.Fatalf("counts = %+v, want %+v", *counts, want)
	}

	agentCounts, err := f.svc.StatCounts(ctx, agent)
	if err != nil {
		t.Fatalf("agent stats: %v", err)
	}
	if agentCounts.Total != 3 {
		t.Fatalf("agent total = %d, want 3", agentCounts.Total)
	}
}

func TestStatCountsUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	f.createTicket(t, customer)

	seeded := domain.TicketStatCounts{Total: 42, Open: 42}
	f.cache.Set(ctx, "stats:customer:"+customer.ID, seeded)

	counts, err := f.svc.StatCounts(ctx, customer)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if *counts != seeded {
		t.Fatalf("counts = %+v, want cached %+v", *counts, seeded)
	}
}

func TestTransitionsInvalidateStatCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	f.cache.Set(ctx, "stats:agents", domain.TicketStatCounts{Total: 1})
	f.cache.Set(ctx, "stats:customer:"+customer.ID, domain.TicketStatCounts{Total: 1})

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, ok := f.cache.Get(ctx, "stats:agents"); ok {
		t.Fatal("agent stats survived invalidation")
	}
	if _, ok := f.cache.Get(ctx, "stats:customer:"+customer.ID); ok {
		t.Fatal("customer stats survived invalidation")
	}
}

func TestTransitionMetricsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.addUser(t, domain.RoleCustomer)
	agent := f.addUser(t, domain.RoleAgent)
	ticket := f.createTicket(t, customer)

	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.AssignTicket(ctx, agent, ticket.ID); err == nil {
		t.Fatal("expected second assign to fail")
	}

	if got := f.metrics.TransitionCount(string(workflow.EventAssign), "success"); got != 1 {
		t.Fatalf("success count = %d, want 1", got)
	}
	if got := f.metrics.TransitionCount(string(workflow.EventAssign), "INVALID_TRANSITION"); got != 1 {
		t.Fatalf("invalid count = %d, want 1", got)
	}
}

func TestTransitionOnMissingTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.addUser(t, domain.RoleAgent)

	_, err := f.svc.AssignTicket(ctx, agent, uuid.NewString())
	assertCode(t, err, "NOT_FOUND")
}
