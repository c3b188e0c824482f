package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-hub/internal/api/dto"
	"github.com/spec-kit/support-hub/internal/auth"
	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/service"
	apperrors "github.com/spec-kit/support-hub/pkg/util"
)

// TicketsHandler maps ticket lifecycle operations onto HTTP.
type TicketsHandler struct {
	tickets *service.TicketService
	exports *service.ExportService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, exportService *service.ExportService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, exports: exportService}
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationFailed("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
	}
	for _, att := range req.Attachments {
		input.Attachments = append(input.Attachments, service.AttachmentInput{
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
		})
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), actor, parseListQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	ticket, comments, err := h.tickets.ViewTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	detail := dto.TicketDetailResponse{TicketResponse: dto.FromTicket(ticket)}
	for i := range comments {
		detail.Comments = append(detail.Comments, dto.FromComment(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": detail})
}

// GetByNumber GET /tickets/number/:number.
func (h *TicketsHandler) GetByNumber(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	ticket, comments, err := h.tickets.ViewTicketByNumber(c.UserContext(), actor, c.Params("number"))
	if err != nil {
		return err
	}
	detail := dto.TicketDetailResponse{TicketResponse: dto.FromTicket(ticket)}
	for i := range comments {
		detail.Comments = append(detail.Comments, dto.FromComment(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": detail})
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	counts, err := h.tickets.StatCounts(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": counts})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationFailed("invalid payload", nil)
	}
	result, err := h.tickets.RecordComment(c.UserContext(), actor, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	payload := dto.CommentResult{
		Comment:  dto.FromComment(result.Comment),
		Ticket:   dto.FromTicket(result.Ticket),
		Warnings: result.Warnings,
	}
	if payload.Warnings == nil {
		payload.Warnings = []string{}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": payload})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	return h.runTransition(c, h.tickets.AssignTicket)
}

// Resolve POST /tickets/:id/resolve.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	return h.runTransition(c, h.tickets.ResolveTicket)
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	return h.runTransition(c, h.tickets.CloseTicket)
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	var req dto.ReopenTicketRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationFailed("invalid payload", nil)
	}
	ticket, err := h.tickets.ReopenTicket(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ExportClosed POST /tickets/exports/closed.
func (h *TicketsHandler) ExportClosed(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	var req dto.ExportClosedTicketsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationFailed("invalid payload", nil)
	}
	if req.EndDate.Before(req.StartDate) {
		return apperrors.NewValidationFailed("export window is invalid", map[string]any{
			"end_date": "must not precede start_date",
		})
	}
	export, err := h.exports.ExportClosedTickets(c.UserContext(), actor, req.StartDate, req.EndDate)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ExportResponse{
		Filename: export.Filename,
		Count:    export.Count,
		CSV:      string(export.CSV),
	}})
}

func (h *TicketsHandler) runTransition(c *fiber.Ctx, op func(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error)) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("sign in required")
	}
	ticket, err := op(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

func parseListQuery(c *fiber.Ctx) service.ListFilter {
	filter := service.ListFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if raw := c.Query("priority"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	return filter
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
