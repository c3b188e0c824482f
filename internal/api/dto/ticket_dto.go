package dto

import (
	"time"

	"github.com/spec-kit/support-hub/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Category    domain.TicketCategory `json:"category"`
	Attachments []AttachmentRequest   `json:"attachments"`
}

// AttachmentRequest describes attachment metadata supplied at creation.
type AttachmentRequest struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body string `json:"body"`
}

// ReopenTicketRequest payload.
type ReopenTicketRequest struct {
	Reason string `json:"reason"`
}

// ExportClosedTicketsRequest payload.
type ExportClosedTicketsRequest struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// TicketResponse serializes a ticket.
type TicketResponse struct {
	ID              string                `json:"id"`
	Number          string                `json:"number"`
	CustomerID      string                `json:"customer_id"`
	AgentID         *string               `json:"agent_id"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	Category        domain.TicketCategory `json:"category"`
	AgentHasReplied bool                  `json:"agent_has_replied"`
	FirstResponseAt *time.Time            `json:"first_response_at"`
	ResolvedAt      *time.Time            `json:"resolved_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
	ReopenedAt      *time.Time            `json:"reopened_at"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// CommentResponse serializes a thread comment.
type CommentResponse struct {
	ID         string      `json:"id"`
	TicketID   string      `json:"ticket_id"`
	AuthorID   string      `json:"author_id"`
	AuthorRole domain.Role `json:"author_role"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// CommentResult pairs a created comment with the refreshed ticket and any
// transition warnings.
type CommentResult struct {
	Comment  CommentResponse `json:"comment"`
	Ticket   TicketResponse  `json:"ticket"`
	Warnings []string        `json:"warnings"`
}

// TicketDetailResponse includes the comment thread.
type TicketDetailResponse struct {
	TicketResponse
	Comments []CommentResponse `json:"comments"`
}

// ExportResponse serializes a generated CSV export.
type ExportResponse struct {
	Filename string `json:"filename"`
	Count    int    `json:"count"`
	CSV      string `json:"csv"`
}

// FromTicket maps a domain ticket.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:              t.ID,
		Number:          t.Number,
		CustomerID:      t.CustomerID,
		AgentID:         t.AgentID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          t.Status,
		Priority:        t.Priority,
		Category:        t.Category,
		AgentHasReplied: t.AgentHasReplied,
		FirstResponseAt: t.FirstResponseAt,
		ResolvedAt:      t.ResolvedAt,
		ClosedAt:        t.ClosedAt,
		ReopenedAt:      t.ReopenedAt,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// FromComment maps a domain comment.
func FromComment(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:         c.ID,
		TicketID:   c.TicketID,
		AuthorID:   c.AuthorID,
		AuthorRole: c.AuthorRole,
		Body:       c.Body,
		CreatedAt:  c.CreatedAt,
	}
}
