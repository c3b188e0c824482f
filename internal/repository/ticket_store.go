package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/support-hub/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CustomerID *string
	AgentID    *string
	Unassigned bool
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	ClosedFrom *time.Time
	ClosedTo   *time.Time
	Limit      int
	Offset     int
}

// TicketTx is the view of one ticket held under its exclusive lock. The
// snapshot returned by Ticket reflects the row as of lock acquisition; writes
// through the tx commit atomically when the locked section returns nil.
type TicketTx interface {
	Ticket() *domain.Ticket
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
	CreateComment(ctx context.Context, comment *domain.Comment) error
}

// TicketStore encapsulates ticket persistence, including the row-scoped
// locking contract the transition coordinator builds on.
type TicketStore interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error)
	ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error)

	// WithTicketLock runs fn while holding the exclusive lock for the ticket
	// row. No two invocations for the same ticket id execute concurrently;
	// reads outside the lock are never blocked. A lock wait that outlives ctx
	// fails with the context error. If fn returns an error, no write made
	// through the tx is kept.
	WithTicketLock(ctx context.Context, ticketID string, fn func(ctx context.Context, tx TicketTx) error) error
}

// UserRepository encapsulates user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}
