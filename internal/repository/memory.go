package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/locking"
)

// MemoryStore is an in-memory TicketStore and UserRepository. It backs tests
// and DSN-less local runs; the row lock is realized with a per-ticket mutex.
type MemoryStore struct {
	mu       sync.RWMutex
	locks    *locking.KeyMutex
	tickets  map[string]*domain.Ticket
	numbers  map[string]string
	comments map[string][]domain.Comment
	users    map[string]*domain.User
	emails   map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    locking.NewKeyMutex(),
		tickets:  make(map[string]*domain.Ticket),
		numbers:  make(map[string]string),
		comments: make(map[string][]domain.Comment),
		users:    make(map[string]*domain.User),
		emails:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.numbers[ticket.Number]; exists {
		return ErrDuplicate
	}

	now := time.Now()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	for i := range ticket.Attachments {
		ticket.Attachments[i].ID = uuid.NewString()
		ticket.Attachments[i].TicketID = ticket.ID
		ticket.Attachments[i].CreatedAt = now
	}

	m.tickets[ticket.ID] = ticket.Clone()
	m.numbers[ticket.Number] = ticket.ID
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ticket, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (m *MemoryStore) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	m.mu.RLock()
	id, ok := m.numbers[number]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *MemoryStore) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Ticket
	for _, ticket := range m.tickets {
		if matchesFilter(ticket, filter) {
			result = append(result, *ticket.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.TicketStatus]int64)
	for _, ticket := range m.tickets {
		if matchesFilter(ticket, filter) {
			counts[ticket.Status]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Comment(nil), m.comments[ticketID]...), nil
}

// WithTicketLock serializes per ticket id via the keyed mutex. Writes made
// through the tx are buffered and applied only when fn returns nil.
func (m *MemoryStore) WithTicketLock(ctx context.Context, ticketID string, fn func(ctx context.Context, tx TicketTx) error) error {
	release, err := m.locks.Lock(ctx, ticketID)
	if err != nil {
		return err
	}
	defer release()

	m.mu.RLock()
	stored, ok := m.tickets[ticketID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	view := &memoryTicketTx{snapshot: stored.Clone()}
	if err := fn(ctx, view); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if view.updated != nil {
		view.updated.UpdatedAt = time.Now()
		m.tickets[ticketID] = view.updated.Clone()
	}
	for _, comment := range view.newComments {
		m.comments[ticketID] = append(m.comments[ticketID], comment)
	}
	return nil
}

type memoryTicketTx struct {
	snapshot    *domain.Ticket
	updated     *domain.Ticket
	newComments []domain.Comment
}

func (t *memoryTicketTx) Ticket() *domain.Ticket {
	return t.snapshot
}

func (t *memoryTicketTx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	t.updated = ticket.Clone()
	return nil
}

func (t *memoryTicketTx) CreateComment(ctx context.Context, comment *domain.Comment) error {
	comment.ID = uuid.NewString()
	comment.CreatedAt = time.Now()
	t.newComments = append(t.newComments, *comment)
	return nil
}

func matchesFilter(ticket *domain.Ticket, filter TicketFilter) bool {
	if filter.CustomerID != nil && ticket.CustomerID != *filter.CustomerID {
		return false
	}
	if filter.AgentID != nil && !ticket.AssignedTo(*filter.AgentID) {
		return false
	}
	if filter.Unassigned && ticket.AgentID != nil {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	if filter.ClosedFrom != nil && (ticket.ClosedAt == nil || ticket.ClosedAt.Before(*filter.ClosedFrom)) {
		return false
	}
	if filter.ClosedTo != nil && (ticket.ClosedAt == nil || ticket.ClosedAt.After(*filter.ClosedTo)) {
		return false
	}
	return true
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, p := range list {
		if p == priority {
			return true
		}
	}
	return false
}

// CreateUser stores a user, enforcing email uniqueness.
func (m *MemoryStore) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[user.Email]; exists {
		return ErrDuplicate
	}
	now := time.Now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	copied := *user
	m.users[user.ID] = &copied
	m.emails[user.Email] = user.ID
	return nil
}

// GetUserByID fetches a user by id.
func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail fetches a user by email.
func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	id, ok := m.emails[email]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetUserByID(ctx, id)
}

// ListUsersByRole lists users with the given role ordered by creation time.
func (m *MemoryStore) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.User
	for _, user := range m.users {
		if user.Role == role {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Users adapts the store to the UserRepository interface.
func (m *MemoryStore) Users() UserRepository {
	return memoryUserRepo{store: m}
}

type memoryUserRepo struct {
	store *MemoryStore
}

func (r memoryUserRepo) Create(ctx context.Context, user *domain.User) error {
	return r.store.CreateUser(ctx, user)
}

func (r memoryUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.store.GetUserByID(ctx, id)
}

func (r memoryUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.store.GetUserByEmail(ctx, email)
}

func (r memoryUserRepo) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	return r.store.ListUsersByRole(ctx, role)
}
