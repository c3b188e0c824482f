package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen              TicketStatus = "OPEN"
	TicketStatusInProgress        TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingOnCustomer TicketStatus = "WAITING_ON_CUSTOMER"
	TicketStatusResolved          TicketStatus = "RESOLVED"
	TicketStatusClosed            TicketStatus = "CLOSED"
	TicketStatusReopened          TicketStatus = "REOPENED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketCategory is the closed set of request categories.
type TicketCategory string

const (
	TicketCategoryTechnicalIssues TicketCategory = "TECHNICAL_ISSUES"
	TicketCategoryBilling         TicketCategory = "BILLING"
	TicketCategoryAccount         TicketCategory = "ACCOUNT"
	TicketCategoryFeatureRequest  TicketCategory = "FEATURE_REQUEST"
	TicketCategoryFeedback        TicketCategory = "FEEDBACK"
	TicketCategoryOther           TicketCategory = "OTHER"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c TicketCategory) bool {
	switch c {
	case TicketCategoryTechnicalIssues, TicketCategoryBilling, TicketCategoryAccount,
		TicketCategoryFeatureRequest, TicketCategoryFeedback, TicketCategoryOther:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests and the unit of locking.
// Number is immutable after creation; CustomerID never changes; AgentID is set
// only through the assignment transition.
type Ticket struct {
	ID              string
	Number          string
	CustomerID      string
	AgentID         *string
	Title           string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	Category        TicketCategory
	AgentHasReplied bool
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ResolvedByID    *string
	ClosedAt        *time.Time
	ReopenedAt      *time.Time
	Attachments     []Attachment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active reports whether the ticket is still being worked.
func (t *Ticket) Active() bool {
	return t.Status != TicketStatusClosed
}

// NeedsAgentAttention reports whether an agent action is the next step.
func (t *Ticket) NeedsAgentAttention() bool {
	return t.Status == TicketStatusOpen || t.Status == TicketStatusInProgress || t.Status == TicketStatusReopened
}

// Completed reports whether the ticket reached a terminal outcome.
func (t *Ticket) Completed() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

// AssignedTo reports whether the given user holds the assignment.
func (t *Ticket) AssignedTo(userID string) bool {
	return t.AgentID != nil && *t.AgentID == userID
}

// OwnedBy reports whether the given user is the submitting customer.
func (t *Ticket) OwnedBy(userID string) bool {
	return t.CustomerID == userID
}

// Clone returns a deep copy, detaching pointer-valued fields.
func (t *Ticket) Clone() *Ticket {
	clone := *t
	clone.AgentID = clonePtr(t.AgentID)
	clone.FirstResponseAt = clonePtr(t.FirstResponseAt)
	clone.ResolvedAt = clonePtr(t.ResolvedAt)
	clone.ResolvedByID = clonePtr(t.ResolvedByID)
	clone.ClosedAt = clonePtr(t.ClosedAt)
	clone.ReopenedAt = clonePtr(t.ReopenedAt)
	clone.Attachments = append([]Attachment(nil), t.Attachments...)
	return &clone
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Attachment stores metadata for files attached at ticket creation.
// Blob storage itself lives outside this service.
type Attachment struct {
	ID        string
	TicketID  string
	FileName  string
	MimeType  string
	SizeBytes int64
	CreatedAt time.Time
}

// TicketStatCounts summarizes the tickets visible to one actor.
type TicketStatCounts struct {
	Total     int64 `json:"total"`
	Open      int64 `json:"open"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
}
