package workflow

import (
	"fmt"
	"time"

	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/pkg/util"
)

// Event identifies a lifecycle transition request.
type Event string

const (
	EventAssign        Event = "assign"
	EventAgentRespond  Event = "agent_respond"
	EventCustomerReply Event = "customer_reply"
	EventResolve       Event = "resolve"
	EventClose         Event = "close"
	EventReopen        Event = "reopen"
)

// transitions is the full table: event -> allowed source states -> target.
// Deciding who may fire an event is the policy package's job, not this one.
var transitions = map[Event]struct {
	from []domain.TicketStatus
	to   domain.TicketStatus
}{
	EventAssign: {
		from: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusReopened},
		to:   domain.TicketStatusInProgress,
	},
	EventAgentRespond: {
		from: []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusReopened},
		to:   domain.TicketStatusWaitingOnCustomer,
	},
	EventCustomerReply: {
		from: []domain.TicketStatus{domain.TicketStatusWaitingOnCustomer, domain.TicketStatusResolved},
		to:   domain.TicketStatusInProgress,
	},
	EventResolve: {
		from: []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusWaitingOnCustomer},
		to:   domain.TicketStatusResolved,
	},
	EventClose: {
		from: []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusInProgress, domain.TicketStatusWaitingOnCustomer},
		to:   domain.TicketStatusClosed,
	},
	EventReopen: {
		from: []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusResolved},
		to:   domain.TicketStatusReopened,
	},
}

// Can reports whether the event is legal from the current state.
func Can(current domain.TicketStatus, event Event) bool {
	row, ok := transitions[event]
	if !ok {
		return false
	}
	for _, from := range row.from {
		if from == current {
			return true
		}
	}
	return false
}

// Next resolves the target state for (current, event). A pair not present in
// the table fails with an INVALID_TRANSITION error naming the current state.
func Next(current domain.TicketStatus, event Event) (domain.TicketStatus, error) {
	if !Can(current, event) {
		return current, util.NewInvalidTransition(
			fmt.Sprintf("cannot %s ticket in current state: %s", event, current))
	}
	return transitions[event].to, nil
}

// Apply moves the ticket to the event's target state and applies the
// post-transition effects. The caller must have validated the event with Next
// or Can first; Apply returns the Next error otherwise and leaves the ticket
// untouched.
func Apply(t *domain.Ticket, event Event, actorID string, now time.Time) error {
	next, err := Next(t.Status, event)
	if err != nil {
		return err
	}

	switch event {
	case EventAssign:
		agentID := actorID
		t.AgentID = &agentID
	case EventAgentRespond:
		if t.FirstResponseAt == nil {
			firstResponse := now
			t.FirstResponseAt = &firstResponse
		}
		t.AgentHasReplied = true
	case EventCustomerReply:
		// no side-effect fields
	case EventResolve:
		resolvedAt := now
		resolvedBy := actorID
		t.ResolvedAt = &resolvedAt
		t.ResolvedByID = &resolvedBy
	case EventClose:
		closedAt := now
		t.ClosedAt = &closedAt
	case EventReopen:
		reopenedAt := now
		t.ReopenedAt = &reopenedAt
		t.ClosedAt = nil
		t.ResolvedAt = nil
		t.ResolvedByID = nil
	}

	t.Status = next
	return nil
}
