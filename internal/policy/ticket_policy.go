// Package policy decides whether an actor may perform an action on a ticket.
// Every decision is a pure function of (actor, ticket, action); the transition
// coordinator re-checks state-dependent guards under the ticket lock.
package policy

import "github.com/spec-kit/support-hub/internal/domain"

// CanView permits any agent, or the ticket's owning customer.
func CanView(actor *domain.User, ticket *domain.Ticket) bool {
	if actor == nil {
		return false
	}
	return actor.IsAgent() || ticket.OwnedBy(actor.ID)
}

// CanCreate permits any authenticated actor acting as the submitting customer.
func CanCreate(actor *domain.User) bool {
	return actor != nil
}

// CanAssign permits agents only. The coordinator additionally verifies under
// the lock that no other agent already holds the assignment.
func CanAssign(actor *domain.User) bool {
	return actor.IsAgent()
}

// CanResolve permits only the currently assigned agent, and only while the
// ticket is in progress, waiting on the customer, or reopened.
func CanResolve(actor *domain.User, ticket *domain.Ticket) bool {
	if !actor.IsAgent() || !ticket.AssignedTo(actor.ID) {
		return false
	}
	switch ticket.Status {
	case domain.TicketStatusInProgress, domain.TicketStatusWaitingOnCustomer, domain.TicketStatusReopened:
		return true
	}
	return false
}

// CanClose permits the assigned agent from any non-closed state, and the
// owning customer only once the ticket is resolved.
func CanClose(actor *domain.User, ticket *domain.Ticket) bool {
	if actor == nil || ticket.Status == domain.TicketStatusClosed {
		return false
	}
	if actor.IsAgent() {
		return ticket.AssignedTo(actor.ID)
	}
	return ticket.OwnedBy(actor.ID) && ticket.Status == domain.TicketStatusResolved
}

// CanReopen permits any agent, or the owning customer, on a resolved or
// closed ticket.
func CanReopen(actor *domain.User, ticket *domain.Ticket) bool {
	if actor == nil {
		return false
	}
	if ticket.Status != domain.TicketStatusClosed && ticket.Status != domain.TicketStatusResolved {
		return false
	}
	return actor.IsAgent() || ticket.OwnedBy(actor.ID)
}

// CanComment gates comment creation. Closed tickets take no comments at all.
// Agents must hold the assignment and may comment while the ticket is in
// progress, waiting on the customer, or resolved. Customers must own the
// ticket, may always comment while waiting on the customer, and may comment
// while in progress only after an agent has replied.
func CanComment(actor *domain.User, ticket *domain.Ticket) bool {
	if ticket.Status == domain.TicketStatusClosed {
		return false
	}
	if !CanView(actor, ticket) {
		return false
	}

	if actor.IsAgent() {
		if ticket.Status == domain.TicketStatusOpen {
			// ticket must be assigned first
			return false
		}
		if !ticket.AssignedTo(actor.ID) {
			return false
		}
		switch ticket.Status {
		case domain.TicketStatusInProgress, domain.TicketStatusWaitingOnCustomer, domain.TicketStatusResolved:
			return true
		}
		return false
	}

	if !ticket.OwnedBy(actor.ID) {
		return false
	}
	switch ticket.Status {
	case domain.TicketStatusWaitingOnCustomer:
		return true
	case domain.TicketStatusInProgress:
		return ticket.AgentHasReplied
	}
	return false
}
