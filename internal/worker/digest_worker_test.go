package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/events"
	"github.com/spec-kit/support-hub/internal/repository"
)

func seedUser(t *testing.T, store *repository.MemoryStore, email string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Email: email, PasswordHash: "x", Role: role}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func seedTicket(t *testing.T, store *repository.MemoryStore, customerID string, number string, agentID *string, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Number:      number,
		CustomerID:  customerID,
		AgentID:     agentID,
		Title:       "t",
		Description: "d",
		Status:      status,
		Priority:    domain.TicketPriorityNormal,
		Category:    domain.TicketCategoryOther,
	}
	if err := store.Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestDigestRunOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher()

	var digests []events.Event
	dispatcher.Subscribe(events.EventAgentDigestDue, func(ctx context.Context, e events.Event) error {
		digests = append(digests, e)
		return nil
	})

	customer := seedUser(t, store, "cust@example.com", domain.RoleCustomer)
	busy := seedUser(t, store, "busy@example.com", domain.RoleAgent)
	seedUser(t, store, "idle@example.com", domain.RoleAgent)

	busyID := busy.ID
	assigned := seedTicket(t, store, customer.ID, "SPT-aaaaaaaaaa", &busyID, domain.TicketStatusInProgress)
	unassigned := seedTicket(t, store, customer.ID, "SPT-bbbbbbbbbb", nil, domain.TicketStatusOpen)
	// closed tickets never appear in a digest
	seedTicket(t, store, customer.ID, "SPT-cccccccccc", &busyID, domain.TicketStatusClosed)

	w := NewDigestWorker(store, store.Users(), dispatcher, zap.NewNop(), time.Hour)
	w.RunOnce(ctx)

	if len(digests) != 2 {
		t.Fatalf("digests = %d, want one per agent", len(digests))
	}

	byEmail := map[string]events.AgentDigestPayload{}
	for _, e := range digests {
		payload, ok := e.Payload.(events.AgentDigestPayload)
		if !ok {
			t.Fatalf("unexpected payload type %T", e.Payload)
		}
		byEmail[payload.AgentEmail] = payload
	}

	busyDigest := byEmail["busy@example.com"]
	if len(busyDigest.AssignedIDs) != 1 || busyDigest.AssignedIDs[0] != assigned.ID {
		t.Fatalf("busy assigned = %v, want [%s]", busyDigest.AssignedIDs, assigned.ID)
	}
	if len(busyDigest.UnassignedIDs) != 1 || busyDigest.UnassignedIDs[0] != unassigned.ID {
		t.Fatalf("busy unassigned = %v, want [%s]", busyDigest.UnassignedIDs, unassigned.ID)
	}

	idleDigest := byEmail["idle@example.com"]
	if len(idleDigest.AssignedIDs) != 0 {
		t.Fatalf("idle assigned = %v, want none", idleDigest.AssignedIDs)
	}
	if len(idleDigest.UnassignedIDs) != 1 {
		t.Fatalf("idle unassigned = %v, want the open queue", idleDigest.UnassignedIDs)
	}
}

func TestDigestSkipsWhenNoOpenWork(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher()

	count := 0
	dispatcher.Subscribe(events.EventAgentDigestDue, func(ctx context.Context, e events.Event) error {
		count++
		return nil
	})

	seedUser(t, store, "agent@example.com", domain.RoleAgent)

	w := NewDigestWorker(store, store.Users(), dispatcher, zap.NewNop(), time.Hour)
	w.RunOnce(ctx)

	if count != 0 {
		t.Fatalf("digests = %d, want 0 with an empty queue", count)
	}
}
