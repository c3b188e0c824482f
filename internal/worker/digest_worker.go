package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/events"
	"github.com/spec-kit/support-hub/internal/repository"
)

var openStatuses = []domain.TicketStatus{
	domain.TicketStatusOpen,
	domain.TicketStatusInProgress,
	domain.TicketStatusWaitingOnCustomer,
	domain.TicketStatusReopened,
}

// DigestWorker periodically publishes a per-agent digest of open tickets:
// the agent's assigned workload plus the unassigned queue.
type DigestWorker struct {
	tickets    repository.TicketStore
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	interval   time.Duration
}

// NewDigestWorker constructs the worker.
func NewDigestWorker(tickets repository.TicketStore, users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger, interval time.Duration) *DigestWorker {
	return &DigestWorker{
		tickets:    tickets,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
	}
}

// Run ticks until ctx is canceled.
func (w *DigestWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce builds and publishes the digest for every agent with open work.
func (w *DigestWorker) RunOnce(ctx context.Context) {
	w.logger.Info("starting open tickets digest")

	agents, err := w.users.ListByRole(ctx, domain.RoleAgent)
	if err != nil {
		w.logger.Error("digest: list agents failed", zap.Error(err))
		return
	}

	unassigned, err := w.tickets.List(ctx, repository.TicketFilter{
		Statuses:   openStatuses,
		Unassigned: true,
		Limit:      1000,
	})
	if err != nil {
		w.logger.Error("digest: list unassigned failed", zap.Error(err))
		return
	}
	unassignedIDs := ticketIDs(unassigned)

	sent := 0
	for i := range agents {
		agent := &agents[i]
		if agent.Email == "" {
			continue
		}

		agentID := agent.ID
		assigned, err := w.tickets.List(ctx, repository.TicketFilter{
			Statuses: openStatuses,
			AgentID:  &agentID,
			Limit:    1000,
		})
		if err != nil {
			w.logger.Error("digest: list assigned failed",
				zap.String("agent_id", agent.ID),
				zap.Error(err))
			continue
		}
		if len(assigned) == 0 && len(unassignedIDs) == 0 {
			continue
		}

		_ = w.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventAgentDigestDue,
			Actor:     events.Actor{UserID: agent.ID, Role: domain.RoleAgent},
			Timestamp: time.Now(),
			Payload: events.AgentDigestPayload{
				AgentEmail:    agent.Email,
				AssignedIDs:   ticketIDs(assigned),
				UnassignedIDs: unassignedIDs,
			},
		})
		sent++
	}

	w.logger.Info("finished open tickets digest", zap.Int("digests", sent))
}

func ticketIDs(tickets []domain.Ticket) []string {
	ids := make([]string, 0, len(tickets))
	for i := range tickets {
		ids = append(ids, tickets[i].ID)
	}
	return ids
}
