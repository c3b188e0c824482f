package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-hub/internal/domain"
	"github.com/spec-kit/support-hub/internal/repository"
	"github.com/spec-kit/support-hub/pkg/util"
)

var exportHeaders = []string{
	"Ticket ID",
	"Reference Number",
	"Title",
	"Description",
	"Customer Email",
	"Agent Email",
	"Status",
	"Created At",
	"First Response At",
	"Closed At",
	"Priority",
	"Category",
}

// ExportService builds the closed-tickets CSV for agents. Blob storage of the
// generated file is an external concern; callers receive the raw bytes.
type ExportService struct {
	tickets repository.TicketStore
	users   repository.UserRepository
	logger  *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(tickets repository.TicketStore, users repository.UserRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{tickets: tickets, users: users, logger: logger}
}

// ClosedTicketsExport carries the generated file.
type ClosedTicketsExport struct {
	Filename string
	Count    int
	CSV      []byte
}

// ExportClosedTickets exports tickets closed within [from, to], newest first.
func (s *ExportService) ExportClosedTickets(ctx context.Context, actor *domain.User, from, to time.Time) (*ClosedTicketsExport, error) {
	if !actor.IsAgent() {
		return nil, util.NewUnauthorized("only agents can export closed tickets")
	}

	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		Statuses:   []domain.TicketStatus{domain.TicketStatusClosed},
		ClosedFrom: &from,
		ClosedTo:   &to,
		Limit:      10000,
	})
	if err != nil {
		s.logger.Error("closed tickets export failed", zap.Error(err))
		return nil, util.NewOperationFailed(err)
	}
	if len(tickets) == 0 {
		return nil, util.NewNotFound("closed tickets", map[string]any{
			"from": from.Format(time.RFC3339),
			"to":   to.Format(time.RFC3339),
		})
	}

	emails := map[string]string{}
	lookup := func(id *string) string {
		if id == nil {
			return ""
		}
		if email, ok := emails[*id]; ok {
			return email
		}
		user, err := s.users.GetByID(ctx, *id)
		if err != nil {
			emails[*id] = ""
			return ""
		}
		emails[*id] = user.Email
		return user.Email
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(exportHeaders); err != nil {
		return nil, util.NewOperationFailed(err)
	}
	for i := range tickets {
		t := &tickets[i]
		customerID := t.CustomerID
		record := []string{
			t.ID,
			t.Number,
			t.Title,
			t.Description,
			lookup(&customerID),
			lookup(t.AgentID),
			humanizeStatus(t.Status),
			formatTime(&t.CreatedAt),
			formatTime(t.FirstResponseAt),
			formatTime(t.ClosedAt),
			string(t.Priority),
			string(t.Category),
		}
		if err := writer.Write(record); err != nil {
			return nil, util.NewOperationFailed(err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, util.NewOperationFailed(err)
	}

	return &ClosedTicketsExport{
		Filename: exportFilename(from, to),
		Count:    len(tickets),
		CSV:      buf.Bytes(),
	}, nil
}

func exportFilename(from, to time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "closed_tickets_" + from.Format("20060102150405") + "_to_" + to.Format("20060102150405") + "_" + suffix + ".csv"
}

func humanizeStatus(status domain.TicketStatus) string {
	words := strings.Split(strings.ToLower(string(status)), "_")
	if len(words) > 0 && words[0] != "" {
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	}
	return strings.Join(words, " ")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
