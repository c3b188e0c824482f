package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-hub/internal/domain"
)

const ticketColumns = `id, number, customer_id, agent_id, title, description, status, priority, category,
       agent_has_replied, first_response_at, resolved_at, resolved_by_id, closed_at, reopened_at,
       created_at, updated_at`

type ticketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore instantiates the postgres-backed store.
func NewTicketStore(pool *pgxpool.Pool) TicketStore {
	return &ticketStore{pool: pool}
}

func (r *ticketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (number, customer_id, title, description, status, priority, category)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Number,
		ticket.CustomerID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}

	for i := range ticket.Attachments {
		att := &ticket.Attachments[i]
		att.TicketID = ticket.ID
		const attQuery = `
            INSERT INTO ticket_attachments (ticket_id, file_name, mime_type, size_bytes)
            VALUES ($1,$2,$3,$4)
            RETURNING id, created_at`
		if err := r.pool.QueryRow(ctx, attQuery, att.TicketID, att.FileName, att.MimeType, att.SizeBytes).
			Scan(&att.ID, &att.CreatedAt); err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

func (r *ticketStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, r.pool, query, id)
}

func (r *ticketStore) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE number=$1`, ticketColumns)
	return r.fetchSingle(ctx, r.pool, query, number)
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *ticketStore) fetchSingle(ctx context.Context, q pgxQuerier, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(q.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, mapPgError(err)
	}
	return &ticket, nil
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.CustomerID,
		&ticket.AgentID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.AgentHasReplied,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ResolvedByID,
		&ticket.ClosedAt,
		&ticket.ReopenedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func (r *ticketStore) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses, args := filterClauses(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketStore) CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error) {
	clauses, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM tickets WHERE %s GROUP BY status`,
		strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int64)
	for rows.Next() {
		var status domain.TicketStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ticketStore) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	const query = `
        SELECT id, ticket_id, author_id, author_role, body, created_at
        FROM ticket_comments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.TicketID,
			&comment.AuthorID,
			&comment.AuthorRole,
			&comment.Body,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}

// WithTicketLock opens a transaction and takes a FOR UPDATE row lock on the
// ticket, so concurrent transitions on the same ticket serialize at the
// database. The transaction commits only when fn returns nil.
func (r *ticketStore) WithTicketLock(ctx context.Context, ticketID string, fn func(ctx context.Context, tx TicketTx) error) error {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1 FOR UPDATE`, ticketColumns)
	var ticket domain.Ticket
	if err := scanTicket(dbTx.QueryRow(ctx, query, ticketID), &ticket); err != nil {
		return mapPgError(err)
	}

	view := &pgxTicketTx{tx: dbTx, ticket: &ticket}
	if err := fn(ctx, view); err != nil {
		return err
	}
	return dbTx.Commit(ctx)
}

type pgxTicketTx struct {
	tx     pgx.Tx
	ticket *domain.Ticket
}

func (t *pgxTicketTx) Ticket() *domain.Ticket {
	return t.ticket
}

func (t *pgxTicketTx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET agent_id=$1, status=$2, priority=$3, agent_has_replied=$4,
            first_response_at=$5, resolved_at=$6, resolved_by_id=$7, closed_at=$8, reopened_at=$9,
            updated_at=NOW()
        WHERE id=$10`
	cmd, err := t.tx.Exec(ctx, query,
		ticket.AgentID,
		ticket.Status,
		ticket.Priority,
		ticket.AgentHasReplied,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ResolvedByID,
		ticket.ClosedAt,
		ticket.ReopenedAt,
		ticket.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgxTicketTx) CreateComment(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, author_id, author_role, body)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	err := t.tx.QueryRow(ctx, query,
		comment.TicketID,
		comment.AuthorID,
		comment.AuthorRole,
		comment.Body,
	).Scan(&comment.ID, &comment.CreatedAt)
	return mapPgError(err)
}

func filterClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "agent_id IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ClosedFrom != nil {
		args = append(args, *filter.ClosedFrom)
		clauses = append(clauses, fmt.Sprintf("closed_at >= $%d", len(args)))
	}
	if filter.ClosedTo != nil {
		args = append(args, *filter.ClosedTo)
		clauses = append(clauses, fmt.Sprintf("closed_at <= $%d", len(args)))
	}

	return clauses, args
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
