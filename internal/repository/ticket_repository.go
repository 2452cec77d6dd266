package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

const ticketSequenceName = "ticket"

// TicketFilter captures admin dashboard search parameters.
type TicketFilter struct {
	Status     *domain.TicketStatus
	IssueType  *domain.IssueType
	Department string
	Limit      int
	Offset     int
}

// TicketStats summarises all tickets for the dashboard.
type TicketStats struct {
	Total   int
	Open    int
	Waiting int
}

// Include selects the relations loaded with a ticket.
type Include struct {
	Attachments bool
	Events      bool
}

// Mutation lists the rows appended together with a ticket update.
type Mutation struct {
	Events      []domain.TicketEvent
	Attachments []domain.Attachment
}

// MutateFunc edits a locked ticket in place and returns the rows to append.
// Returning an error aborts the whole mutation.
type MutateFunc func(ticket *domain.Ticket) (Mutation, error)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create allocates the public id and stores the ticket together with its
	// Attachments and Events in one transaction.
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string, include Include) (*domain.Ticket, error)
	GetByPublicID(ctx context.Context, publicID string, include Include) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Stats(ctx context.Context) (TicketStats, error)
	// Mutate locks the ticket, applies fn and persists the updated status,
	// assignment and updatedAt plus the returned rows atomically. The
	// returned ticket carries only the appended rows in Attachments/Events.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error)
}

// txQuerier is satisfied by *pgxpool.Pool.
type txQuerier interface {
	querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// snapshotRead makes a ticket and its relations come from one snapshot, so
// the projected status always matches the latest STATUS_CHANGED event.
var snapshotRead = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

type ticketRepository struct {
	pool txQuerier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketSelect = `
        SELECT t.id, t.public_ticket_id, t.issue_type, t.department, t.student_name, t.student_id,
               t.student_contact, t.title, t.description, t.status, t.view_token,
               t.assigned_to_id, s.name, t.created_at, t.updated_at
        FROM tickets t
        LEFT JOIN staff_members s ON s.id = t.assigned_to_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const nextSequence = `
        INSERT INTO ticket_sequences (name, value) VALUES ($1, 1)
        ON CONFLICT (name) DO UPDATE SET value = ticket_sequences.value + 1
        RETURNING value`
	var seq int64
	if err := tx.QueryRow(ctx, nextSequence, ticketSequenceName).Scan(&seq); err != nil {
		return fmt.Errorf("allocate ticket sequence: %w", err)
	}
	ticket.PublicTicketID = domain.FormatPublicTicketID(ticket.CreatedAt.Year(), seq)

	const insertTicket = `
        INSERT INTO tickets (public_ticket_id, issue_type, department, student_name, student_id, student_contact,
                             title, description, status, view_token, assigned_to_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id`
	if err := tx.QueryRow(ctx, insertTicket,
		ticket.PublicTicketID,
		ticket.IssueType,
		ticket.Department,
		ticket.StudentName,
		ticket.StudentID,
		ticket.StudentContact,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.ViewToken,
		ticket.AssignedToID,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Scan(&ticket.ID); err != nil {
		return err
	}

	if err := appendRows(ctx, tx, ticket.ID, ticket.Attachments, ticket.Events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string, include Include) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return r.fetchSingle(ctx, ticketSelect+` WHERE t.id=$1`, id, include)
}

func (r *ticketRepository) GetByPublicID(ctx context.Context, publicID string, include Include) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, ticketSelect+` WHERE t.public_ticket_id=$1`, publicID, include)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any, include Include) (*domain.Ticket, error) {
	tx, err := r.pool.BeginTx(ctx, snapshotRead)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ticket, err := scanTicket(tx.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	if include.Attachments {
		if ticket.Attachments, err = listAttachments(ctx, tx, ticket.ID); err != nil {
			return nil, err
		}
	}
	if include.Events {
		if ticket.Events, err = listEvents(ctx, tx, ticket.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if filter.IssueType != nil {
		args = append(args, *filter.IssueType)
		clauses = append(clauses, fmt.Sprintf("t.issue_type=$%d", len(args)))
	}
	if department := strings.TrimSpace(filter.Department); department != "" {
		args = append(args, "%"+escapeLike(department)+"%")
		clauses = append(clauses, fmt.Sprintf("t.department ILIKE $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.updated_at DESC, t.id DESC LIMIT %d OFFSET %d`,
		ticketSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Stats(ctx context.Context) (TicketStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status NOT IN ('RESOLVED', 'REJECTED')),
               COUNT(*) FILTER (WHERE status = 'WAITING_STUDENT')
        FROM tickets`
	var stats TicketStats
	err := r.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Open, &stats.Waiting)
	return stats, err
}

func (r *ticketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ticket, err := scanTicket(tx.QueryRow(ctx, ticketSelect+` WHERE t.id=$1 FOR UPDATE OF t`, id))
	if err != nil {
		return nil, notFound(err)
	}

	mutation, err := fn(ticket)
	if err != nil {
		return nil, err
	}

	const update = `UPDATE tickets SET status=$1, assigned_to_id=$2, updated_at=$3 WHERE id=$4`
	if _, err := tx.Exec(ctx, update, ticket.Status, ticket.AssignedToID, ticket.UpdatedAt, ticket.ID); err != nil {
		return nil, err
	}
	if err := appendRows(ctx, tx, ticket.ID, mutation.Attachments, mutation.Events); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	ticket.Attachments = mutation.Attachments
	ticket.Events = mutation.Events
	return ticket, nil
}

func appendRows(ctx context.Context, q querier, ticketID string, attachments []domain.Attachment, events []domain.TicketEvent) error {
	for i := range attachments {
		attachments[i].TicketID = ticketID
		if err := insertAttachment(ctx, q, &attachments[i]); err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	for i := range events {
		events[i].TicketID = ticketID
		if err := insertEvent(ctx, q, &events[i]); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.PublicTicketID,
		&ticket.IssueType,
		&ticket.Department,
		&ticket.StudentName,
		&ticket.StudentID,
		&ticket.StudentContact,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.ViewToken,
		&ticket.AssignedToID,
		&ticket.AssignedToName,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
