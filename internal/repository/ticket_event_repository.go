package repository

import (
	"context"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

// Events have no update or delete path; the table also rejects UPDATE with a
// trigger.

const eventColumns = `id, seq, ticket_id, type, message, from_role, actor_staff_id, meta, created_at`

func insertEvent(ctx context.Context, q querier, event *domain.TicketEvent) error {
	const query = `
        INSERT INTO ticket_events (ticket_id, type, message, from_role, actor_staff_id, meta)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, seq, created_at`
	return q.QueryRow(ctx, query,
		event.TicketID,
		event.Type,
		event.Message,
		event.FromRole,
		event.ActorStaffID,
		event.Meta,
	).Scan(&event.ID, &event.Seq, &event.CreatedAt)
}

// listEvents returns the ticket's events oldest first.
func listEvents(ctx context.Context, q querier, ticketID string) ([]domain.TicketEvent, error) {
	query := `SELECT ` + eventColumns + `
        FROM ticket_events WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketEvent
	for rows.Next() {
		var event domain.TicketEvent
		if err := rows.Scan(
			&event.ID,
			&event.Seq,
			&event.TicketID,
			&event.Type,
			&event.Message,
			&event.FromRole,
			&event.ActorStaffID,
			&event.Meta,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
