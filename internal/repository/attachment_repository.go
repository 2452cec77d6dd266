package repository

import (
	"context"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

const attachmentColumns = `id, ticket_id, file_name, file_url, file_mime, file_size, created_at`

func insertAttachment(ctx context.Context, q querier, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO ticket_attachments (ticket_id, file_name, file_url, file_mime, file_size, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		attachment.TicketID,
		attachment.FileName,
		attachment.FileURL,
		attachment.FileMime,
		attachment.FileSize,
		attachment.CreatedAt,
	).Scan(&attachment.ID, &attachment.CreatedAt)
}

func listAttachments(ctx context.Context, q querier, ticketID string) ([]domain.Attachment, error) {
	query := `SELECT ` + attachmentColumns + `
        FROM ticket_attachments WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.FileName,
			&attachment.FileURL,
			&attachment.FileMime,
			&attachment.FileSize,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
