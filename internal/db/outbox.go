package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/omnibridge/backend/internal/models"
)

func (t *pgTx) EnqueueOutbox(ctx context.Context, m *models.OutboxMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.OutboxPending
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO outbox_messages (id, session_id, platform, external_user_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW())
		RETURNING created_at
	`, m.ID, m.SessionID, m.Platform, m.ExternalUserID, m.Payload, string(m.Status)).Scan(&m.CreatedAt)
}

// ClaimOutbox locks up to limit deliverable rows: pending ones, and failed
// ones whose retry time has come. Rows locked by another worker are skipped.
func (t *pgTx) ClaimOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, session_id, platform, external_user_id, payload, status, attempts, last_error, next_retry_at, created_at
		FROM outbox_messages
		WHERE status = 'pending'
		   OR (status = 'failed' AND next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OutboxMessage
	for rows.Next() {
		var (
			m      models.OutboxMessage
			status string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Platform, &m.ExternalUserID, &m.Payload, &status, &m.Attempts, &m.LastError, &m.NextRetryAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Status = models.OutboxStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkOutboxSent(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE outbox_messages
		SET status = 'sent', attempts = attempts + 1, last_error = NULL, next_retry_at = NULL, sent_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

func (t *pgTx) MarkOutboxFailed(ctx context.Context, id, lastError string, nextRetryAt time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE outbox_messages
		SET status = 'failed', attempts = attempts + 1, last_error = $2, next_retry_at = $3
		WHERE id = $1
	`, id, lastError, nextRetryAt)
	return err
}
