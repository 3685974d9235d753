package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/omnibridge/backend/internal/models"
)

const messageColumns = `id, session_id, role, content, external_message_id, created_at`

func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		m    models.Message
		role string
	)
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.ExternalMessageID, &m.CreatedAt); err != nil {
		return models.Message{}, err
	}
	m.Role = models.MessageRole(role)
	return m, nil
}

// InsertMessage appends m to the log. It returns false without error when
// (session_id, external_message_id) already exists.
func (t *pgTx) InsertMessage(ctx context.Context, m *models.Message) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content, external_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, external_message_id) DO NOTHING
	`, m.ID, m.SessionID, string(m.Role), m.Content, m.ExternalMessageID, m.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecentMessages returns up to limit messages, oldest first.
func (t *pgTx) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *Store) MarkRead(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE channel_sessions SET last_read_at = $2 WHERE id = $1`, sessionID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
