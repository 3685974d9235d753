package db

import (
	"context"
	"time"

	"github.com/omnibridge/backend/internal/models"
)

func (s *Store) ListConversations(ctx context.Context, platform, authStatus string, limit, offset int) ([]models.ConversationSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+prefixed(sessionColumns, "s")+`,
			u.email,
			(SELECT m.content FROM messages m WHERE m.session_id = s.id ORDER BY m.created_at DESC LIMIT 1),
			(SELECT MAX(m.created_at) FROM messages m WHERE m.session_id = s.id),
			(SELECT COUNT(*) FROM messages m
				WHERE m.session_id = s.id AND m.role = 'user'
				AND (s.last_read_at IS NULL OR m.created_at > s.last_read_at))
		FROM channel_sessions s
		LEFT JOIN users u ON u.id = s.user_id
		WHERE ($1 = '' OR s.platform = $1)
		  AND ($2 = '' OR s.auth_status = $2)
		ORDER BY s.last_active_at DESC
		LIMIT $3 OFFSET $4
	`, platform, authStatus, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var (
			c          models.ConversationSummary
			authStatus string
			draft      []byte
		)
		sess := &c.Session
		if err := rows.Scan(&sess.ID, &sess.Platform, &sess.ExternalUserID, &sess.UserID, &authStatus, &sess.AuthExpiresAt, &sess.Status, &draft, &sess.LastActiveAt, &sess.LastReadAt, &sess.CreatedAt,
			&c.UserEmail, &c.LastMessage, &c.LastAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		sess.AuthStatus = models.AuthStatus(authStatus)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats aggregates dashboard counters; messages are counted from since.
func (s *Store) Stats(ctx context.Context, since time.Time) (models.Stats, error) {
	st := models.Stats{SessionsByStatus: map[string]int{}}

	rows, err := s.Pool.Query(ctx, `SELECT auth_status, COUNT(*) FROM channel_sessions GROUP BY auth_status`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.SessionsByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	err = s.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE created_at >= $1),
			(SELECT COUNT(*) FROM outbox_messages WHERE status = 'pending'),
			(SELECT COUNT(*) FROM outbox_messages WHERE status = 'failed'),
			(SELECT COUNT(*) FROM ticket_links)
	`, since).Scan(&st.MessagesToday, &st.OutboxPending, &st.OutboxFailed, &st.TicketLinks)
	return st, err
}
