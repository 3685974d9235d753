package db

import (
	"context"

	"github.com/omnibridge/backend/internal/models"
)

// UpsertTicketLink binds a ticket key to a session; relinking moves it.
func (t *pgTx) UpsertTicketLink(ctx context.Context, l *models.TicketLink) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO ticket_links (ticket_key, session_id, organization_id, platform, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (ticket_key) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			organization_id = EXCLUDED.organization_id,
			platform = EXCLUDED.platform
		RETURNING created_at
	`, l.TicketKey, l.SessionID, l.OrganizationID, l.Platform).Scan(&l.CreatedAt)
}

func (t *pgTx) TicketLink(ctx context.Context, ticketKey string) (*models.TicketLink, error) {
	var l models.TicketLink
	err := t.tx.QueryRow(ctx, `
		SELECT ticket_key, session_id, organization_id, platform, created_at
		FROM ticket_links WHERE ticket_key = $1
	`, ticketKey).Scan(&l.TicketKey, &l.SessionID, &l.OrganizationID, &l.Platform, &l.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *Store) ListTicketLinks(ctx context.Context, sessionID string) ([]models.TicketLink, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT ticket_key, session_id, organization_id, platform, created_at
		FROM ticket_links
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TicketLink
	for rows.Next() {
		var l models.TicketLink
		if err := rows.Scan(&l.TicketKey, &l.SessionID, &l.OrganizationID, &l.Platform, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
