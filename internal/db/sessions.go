package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/omnibridge/backend/internal/models"
)

const sessionColumns = `id, platform, external_user_id, user_id, auth_status, auth_expires_at, status, draft_ticket, last_active_at, last_read_at, created_at`

func prefixed(cols, alias string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s          models.Session
		authStatus string
		draft      []byte
	)
	if err := row.Scan(&s.ID, &s.Platform, &s.ExternalUserID, &s.UserID, &authStatus, &s.AuthExpiresAt, &s.Status, &draft, &s.LastActiveAt, &s.LastReadAt, &s.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	s.AuthStatus = models.AuthStatus(authStatus)
	if len(draft) > 0 && string(draft) != "null" {
		var d models.DraftTicket
		if err := json.Unmarshal(draft, &d); err != nil {
			return nil, fmt.Errorf("decode draft for session %s: %w", s.ID, err)
		}
		s.Draft = &d
	}
	return &s, nil
}

func encodeDraft(d *models.DraftTicket) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// GetOrCreateSession returns the session for (platform, externalUserID),
// creating an anonymous one if absent. A concurrent insert for the same pair
// loses on the unique constraint and re-reads the winner's row.
func (s *Store) GetOrCreateSession(ctx context.Context, platform, externalUserID string) (*models.Session, error) {
	sess, err := s.sessionByExternal(ctx, platform, externalUserID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := s.Pool.QueryRow(ctx, `
		INSERT INTO channel_sessions (id, platform, external_user_id, auth_status, status, last_active_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+sessionColumns,
		uuid.NewString(), platform, externalUserID, string(models.AuthAnonymous), models.SessionActive)
	sess, err = scanSession(row)
	if isUniqueViolation(err) {
		return s.sessionByExternal(ctx, platform, externalUserID)
	}
	return sess, err
}

func (s *Store) sessionByExternal(ctx context.Context, platform, externalUserID string) (*models.Session, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM channel_sessions WHERE platform = $1 AND external_user_id = $2`, platform, externalUserID)
	return scanSession(row)
}

func (s *Store) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM channel_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// LockSession reads the session row with FOR UPDATE; the lock is held until
// the surrounding transaction ends.
func (t *pgTx) LockSession(ctx context.Context, id string) (*models.Session, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM channel_sessions WHERE id = $1 FOR UPDATE`, id)
	return scanSession(row)
}

func (t *pgTx) SaveSession(ctx context.Context, s *models.Session) error {
	draft, err := encodeDraft(s.Draft)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE channel_sessions
		SET user_id = $2, auth_status = $3, auth_expires_at = $4, draft_ticket = $5, last_active_at = $6
		WHERE id = $1
	`, s.ID, s.UserID, string(s.AuthStatus), s.AuthExpiresAt, draft, s.LastActiveAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ActiveSessions(ctx context.Context, platform string) ([]models.Session, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM channel_sessions
		WHERE status = $1 AND ($2 = '' OR platform = $2)
		ORDER BY last_active_at DESC
	`, models.SessionActive, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}
