package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/omnibridge/backend/internal/models"
)

// ReplaceVerification drops any earlier token for the session and stores v.
func (t *pgTx) ReplaceVerification(ctx context.Context, v *models.Verification) error {
	if err := t.DeleteSessionVerifications(ctx, v.SessionID); err != nil {
		return err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO email_verifications (id, session_id, email, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, v.ID, v.SessionID, v.Email, v.Token, v.ExpiresAt, v.CreatedAt)
	return err
}

func (t *pgTx) VerificationByToken(ctx context.Context, token string) (*models.Verification, error) {
	var v models.Verification
	err := t.tx.QueryRow(ctx, `
		SELECT id, session_id, email, token, expires_at, created_at
		FROM email_verifications
		WHERE token = $1
		FOR UPDATE
	`, token).Scan(&v.ID, &v.SessionID, &v.Email, &v.Token, &v.ExpiresAt, &v.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (t *pgTx) HasLiveVerification(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM email_verifications WHERE session_id = $1 AND expires_at > $2)
	`, sessionID, now).Scan(&exists)
	return exists, err
}

func (t *pgTx) DeleteVerification(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM email_verifications WHERE id = $1`, id)
	return err
}

func (t *pgTx) DeleteSessionVerifications(ctx context.Context, sessionID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM email_verifications WHERE session_id = $1`, sessionID)
	return err
}
