package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/events"
	"github.com/omnibridge/backend/internal/mail"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/tracker"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrUnknownIdentity = errors.New("email not in directory")

	ErrInvalidToken = errors.New("invalid_token")
	ErrExpiredToken = errors.New("expired_token")
	ErrUserNotFound = errors.New("user_not_found")
	ErrUserInactive = errors.New("user_inactive")
)

// StartVerification checks email against the directory, mails a one-time
// link and moves s to pending_verification. Any earlier token for the
// session is replaced. s is saved by the caller.
func (o *Orchestrator) StartVerification(ctx context.Context, tx db.Tx, s *models.Session, email string, now time.Time) (string, error) {
	email, ok := parseEmail(email)
	if !ok {
		return "", ErrInvalidEmail
	}

	exists, err := o.Tracker.IdentityExists(ctx, email)
	if err != nil {
		if !errors.Is(err, tracker.ErrTrackerUnavailable) {
			err = fmt.Errorf("%w: %v", tracker.ErrTrackerUnavailable, err)
		}
		return "", fmt.Errorf("identity lookup: %w", err)
	}
	if !exists {
		return "", ErrUnknownIdentity
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	ttl := o.verificationTTL()
	subject, body := verificationMail(o.Options.BaseURL, token, ttl)
	// The mail goes out before anything is written, so a failed send leaves
	// the session untouched.
	if err := o.Mail.Send(ctx, email, subject, body); err != nil {
		if !errors.Is(err, mail.ErrSMTP) {
			err = &mail.SMTPError{Op: "send", Err: err}
		}
		return "", fmt.Errorf("verification mail: %w", err)
	}

	v := &models.Verification{
		SessionID: s.ID,
		Email:     email,
		Token:     token,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := tx.ReplaceVerification(ctx, v); err != nil {
		return "", fmt.Errorf("store verification: %w", err)
	}
	s.AuthStatus = models.AuthPendingVerification
	s.UserID = nil
	s.AuthExpiresAt = nil
	verificationsStarted.Inc()
	return token, nil
}

// VerifyToken consumes a verification token and authenticates its session.
// The "you are verified" notice is logged and delivered like any reply.
func (o *Orchestrator) VerifyToken(ctx context.Context, token string) (*models.Session, error) {
	var (
		sess *models.Session
		user *models.User
	)
	now := o.clock()
	err := o.Repo.WithTx(ctx, func(tx db.Tx) error {
		v, err := tx.VerificationByToken(ctx, token)
		if errors.Is(err, db.ErrNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if now.After(v.ExpiresAt) {
			return ErrExpiredToken
		}

		user, err = tx.UserByEmail(ctx, v.Email)
		if errors.Is(err, db.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return ErrUserInactive
		}

		sess, err = tx.LockSession(ctx, v.SessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		expires := now.Add(o.authTTL())
		sess.UserID = &user.ID
		sess.AuthStatus = models.AuthAuthenticated
		sess.AuthExpiresAt = &expires
		if err := tx.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		if err := tx.DeleteVerification(ctx, v.ID); err != nil {
			return fmt.Errorf("consume token: %w", err)
		}
		return o.stageReply(ctx, tx, sess, models.RoleSystem, ReplyVerified, now)
	})
	if err != nil {
		verificationsFinished.WithLabelValues(verifyOutcome(err)).Inc()
		return nil, err
	}
	verificationsFinished.WithLabelValues("ok").Inc()

	o.Delivery.Flush(ctx, sess.Target(), ReplyVerified)
	o.publish(ctx, sess.ID, []event{{
		name: events.SessionAuthenticated,
		payload: map[string]any{
			"session_id": sess.ID,
			"platform":   sess.Platform,
			"user_id":    user.ID,
			"expires_at": sess.AuthExpiresAt.Format(time.RFC3339),
		},
	}})
	o.Logger.Info().Str("session_id", sess.ID).Str("user_id", user.ID).Msg("session authenticated")
	return sess, nil
}

func verifyOutcome(err error) string {
	for _, known := range []error{ErrInvalidToken, ErrExpiredToken, ErrUserNotFound, ErrUserInactive} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "error"
}

func verificationMail(baseURL, token string, ttl time.Duration) (string, string) {
	link := strings.TrimRight(baseURL, "/") + "/auth/verify?token=" + url.QueryEscape(token)
	body := fmt.Sprintf("Hello,\n\nPlease confirm your email address to continue your support conversation:\n\n%s\n\nThis link expires in %d minutes. If you did not request it, you can ignore this message.\n", link, int(ttl.Minutes()))
	return "Verify your email", body
}

func (o *Orchestrator) verificationTTL() time.Duration {
	if o.Options.VerificationTTL > 0 {
		return o.Options.VerificationTTL
	}
	return 15 * time.Minute
}

func (o *Orchestrator) authTTL() time.Duration {
	if o.Options.AuthTTL > 0 {
		return o.Options.AuthTTL
	}
	return 30 * 24 * time.Hour
}
