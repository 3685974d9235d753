package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/omnibridge/backend/internal/models"
)

// Tx is the set of writes and locked reads available inside WithTx.
type Tx interface {
	LockSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
	ActiveSessions(ctx context.Context, platform string) ([]models.Session, error)

	InsertMessage(ctx context.Context, m *models.Message) (bool, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)

	ReplaceVerification(ctx context.Context, v *models.Verification) error
	VerificationByToken(ctx context.Context, token string) (*models.Verification, error)
	HasLiveVerification(ctx context.Context, sessionID string, now time.Time) (bool, error)
	DeleteVerification(ctx context.Context, id string) error
	DeleteSessionVerifications(ctx context.Context, sessionID string) error

	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)

	UpsertTicketLink(ctx context.Context, l *models.TicketLink) error
	TicketLink(ctx context.Context, ticketKey string) (*models.TicketLink, error)

	EnqueueOutbox(ctx context.Context, m *models.OutboxMessage) error
	ClaimOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id string) error
	MarkOutboxFailed(ctx context.Context, id, lastError string, nextRetryAt time.Time) error

	UpsertOrganization(ctx context.Context, trackerID, name string) (string, error)
	DeactivateOrganizationsExcept(ctx context.Context, trackerIDs []string) (int64, error)
	UpsertUser(ctx context.Context, u *models.User) error
	DeactivateUsersExcept(ctx context.Context, accountIDs []string) (int64, error)
}

type pgTx struct {
	tx pgx.Tx
}

var _ Tx = (*pgTx)(nil)
