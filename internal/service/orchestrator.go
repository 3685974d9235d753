package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnibridge/backend/internal/ai"
	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/events"
	"github.com/omnibridge/backend/internal/mail"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/tracker"
)

const historyLimit = 10

// Repository is the persistence the orchestrator needs. *db.Store satisfies it.
type Repository interface {
	GetOrCreateSession(ctx context.Context, platform, externalUserID string) (*models.Session, error)
	WithTx(ctx context.Context, fn func(tx db.Tx) error) error
}

// Sender delivers a reply to a chat user. *channel.Registry satisfies it.
type Sender interface {
	Send(ctx context.Context, target models.Target, text string) error
}

type Options struct {
	BaseURL          string
	VerificationTTL  time.Duration
	AuthTTL          time.Duration
	IntegrationEmail string
}

// Orchestrator runs one conversation turn per inbound message and owns every
// write that touches a session.
type Orchestrator struct {
	Repo     Repository
	Tracker  tracker.IssueTracker
	Mail     mail.Sender
	AI       ai.Capabilities
	Delivery Delivery
	Sender   Sender
	Events   events.Publisher
	Options  Options
	Logger   zerolog.Logger

	now func() time.Time
}

type Result struct {
	SessionID string
	Reply     string
	Duplicate bool
}

// turn carries the state of one inbound message through routing.
type turn struct {
	tx      db.Tx
	session *models.Session
	msg     models.NormalizedMessage
	now     time.Time
	reply   string
	events  []event
}

type event struct {
	name    string
	payload map[string]any
}

func (t *turn) publish(name string, payload map[string]any) {
	t.events = append(t.events, event{name: name, payload: payload})
}

var errDuplicate = errors.New("duplicate message")

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now().UTC()
	}
	return time.Now().UTC()
}

// Handle processes msg exactly once. A redelivered message with a known
// external id returns Duplicate and changes nothing. Unexpected failures are
// logged and answered with a generic apology sent straight to the channel.
func (o *Orchestrator) Handle(ctx context.Context, msg models.NormalizedMessage) (res Result, err error) {
	start := time.Now()
	logger := o.Logger.With().
		Str("platform", msg.Platform).
		Str("external_user_id", msg.ExternalUserID).
		Str("external_message_id", msg.ExternalMessageID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Str("session_id", res.SessionID).Msg("turn panicked")
			err = fmt.Errorf("turn panicked: %v", r)
		}
		if err != nil {
			turnsTotal.WithLabelValues(msg.Platform, "error").Inc()
			res.Reply = ReplyGenericFailure
			o.sendDirect(ctx, logger, msg, res.Reply)
			return
		}
		outcome := "ok"
		if res.Duplicate {
			outcome = "duplicate"
		}
		turnsTotal.WithLabelValues(msg.Platform, outcome).Inc()
		turnDuration.WithLabelValues(msg.Platform).Observe(time.Since(start).Seconds())
	}()

	sess, err := o.Repo.GetOrCreateSession(ctx, msg.Platform, msg.ExternalUserID)
	if err != nil {
		logger.Error().Err(err).Msg("resolve session")
		return Result{}, fmt.Errorf("resolve session: %w", err)
	}
	res.SessionID = sess.ID
	logger = logger.With().Str("session_id", sess.ID).Logger()

	var t *turn
	err = o.Repo.WithTx(ctx, func(tx db.Tx) error {
		t = &turn{tx: tx, msg: msg, now: o.clock()}
		return o.runTurn(ctx, t, sess.ID)
	})
	if errors.Is(err, errDuplicate) {
		logger.Info().Msg("duplicate message ignored")
		return Result{SessionID: sess.ID, Duplicate: true}, nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("turn failed")
		return res, err
	}

	target := t.session.Target()
	o.Delivery.Flush(ctx, target, t.reply)
	o.publish(ctx, sess.ID, t.events)
	res.Reply = t.reply
	return res, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, t *turn, sessionID string) error {
	s, err := t.tx.LockSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	t.session = s

	if err := o.expireAuth(ctx, t); err != nil {
		return err
	}

	history, err := t.tx.RecentMessages(ctx, s.ID, historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	inbound := &models.Message{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Role:      models.RoleUser,
		Content:   t.msg.Text,
		CreatedAt: t.now,
	}
	if t.msg.ExternalMessageID != "" {
		id := t.msg.ExternalMessageID
		inbound.ExternalMessageID = &id
	}
	inserted, err := t.tx.InsertMessage(ctx, inbound)
	if err != nil {
		return fmt.Errorf("store inbound: %w", err)
	}
	if !inserted {
		return errDuplicate
	}

	reply, err := o.route(ctx, t, history)
	if err != nil {
		return err
	}
	t.reply = reply

	s.LastActiveAt = t.now
	if err := t.tx.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return o.stageReply(ctx, t.tx, s, models.RoleAgent, reply, t.now)
}

// expireAuth demotes a session whose grant lapsed, and a pending session whose
// verification token is gone or expired.
func (o *Orchestrator) expireAuth(ctx context.Context, t *turn) error {
	s := t.session
	if s.AuthExpired(t.now) {
		demote(s)
		return nil
	}
	if s.AuthStatus != models.AuthPendingVerification {
		return nil
	}
	live, err := t.tx.HasLiveVerification(ctx, s.ID, t.now)
	if err != nil {
		return fmt.Errorf("check verification: %w", err)
	}
	if !live {
		demote(s)
	}
	return nil
}

func demote(s *models.Session) {
	s.AuthStatus = models.AuthAnonymous
	s.UserID = nil
	s.AuthExpiresAt = nil
}

// stageReply logs an outgoing message and hands it to the delivery strategy
// inside the current transaction.
func (o *Orchestrator) stageReply(ctx context.Context, tx db.Tx, s *models.Session, role models.MessageRole, text string, now time.Time) error {
	out := &models.Message{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Role:      role,
		Content:   text,
		CreatedAt: now,
	}
	if _, err := tx.InsertMessage(ctx, out); err != nil {
		return fmt.Errorf("store reply: %w", err)
	}
	return o.Delivery.Stage(ctx, tx, s.ID, s.Target(), text)
}

func (o *Orchestrator) publish(ctx context.Context, key string, evs []event) {
	if o.Events == nil {
		return
	}
	for _, e := range evs {
		o.Events.Publish(ctx, e.name, key, e.payload)
	}
}

func (o *Orchestrator) sendDirect(ctx context.Context, logger zerolog.Logger, msg models.NormalizedMessage, text string) {
	if o.Sender == nil {
		return
	}
	target := models.Target{Platform: msg.Platform, ExternalUserID: msg.ExternalUserID}
	if err := o.Sender.Send(ctx, target, text); err != nil {
		logger.Warn().Err(err).Msg("apology delivery failed")
	}
}
