package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/models"
)

// Delivery is the outbound strategy. Stage runs inside the turn transaction,
// Flush after it committed.
type Delivery interface {
	Stage(ctx context.Context, tx db.Tx, sessionID string, target models.Target, text string) error
	Flush(ctx context.Context, target models.Target, text string)
}

// SyncDelivery sends right after commit. A failed send is logged; the stored
// reply stays.
type SyncDelivery struct {
	Sender Sender
	Logger zerolog.Logger
}

func (d *SyncDelivery) Stage(context.Context, db.Tx, string, models.Target, string) error {
	return nil
}

func (d *SyncDelivery) Flush(ctx context.Context, target models.Target, text string) {
	if err := d.Sender.Send(ctx, target, text); err != nil {
		deliveriesTotal.WithLabelValues(target.Platform, "error").Inc()
		d.Logger.Error().Err(err).
			Str("platform", target.Platform).
			Str("external_user_id", target.ExternalUserID).
			Msg("reply delivery failed")
		return
	}
	deliveriesTotal.WithLabelValues(target.Platform, "ok").Inc()
}

// OutboxDelivery enqueues the reply in the turn transaction; OutboxWorker
// sends it.
type OutboxDelivery struct{}

func (OutboxDelivery) Stage(ctx context.Context, tx db.Tx, sessionID string, target models.Target, text string) error {
	payload, err := json.Marshal(models.OutboxPayload{ReplyText: text})
	if err != nil {
		return err
	}
	err = tx.EnqueueOutbox(ctx, &models.OutboxMessage{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Platform:       target.Platform,
		ExternalUserID: target.ExternalUserID,
		Payload:        payload,
		Status:         models.OutboxPending,
	})
	if err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

func (OutboxDelivery) Flush(context.Context, models.Target, string) {}

// OutboxWorker drains the outbox: it polls quickly while there is work and
// slows to IdlePoll when the queue is empty. Failed rows are retried after a
// fixed Backoff.
type OutboxWorker struct {
	Repo      Repository
	Sender    Sender
	BatchSize int
	Backoff   time.Duration
	BusyPoll  time.Duration
	IdlePoll  time.Duration
	Logger    zerolog.Logger

	now func() time.Time
}

func (w *OutboxWorker) clock() time.Time {
	if w.now != nil {
		return w.now().UTC()
	}
	return time.Now().UTC()
}

// Run polls until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	w.Logger.Info().Int("batch_size", w.batchSize()).Dur("backoff", w.Backoff).Msg("outbox worker started")
	for {
		n, err := w.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			w.Logger.Error().Err(err).Msg("outbox batch failed")
		}
		wait := w.IdlePoll
		if n > 0 {
			wait = w.BusyPoll
		}
		select {
		case <-ctx.Done():
			w.Logger.Info().Msg("outbox worker stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// ProcessBatch attempts up to BatchSize due rows and returns how many it
// claimed. Each row is claimed, sent and marked in its own transaction, so a
// failure on one row never rolls back the status of rows already delivered.
func (w *OutboxWorker) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	defer func() { outboxBacklog.Set(float64(processed)) }()
	for processed < w.batchSize() {
		claimed := false
		err := w.Repo.WithTx(ctx, func(tx db.Tx) error {
			now := w.clock()
			msgs, err := tx.ClaimOutbox(ctx, now, 1)
			if err != nil {
				return fmt.Errorf("claim outbox: %w", err)
			}
			if len(msgs) == 0 {
				return nil
			}
			claimed = true
			return w.deliver(ctx, tx, msgs[0], now)
		})
		if claimed {
			processed++
		}
		if err != nil {
			return processed, err
		}
		if !claimed {
			return processed, nil
		}
	}
	return processed, nil
}

func (w *OutboxWorker) deliver(ctx context.Context, tx db.Tx, m models.OutboxMessage, now time.Time) error {
	logger := w.Logger.With().Str("outbox_id", m.ID).Str("session_id", m.SessionID).Int("attempts", m.Attempts).Logger()

	var payload models.OutboxPayload
	sendErr := json.Unmarshal(m.Payload, &payload)
	if sendErr == nil {
		target := models.Target{Platform: m.Platform, ExternalUserID: m.ExternalUserID}
		sendErr = w.Sender.Send(ctx, target, payload.ReplyText)
	}
	if sendErr == nil {
		deliveriesTotal.WithLabelValues(m.Platform, "ok").Inc()
		if err := tx.MarkOutboxSent(ctx, m.ID); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		return nil
	}

	deliveriesTotal.WithLabelValues(m.Platform, "error").Inc()
	next := now.Add(w.Backoff)
	logger.Warn().Err(sendErr).Time("next_retry_at", next).Msg("outbox delivery failed")
	if err := tx.MarkOutboxFailed(ctx, m.ID, sendErr.Error(), next); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (w *OutboxWorker) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return 20
}
