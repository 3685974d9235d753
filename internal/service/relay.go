package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/events"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/tracker"
)

// RelayComment forwards a public tracker comment to the chat that owns the
// ticket. It reports false when the event was skipped: other event types,
// internal comments, comments by the integration account and tickets that
// were never linked to a conversation.
func (o *Orchestrator) RelayComment(ctx context.Context, ev tracker.CommentEvent) (bool, error) {
	key := strings.TrimSpace(ev.Issue.Key)
	logger := o.Logger.With().Str("ticket_key", key).Logger()

	if ev.WebhookEvent != "comment_created" || key == "" || ev.Comment == nil {
		return false, nil
	}
	if ev.Internal() {
		logger.Info().Msg("internal comment not relayed")
		return false, nil
	}
	integration := strings.ToLower(strings.TrimSpace(o.Options.IntegrationEmail))
	if integration != "" && strings.EqualFold(ev.Comment.Author.EmailAddress, integration) {
		logger.Info().Msg("own comment not relayed")
		return false, nil
	}

	body := strings.TrimSpace(tracker.PlainText(ev.Comment.Body))
	if body == "" {
		body = "(no content)"
	}
	text := fmt.Sprintf("New comment on %s from %s:\n%s", key, ev.AuthorName(), body)

	var sess *models.Session
	now := o.clock()
	err := o.Repo.WithTx(ctx, func(tx db.Tx) error {
		link, err := tx.TicketLink(ctx, key)
		if err != nil {
			return err
		}
		sess, err = tx.LockSession(ctx, link.SessionID)
		if err != nil {
			return err
		}
		return o.stageReply(ctx, tx, sess, models.RoleEmployee, text, now)
	})
	if errors.Is(err, db.ErrNotFound) {
		logger.Info().Msg("comment on unlinked ticket not relayed")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("relay comment: %w", err)
	}

	o.Delivery.Flush(ctx, sess.Target(), text)
	o.publish(ctx, sess.ID, []event{{
		name:    events.CommentRelayed,
		payload: map[string]any{"ticket_key": key, "session_id": sess.ID, "platform": sess.Platform},
	}})
	logger.Info().Str("session_id", sess.ID).Msg("comment relayed")
	return true, nil
}
