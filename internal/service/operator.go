package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/models"
)

var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrInvalidTicketKey = errors.New("invalid ticket key")
)

// SendAgentMessage posts an operator's message into a conversation.
func (o *Orchestrator) SendAgentMessage(ctx context.Context, sessionID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	var sess *models.Session
	now := o.clock()
	err := o.Repo.WithTx(ctx, func(tx db.Tx) error {
		var err error
		sess, err = tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		return o.stageReply(ctx, tx, sess, models.RoleEmployee, text, now)
	})
	if err != nil {
		return err
	}
	o.Delivery.Flush(ctx, sess.Target(), text)
	return nil
}

// LinkTicket binds an existing tracker ticket to a conversation so comments
// on it are relayed there. The organization comes from the session's user.
func (o *Orchestrator) LinkTicket(ctx context.Context, sessionID, ticketKey string) (*models.TicketLink, error) {
	ticketKey = strings.ToUpper(strings.TrimSpace(ticketKey))
	if findTicketKey(ticketKey) != ticketKey {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTicketKey, ticketKey)
	}
	var link *models.TicketLink
	err := o.Repo.WithTx(ctx, func(tx db.Tx) error {
		sess, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		link = &models.TicketLink{TicketKey: ticketKey, SessionID: sess.ID, Platform: sess.Platform}
		if sess.UserID != nil {
			user, err := tx.UserByID(ctx, *sess.UserID)
			switch {
			case err == nil:
				link.OrganizationID = user.OrganizationID
			case !errors.Is(err, db.ErrNotFound):
				return err
			}
		}
		return tx.UpsertTicketLink(ctx, link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Broadcast sends text to every active session, optionally limited to one
// platform, and returns how many sessions it reached.
func (o *Orchestrator) Broadcast(ctx context.Context, platform, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyMessage
	}
	var sessions []models.Session
	now := o.clock()
	err := o.Repo.WithTx(ctx, func(tx db.Tx) error {
		var err error
		sessions, err = tx.ActiveSessions(ctx, platform)
		if err != nil {
			return err
		}
		for i := range sessions {
			if err := o.stageReply(ctx, tx, &sessions[i], models.RoleSystem, text, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, s := range sessions {
		o.Delivery.Flush(ctx, s.Target(), text)
	}
	o.Logger.Info().Str("platform", platform).Int("sessions", len(sessions)).Msg("broadcast sent")
	return len(sessions), nil
}
