package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omnibridge/backend/internal/ai"
	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/events"
	"github.com/omnibridge/backend/internal/mail"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/tracker"
)

// route picks the reply for one turn. Commands come first, then the session's
// auth state decides. Errors returned here abort the turn; upstream failures
// become fixed replies instead.
func (o *Orchestrator) route(ctx context.Context, t *turn, history []models.Message) (string, error) {
	s := t.session
	switch detectCommand(t.msg.Text, s.Draft != nil) {
	case commandReset:
		s.Draft = nil
		return ReplyReset, nil
	case commandConfirm:
		return o.confirmCreate(ctx, t)
	}

	switch s.AuthStatus {
	case models.AuthPendingVerification:
		return ReplyPending, nil
	case models.AuthAuthenticated:
		return o.routeAuthenticated(ctx, t, history)
	default:
		return o.routeAnonymous(ctx, t, history)
	}
}

func (o *Orchestrator) routeAnonymous(ctx context.Context, t *turn, history []models.Message) (string, error) {
	if email, ok := parseEmail(t.msg.Text); ok {
		return o.beginAuth(ctx, t, email)
	}

	intent, err := o.AI.Classify(ctx, t.msg.Text)
	if err != nil {
		o.Logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("classify failed, treating as sensitive")
		intent = ai.IntentSensitive
	}
	if intent != ai.IntentGeneral {
		return ReplyAskEmail, nil
	}
	return o.generate(ctx, t, history, ai.ReplyContext{Platform: t.session.Platform}), nil
}

func (o *Orchestrator) beginAuth(ctx context.Context, t *turn, email string) (string, error) {
	_, err := o.StartVerification(ctx, t.tx, t.session, email, t.now)
	switch {
	case err == nil:
		return fmt.Sprintf(ReplyVerificationSent, email, int(o.verificationTTL().Minutes())), nil
	case errors.Is(err, ErrUnknownIdentity), errors.Is(err, ErrInvalidEmail):
		return ReplyEmailUnknown, nil
	case errors.Is(err, tracker.ErrTrackerUnavailable):
		o.Logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("identity lookup failed")
		return ReplyTrackerFailure, nil
	case errors.Is(err, mail.ErrSMTP):
		o.Logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("verification mail failed")
		return ReplyVerificationFailed, nil
	default:
		return "", err
	}
}

func (o *Orchestrator) routeAuthenticated(ctx context.Context, t *turn, history []models.Message) (string, error) {
	s := t.session
	if s.UserID == nil {
		demote(s)
		return ReplyAskEmail, nil
	}
	user, err := t.tx.UserByID(ctx, *s.UserID)
	if errors.Is(err, db.ErrNotFound) {
		// identity vanished from the directory since verification
		demote(s)
		return ReplyAskEmail, nil
	}
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	// A collecting draft gets first claim on the message, but only when the
	// text reads as field values. Anything else is routed by intent, and an
	// unrecognized reply falls back to answering the pending prompt.
	var pending models.DraftField
	if d := s.Draft; d != nil && d.Status == models.DraftCollecting {
		if missing := d.Missing(); len(missing) > 0 {
			pending = missing[0]
		}
	}
	if structuredField(pending) {
		if patch, ok := answerField(pending, t.msg.Text); ok {
			return UpdateDraft(s, patch, t.now), nil
		}
	}
	if patch, ok := matchCreateTicket(t.msg.Text); ok {
		return UpdateDraft(s, patch, t.now), nil
	}
	if structuredField(pending) {
		if patch := extractFields(t.msg.Text); !patch.Empty() {
			return UpdateDraft(s, patch, t.now), nil
		}
	}

	intent, err := o.AI.ParseIntent(ctx, t.msg.Text)
	if err != nil {
		o.Logger.Warn().Err(err).Str("session_id", s.ID).Msg("intent parsing failed")
		intent = ai.ParsedIntent{Action: ai.ActionGeneral}
	}
	if intent.TicketKey == "" {
		intent.TicketKey = findTicketKey(t.msg.Text)
	}

	switch intent.Action {
	case ai.ActionCreateTicket:
		return UpdateDraft(s, intent.Draft, t.now), nil
	case ai.ActionTicketDetail:
		return o.ticketDetail(ctx, t, user, intent.TicketKey), nil
	case ai.ActionAddComment:
		return o.addComment(ctx, t, user, intent.TicketKey, intent.Comment), nil
	case ai.ActionListTickets:
		return o.listTickets(ctx, t, user, intent.StatusFilter), nil
	}

	if pending != "" {
		if patch, ok := answerField(pending, t.msg.Text); ok {
			return UpdateDraft(s, patch, t.now), nil
		}
		return invalidAnswer(pending), nil
	}
	rc := ai.ReplyContext{Platform: s.Platform, Authenticated: true, UserName: user.Name, UserEmail: user.Email}
	return o.generate(ctx, t, history, rc), nil
}

// confirmCreate finalizes the session's draft into a tracker ticket. Defaults
// for priority and start date are applied here only. A tracker failure keeps
// the draft so the user can confirm again.
func (o *Orchestrator) confirmCreate(ctx context.Context, t *turn) (string, error) {
	s := t.session
	final := withDefaults(*s.Draft, t.now)
	if missing := final.Missing(); len(missing) > 0 {
		s.Draft.Status = models.DraftCollecting
		return promptFor(missing[0]), nil
	}
	if s.AuthStatus == models.AuthPendingVerification {
		return ReplyPending, nil
	}
	if s.AuthStatus != models.AuthAuthenticated || s.UserID == nil {
		return ReplyNeedsVerification, nil
	}

	user, err := t.tx.UserByID(ctx, *s.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return ReplyNeedsVerification, nil
	}
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	key, err := o.Tracker.CreateTicket(ctx, tracker.CreateRequest{
		Summary:       final.Value(models.FieldSummary),
		Description:   final.Value(models.FieldDescription),
		Priority:      final.Value(models.FieldPriority),
		StartDate:     final.Value(models.FieldStartDate),
		ReporterEmail: user.Email,
	})
	if err != nil {
		o.Logger.Error().Err(err).Str("session_id", s.ID).Msg("create ticket failed")
		ticketsCreated.WithLabelValues("error").Inc()
		return ReplyCreateFailed, nil
	}

	s.Draft = nil
	link := &models.TicketLink{
		TicketKey:      key,
		SessionID:      s.ID,
		OrganizationID: user.OrganizationID,
		Platform:       s.Platform,
	}
	if err := t.tx.UpsertTicketLink(ctx, link); err != nil {
		// the ticket exists upstream, so the reply still carries its key
		o.Logger.Error().Err(err).Str("session_id", s.ID).Str("ticket_key", key).Msg("link ticket failed")
	}
	ticketsCreated.WithLabelValues("ok").Inc()
	t.publish(events.TicketCreated, map[string]any{
		"ticket_key": key,
		"session_id": s.ID,
		"platform":   s.Platform,
		"user_id":    user.ID,
		"priority":   final.Value(models.FieldPriority),
	})
	return fmt.Sprintf(ReplyTicketCreated, key), nil
}

func (o *Orchestrator) ticketDetail(ctx context.Context, t *turn, user *models.User, key string) string {
	if key == "" {
		return ReplyAskTicketKey
	}
	tk, reply, ok := o.ownedTicket(ctx, t, user, key)
	if !ok {
		return reply
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", tk.Key, tk.Summary)
	fmt.Fprintf(&b, "Status: %s\n", orDash(tk.Status))
	fmt.Fprintf(&b, "Priority: %s\n", orDash(tk.Priority))
	fmt.Fprintf(&b, "Assignee: %s", orDash(tk.Assignee))
	return b.String()
}

func (o *Orchestrator) addComment(ctx context.Context, t *turn, user *models.User, key, body string) string {
	if key == "" {
		return ReplyAskTicketKey
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Sprintf(ReplyAskComment, key, key)
	}
	if _, reply, ok := o.ownedTicket(ctx, t, user, key); !ok {
		return reply
	}
	if err := o.Tracker.AddComment(ctx, key, body, &tracker.Author{Name: user.Name, Email: user.Email}); err != nil {
		o.Logger.Warn().Err(err).Str("session_id", t.session.ID).Str("ticket_key", key).Msg("add comment failed")
		return ReplyTrackerFailure
	}
	return fmt.Sprintf(ReplyCommentAdded, key)
}

// ownedTicket loads key and checks the session user reported it.
func (o *Orchestrator) ownedTicket(ctx context.Context, t *turn, user *models.User, key string) (tracker.Ticket, string, bool) {
	tk, err := o.Tracker.GetTicketDetail(ctx, key)
	if errors.Is(err, tracker.ErrTicketNotFound) {
		return tk, fmt.Sprintf(ReplyTicketNotFound, key), false
	}
	if err != nil {
		o.Logger.Warn().Err(err).Str("session_id", t.session.ID).Str("ticket_key", key).Msg("ticket lookup failed")
		return tk, ReplyTrackerFailure, false
	}
	if !strings.EqualFold(strings.TrimSpace(tk.ReporterEmail), user.Email) {
		return tk, fmt.Sprintf(ReplyNotYourTicket, key), false
	}
	return tk, "", true
}

const listLimit = 10

func (o *Orchestrator) listTickets(ctx context.Context, t *turn, user *models.User, filter string) string {
	tickets, err := o.Tracker.ListTicketsByReporter(ctx, user.Email, tracker.NormalizeFilter(filter))
	if err != nil {
		o.Logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("list tickets failed")
		return ReplyTrackerFailure
	}
	if len(tickets) == 0 {
		return ReplyNoTickets
	}
	var b strings.Builder
	b.WriteString("Your tickets:")
	for i, tk := range tickets {
		if i == listLimit {
			fmt.Fprintf(&b, "\n...and %d more", len(tickets)-listLimit)
			break
		}
		fmt.Fprintf(&b, "\n%s [%s] %s", tk.Key, orDash(tk.Status), tk.Summary)
	}
	return b.String()
}

func (o *Orchestrator) generate(ctx context.Context, t *turn, history []models.Message, rc ai.ReplyContext) string {
	msgs := make([]ai.ChatMessage, 0, len(history))
	for _, m := range history {
		role := "assistant"
		if m.Role == models.RoleUser {
			role = "user"
		}
		msgs = append(msgs, ai.ChatMessage{Role: role, Content: m.Content})
	}
	reply, err := o.AI.Generate(ctx, rc, msgs, t.msg.Text)
	if err != nil || strings.TrimSpace(reply) == "" {
		o.Logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("reply generation failed, echoing")
		return fallbackReply(t.msg.Text)
	}
	return reply
}

func fallbackReply(text string) string {
	return fmt.Sprintf("Thanks, we received your message: %q. An agent will follow up if needed.", text)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
