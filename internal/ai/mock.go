package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/utils"
)

var (
	ticketKeyPattern   = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)
	sensitiveKeywords  = []string{"ticket", "issue", "incident", "account", "order", "invoice", "password", "status", "tiket", "akun"}
	listTicketKeywords = []string{"my tickets", "list tickets", "show tickets", "tiket saya"}
	listTicketsPattern = regexp.MustCompile(`^(show|list)\b.*\btickets\b`)
)

// MockAI is a deterministic stand-in used when no AI endpoint is configured.
type MockAI struct{}

func (MockAI) Classify(ctx context.Context, text string) (Intent, error) {
	lower := strings.ToLower(text)
	if ticketKeyPattern.MatchString(text) {
		return IntentSensitive, nil
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return IntentSensitive, nil
		}
	}
	return IntentGeneral, nil
}

func (MockAI) Generate(ctx context.Context, rc ReplyContext, history []ChatMessage, userMessage string) (string, error) {
	openers := []string{"Thanks for your message.", "Happy to help.", "Got it."}
	opener := openers[utils.Bucket(userMessage, len(openers))]
	if rc.Authenticated && rc.UserName != "" {
		return fmt.Sprintf("%s %s, you wrote: %q. Ask me to create a ticket or check an existing one.", opener, rc.UserName, userMessage), nil
	}
	return fmt.Sprintf("%s You wrote: %q.", opener, userMessage), nil
}

func (MockAI) ParseIntent(ctx context.Context, text string) (ParsedIntent, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	key := ticketKeyPattern.FindString(text)

	if wantsTicketList(lower) {
		filter := "all"
		switch {
		case strings.Contains(lower, "open"):
			filter = "open"
		case strings.Contains(lower, "closed"), strings.Contains(lower, "done"):
			filter = "closed"
		}
		return ParsedIntent{Action: ActionListTickets, StatusFilter: filter}, nil
	}
	if key != "" && strings.HasPrefix(lower, "comment") {
		_, body, _ := strings.Cut(text, ":")
		return ParsedIntent{Action: ActionAddComment, TicketKey: key, Comment: strings.TrimSpace(body)}, nil
	}
	if key != "" {
		return ParsedIntent{Action: ActionTicketDetail, TicketKey: key}, nil
	}
	if strings.Contains(lower, "ticket") && (strings.Contains(lower, "create") || strings.Contains(lower, "new") || strings.Contains(lower, "open a")) {
		return ParsedIntent{Action: ActionCreateTicket, Draft: models.DraftPatch{}}, nil
	}
	return ParsedIntent{Action: ActionGeneral}, nil
}

func wantsTicketList(lower string) bool {
	for _, kw := range listTicketKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return listTicketsPattern.MatchString(lower)
}

var _ Capabilities = MockAI{}
var _ Capabilities = (*OpenAICompat)(nil)
