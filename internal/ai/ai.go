package ai

import (
	"context"

	"github.com/omnibridge/backend/internal/models"
)

type Intent string

const (
	IntentSensitive Intent = "sensitive"
	IntentGeneral   Intent = "general"
)

// IntentClassifier decides whether a message needs a verified identity.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ReplyContext struct {
	Platform      string
	Authenticated bool
	UserName      string
	UserEmail     string
}

type ReplyGenerator interface {
	Generate(ctx context.Context, rc ReplyContext, history []ChatMessage, userMessage string) (string, error)
}

type Action string

const (
	ActionCreateTicket Action = "create_ticket"
	ActionTicketDetail Action = "ticket_detail"
	ActionListTickets  Action = "list_tickets"
	ActionAddComment   Action = "add_comment"
	ActionGeneral      Action = "general"
)

type ParsedIntent struct {
	Action       Action            `json:"action"`
	Draft        models.DraftPatch `json:"draft"`
	TicketKey    string            `json:"ticket_key,omitempty"`
	Comment      string            `json:"comment,omitempty"`
	StatusFilter string            `json:"status_filter,omitempty"`
}

// IntentParser maps an authenticated user's free text to a tracker action.
type IntentParser interface {
	ParseIntent(ctx context.Context, text string) (ParsedIntent, error)
}

// Capabilities bundles the AI-backed services the orchestrator consumes.
type Capabilities interface {
	IntentClassifier
	ReplyGenerator
	IntentParser
}
