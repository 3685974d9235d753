package models

import "time"

const (
	PlatformWhatsApp = "whatsapp"
	PlatformTelegram = "telegram"
	PlatformLine     = "line"
)

type AuthStatus string

const (
	AuthAnonymous           AuthStatus = "anonymous"
	AuthPendingVerification AuthStatus = "pending_verification"
	AuthAuthenticated       AuthStatus = "authenticated"
)

const SessionActive = "active"

type Session struct {
	ID             string       `json:"id"`
	Platform       string       `json:"platform"`
	ExternalUserID string       `json:"external_user_id"`
	UserID         *string      `json:"user_id,omitempty"`
	AuthStatus     AuthStatus   `json:"auth_status"`
	AuthExpiresAt  *time.Time   `json:"auth_expires_at,omitempty"`
	Status         string       `json:"status"`
	Draft          *DraftTicket `json:"draft_ticket,omitempty"`
	LastActiveAt   time.Time    `json:"last_active_at"`
	LastReadAt     *time.Time   `json:"last_read_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (s Session) Target() Target {
	return Target{Platform: s.Platform, ExternalUserID: s.ExternalUserID}
}

// AuthExpired reports whether an authenticated grant has lapsed at now.
func (s Session) AuthExpired(now time.Time) bool {
	return s.AuthExpiresAt != nil && now.After(*s.AuthExpiresAt)
}

type DraftStatus string

const (
	DraftCollecting DraftStatus = "collecting"
	DraftPreview    DraftStatus = "preview"
)

type DraftField string

const (
	FieldSummary     DraftField = "summary"
	FieldDescription DraftField = "description"
	FieldPriority    DraftField = "priority"
	FieldStartDate   DraftField = "start_date"
)

// DraftFieldOrder is the order missing fields are asked for.
var DraftFieldOrder = []DraftField{FieldSummary, FieldDescription, FieldPriority, FieldStartDate}

type DraftTicket struct {
	Summary     *string     `json:"summary,omitempty"`
	Description *string     `json:"description,omitempty"`
	Priority    *string     `json:"priority,omitempty"`
	StartDate   *string     `json:"start_date,omitempty"`
	Status      DraftStatus `json:"status"`
	LastUpdate  time.Time   `json:"last_update"`
}

func (d DraftTicket) Value(f DraftField) string {
	var p *string
	switch f {
	case FieldSummary:
		p = d.Summary
	case FieldDescription:
		p = d.Description
	case FieldPriority:
		p = d.Priority
	case FieldStartDate:
		p = d.StartDate
	}
	if p == nil {
		return ""
	}
	return *p
}

// Missing lists the empty required fields in DraftFieldOrder.
func (d DraftTicket) Missing() []DraftField {
	var out []DraftField
	for _, f := range DraftFieldOrder {
		if d.Value(f) == "" {
			out = append(out, f)
		}
	}
	return out
}

// DraftPatch carries a partial update; empty strings are no-ops.
type DraftPatch struct {
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
}

func (p DraftPatch) Empty() bool {
	return p.Summary == "" && p.Description == "" && p.Priority == "" && p.StartDate == ""
}

type MessageRole string

const (
	RoleUser     MessageRole = "user"
	RoleAgent    MessageRole = "agent"
	RoleSystem   MessageRole = "system"
	RoleEmployee MessageRole = "employee"
)

type Message struct {
	ID                string      `json:"id"`
	SessionID         string      `json:"session_id"`
	Role              MessageRole `json:"role"`
	Content           string      `json:"content"`
	ExternalMessageID *string     `json:"external_message_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

type Verification struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type TicketLink struct {
	TicketKey      string    `json:"ticket_key"`
	SessionID      string    `json:"session_id"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Platform       string    `json:"platform"`
	CreatedAt      time.Time `json:"created_at"`
}

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

type OutboxMessage struct {
	ID             string       `json:"id"`
	SessionID      string       `json:"session_id"`
	Platform       string       `json:"platform"`
	ExternalUserID string       `json:"external_user_id"`
	Payload        []byte       `json:"payload"`
	Status         OutboxStatus `json:"status"`
	Attempts       int          `json:"attempts"`
	LastError      *string      `json:"last_error,omitempty"`
	NextRetryAt    *time.Time   `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// OutboxPayload is the serialized body of an OutboxMessage.
type OutboxPayload struct {
	ReplyText string `json:"reply_text"`
}

type Organization struct {
	ID        string    `json:"id"`
	TrackerID string    `json:"tracker_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a directory identity mirrored from the issue tracker.
type User struct {
	ID             string    `json:"id"`
	TrackerAccount string    `json:"tracker_account_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizedMessage is what a channel adapter produces from a webhook body.
type NormalizedMessage struct {
	Platform          string `json:"platform"`
	ExternalUserID    string `json:"external_user_id"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
	Text              string `json:"text"`
}

type Target struct {
	Platform       string `json:"platform"`
	ExternalUserID string `json:"external_user_id"`
}

type ConversationSummary struct {
	Session     Session    `json:"session"`
	UserEmail   *string    `json:"user_email,omitempty"`
	LastMessage *string    `json:"last_message,omitempty"`
	LastAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount int        `json:"unread_count"`
}

type Stats struct {
	SessionsByStatus map[string]int `json:"sessions_by_status"`
	MessagesToday    int            `json:"messages_today"`
	OutboxPending    int            `json:"outbox_pending"`
	OutboxFailed     int            `json:"outbox_failed"`
	TicketLinks      int            `json:"ticket_links"`
}
