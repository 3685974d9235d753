package tracker

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrTrackerUnavailable = errors.New("issue tracker unavailable")
	ErrTicketNotFound     = errors.New("ticket not found")
)

const (
	FilterAll    = "all"
	FilterOpen   = "open"
	FilterClosed = "closed"
)

type Ticket struct {
	Key           string `json:"key"`
	Summary       string `json:"summary"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status"`
	Priority      string `json:"priority"`
	Assignee      string `json:"assignee,omitempty"`
	ReporterEmail string `json:"reporter_email,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

type CreateRequest struct {
	Summary       string
	Description   string
	Priority      string
	StartDate     string
	ReporterEmail string
}

type Author struct {
	Name  string
	Email string
}

type IssueTracker interface {
	IdentityExists(ctx context.Context, email string) (bool, error)
	CreateTicket(ctx context.Context, req CreateRequest) (string, error)
	GetTicketDetail(ctx context.Context, key string) (Ticket, error)
	AddComment(ctx context.Context, key, body string, author *Author) error
	ListTicketsByReporter(ctx context.Context, email, statusFilter string) ([]Ticket, error)
}

type Organization struct {
	ID   string
	Name string
}

type Member struct {
	AccountID string
	Email     string
	Name      string
	Active    bool
}

// Directory is the tracker's customer registry, read by directory sync.
type Directory interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	ListOrganizationUsers(ctx context.Context, organizationID string) ([]Member, error)
}

// NormalizeFilter maps free-form filters to FilterAll, FilterOpen or FilterClosed.
func NormalizeFilter(f string) string {
	switch f {
	case FilterOpen, FilterClosed:
		return f
	default:
		return FilterAll
	}
}

// CommentEvent is the part of a Jira "comment_created" webhook the relay reads.
type CommentEvent struct {
	WebhookEvent string `json:"webhookEvent"`
	Issue        struct {
		Key string `json:"key"`
	} `json:"issue"`
	Comment *struct {
		Body   json.RawMessage `json:"body"`
		Author struct {
			DisplayName  string `json:"displayName"`
			Name         string `json:"name"`
			EmailAddress string `json:"emailAddress"`
		} `json:"author"`
		Public    *bool `json:"public"`
		JSDPublic *bool `json:"jsdPublic"`
		Internal  *bool `json:"internal"`
	} `json:"comment"`
}

// Internal reports whether the comment is hidden from customers.
func (e CommentEvent) Internal() bool {
	c := e.Comment
	switch {
	case c == nil:
		return false
	case c.Public != nil:
		return !*c.Public
	case c.JSDPublic != nil:
		return !*c.JSDPublic
	case c.Internal != nil:
		return *c.Internal
	}
	return false
}

func (e CommentEvent) AuthorName() string {
	if e.Comment == nil {
		return ""
	}
	if n := e.Comment.Author.DisplayName; n != "" {
		return n
	}
	if n := e.Comment.Author.Name; n != "" {
		return n
	}
	return "Someone"
}
