package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process tracker for local development.
type Memory struct {
	ProjectKey string

	mu         sync.Mutex
	identities map[string]bool
	tickets    map[string]Ticket
	comments   map[string][]string
	orgs       []Organization
	members    map[string][]Member
	seq        int
}

func NewMemory(projectKey string) *Memory {
	if projectKey == "" {
		projectKey = "SUP"
	}
	return &Memory{
		ProjectKey: projectKey,
		identities: map[string]bool{},
		tickets:    map[string]Ticket{},
		comments:   map[string][]string{},
		members:    map[string][]Member{},
	}
}

// AddMember registers a customer in an organization.
func (m *Memory) AddMember(org Organization, member Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, o := range m.orgs {
		if o.ID == org.ID {
			found = true
			break
		}
	}
	if !found {
		m.orgs = append(m.orgs, org)
	}
	member.Email = strings.ToLower(member.Email)
	m.members[org.ID] = append(m.members[org.ID], member)
	m.identities[member.Email] = true
}

func (m *Memory) IdentityExists(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[strings.ToLower(email)], nil
}

func (m *Memory) CreateTicket(ctx context.Context, req CreateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	key := fmt.Sprintf("%s-%d", m.ProjectKey, m.seq)
	m.tickets[key] = Ticket{
		Key:           key,
		Summary:       req.Summary,
		Description:   req.Description,
		Status:        "Open",
		Priority:      req.Priority,
		ReporterEmail: strings.ToLower(req.ReporterEmail),
		CreatedAt:     req.StartDate,
	}
	return key, nil
}

func (m *Memory) GetTicketDetail(ctx context.Context, key string) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[strings.ToUpper(key)]
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	return t, nil
}

func (m *Memory) AddComment(ctx context.Context, key, body string, author *Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key = strings.ToUpper(key)
	if _, ok := m.tickets[key]; !ok {
		return ErrTicketNotFound
	}
	if author != nil {
		body = fmt.Sprintf("From: %s <%s>\n\n%s", author.Name, author.Email, body)
	}
	m.comments[key] = append(m.comments[key], body)
	return nil
}

func (m *Memory) Comments(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[strings.ToUpper(key)]...)
}

func (m *Memory) ListTicketsByReporter(ctx context.Context, email, statusFilter string) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filter := NormalizeFilter(statusFilter)
	var out []Ticket
	for _, t := range m.tickets {
		if !strings.EqualFold(t.ReporterEmail, email) {
			continue
		}
		done := strings.EqualFold(t.Status, "Done") || strings.EqualFold(t.Status, "Closed")
		if (filter == FilterOpen && done) || (filter == FilterClosed && !done) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Key < out[k].Key })
	return out, nil
}

func (m *Memory) ListOrganizations(ctx context.Context) ([]Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Organization(nil), m.orgs...), nil
}

func (m *Memory) ListOrganizationUsers(ctx context.Context, organizationID string) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Member(nil), m.members[organizationID]...), nil
}

var (
	_ IssueTracker = (*Memory)(nil)
	_ Directory    = (*Memory)(nil)
)
