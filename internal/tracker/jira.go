package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pageSize = 50

// Jira is a Jira Service Management client.
type Jira struct {
	BaseURL        string
	Email          string
	APIToken       string
	ServiceDeskID  string
	RequestTypeID  string
	ProjectKey     string
	StartDateField string
	PriorityIDs    map[string]string
	Timeout        time.Duration
	Client         *http.Client
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("jira http %d: %s", e.Status, e.Body)
}

func (e *apiError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrTicketNotFound
	}
	return ErrTrackerUnavailable
}

func (j *Jira) do(ctx context.Context, method, path string, query url.Values, in, out any, headers map[string]string) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := strings.TrimRight(j.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(j.Email, j.APIToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := j.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &apiError{Status: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTrackerUnavailable, err)
	}
	return nil
}

func (j *Jira) IdentityExists(ctx context.Context, email string) (bool, error) {
	var res struct {
		Values []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"values"`
	}
	path := fmt.Sprintf("/rest/servicedeskapi/servicedesk/%s/customer", url.PathEscape(j.ServiceDeskID))
	err := j.do(ctx, http.MethodGet, path, url.Values{"query": {email}}, nil, &res, map[string]string{"X-ExperimentalApi": "opt-in"})
	if err != nil {
		return false, err
	}
	for _, c := range res.Values {
		if strings.EqualFold(c.EmailAddress, email) {
			return true, nil
		}
	}
	return false, nil
}

func (j *Jira) CreateTicket(ctx context.Context, req CreateRequest) (string, error) {
	priorityID, ok := j.PriorityIDs[strings.ToUpper(req.Priority)]
	if !ok {
		return "", fmt.Errorf("unsupported priority %q", req.Priority)
	}
	fields := map[string]any{
		"summary":     req.Summary,
		"description": req.Description,
		"priority":    map[string]string{"id": priorityID},
	}
	if j.StartDateField != "" && req.StartDate != "" {
		fields[j.StartDateField] = req.StartDate
	}
	payload := map[string]any{
		"serviceDeskId":      j.ServiceDeskID,
		"requestTypeId":      j.RequestTypeID,
		"requestFieldValues": fields,
		"raiseOnBehalfOf":    req.ReporterEmail,
	}
	var res struct {
		IssueKey string `json:"issueKey"`
	}
	if err := j.do(ctx, http.MethodPost, "/rest/servicedeskapi/request", nil, payload, &res, nil); err != nil {
		return "", err
	}
	if res.IssueKey == "" {
		return "", fmt.Errorf("%w: response without issue key", ErrTrackerUnavailable)
	}
	return res.IssueKey, nil
}

type issueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Created     string          `json:"created"`
	Status      struct {
		Name string `json:"name"`
	} `json:"status"`
	Priority struct {
		Name string `json:"name"`
	} `json:"priority"`
	Assignee *struct {
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	Reporter *struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"reporter"`
}

type issue struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

func (i issue) ticket() Ticket {
	t := Ticket{
		Key:         i.Key,
		Summary:     i.Fields.Summary,
		Description: PlainText(i.Fields.Description),
		Status:      i.Fields.Status.Name,
		Priority:    i.Fields.Priority.Name,
		CreatedAt:   i.Fields.Created,
	}
	if i.Fields.Assignee != nil {
		t.Assignee = i.Fields.Assignee.DisplayName
	}
	if i.Fields.Reporter != nil {
		t.ReporterEmail = i.Fields.Reporter.EmailAddress
	}
	return t
}

func (j *Jira) GetTicketDetail(ctx context.Context, key string) (Ticket, error) {
	var res issue
	q := url.Values{"fields": {"summary,description,status,assignee,priority,reporter,created"}}
	if err := j.do(ctx, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key), q, nil, &res, nil); err != nil {
		return Ticket{}, err
	}
	return res.ticket(), nil
}

func (j *Jira) AddComment(ctx context.Context, key, body string, author *Author) error {
	if author != nil {
		name, email := author.Name, author.Email
		if name == "" {
			name = "Unknown"
		}
		body = fmt.Sprintf("From: %s <%s>\n\n%s", name, email, body)
	}
	payload := map[string]any{"body": body, "public": true}
	return j.do(ctx, http.MethodPost, "/rest/servicedeskapi/request/"+url.PathEscape(key)+"/comment", nil, payload, nil, nil)
}

func (j *Jira) ListTicketsByReporter(ctx context.Context, email, statusFilter string) ([]Ticket, error) {
	jql := fmt.Sprintf(`project = %s AND reporter = "%s"`, j.ProjectKey, strings.ReplaceAll(email, `"`, `\"`))
	switch NormalizeFilter(statusFilter) {
	case FilterOpen:
		jql += " AND statusCategory != Done"
	case FilterClosed:
		jql += " AND statusCategory = Done"
	}
	jql += " ORDER BY created DESC"
	payload := map[string]any{
		"jql":        jql,
		"fields":     []string{"summary", "status", "assignee", "priority", "created"},
		"maxResults": pageSize,
	}
	var res struct {
		Issues []issue `json:"issues"`
	}
	if err := j.do(ctx, http.MethodPost, "/rest/api/3/search/jql", nil, payload, &res, nil); err != nil {
		return nil, err
	}
	out := make([]Ticket, 0, len(res.Issues))
	for _, i := range res.Issues {
		out = append(out, i.ticket())
	}
	return out, nil
}

type page[T any] struct {
	Values     []T  `json:"values"`
	Start      int  `json:"start"`
	Limit      int  `json:"limit"`
	IsLastPage bool `json:"isLastPage"`
}

func fetchAll[T any](ctx context.Context, j *Jira, path string) ([]T, error) {
	var out []T
	start := 0
	for {
		var p page[T]
		q := url.Values{"start": {strconv.Itoa(start)}, "limit": {strconv.Itoa(pageSize)}}
		if err := j.do(ctx, http.MethodGet, path, q, nil, &p, nil); err != nil {
			return nil, err
		}
		out = append(out, p.Values...)
		if p.IsLastPage || len(p.Values) == 0 {
			return out, nil
		}
		limit := p.Limit
		if limit <= 0 {
			limit = len(p.Values)
		}
		start = p.Start + limit
	}
}

func (j *Jira) ListOrganizations(ctx context.Context) ([]Organization, error) {
	type org struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	orgs, err := fetchAll[org](ctx, j, fmt.Sprintf("/rest/servicedeskapi/servicedesk/%s/organization", url.PathEscape(j.ServiceDeskID)))
	if err != nil {
		return nil, err
	}
	out := make([]Organization, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, Organization{ID: o.ID, Name: o.Name})
	}
	return out, nil
}

func (j *Jira) ListOrganizationUsers(ctx context.Context, organizationID string) ([]Member, error) {
	type user struct {
		AccountID    string `json:"accountId"`
		EmailAddress string `json:"emailAddress"`
		DisplayName  string `json:"displayName"`
		Active       *bool  `json:"active"`
	}
	users, err := fetchAll[user](ctx, j, "/rest/servicedeskapi/organization/"+url.PathEscape(organizationID)+"/user")
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(users))
	for _, u := range users {
		active := u.Active == nil || *u.Active
		out = append(out, Member{AccountID: u.AccountID, Email: strings.ToLower(u.EmailAddress), Name: u.DisplayName, Active: active})
	}
	return out, nil
}

// PlainText flattens a description or comment body that may be a plain
// string or an Atlassian document.
func PlainText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var doc struct {
		Content []json.RawMessage `json:"content"`
		Text    string            `json:"text"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var parts []string
	if doc.Text != "" {
		parts = append(parts, doc.Text)
	}
	for _, c := range doc.Content {
		if t := PlainText(c); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

var (
	_ IssueTracker = (*Jira)(nil)
	_ Directory    = (*Jira)(nil)
)
