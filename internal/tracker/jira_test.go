package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJira(t *testing.T, h http.HandlerFunc) *Jira {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Jira{
		BaseURL:        srv.URL,
		Email:          "bot@acme.com",
		APIToken:       "token",
		ServiceDeskID:  "4",
		RequestTypeID:  "17",
		ProjectKey:     "SUP",
		StartDateField: "customfield_10015",
		PriorityIDs:    map[string]string{"P1": "1", "P2": "2", "P3": "3", "P4": "4"},
		Timeout:        time.Second,
		Client:         srv.Client(),
	}
}

func TestJira_IdentityExists(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/servicedeskapi/servicedesk/4/customer", r.URL.Path)
		assert.Equal(t, "opt-in", r.Header.Get("X-ExperimentalApi"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@acme.com", user)
		assert.Equal(t, "token", pass)
		_, _ = w.Write([]byte(`{"values":[{"emailAddress":"Dana@Acme.com"},{"emailAddress":"other@acme.com"}]}`))
	})

	ok, err := j.IdentityExists(context.Background(), "dana@acme.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = j.IdentityExists(context.Background(), "ghost@acme.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJira_CreateTicket(t *testing.T) {
	var got map[string]any
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/servicedeskapi/request", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"issueId":"10001","issueKey":"SUP-42"}`))
	})

	key, err := j.CreateTicket(context.Background(), CreateRequest{
		Summary: "App crashes", Description: "App crashes on login", Priority: "P1", StartDate: "2026-03-01", ReporterEmail: "dana@acme.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "SUP-42", key)

	assert.Equal(t, "4", got["serviceDeskId"])
	assert.Equal(t, "dana@acme.com", got["raiseOnBehalfOf"])
	fields := got["requestFieldValues"].(map[string]any)
	assert.Equal(t, "App crashes", fields["summary"])
	assert.Equal(t, map[string]any{"id": "1"}, fields["priority"])
	assert.Equal(t, "2026-03-01", fields["customfield_10015"])
}

func TestJira_CreateTicketFailure(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := j.CreateTicket(context.Background(), CreateRequest{Summary: "s", Description: "d", Priority: "P3", StartDate: "2026-03-01"})
	require.ErrorIs(t, err, ErrTrackerUnavailable)

	_, err = j.CreateTicket(context.Background(), CreateRequest{Priority: "P9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported priority")
}

func TestJira_GetTicketDetail(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/SUP-7") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"key":"SUP-7","fields":{
			"summary":"VPN down",
			"description":{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Cannot connect"}]}]},
			"status":{"name":"In Progress"},
			"priority":{"name":"High"},
			"assignee":{"displayName":"Ari"},
			"reporter":{"emailAddress":"dana@acme.com"},
			"created":"2026-03-01T10:00:00.000+0000"}}`))
	})

	tk, err := j.GetTicketDetail(context.Background(), "SUP-7")
	require.NoError(t, err)
	assert.Equal(t, "VPN down", tk.Summary)
	assert.Equal(t, "Cannot connect", tk.Description)
	assert.Equal(t, "In Progress", tk.Status)
	assert.Equal(t, "Ari", tk.Assignee)
	assert.Equal(t, "dana@acme.com", tk.ReporterEmail)

	_, err = j.GetTicketDetail(context.Background(), "SUP-8")
	assert.True(t, errors.Is(err, ErrTicketNotFound))
}

func TestJira_AddComment(t *testing.T) {
	var got map[string]any
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/servicedeskapi/request/SUP-7/comment", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := j.AddComment(context.Background(), "SUP-7", "any update?", &Author{Name: "Dana", Email: "dana@acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "From: Dana <dana@acme.com>\n\nany update?", got["body"])
	assert.Equal(t, true, got["public"])
}

func TestJira_ListTicketsByReporter(t *testing.T) {
	var jql string
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		jql = body["jql"].(string)
		_, _ = w.Write([]byte(`{"issues":[{"key":"SUP-1","fields":{"summary":"a","status":{"name":"Open"},"priority":{"name":"Low"}}}]}`))
	})

	items, err := j.ListTicketsByReporter(context.Background(), "dana@acme.com", "open")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SUP-1", items[0].Key)
	assert.Contains(t, jql, `reporter = "dana@acme.com"`)
	assert.Contains(t, jql, "statusCategory != Done")
}

func TestJira_ListOrganizationsPaging(t *testing.T) {
	calls := 0
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("start") == "0" {
			_, _ = w.Write([]byte(`{"values":[{"id":"1","name":"Acme"}],"start":0,"limit":1,"isLastPage":false}`))
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(`{"values":[{"id":"2","name":"Globex"}],"start":1,"limit":1,"isLastPage":true}`))
	})

	orgs, err := j.ListOrganizations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Organization{{ID: "1", Name: "Acme"}, {ID: "2", Name: "Globex"}}, orgs)
	assert.Equal(t, 2, calls)
}

func TestJira_ListOrganizationUsers(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/servicedeskapi/organization/9/user", r.URL.Path)
		_, _ = w.Write([]byte(`{"values":[{"accountId":"a1","emailAddress":"Dana@Acme.com","displayName":"Dana","active":true},{"accountId":"a2","emailAddress":"old@acme.com","active":false}],"isLastPage":true}`))
	})

	users, err := j.ListOrganizationUsers(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, Member{AccountID: "a1", Email: "dana@acme.com", Name: "Dana", Active: true}, users[0])
	assert.False(t, users[1].Active)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("SUP")
	m.AddMember(Organization{ID: "o1", Name: "Acme"}, Member{AccountID: "a1", Email: "Dana@acme.com", Name: "Dana", Active: true})

	ok, _ := m.IdentityExists(ctx, "dana@acme.com")
	assert.True(t, ok)

	key, err := m.CreateTicket(ctx, CreateRequest{Summary: "s", Description: "d", Priority: "P2", StartDate: "2026-03-01", ReporterEmail: "dana@acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "SUP-1", key)

	require.NoError(t, m.AddComment(ctx, key, "hello", nil))
	assert.Equal(t, []string{"hello"}, m.Comments(key))
	assert.ErrorIs(t, m.AddComment(ctx, "SUP-99", "x", nil), ErrTicketNotFound)

	open, _ := m.ListTicketsByReporter(ctx, "DANA@acme.com", FilterOpen)
	assert.Len(t, open, 1)
	closed, _ := m.ListTicketsByReporter(ctx, "dana@acme.com", FilterClosed)
	assert.Empty(t, closed)
}
