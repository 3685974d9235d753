package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omnibridge/backend/internal/ai"
	"github.com/omnibridge/backend/internal/mail"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/tracker"
)

var testNow = time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)

type sentReply struct {
	Target models.Target
	Text   string
}

type recSender struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (r *recSender) Send(ctx context.Context, target models.Target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentReply{Target: target, Text: text})
	return nil
}

func (r *recSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.Text)
	}
	return out
}

// flakyTracker wraps the in-memory tracker with switchable failures and
// records create calls.
type flakyTracker struct {
	*tracker.Memory

	mu          sync.Mutex
	identityErr error
	createErr   error
	creates     []tracker.CreateRequest
}

func (f *flakyTracker) IdentityExists(ctx context.Context, email string) (bool, error) {
	if f.identityErr != nil {
		return false, f.identityErr
	}
	return f.Memory.IdentityExists(ctx, email)
}

func (f *flakyTracker) CreateTicket(ctx context.Context, req tracker.CreateRequest) (string, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.Memory.CreateTicket(ctx, req)
}

func (f *flakyTracker) createCalls() []tracker.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.CreateRequest(nil), f.creates...)
}

type failingMail struct{}

func (failingMail) Send(ctx context.Context, to, subject, body string) error {
	return errors.New("dial tcp 127.0.0.1:25: connection refused")
}

type mockAI struct {
	mock.Mock
}

func (m *mockAI) Classify(ctx context.Context, text string) (ai.Intent, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(ai.Intent), args.Error(1)
}

func (m *mockAI) Generate(ctx context.Context, rc ai.ReplyContext, history []ai.ChatMessage, userMessage string) (string, error) {
	args := m.Called(ctx, rc, history, userMessage)
	return args.String(0), args.Error(1)
}

func (m *mockAI) ParseIntent(ctx context.Context, text string) (ai.ParsedIntent, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(ai.ParsedIntent), args.Error(1)
}

type harness struct {
	o       *Orchestrator
	store   *memStore
	tracker *flakyTracker
	mail    *mail.LogSender
	sender  *recSender
	seq     int
}

func newHarness(t *testing.T, caps ai.Capabilities) *harness {
	t.Helper()
	if caps == nil {
		caps = ai.MockAI{}
	}
	h := &harness{
		store:   newMemStore(),
		tracker: &flakyTracker{Memory: tracker.NewMemory("SUP")},
		mail:    &mail.LogSender{Logger: zerolog.Nop()},
		sender:  &recSender{},
	}
	h.o = &Orchestrator{
		Repo:     h.store,
		Tracker:  h.tracker,
		Mail:     h.mail,
		AI:       caps,
		Delivery: &SyncDelivery{Sender: h.sender, Logger: zerolog.Nop()},
		Sender:   h.sender,
		Options: Options{
			BaseURL:          "https://bridge.example.com",
			VerificationTTL:  15 * time.Minute,
			AuthTTL:          30 * 24 * time.Hour,
			IntegrationEmail: "bot@acme.com",
		},
		Logger: zerolog.Nop(),
		now:    func() time.Time { return testNow },
	}
	return h
}

// say delivers one inbound message with a fresh external id.
func (h *harness) say(t *testing.T, user, text string) Result {
	t.Helper()
	h.seq++
	res, err := h.o.Handle(context.Background(), models.NormalizedMessage{
		Platform:          models.PlatformTelegram,
		ExternalUserID:    user,
		ExternalMessageID: "m" + strconv.Itoa(h.seq),
		Text:              text,
	})
	require.NoError(t, err)
	return res
}

// authenticated seeds a verified session for user backed by a directory
// identity with email.
func (h *harness) authenticated(user, email string) (*models.Session, models.User) {
	orgID := "org-1"
	u := models.User{ID: "u-" + user, TrackerAccount: "acc-" + user, Email: email, Name: "Dana", OrganizationID: &orgID, IsActive: true}
	h.store.addUser(u)
	expires := testNow.Add(24 * time.Hour)
	s := &models.Session{
		Platform:       models.PlatformTelegram,
		ExternalUserID: user,
		UserID:         &u.ID,
		AuthStatus:     models.AuthAuthenticated,
		AuthExpiresAt:  &expires,
	}
	h.store.addSession(s)
	return s, u
}

func (h *harness) reload(user string) *models.Session {
	return h.store.session(models.PlatformTelegram, user)
}

func (h *harness) sessionByID(id string) *models.Session {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return copySession(h.store.sessions[id])
}
