package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/models"
)

// memStore is an in-memory Repository. WithTx holds one mutex for the whole
// transaction, which stands in for the session row lock, and restores a
// snapshot when fn fails.
type memStore struct {
	mu sync.Mutex

	sessions      map[string]*models.Session
	messages      []models.Message
	verifications map[string]models.Verification
	users         map[string]models.User
	orgs          map[string]models.Organization
	links         map[string]models.TicketLink
	outbox        []models.OutboxMessage

	// markSentErr, when set, fails MarkOutboxSent for the given row id.
	markSentErr func(id string) error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:      map[string]*models.Session{},
		verifications: map[string]models.Verification{},
		users:         map[string]models.User{},
		orgs:          map[string]models.Organization{},
		links:         map[string]models.TicketLink{},
	}
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	if s.Draft != nil {
		d := *s.Draft
		cp.Draft = &d
	}
	return &cp
}

func (m *memStore) snapshot() *memStore {
	c := newMemStore()
	for k, v := range m.sessions {
		c.sessions[k] = copySession(v)
	}
	c.messages = append([]models.Message(nil), m.messages...)
	for k, v := range m.verifications {
		c.verifications[k] = v
	}
	for k, v := range m.users {
		c.users[k] = v
	}
	for k, v := range m.orgs {
		c.orgs[k] = v
	}
	for k, v := range m.links {
		c.links[k] = v
	}
	c.outbox = append([]models.OutboxMessage(nil), m.outbox...)
	return c
}

func (m *memStore) restore(c *memStore) {
	m.sessions, m.messages, m.verifications = c.sessions, c.messages, c.verifications
	m.users, m.orgs, m.links, m.outbox = c.users, c.orgs, c.links, c.outbox
}

func (m *memStore) GetOrCreateSession(ctx context.Context, platform, externalUserID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Platform == platform && s.ExternalUserID == externalUserID {
			return copySession(s), nil
		}
	}
	now := time.Now().UTC()
	s := &models.Session{
		ID:             uuid.NewString(),
		Platform:       platform,
		ExternalUserID: externalUserID,
		AuthStatus:     models.AuthAnonymous,
		Status:         models.SessionActive,
		LastActiveAt:   now,
		CreatedAt:      now,
	}
	m.sessions[s.ID] = s
	return copySession(s), nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx db.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	committed := false
	defer func() {
		if !committed {
			m.restore(snap)
		}
	}()
	if err := fn(&memTx{m: m}); err != nil {
		return err
	}
	committed = true
	return nil
}

// session returns the stored session for a platform user, for assertions.
func (m *memStore) session(platform, externalUserID string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Platform == platform && s.ExternalUserID == externalUserID {
			return copySession(s)
		}
	}
	return nil
}

func (m *memStore) addSession(s *models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = models.SessionActive
	}
	m.sessions[s.ID] = copySession(s)
}

func (m *memStore) addUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *memStore) messagesFor(sessionID string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *memStore) verificationsFor(sessionID string) []models.Verification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Verification
	for _, v := range m.verifications {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	return out
}

func (m *memStore) outboxRows() []models.OutboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutboxMessage(nil), m.outbox...)
}

func (m *memStore) link(key string) (models.TicketLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[key]
	return l, ok
}

type memTx struct {
	m *memStore
}

var _ db.Tx = (*memTx)(nil)

func (t *memTx) LockSession(ctx context.Context, id string) (*models.Session, error) {
	s, ok := t.m.sessions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return copySession(s), nil
}

func (t *memTx) SaveSession(ctx context.Context, s *models.Session) error {
	if _, ok := t.m.sessions[s.ID]; !ok {
		return db.ErrNotFound
	}
	t.m.sessions[s.ID] = copySession(s)
	return nil
}

func (t *memTx) ActiveSessions(ctx context.Context, platform string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range t.m.sessions {
		if s.Status == models.SessionActive && (platform == "" || s.Platform == platform) {
			out = append(out, *copySession(s))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (t *memTx) InsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.ExternalMessageID != nil {
		for _, existing := range t.m.messages {
			if existing.SessionID == msg.SessionID && existing.ExternalMessageID != nil && *existing.ExternalMessageID == *msg.ExternalMessageID {
				return false, nil
			}
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	t.m.messages = append(t.m.messages, *msg)
	return true, nil
}

func (t *memTx) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range t.m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (t *memTx) ReplaceVerification(ctx context.Context, v *models.Verification) error {
	_ = t.DeleteSessionVerifications(ctx, v.SessionID)
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	t.m.verifications[v.ID] = *v
	return nil
}

func (t *memTx) VerificationByToken(ctx context.Context, token string) (*models.Verification, error) {
	for _, v := range t.m.verifications {
		if v.Token == token {
			cp := v
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (t *memTx) HasLiveVerification(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	for _, v := range t.m.verifications {
		if v.SessionID == sessionID && v.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) DeleteVerification(ctx context.Context, id string) error {
	delete(t.m.verifications, id)
	return nil
}

func (t *memTx) DeleteSessionVerifications(ctx context.Context, sessionID string) error {
	for id, v := range t.m.verifications {
		if v.SessionID == sessionID {
			delete(t.m.verifications, id)
		}
	}
	return nil
}

func (t *memTx) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var found *models.User
	for _, u := range t.m.users {
		if strings.EqualFold(u.Email, email) {
			cp := u
			if found == nil || (cp.IsActive && !found.IsActive) {
				found = &cp
			}
		}
	}
	if found == nil {
		return nil, db.ErrNotFound
	}
	return found, nil
}

func (t *memTx) UserByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := t.m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) UpsertTicketLink(ctx context.Context, l *models.TicketLink) error {
	l.CreatedAt = time.Now().UTC()
	t.m.links[l.TicketKey] = *l
	return nil
}

func (t *memTx) TicketLink(ctx context.Context, ticketKey string) (*models.TicketLink, error) {
	l, ok := t.m.links[ticketKey]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &l, nil
}

func (t *memTx) EnqueueOutbox(ctx context.Context, msg *models.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Status = models.OutboxPending
	msg.CreatedAt = time.Now().UTC()
	t.m.outbox = append(t.m.outbox, *msg)
	return nil
}

func (t *memTx) ClaimOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	var out []models.OutboxMessage
	for _, msg := range t.m.outbox {
		due := msg.Status == models.OutboxPending ||
			(msg.Status == models.OutboxFailed && msg.NextRetryAt != nil && !msg.NextRetryAt.After(now))
		if due && len(out) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (t *memTx) updateOutbox(id string, fn func(*models.OutboxMessage)) error {
	for i := range t.m.outbox {
		if t.m.outbox[i].ID == id {
			fn(&t.m.outbox[i])
			return nil
		}
	}
	return db.ErrNotFound
}

func (t *memTx) MarkOutboxSent(ctx context.Context, id string) error {
	if t.m.markSentErr != nil {
		if err := t.m.markSentErr(id); err != nil {
			return err
		}
	}
	return t.updateOutbox(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxSent
		m.Attempts++
		m.LastError = nil
		m.NextRetryAt = nil
	})
}

func (t *memTx) MarkOutboxFailed(ctx context.Context, id, lastError string, nextRetryAt time.Time) error {
	return t.updateOutbox(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxFailed
		m.Attempts++
		m.LastError = &lastError
		m.NextRetryAt = &nextRetryAt
	})
}

func (t *memTx) UpsertOrganization(ctx context.Context, trackerID, name string) (string, error) {
	o, ok := t.m.orgs[trackerID]
	if !ok {
		o = models.Organization{ID: uuid.NewString(), TrackerID: trackerID}
	}
	o.Name = name
	o.IsActive = true
	t.m.orgs[trackerID] = o
	return o.ID, nil
}

func (t *memTx) DeactivateOrganizationsExcept(ctx context.Context, trackerIDs []string) (int64, error) {
	keep := map[string]bool{}
	for _, id := range trackerIDs {
		keep[id] = true
	}
	var n int64
	for k, o := range t.m.orgs {
		if o.IsActive && !keep[k] {
			o.IsActive = false
			t.m.orgs[k] = o
			n++
		}
	}
	return n, nil
}

func (t *memTx) UpsertUser(ctx context.Context, u *models.User) error {
	for id, existing := range t.m.users {
		if existing.TrackerAccount == u.TrackerAccount {
			u.ID = id
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	cp.Email = strings.ToLower(strings.TrimSpace(cp.Email))
	t.m.users[u.ID] = cp
	return nil
}

func (t *memTx) DeactivateUsersExcept(ctx context.Context, accountIDs []string) (int64, error) {
	keep := map[string]bool{}
	for _, id := range accountIDs {
		keep[id] = true
	}
	var n int64
	for id, u := range t.m.users {
		if u.IsActive && !keep[u.TrackerAccount] {
			u.IsActive = false
			t.m.users[id] = u
			n++
		}
	}
	return n, nil
}
