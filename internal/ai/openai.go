package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/omnibridge/backend/internal/models"
)

const (
	classifyPrompt = `You route messages for a customer-support assistant.
Answer with exactly one word.
"sensitive": the user asks about their tickets, incidents, orders, accounts or anything that needs their identity.
"general": greetings, product questions and anything answerable without knowing who the user is.`

	replyPrompt = `You are a concise, friendly customer-support assistant replying in a chat app.
Keep answers short and plain text. Never invent ticket numbers or statuses.`

	parsePrompt = `Extract the user's intent for a support ticket system. Reply with a JSON object:
{"action": "create_ticket|ticket_detail|list_tickets|add_comment|general",
 "summary": "", "description": "", "priority": "", "start_date": "",
 "ticket_key": "", "comment": "", "status_filter": "open|closed|all"}
Leave unknown fields empty. Dates as YYYY-MM-DD.`
)

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

// OpenAICompat talks to any /chat/completions compatible endpoint.
type OpenAICompat struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
	Client    *http.Client

	cache *classifyCache
}

func NewOpenAICompat(baseURL, model, apiKey string, client *http.Client, timeout time.Duration) *OpenAICompat {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAICompat{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Model:     model,
		APIKey:    apiKey,
		MaxTokens: 400,
		Timeout:   timeout,
		Client:    client,
		cache:     &classifyCache{ttl: time.Minute, entries: map[string]cacheEntry{}},
	}
}

// Classify treats any answer other than a clear "general" as sensitive.
func (a *OpenAICompat) Classify(ctx context.Context, text string) (Intent, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	if v, ok := a.cache.get(key); ok {
		return v, nil
	}
	out, err := a.complete(ctx, []ChatMessage{
		{Role: "system", Content: classifyPrompt},
		{Role: "user", Content: text},
	}, false)
	if err != nil {
		return IntentSensitive, err
	}
	answer := strings.ToLower(out)
	intent := IntentSensitive
	if strings.Contains(answer, string(IntentGeneral)) && !strings.Contains(answer, string(IntentSensitive)) {
		intent = IntentGeneral
	}
	a.cache.set(key, intent)
	return intent, nil
}

func (a *OpenAICompat) Generate(ctx context.Context, rc ReplyContext, history []ChatMessage, userMessage string) (string, error) {
	system := replyPrompt
	if rc.Authenticated {
		system += fmt.Sprintf("\nThe user is verified as %s <%s>.", rc.UserName, rc.UserEmail)
	} else {
		system += "\nThe user is not verified. Do not discuss account or ticket details."
	}
	msgs := []ChatMessage{{Role: "system", Content: system}}
	msgs = append(msgs, history...)
	msgs = append(msgs, ChatMessage{Role: "user", Content: userMessage})
	out, err := a.complete(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty assistant response")
	}
	return out, nil
}

func (a *OpenAICompat) ParseIntent(ctx context.Context, text string) (ParsedIntent, error) {
	out, err := a.complete(ctx, []ChatMessage{
		{Role: "system", Content: parsePrompt},
		{Role: "user", Content: text},
	}, true)
	if err != nil {
		return ParsedIntent{Action: ActionGeneral}, err
	}
	var raw struct {
		Action       string `json:"action"`
		Summary      string `json:"summary"`
		Description  string `json:"description"`
		Priority     string `json:"priority"`
		StartDate    string `json:"start_date"`
		TicketKey    string `json:"ticket_key"`
		Comment      string `json:"comment"`
		StatusFilter string `json:"status_filter"`
	}
	if err := json.Unmarshal([]byte(stripFences(out)), &raw); err != nil {
		return ParsedIntent{Action: ActionGeneral}, fmt.Errorf("decode intent: %w", err)
	}
	p := ParsedIntent{
		Action: Action(strings.ToLower(strings.TrimSpace(raw.Action))),
		Draft: models.DraftPatch{
			Summary:     strings.TrimSpace(raw.Summary),
			Description: strings.TrimSpace(raw.Description),
			Priority:    strings.TrimSpace(raw.Priority),
			StartDate:   strings.TrimSpace(raw.StartDate),
		},
		TicketKey:    strings.ToUpper(strings.TrimSpace(raw.TicketKey)),
		Comment:      strings.TrimSpace(raw.Comment),
		StatusFilter: strings.ToLower(strings.TrimSpace(raw.StatusFilter)),
	}
	switch p.Action {
	case ActionCreateTicket, ActionTicketDetail, ActionListTickets, ActionAddComment, ActionGeneral:
	default:
		p.Action = ActionGeneral
	}
	return p, nil
}

func (a *OpenAICompat) complete(ctx context.Context, messages []ChatMessage, jsonMode bool) (string, error) {
	if a.BaseURL == "" {
		return "", errors.New("AI_URL is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	payload := struct {
		Model          string            `json:"model"`
		Temperature    float64           `json:"temperature"`
		MaxTokens      int               `json:"max_tokens,omitempty"`
		Messages       []ChatMessage     `json:"messages"`
		ResponseFormat map[string]string `json:"response_format,omitempty"`
	}{
		Model:     a.Model,
		MaxTokens: a.MaxTokens,
		Messages:  messages,
	}
	if jsonMode {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(a.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("assistant request timed out")
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("assistant request timed out")
		}
		return "", fmt.Errorf("assistant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", RateLimitError{RetryAfter: extractRetryAfter(resp.Header, errBody)}
		}
		return "", fmt.Errorf("assistant http error: %s", resp.Status)
	}

	var res struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("empty assistant response")
	}
	return res.Choices[0].Message.Content, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func extractRetryAfter(h http.Header, errBody map[string]any) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	errObj, ok := errBody["error"].(map[string]any)
	if !ok {
		return 0
	}
	details, ok := errObj["details"].([]any)
	if !ok {
		return 0
	}
	for _, d := range details {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := m["@type"].(string); ok && strings.Contains(t, "RetryInfo") {
			if s, ok := m["retryDelay"].(string); ok {
				if dur, err := time.ParseDuration(s); err == nil {
					return dur
				}
			}
		}
	}
	return 0
}

type cacheEntry struct {
	value Intent
	exp   time.Time
}

type classifyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func (c *classifyCache) get(key string) (Intent, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		if time.Now().Before(e.exp) {
			return e.value, true
		}
		delete(c.entries, key)
	}
	return "", false
}

func (c *classifyCache) set(key string, v Intent) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: v, exp: time.Now().Add(c.ttl)}
}
