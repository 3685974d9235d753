package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/omnibridge/backend/internal/models"
)

const whatsappGraphURL = "https://graph.facebook.com/v19.0"

type WhatsApp struct {
	Token         string
	PhoneNumberID string
	AppSecret     string
	VerifyToken   string
	GraphURL      string
	Client        *http.Client
}

type whatsappPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (w *WhatsApp) Platform() string { return models.PlatformWhatsApp }

// Verify checks X-Hub-Signature-256 against the app secret. Without a
// configured secret every request passes.
func (w *WhatsApp) Verify(header http.Header, body []byte) error {
	if w.AppSecret == "" {
		return nil
	}
	return verifyHexSignature(w.AppSecret, header.Get("X-Hub-Signature-256"), body)
}

func (w *WhatsApp) Challenge(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || w.VerifyToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(w.VerifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

func (w *WhatsApp) Parse(body []byte) (models.NormalizedMessage, error) {
	var p whatsappPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.NormalizedMessage{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return models.NormalizedMessage{}, fmt.Errorf("%w: no entry changes", ErrMalformedPayload)
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		// status callbacks (delivered, read) carry no messages
		return models.NormalizedMessage{}, ErrUnsupportedMessageType
	}
	m := msgs[0]
	if m.Type != "text" {
		return models.NormalizedMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedMessageType, m.Type)
	}
	if m.From == "" {
		return models.NormalizedMessage{}, fmt.Errorf("%w: missing sender", ErrMalformedPayload)
	}
	text := strings.TrimSpace(m.Text.Body)
	if text == "" {
		return models.NormalizedMessage{}, ErrUnsupportedMessageType
	}
	return models.NormalizedMessage{
		Platform:          models.PlatformWhatsApp,
		ExternalUserID:    m.From,
		ExternalMessageID: m.ID,
		Text:              text,
	}, nil
}

func (w *WhatsApp) SendReply(ctx context.Context, target models.Target, text string) error {
	base := w.GraphURL
	if base == "" {
		base = whatsappGraphURL
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                target.ExternalUserID,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	return postJSON(ctx, w.Client, w.Platform(), fmt.Sprintf("%s/%s/messages", strings.TrimRight(base, "/"), w.PhoneNumberID), w.Token, payload)
}
