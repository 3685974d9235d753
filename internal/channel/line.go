package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/omnibridge/backend/internal/models"
)

const linePushURL = "https://api.line.me/v2/bot/message/push"

type Line struct {
	ChannelAccessToken string
	ChannelSecret      string
	PushURL            string
	Client             *http.Client
}

type linePayload struct {
	Events []struct {
		Type   string `json:"type"`
		Source struct {
			UserID string `json:"userId"`
		} `json:"source"`
		Message struct {
			ID   string `json:"id"`
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"message"`
	} `json:"events"`
}

func (l *Line) Platform() string { return models.PlatformLine }

// Verify checks X-Line-Signature, a base64 HMAC-SHA256 of the body.
func (l *Line) Verify(header http.Header, body []byte) error {
	if l.ChannelSecret == "" {
		return nil
	}
	return verifyBase64Signature(l.ChannelSecret, header.Get("X-Line-Signature"), body)
}

func (l *Line) Parse(body []byte) (models.NormalizedMessage, error) {
	var p linePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.NormalizedMessage{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(p.Events) == 0 {
		// LINE sends an empty events list when verifying the webhook URL
		return models.NormalizedMessage{}, ErrUnsupportedMessageType
	}
	ev := p.Events[0]
	if ev.Type != "message" || ev.Message.Type != "text" {
		return models.NormalizedMessage{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedMessageType, ev.Type, ev.Message.Type)
	}
	if ev.Source.UserID == "" {
		return models.NormalizedMessage{}, fmt.Errorf("%w: missing source user", ErrMalformedPayload)
	}
	text := strings.TrimSpace(ev.Message.Text)
	if text == "" {
		return models.NormalizedMessage{}, ErrUnsupportedMessageType
	}
	return models.NormalizedMessage{
		Platform:          models.PlatformLine,
		ExternalUserID:    ev.Source.UserID,
		ExternalMessageID: ev.Message.ID,
		Text:              text,
	}, nil
}

func (l *Line) SendReply(ctx context.Context, target models.Target, text string) error {
	url := l.PushURL
	if url == "" {
		url = linePushURL
	}
	payload := map[string]any{
		"to":       target.ExternalUserID,
		"messages": []map[string]string{{"type": "text", "text": text}},
	}
	return postJSON(ctx, l.Client, l.Platform(), url, l.ChannelAccessToken, payload)
}
