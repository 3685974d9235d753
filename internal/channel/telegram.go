package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/omnibridge/backend/internal/models"
)

type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	SecretToken string
	bot         telegramBot
}

// NewTelegram builds the adapter without calling getMe, so startup does not
// depend on Telegram being reachable.
func NewTelegram(token, secretToken string, client *http.Client) *Telegram {
	if client == nil {
		client = http.DefaultClient
	}
	bot := &tgbotapi.BotAPI{Token: token, Client: client, Buffer: 100}
	bot.SetAPIEndpoint(tgbotapi.APIEndpoint)
	return &Telegram{SecretToken: secretToken, bot: bot}
}

func (t *Telegram) Platform() string { return models.PlatformTelegram }

// Verify compares the X-Telegram-Bot-Api-Secret-Token header with the secret
// registered through setWebhook.
func (t *Telegram) Verify(header http.Header, body []byte) error {
	if t.SecretToken == "" {
		return nil
	}
	got := header.Get("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(t.SecretToken)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func (t *Telegram) Parse(body []byte) (models.NormalizedMessage, error) {
	var upd tgbotapi.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		return models.NormalizedMessage{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	msg := upd.Message
	if msg == nil {
		return models.NormalizedMessage{}, ErrUnsupportedMessageType
	}
	if msg.From == nil {
		return models.NormalizedMessage{}, fmt.Errorf("%w: missing sender", ErrMalformedPayload)
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return models.NormalizedMessage{}, ErrUnsupportedMessageType
	}
	return models.NormalizedMessage{
		Platform:          models.PlatformTelegram,
		ExternalUserID:    strconv.FormatInt(msg.From.ID, 10),
		ExternalMessageID: strconv.Itoa(msg.MessageID),
		Text:              text,
	}, nil
}

func (t *Telegram) SendReply(ctx context.Context, target models.Target, text string) error {
	chatID, err := strconv.ParseInt(target.ExternalUserID, 10, 64)
	if err != nil {
		return &DeliveryError{Platform: t.Platform(), Err: fmt.Errorf("invalid chat id %q", target.ExternalUserID)}
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Platform: t.Platform(), Err: err}
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		status := 0
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return &DeliveryError{Platform: t.Platform(), StatusCode: status, Err: err}
	}
	return nil
}
