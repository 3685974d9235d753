package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnibridge/backend/internal/models"
)

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

const whatsappText = `{"entry":[{"changes":[{"value":{"messages":[{"id":"wamid.1","from":"6281234","type":"text","text":{"body":" hello "}}]}}]}]}`

func TestWhatsAppParse(t *testing.T) {
	w := &WhatsApp{}

	msg, err := w.Parse([]byte(whatsappText))
	require.NoError(t, err)
	assert.Equal(t, models.NormalizedMessage{
		Platform:          models.PlatformWhatsApp,
		ExternalUserID:    "6281234",
		ExternalMessageID: "wamid.1",
		Text:              "hello",
	}, msg)

	_, err = w.Parse([]byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`))
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)

	_, err = w.Parse([]byte(`{"entry":[{"changes":[{"value":{"messages":[{"id":"1","from":"1","type":"image"}]}}]}]}`))
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)

	_, err = w.Parse([]byte(`{"entry":[]}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = w.Parse([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestWhatsAppVerify(t *testing.T) {
	w := &WhatsApp{AppSecret: "s3cret"}
	body := []byte(whatsappText)

	h := http.Header{}
	h.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(sign("s3cret", body)))
	assert.NoError(t, w.Verify(h, body))

	h.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(sign("other", body)))
	assert.ErrorIs(t, w.Verify(h, body), ErrInvalidSignature)

	h.Set("X-Hub-Signature-256", hex.EncodeToString(sign("s3cret", body)))
	assert.ErrorIs(t, w.Verify(h, body), ErrInvalidSignature)

	assert.NoError(t, (&WhatsApp{}).Verify(http.Header{}, body))
}

func TestWhatsAppChallenge(t *testing.T) {
	w := &WhatsApp{VerifyToken: "vt"}

	got, ok := w.Challenge("subscribe", "vt", "123")
	assert.True(t, ok)
	assert.Equal(t, "123", got)

	_, ok = w.Challenge("subscribe", "wrong", "123")
	assert.False(t, ok)
	_, ok = w.Challenge("unsubscribe", "vt", "123")
	assert.False(t, ok)
}

func TestWhatsAppSendReply(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := &WhatsApp{Token: "tok", PhoneNumberID: "555", GraphURL: srv.URL, Client: srv.Client()}
	err := w.SendReply(context.Background(), models.Target{Platform: models.PlatformWhatsApp, ExternalUserID: "6281234"}, "hi")
	require.NoError(t, err)
	assert.Equal(t, "/555/messages", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "6281234", gotBody["to"])
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
}

func TestWhatsAppSendReplyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := &WhatsApp{Token: "tok", PhoneNumberID: "555", GraphURL: srv.URL, Client: srv.Client()}
	err := w.SendReply(context.Background(), models.Target{ExternalUserID: "1"}, "hi")

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusUnauthorized, de.StatusCode)
	assert.Equal(t, models.PlatformWhatsApp, de.Platform)
}

const lineText = `{"events":[{"type":"message","source":{"userId":"U1"},"message":{"id":"m1","type":"text","text":"hi there"}}]}`

func TestLineParse(t *testing.T) {
	l := &Line{}

	msg, err := l.Parse([]byte(lineText))
	require.NoError(t, err)
	assert.Equal(t, "U1", msg.ExternalUserID)
	assert.Equal(t, "m1", msg.ExternalMessageID)
	assert.Equal(t, "hi there", msg.Text)

	_, err = l.Parse([]byte(`{"events":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)

	_, err = l.Parse([]byte(`{"events":[{"type":"follow","source":{"userId":"U1"}}]}`))
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)

	_, err = l.Parse([]byte(`{"events":[{"type":"message","source":{},"message":{"id":"m","type":"text","text":"x"}}]}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestLineVerify(t *testing.T) {
	l := &Line{ChannelSecret: "chan"}
	body := []byte(lineText)

	h := http.Header{}
	h.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(sign("chan", body)))
	assert.NoError(t, l.Verify(h, body))

	h.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(sign("chan", []byte("tampered"))))
	assert.ErrorIs(t, l.Verify(h, body), ErrInvalidSignature)

	h.Set("X-Line-Signature", "%%%")
	assert.ErrorIs(t, l.Verify(h, body), ErrInvalidSignature)
}

func TestLineSendReply(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
	}))
	defer srv.Close()

	l := &Line{ChannelAccessToken: "tok", PushURL: srv.URL, Client: srv.Client()}
	require.NoError(t, l.SendReply(context.Background(), models.Target{ExternalUserID: "U1"}, "pong"))
	assert.Equal(t, "U1", gotBody["to"])
	assert.Len(t, gotBody["messages"], 1)
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegramParse(t *testing.T) {
	tg := &Telegram{}

	msg, err := tg.Parse([]byte(`{"update_id":1,"message":{"message_id":42,"from":{"id":777,"is_bot":false,"first_name":"A"},"chat":{"id":777,"type":"private"},"date":0,"text":"hello"}}`))
	require.NoError(t, err)
	assert.Equal(t, "777", msg.ExternalUserID)
	assert.Equal(t, "42", msg.ExternalMessageID)
	assert.Equal(t, "hello", msg.Text)

	_, err = tg.Parse([]byte(`{"update_id":2,"edited_message":{"message_id":1,"chat":{"id":1,"type":"private"},"date":0,"text":"x"}}`))
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)

	_, err = tg.Parse([]byte(`{"update_id":3,"message":{"message_id":1,"from":{"id":1},"chat":{"id":1,"type":"private"},"date":0}}`))
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)

	_, err = tg.Parse([]byte(`{`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestTelegramVerify(t *testing.T) {
	tg := &Telegram{SecretToken: "abc"}
	h := http.Header{}
	assert.ErrorIs(t, tg.Verify(h, nil), ErrInvalidSignature)
	h.Set("X-Telegram-Bot-Api-Secret-Token", "abc")
	assert.NoError(t, tg.Verify(h, nil))
}

func TestTelegramSendReply(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot}

	require.NoError(t, tg.SendReply(context.Background(), models.Target{ExternalUserID: "777"}, "hi"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(777), bot.sent[0].ChatID)
	assert.Equal(t, "hi", bot.sent[0].Text)

	err := tg.SendReply(context.Background(), models.Target{ExternalUserID: "not-a-number"}, "hi")
	var de *DeliveryError
	assert.True(t, errors.As(err, &de))

	bot.err = errors.New("network down")
	err = tg.SendReply(context.Background(), models.Target{ExternalUserID: "777"}, "hi")
	assert.True(t, errors.As(err, &de))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&WhatsApp{}, &Line{}, &Telegram{})
	assert.Equal(t, []string{"line", "telegram", "whatsapp"}, r.Platforms())

	a, err := r.Get("line")
	require.NoError(t, err)
	assert.Equal(t, "line", a.Platform())

	_, err = r.Get("sms")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}
