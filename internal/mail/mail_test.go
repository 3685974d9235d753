package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&SMTPError{Op: "send", Err: cause})

	assert.ErrorIs(t, err, ErrSMTP)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "smtp send: connection refused", err.Error())
}

func TestSMTPSenderUnreachableHost(t *testing.T) {
	s := &SMTPSender{Host: "127.0.0.1", Port: 1, From: "support@acme.com", Timeout: 200 * time.Millisecond}

	err := s.Send(context.Background(), "dana@acme.com", "Verify", "body")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSMTP)
}

func TestSMTPSenderRejectsBadAddress(t *testing.T) {
	s := &SMTPSender{Host: "127.0.0.1", Port: 1, From: "support@acme.com"}

	err := s.Send(context.Background(), "not an address", "Verify", "body")
	var smtpErr *SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, "to", smtpErr.Op)
}

func TestLogSender(t *testing.T) {
	l := &LogSender{Logger: zerolog.Nop()}
	require.NoError(t, l.Send(context.Background(), "dana@acme.com", "Verify", "link"))
	assert.Equal(t, []Sent{{To: "dana@acme.com", Subject: "Verify", Body: "link"}}, l.Sent())
}
