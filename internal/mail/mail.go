package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"
)

var ErrSMTP = errors.New("smtp error")

// SMTPError wraps a transport failure; errors.Is(err, ErrSMTP) holds.
type SMTPError struct {
	Op  string
	Err error
}

func (e *SMTPError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Op, e.Err)
}

func (e *SMTPError) Unwrap() []error {
	return []error{ErrSMTP, e.Err}
}

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.From); err != nil {
		return &SMTPError{Op: "from", Err: err}
	}
	if err := msg.To(to); err != nil {
		return &SMTPError{Op: "to", Err: err}
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts := []gomail.Option{
		gomail.WithPort(s.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(timeout),
	}
	if s.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.Username),
			gomail.WithPassword(s.Password),
		)
	}
	client, err := gomail.NewClient(s.Host, opts...)
	if err != nil {
		return &SMTPError{Op: "client", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return &SMTPError{Op: "send", Err: err}
	}
	return nil
}

// LogSender writes mails to the log instead of sending them.
type LogSender struct {
	Logger zerolog.Logger

	mu   sync.Mutex
	sent []Sent
}

type Sent struct {
	To      string
	Subject string
	Body    string
}

func (l *LogSender) Send(ctx context.Context, to, subject, body string) error {
	l.mu.Lock()
	l.sent = append(l.sent, Sent{To: to, Subject: subject, Body: body})
	l.mu.Unlock()
	l.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("mail not sent, SMTP_HOST is empty")
	return nil
}

func (l *LogSender) Sent() []Sent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Sent(nil), l.sent...)
}
