package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	TicketCreated        = "ticket.created"
	SessionAuthenticated = "session.authenticated"
	CommentRelayed       = "comment.relayed"
	DirectorySynced      = "directory.synced"
)

// Publisher emits domain events. Publishing is best effort and never fails
// the caller's operation.
type Publisher interface {
	Publish(ctx context.Context, event, key string, payload map[string]any)
}

type Kafka struct {
	writer *kafka.Writer
	logger zerolog.Logger
	now    func() time.Time
}

// NewKafka returns a publisher that drops events when brokers or topic are empty.
func NewKafka(brokers []string, topic string, logger zerolog.Logger) *Kafka {
	p := &Kafka{logger: logger, now: time.Now}
	if len(brokers) == 0 || topic == "" {
		return p
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return p
}

func (p *Kafka) Enabled() bool { return p.writer != nil }

func (p *Kafka) Publish(ctx context.Context, event, key string, payload map[string]any) {
	if p.writer == nil {
		return
	}
	body, err := encode(event, p.now(), payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event", event).Msg("events: marshal")
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body}); err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("events: write")
	}
}

func (p *Kafka) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encode(event string, at time.Time, payload map[string]any) ([]byte, error) {
	msg := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["event"] = event
	msg["occurred_at"] = at.UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, map[string]any) {}
