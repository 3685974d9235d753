package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/omnibridge/backend/internal/models"
)

var (
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrMalformedPayload       = errors.New("malformed payload")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrUnknownPlatform        = errors.New("unknown platform")
)

// Adapter converts one platform's webhooks to NormalizedMessage and sends replies.
type Adapter interface {
	Platform() string
	Parse(body []byte) (models.NormalizedMessage, error)
	SendReply(ctx context.Context, target models.Target, text string) error
}

// Verifier checks a webhook's authenticity. Each platform signs differently.
type Verifier interface {
	Verify(header http.Header, body []byte) error
}

// ChallengeResponder answers a platform's subscription handshake.
type ChallengeResponder interface {
	Challenge(mode, token, challenge string) (string, bool)
}

type DeliveryError struct {
	Platform   string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s delivery failed with status %d: %v", e.Platform, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Platform, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Platform()] = a
}

func (r *Registry) Get(platform string) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return a, nil
}

func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Send delivers text to target through the adapter registered for its platform.
func (r *Registry) Send(ctx context.Context, target models.Target, text string) error {
	a, err := r.Get(target.Platform)
	if err != nil {
		return err
	}
	return a.SendReply(ctx, target, text)
}
