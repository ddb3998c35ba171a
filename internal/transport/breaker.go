package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	twilioClient "github.com/twilio/twilio-go/client"

	"medicare-scheduler/internal/websocket"
)

// IsRecipientError reports whether err is about one recipient rather than the
// channel: no address, no live connection, or a Twilio 4xx such as an invalid
// number. Rate limiting and credential errors stay channel failures.
func IsRecipientError(err error) bool {
	if errors.Is(err, ErrNoAddress) || errors.Is(err, websocket.ErrNotConnected) {
		return true
	}
	var restErr *twilioClient.TwilioRestError
	if errors.As(err, &restErr) {
		switch restErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			return false
		}
		return restErr.Status >= 400 && restErr.Status < 500
	}
	return false
}

// NewCircuitBreaker trips after three requests in a minute when at least 60%
// of them failed, and half-opens again after a minute. Recipient errors do not
// count as failures.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsRecipientError(err)
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// BreakerSender isolates a failing channel so the others keep flowing.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker named after the channel.
func WithBreaker(name string, next Sender) *BreakerSender {
	return &BreakerSender{next: next, breaker: NewCircuitBreaker(name)}
}

func (b *BreakerSender) Send(ctx context.Context, address string, msg Message) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, address, msg)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (b *BreakerSender) State() gobreaker.State {
	return b.breaker.State()
}
