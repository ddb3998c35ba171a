// Package transport delivers rendered messages over a single channel each:
// Twilio SMS and WhatsApp, email jobs on RabbitMQ, and websocket push.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Message is the rendered content handed to a transport.
type Message struct {
	// NotificationID lets downstream consumers report delivery back.
	NotificationID string
	Subject        string
	Body           string
}

// Sender delivers a message to address. Implementations must honor ctx's deadline.
type Sender interface {
	Send(ctx context.Context, address string, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, address string, msg Message) error

func (f SenderFunc) Send(ctx context.Context, address string, msg Message) error {
	return f(ctx, address, msg)
}

// ErrNoAddress is returned when a recipient has no destination for a channel.
var ErrNoAddress = errors.New("recipient has no address for channel")

// ErrOutcomeUnknown marks a call abandoned at its deadline that may still
// deliver. Retrying it risks a duplicate message.
var ErrOutcomeUnknown = errors.New("delivery outcome unknown")

// ConsoleSender logs messages instead of delivering them. It stands in for a
// channel whose credentials are not configured.
type ConsoleSender struct {
	Channel string
	Logger  *zap.Logger
}

func (s *ConsoleSender) Send(_ context.Context, address string, msg Message) error {
	s.Logger.Info("console delivery",
		zap.String("channel", s.Channel),
		zap.String("to", address),
		zap.String("subject", msg.Subject),
		zap.Int("body_length", len(msg.Body)),
	)
	return nil
}

// Call is one recorded MockSender delivery.
type Call struct {
	Address string
	Message Message
}

// MockSender records calls and optionally fails.
type MockSender struct {
	mu         sync.Mutex
	calls      []Call
	ShouldFail bool
	FailError  string
	// FailTimes fails only the first n calls when set.
	FailTimes int
}

// Send records the call and optionally returns an error.
func (m *MockSender) Send(_ context.Context, address string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Address: address, Message: msg})
	if m.ShouldFail || len(m.calls) <= m.FailTimes {
		if m.FailError == "" {
			return fmt.Errorf("mock send to %s failed", address)
		}
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded calls.
func (m *MockSender) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
