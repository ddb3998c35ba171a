package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"medicare-scheduler/internal/websocket"
)

type fakeTwilio struct {
	mu     sync.Mutex
	params []*twilioApi.CreateMessageParams
	err    error
	delay  time.Duration
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	return &twilioApi.ApiV2010Message{}, f.err
}

func TestSMSSender(t *testing.T) {
	api := &fakeTwilio{}
	s := NewSMSSender(api, "+15550000")

	require.NoError(t, s.Send(context.Background(), "+15551234", Message{Body: "hello"}))
	require.Len(t, api.params, 1)
	assert.Equal(t, "+15551234", *api.params[0].To)
	assert.Equal(t, "+15550000", *api.params[0].From)
	assert.Equal(t, "hello", *api.params[0].Body)

	assert.ErrorIs(t, s.Send(context.Background(), "", Message{Body: "x"}), ErrNoAddress)
}

func TestWhatsAppSenderPrefixesAddresses(t *testing.T) {
	api := &fakeTwilio{}
	s := NewWhatsAppSender(api, "whatsapp:+15550000")

	require.NoError(t, s.Send(context.Background(), "+15551234", Message{Body: "hello"}))
	assert.Equal(t, "whatsapp:+15551234", *api.params[0].To)
	assert.Equal(t, "whatsapp:+15550000", *api.params[0].From)
}

func TestTwilioSenderHonorsDeadline(t *testing.T) {
	api := &fakeTwilio{delay: 200 * time.Millisecond}
	s := NewSMSSender(api, "+15550000")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Send(ctx, "+15551234", Message{Body: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrOutcomeUnknown, "the request may still deliver")
}

func TestTwilioSenderWrapsAPIError(t *testing.T) {
	api := &fakeTwilio{err: errors.New("21211 invalid To number")}
	err := NewSMSSender(api, "+15550000").Send(context.Background(), "123", Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid To number")
}

type fakePublisher struct {
	routingKey string
	job        EmailJob
	err        error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, message interface{}) error {
	f.routingKey = routingKey
	f.job = message.(EmailJob)
	return f.err
}

func TestEmailSenderQueuesJob(t *testing.T) {
	pub := &fakePublisher{}
	s := NewEmailSender(pub, "email.queue", "clinic@example.com")

	err := s.Send(context.Background(), "alex@example.com", Message{
		NotificationID: "n-1",
		Subject:        "Medical Appointment Reminder",
		Body:           "Line one\n\nLine <two>",
	})
	require.NoError(t, err)
	assert.Equal(t, "email.queue", pub.routingKey)
	assert.Equal(t, "alex@example.com", pub.job.To)
	assert.Equal(t, "clinic@example.com", pub.job.From)
	assert.Equal(t, "n-1", pub.job.NotificationID)
	assert.Contains(t, pub.job.HTML, "<p>Line one</p>")
	assert.Contains(t, pub.job.HTML, "Line &lt;two&gt;")
}

func TestEmailSenderPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	err := NewEmailSender(pub, "email.queue", "x@example.com").Send(context.Background(), "a@example.com", Message{})
	assert.ErrorContains(t, err, "channel closed")
}

type fakeHub struct {
	user    string
	payload []byte
	err     error
}

func (f *fakeHub) SendToUser(userID string, payload []byte) error {
	f.user, f.payload = userID, payload
	return f.err
}

func TestPushSender(t *testing.T) {
	hub := &fakeHub{}
	s := NewPushSender(hub)

	require.NoError(t, s.Send(context.Background(), "user-1", Message{NotificationID: "n-1", Subject: "Reminder", Body: "soon"}))
	assert.Equal(t, "user-1", hub.user)

	var ev PushEvent
	require.NoError(t, json.Unmarshal(hub.payload, &ev))
	assert.Equal(t, "notification", ev.Type)
	assert.Equal(t, "n-1", ev.NotificationID)
	assert.Equal(t, "soon", ev.Message)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	mock := &MockSender{ShouldFail: true}
	b := WithBreaker("sms", mock)

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Send(context.Background(), "+1", Message{}))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Send(context.Background(), "+1", Message{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, mock.Calls(), 3, "open breaker short-circuits")
}

func TestBreakerIgnoresRecipientErrors(t *testing.T) {
	hub := websocket.NewHub()
	online := websocket.NewClient("doc-online", nil)
	hub.Register(online)
	b := WithBreaker("push", NewPushSender(hub))

	for _, id := range []string{"doc-a", "doc-b", "doc-c", "doc-d"} {
		assert.ErrorIs(t, b.Send(context.Background(), id, Message{Body: "soon"}), websocket.ErrNotConnected)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	require.NoError(t, b.Send(context.Background(), "doc-online", Message{NotificationID: "n-1", Body: "soon"}))
	assert.Len(t, online.Send, 1)
}

func TestBreakerIgnoresInvalidNumbers(t *testing.T) {
	api := &fakeTwilio{err: &twilioClient.TwilioRestError{Status: 400, Code: 21211, Message: "invalid To number"}}
	b := WithBreaker("sms", NewSMSSender(api, "+15550000"))

	for i := 0; i < 4; i++ {
		assert.Error(t, b.Send(context.Background(), "123", Message{Body: "x"}))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Len(t, api.params, 4)
}

func TestIsRecipientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no address", ErrNoAddress, true},
		{"not connected", websocket.ErrNotConnected, true},
		{"invalid number", &twilioClient.TwilioRestError{Status: 400, Code: 21211}, true},
		{"rate limited", &twilioClient.TwilioRestError{Status: 429, Code: 20429}, false},
		{"bad credentials", &twilioClient.TwilioRestError{Status: 401, Code: 20003}, false},
		{"server error", &twilioClient.TwilioRestError{Status: 503}, false},
		{"timeout", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecipientError(fmt.Errorf("send: %w", tt.err)))
		})
	}
}

func TestMockSenderFailTimes(t *testing.T) {
	mock := &MockSender{FailTimes: 1}
	assert.Error(t, mock.Send(context.Background(), "a", Message{}))
	assert.NoError(t, mock.Send(context.Background(), "a", Message{}))
}

func TestConsoleSender(t *testing.T) {
	s := &ConsoleSender{Channel: "sms", Logger: zap.NewNop()}
	assert.NoError(t, s.Send(context.Background(), "+1", Message{Body: "hi"}))
}
