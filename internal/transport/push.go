package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Pusher delivers a payload to every live connection of a user.
type Pusher interface {
	SendToUser(userID string, payload []byte) error
}

// PushEvent is the websocket frame sent to clients.
type PushEvent struct {
	Type           string    `json:"type"`
	NotificationID string    `json:"notificationId"`
	Title          string    `json:"title,omitempty"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

// PushSender delivers notifications over the websocket hub. The address is the user id.
type PushSender struct {
	hub Pusher
}

func NewPushSender(hub Pusher) *PushSender {
	return &PushSender{hub: hub}
}

func (s *PushSender) Send(ctx context.Context, address string, msg Message) error {
	if address == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(PushEvent{
		Type:           "notification",
		NotificationID: msg.NotificationID,
		Title:          msg.Subject,
		Message:        msg.Body,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode push event: %w", err)
	}
	return s.hub.SendToUser(address, payload)
}
