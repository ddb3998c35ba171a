package models

import (
	"time"
)

// Channel is a delivery medium
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelPush     Channel = "push"
)

// ReminderChannels are the channels reminders fan out over, in order.
var ReminderChannels = []Channel{ChannelSMS, ChannelWhatsApp, ChannelEmail}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelWhatsApp, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// NotificationType classifies a notification
type NotificationType string

const (
	NotificationReminder     NotificationType = "appointment-reminder"
	NotificationConfirmation NotificationType = "appointment-confirmation"
	NotificationCancellation NotificationType = "appointment-cancellation"
	NotificationReschedule   NotificationType = "appointment-reschedule"
	NotificationSystem       NotificationType = "system-notification"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationReminder, NotificationConfirmation, NotificationCancellation,
		NotificationReschedule, NotificationSystem:
		return true
	}
	return false
}

// NotificationStatus represents the delivery state of a notification
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
)

// Valid reports whether s is a known notification status.
func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationPending, NotificationSent, NotificationDelivered, NotificationFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the ledger allows moving from s to next.
// pending goes to sent or failed, sent goes to delivered. Nothing else moves.
func (s NotificationStatus) CanTransitionTo(next NotificationStatus) bool {
	switch s {
	case NotificationPending:
		return next == NotificationSent || next == NotificationFailed
	case NotificationSent:
		return next == NotificationDelivered
	}
	return false
}

// RecipientRole says which party of an appointment a notification went to.
type RecipientRole string

const (
	RecipientPatient RecipientRole = "patient"
	RecipientDoctor  RecipientRole = "doctor"
)

// ReminderMetadata describes a reminder notification.
type ReminderMetadata struct {
	Offset           string        `json:"offset"`
	AppointmentStart time.Time     `json:"appointmentStart"`
	Recipient        RecipientRole `json:"recipient"`
}

// LifecycleMetadata describes a confirmation, cancellation or reschedule notification.
type LifecycleMetadata struct {
	Status        AppointmentStatus `json:"status"`
	PreviousStart *time.Time        `json:"previousStart,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	ActorID       string            `json:"actorId,omitempty"`
}

// NotificationMetadata is a tagged union: exactly one member is set, matching
// the notification type.
type NotificationMetadata struct {
	Reminder  *ReminderMetadata  `json:"reminder,omitempty"`
	Lifecycle *LifecycleMetadata `json:"lifecycle,omitempty"`
}

// Matches reports whether the populated member fits t.
func (m NotificationMetadata) Matches(t NotificationType) bool {
	switch t {
	case NotificationReminder:
		return m.Reminder != nil && m.Lifecycle == nil
	case NotificationConfirmation, NotificationCancellation, NotificationReschedule:
		return m.Lifecycle != nil && m.Reminder == nil
	case NotificationSystem:
		return m.Reminder == nil && m.Lifecycle == nil
	}
	return false
}

// DefaultMaxRetries is the retry ceiling recorded on new notifications.
const DefaultMaxRetries = 3

// Notification is one delivery attempt of a message to a recipient over a channel.
type Notification struct {
	BaseModel
	RecipientID   string               `gorm:"size:36;index" json:"recipientId"`
	AppointmentID *string              `gorm:"size:36;index" json:"appointmentId,omitempty"`
	Type          NotificationType     `gorm:"size:40;index" json:"type"`
	Channel       Channel              `gorm:"size:20" json:"channel"`
	Subject       string               `gorm:"size:255" json:"subject,omitempty"`
	Message       string               `gorm:"type:text" json:"message"`
	Status        NotificationStatus   `gorm:"size:20;default:'pending';index" json:"status"`
	SentAt        *time.Time           `json:"sentAt,omitempty"`
	DeliveredAt   *time.Time           `json:"deliveredAt,omitempty"`
	ErrorMessage  string               `gorm:"type:text" json:"errorMessage,omitempty"`
	RetryCount    int                  `gorm:"not null;default:0" json:"retryCount"`
	MaxRetries    int                  `gorm:"not null" json:"maxRetries"`
	Metadata      NotificationMetadata `gorm:"serializer:json;type:text" json:"metadata"`
}
