package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationStatusTransitions(t *testing.T) {
	assert.True(t, NotificationPending.CanTransitionTo(NotificationSent))
	assert.True(t, NotificationPending.CanTransitionTo(NotificationFailed))
	assert.True(t, NotificationSent.CanTransitionTo(NotificationDelivered))

	assert.False(t, NotificationPending.CanTransitionTo(NotificationDelivered))
	assert.False(t, NotificationSent.CanTransitionTo(NotificationFailed))
	assert.False(t, NotificationFailed.CanTransitionTo(NotificationSent))
	assert.False(t, NotificationDelivered.CanTransitionTo(NotificationSent))
}

func TestNotificationTypeValues(t *testing.T) {
	assert.Equal(t, NotificationType("appointment-reminder"), NotificationReminder)
	assert.Equal(t, NotificationType("appointment-confirmation"), NotificationConfirmation)
	assert.Equal(t, NotificationType("appointment-cancellation"), NotificationCancellation)
	assert.Equal(t, NotificationType("appointment-reschedule"), NotificationReschedule)
	assert.Equal(t, NotificationType("system-notification"), NotificationSystem)

	for _, v := range []string{"appointment-reminder", "system-notification"} {
		assert.True(t, NotificationType(v).Valid(), v)
	}
	assert.False(t, NotificationType("appointment_reminder").Valid())
	assert.False(t, NotificationType("general").Valid())
}

func TestMetadataMatches(t *testing.T) {
	reminder := NotificationMetadata{Reminder: &ReminderMetadata{Offset: "2h"}}
	lifecycle := NotificationMetadata{Lifecycle: &LifecycleMetadata{Status: StatusCancelled}}

	assert.True(t, reminder.Matches(NotificationReminder))
	assert.False(t, reminder.Matches(NotificationCancellation))
	assert.True(t, lifecycle.Matches(NotificationReschedule))
	assert.False(t, lifecycle.Matches(NotificationReminder))
	assert.True(t, NotificationMetadata{}.Matches(NotificationSystem))
}

func TestReminderSettingsAllows(t *testing.T) {
	settings := ReminderSettings{
		ChannelEmail:    {Enabled: true, Offsets: []string{"24h", "2h"}},
		ChannelWhatsApp: {Enabled: false},
	}

	assert.True(t, settings.Allows(ChannelEmail, "24h", false))
	assert.False(t, settings.Allows(ChannelEmail, "30m", true))
	assert.False(t, settings.Allows(ChannelWhatsApp, "24h", true))
	assert.True(t, settings.Allows(ChannelSMS, "30m", true))
	assert.False(t, settings.Allows(ChannelSMS, "30m", false))

	var empty ReminderSettings
	assert.True(t, empty.Allows(ChannelSMS, "2h", true))
}

func TestAppointmentMove(t *testing.T) {
	start := time.Date(2030, 1, 10, 9, 0, 0, 0, time.UTC)
	a := &Appointment{Reminders: []AppointmentReminder{{OffsetKey: "24h"}}}
	a.SetSchedule(start, 45)
	assert.Equal(t, start.Add(45*time.Minute), a.EndTime)
	assert.True(t, a.ReminderSent("24h"))

	next := start.Add(48 * time.Hour)
	a.Move(next, "doctor away", "admin-1", start)

	assert.Equal(t, next, a.StartTime)
	assert.Equal(t, next.Add(45*time.Minute), a.End())
	assert.False(t, a.ReminderSent("24h"))
	if assert.Len(t, a.RescheduleHistory, 1) {
		assert.Equal(t, start, a.RescheduleHistory[0].PreviousStart)
		assert.Equal(t, "doctor away", a.RescheduleHistory[0].Reason)
	}
}

func TestUserAddress(t *testing.T) {
	u := &User{BaseModel: BaseModel{ID: "u1"}, Name: "Ada", Email: "ada@example.com", Phone: "+15550001", Role: RoleDoctor}
	assert.Equal(t, "Dr. Ada", u.DisplayName())
	assert.Equal(t, "+15550001", u.Address(ChannelWhatsApp))
	assert.Equal(t, "ada@example.com", u.Address(ChannelEmail))
	assert.Equal(t, "u1", u.Address(ChannelPush))

	prefs := NotificationPreferences{SMS: true}
	assert.True(t, prefs.Allows(ChannelSMS))
	assert.False(t, prefs.Allows(ChannelEmail))
	assert.True(t, prefs.Allows(ChannelPush))
}
