package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no-show"
)

// ActiveStatuses are the statuses that occupy a doctor's calendar and receive reminders.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// IsActive reports whether s is scheduled or confirmed.
func (s AppointmentStatus) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// AppointmentType represents the kind of visit
type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeFollowUp     AppointmentType = "follow-up"
	TypeEmergency    AppointmentType = "emergency"
	TypeRoutine      AppointmentType = "routine"
)

// Valid reports whether t is a known appointment type.
func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutine:
		return true
	}
	return false
}

const (
	// DefaultDurationMinutes is used when a booking omits the duration.
	DefaultDurationMinutes = 30
	// MaxDurationMinutes bounds a single appointment.
	MaxDurationMinutes = 480
)

// RescheduleEntry records one move of an appointment.
type RescheduleEntry struct {
	PreviousStart time.Time `json:"previousDateTime"`
	NewStart      time.Time `json:"newDateTime"`
	Reason        string    `json:"reason,omitempty"`
	RescheduledBy string    `json:"rescheduledBy"`
	RescheduledAt time.Time `json:"rescheduledAt"`
}

// Appointment represents a scheduled medical appointment
type Appointment struct {
	BaseModel
	PatientID          string            `gorm:"size:36;index" json:"patientId"`
	DoctorID           string            `gorm:"size:36;index:idx_appointments_doctor_start,priority:1" json:"doctorId"`
	ClinicID           string            `gorm:"size:36;index" json:"clinicId"`
	StartTime          time.Time         `gorm:"index:idx_appointments_doctor_start,priority:2;index" json:"dateTime"`
	EndTime            time.Time         `json:"endTime"`
	Duration           int               `gorm:"not null" json:"duration"`
	Status             AppointmentStatus `gorm:"size:20;default:'scheduled';index" json:"status"`
	Type               AppointmentType   `gorm:"size:20;default:'consultation'" json:"type"`
	Notes              string            `gorm:"type:text" json:"notes,omitempty"`
	Symptoms           string            `gorm:"type:text" json:"symptoms,omitempty"`
	CancelledBy        string            `gorm:"size:36" json:"cancelledBy,omitempty"`
	CancellationReason string            `gorm:"size:255" json:"cancellationReason,omitempty"`
	RescheduleHistory  []RescheduleEntry `gorm:"serializer:json;type:text" json:"rescheduleHistory,omitempty"`

	// Relations
	Reminders []AppointmentReminder `gorm:"foreignKey:AppointmentID" json:"reminders,omitempty"`
}

// SetSchedule places the appointment at start for duration minutes.
func (a *Appointment) SetSchedule(start time.Time, duration int) {
	a.StartTime = start.UTC()
	a.Duration = duration
	a.EndTime = a.StartTime.Add(time.Duration(duration) * time.Minute)
}

// End returns the exclusive end of the appointment.
func (a *Appointment) End() time.Time {
	return a.StartTime.Add(time.Duration(a.Duration) * time.Minute)
}

// Move reschedules the appointment to newStart and appends a history entry.
func (a *Appointment) Move(newStart time.Time, reason, actorID string, at time.Time) {
	a.RescheduleHistory = append(a.RescheduleHistory, RescheduleEntry{
		PreviousStart: a.StartTime,
		NewStart:      newStart.UTC(),
		Reason:        reason,
		RescheduledBy: actorID,
		RescheduledAt: at.UTC(),
	})
	a.SetSchedule(newStart, a.Duration)
	a.Reminders = nil
}

// ReminderSent reports whether the reminder for offsetKey was already claimed.
func (a *Appointment) ReminderSent(offsetKey string) bool {
	for _, r := range a.Reminders {
		if r.OffsetKey == offsetKey {
			return true
		}
	}
	return false
}

// AppointmentReminder marks a reminder offset as claimed for an appointment.
// The composite primary key makes the claim a conditional insert.
type AppointmentReminder struct {
	AppointmentID string    `gorm:"primaryKey;size:36" json:"-"`
	OffsetKey     string    `gorm:"primaryKey;size:16" json:"offset"`
	ClaimedAt     time.Time `json:"claimedAt"`
}
