package models

import (
	"time"
)

// ChannelReminderSetting controls one channel's reminders for a clinic.
type ChannelReminderSetting struct {
	Enabled bool `json:"enabled"`
	// Offsets restricts the channel to these offset keys. Empty means all.
	Offsets []string `json:"offsets,omitempty"`
}

// ReminderSettings maps a channel to its clinic-level setting.
type ReminderSettings map[Channel]ChannelReminderSetting

// Allows reports whether the clinic sends offsetKey reminders over ch.
// Channels without an entry fall back to fallback.
func (s ReminderSettings) Allows(ch Channel, offsetKey string, fallback bool) bool {
	setting, ok := s[ch]
	if !ok {
		return fallback
	}
	if !setting.Enabled {
		return false
	}
	if len(setting.Offsets) == 0 {
		return true
	}
	for _, o := range setting.Offsets {
		if o == offsetKey {
			return true
		}
	}
	return false
}

// DefaultReminderSettings applies to channels a clinic has not configured:
// every channel on, email skipping the last-minute reminder.
func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		ChannelSMS:      {Enabled: true},
		ChannelWhatsApp: {Enabled: true},
		ChannelEmail:    {Enabled: true, Offsets: []string{"24h", "2h"}},
	}
}

// Clinic is where an appointment takes place.
type Clinic struct {
	BaseModel
	Name             string           `gorm:"size:200" json:"name"`
	Phone            string           `gorm:"size:32" json:"phone,omitempty"`
	Email            string           `gorm:"size:255" json:"email,omitempty"`
	TimeZone         string           `gorm:"size:64" json:"timeZone,omitempty"`
	IsActive         bool             `json:"isActive"`
	ReminderSettings ReminderSettings `gorm:"serializer:json;type:text" json:"reminderSettings,omitempty"`
}

// Location returns the clinic's time zone, UTC when unset or unknown.
func (c *Clinic) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
