package models

// Role enum
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDoctor || r == RolePatient
}

// NotificationPreferences holds the per-channel opt-ins of a user.
type NotificationPreferences struct {
	SMS      bool `json:"sms"`
	WhatsApp bool `gorm:"column:whatsapp" json:"whatsapp"`
	Email    bool `json:"email"`
}

// DefaultNotificationPreferences opts a user into every channel.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{SMS: true, WhatsApp: true, Email: true}
}

// Allows reports whether the user opted into ch. Push is always allowed.
func (p NotificationPreferences) Allows(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return p.SMS
	case ChannelWhatsApp:
		return p.WhatsApp
	case ChannelEmail:
		return p.Email
	case ChannelPush:
		return true
	}
	return false
}

// User is a patient, doctor or administrator. Accounts are provisioned
// elsewhere; this service only reads them.
type User struct {
	BaseModel
	Name           string                  `gorm:"size:200" json:"name"`
	Email          string                  `gorm:"size:255;index" json:"email"`
	Phone          string                  `gorm:"size:32" json:"phone,omitempty"`
	Role           Role                    `gorm:"size:20;index" json:"role"`
	ClinicID       string                  `gorm:"size:36;index" json:"clinicId,omitempty"`
	Specialization string                  `gorm:"size:100" json:"specialization,omitempty"`
	IsActive       bool                    `json:"isActive"`
	Preferences    NotificationPreferences `gorm:"embedded;embeddedPrefix:notify_" json:"notificationPreferences"`
}

// DisplayName returns the name used in messages, prefixed for doctors.
func (u *User) DisplayName() string {
	if u.Role == RoleDoctor {
		return "Dr. " + u.Name
	}
	return u.Name
}

// Address returns the destination for ch, or "" when the user has none.
func (u *User) Address(ch Channel) string {
	switch ch {
	case ChannelSMS, ChannelWhatsApp:
		return u.Phone
	case ChannelEmail:
		return u.Email
	case ChannelPush:
		return u.ID
	}
	return ""
}
