package notify

import (
	"fmt"
	"strings"
	"time"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
)

// ReminderSubject is the email subject of every reminder.
const ReminderSubject = "Medical Appointment Reminder"

// parties are the records a message is assembled from.
type parties struct {
	patient *models.User
	doctor  *models.User
	clinic  *models.Clinic
}

// validate lists every empty field a message would print. Only the doctor's
// reminder prints the patient's phone.
func (p parties) validate(needPhone bool) error {
	var missing []string
	if strings.TrimSpace(p.patient.Name) == "" {
		missing = append(missing, "patient.name")
	}
	if needPhone && strings.TrimSpace(p.patient.Phone) == "" {
		missing = append(missing, "patient.phone")
	}
	if strings.TrimSpace(p.doctor.Name) == "" {
		missing = append(missing, "doctor.name")
	}
	if strings.TrimSpace(p.clinic.Name) == "" {
		missing = append(missing, "clinic.name")
	}
	if len(missing) > 0 {
		return apperr.MissingData(missing...)
	}
	return nil
}

func formatWhen(t time.Time, loc *time.Location) (date, clock string) {
	local := t.In(loc)
	return local.Format("Monday, January 2, 2006"), local.Format("15:04 MST")
}

func patientReminder(a *models.Appointment, p parties) string {
	date, clock := formatWhen(a.StartTime, p.clinic.Location())
	lines := []string{
		fmt.Sprintf("Reminder: You have an appointment scheduled for %s at %s", date, clock),
		"Doctor: " + p.doctor.DisplayName(),
		"Clinic: " + p.clinic.Name,
		"Type: " + string(a.Type),
	}
	if a.Notes != "" {
		lines = append(lines, "Notes: "+a.Notes)
	}
	lines = append(lines, "", "Please arrive 15 minutes early. If you need to reschedule, please contact us as soon as possible.")
	return strings.Join(lines, "\n")
}

func doctorReminder(a *models.Appointment, p parties) string {
	date, clock := formatWhen(a.StartTime, p.clinic.Location())
	lines := []string{
		fmt.Sprintf("Reminder: You have an appointment scheduled for %s at %s", date, clock),
		"Patient: " + p.patient.Name,
		"Phone: " + p.patient.Phone,
		"Type: " + string(a.Type),
	}
	if a.Symptoms != "" {
		lines = append(lines, "Symptoms: "+a.Symptoms)
	}
	if a.Notes != "" {
		lines = append(lines, "Notes: "+a.Notes)
	}
	return strings.Join(lines, "\n")
}

func lifecycleSubject(t models.NotificationType) string {
	switch t {
	case models.NotificationConfirmation:
		return "Appointment Confirmed"
	case models.NotificationCancellation:
		return "Appointment Cancelled"
	case models.NotificationReschedule:
		return "Appointment Rescheduled"
	}
	return "Appointment Update"
}

// lifecycleMessages returns the patient and doctor text for a booking change.
func lifecycleMessages(t models.NotificationType, a *models.Appointment, p parties, meta models.LifecycleMetadata) (patient, doctor string) {
	loc := p.clinic.Location()
	date, clock := formatWhen(a.StartTime, loc)
	when := date + " at " + clock

	switch t {
	case models.NotificationConfirmation:
		patient = fmt.Sprintf("Your %s with %s at %s is booked for %s.", a.Type, p.doctor.DisplayName(), p.clinic.Name, when)
		doctor = fmt.Sprintf("New %s with %s booked for %s.", a.Type, p.patient.Name, when)
	case models.NotificationCancellation:
		patient = fmt.Sprintf("Your appointment with %s on %s has been cancelled.", p.doctor.DisplayName(), when)
		doctor = fmt.Sprintf("Your appointment with %s on %s has been cancelled.", p.patient.Name, when)
		if meta.Reason != "" {
			patient += " Reason: " + meta.Reason
			doctor += " Reason: " + meta.Reason
		}
	case models.NotificationReschedule:
		previous := "an earlier time"
		if meta.PreviousStart != nil {
			d, c := formatWhen(*meta.PreviousStart, loc)
			previous = d + " at " + c
		}
		patient = fmt.Sprintf("Your appointment with %s has been moved from %s to %s.", p.doctor.DisplayName(), previous, when)
		doctor = fmt.Sprintf("Your appointment with %s has been moved from %s to %s.", p.patient.Name, previous, when)
		if meta.Reason != "" {
			patient += " Reason: " + meta.Reason
			doctor += " Reason: " + meta.Reason
		}
	default:
		patient = fmt.Sprintf("Your appointment on %s is now %s.", when, a.Status)
		doctor = patient
	}
	return patient, doctor
}
