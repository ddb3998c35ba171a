// Package slot decides whether a requested appointment window collides with a
// doctor's existing appointments.
package slot

import (
	"time"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
)

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window starting at start and lasting duration.
func NewWindow(start time.Time, duration time.Duration) Window {
	return Window{Start: start, End: start.Add(duration)}
}

// Overlaps reports whether w and o share any instant. Touching endpoints do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Request describes the window being booked or moved to.
type Request struct {
	DoctorID string
	Start    time.Time
	Duration time.Duration
	// ExcludeID skips the appointment being rescheduled.
	ExcludeID string
}

// Window returns the requested interval.
func (r Request) Window() Window {
	return NewWindow(r.Start, r.Duration)
}

// FindConflict returns the first active appointment of the same doctor that
// overlaps the request, or nil.
func FindConflict(existing []models.Appointment, req Request) *models.Appointment {
	want := req.Window()
	for i := range existing {
		a := &existing[i]
		if a.DoctorID != req.DoctorID || a.ID == req.ExcludeID || !a.Status.IsActive() {
			continue
		}
		if want.Overlaps(Window{Start: a.StartTime, End: a.End()}) {
			return a
		}
	}
	return nil
}

// Check returns a conflict error when FindConflict finds a collision.
func Check(existing []models.Appointment, req Request) error {
	if c := FindConflict(existing, req); c != nil {
		return apperr.Conflict("doctor already has an appointment from %s to %s",
			c.StartTime.UTC().Format(time.RFC3339), c.End().UTC().Format(time.RFC3339))
	}
	return nil
}
