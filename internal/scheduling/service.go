// Package scheduling books, cancels and reschedules appointments. Every write
// for a doctor is serialized and passes the slot conflict check before it
// commits.
package scheduling

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/notify"
)

// Store persists appointments with the conflict check inside the write.
type Store interface {
	CreateWithNoConflict(ctx context.Context, a *models.Appointment) error
	RescheduleWithNoConflict(ctx context.Context, id string, move func(a *models.Appointment) error) (*models.Appointment, error)
	UpdateStatus(ctx context.Context, id string, mutate func(a *models.Appointment) error) (*models.Appointment, error)
	ByID(ctx context.Context, id string) (*models.Appointment, error)
}

// Directory resolves users and clinics.
type Directory interface {
	User(ctx context.Context, id string) (*models.User, error)
	Clinic(ctx context.Context, id string) (*models.Clinic, error)
}

// LifecycleNotifier tells both parties about a booking change.
type LifecycleNotifier interface {
	NotifyLifecycle(ctx context.Context, a *models.Appointment, kind models.NotificationType, meta models.LifecycleMetadata) (notify.Summary, error)
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role models.Role
}

// BookingRequest describes a new appointment.
type BookingRequest struct {
	PatientID string
	DoctorID  string
	ClinicID  string
	Start     time.Time
	Duration  int
	Type      models.AppointmentType
	Notes     string
	Symptoms  string
}

const defaultRescheduleReason = "Rescheduled"

// Service implements the booking operations.
type Service struct {
	store    Store
	dir      Directory
	notifier LifecycleNotifier
	doctors  *keyedMutex
	logger   *zap.Logger
	now      func() time.Time
	pending  sync.WaitGroup
}

// NewService builds a Service. notifier may be nil.
func NewService(store Store, dir Directory, notifier LifecycleNotifier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		dir:      dir,
		notifier: notifier,
		doctors:  newKeyedMutex(),
		logger:   logger.Named("scheduling"),
		now:      time.Now,
	}
}

func validID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("invalid %s format", field)
	}
	return nil
}

func (s *Service) validateBooking(req *BookingRequest) error {
	ids := []struct{ field, id string }{
		{"doctor id", req.DoctorID},
		{"patient id", req.PatientID},
		{"clinic id", req.ClinicID},
	}
	for _, f := range ids {
		if err := validID(f.field, f.id); err != nil {
			return err
		}
	}
	if req.Type == "" {
		req.Type = models.TypeConsultation
	}
	if !req.Type.Valid() {
		return apperr.Validation("invalid appointment type %q", req.Type)
	}
	if req.Duration == 0 {
		req.Duration = models.DefaultDurationMinutes
	}
	if req.Duration < 0 || req.Duration > models.MaxDurationMinutes {
		return apperr.Validation("duration must be between 1 and %d minutes", models.MaxDurationMinutes)
	}
	if !req.Start.After(s.now()) {
		return apperr.Validation("appointment date must be in the future")
	}
	return nil
}

func activeUser(ctx context.Context, dir Directory, id string, role models.Role) (*models.User, error) {
	u, err := dir.User(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("%s not found", role)
		}
		return nil, err
	}
	if u.Role != role {
		return nil, apperr.NotFound("%s not found", role)
	}
	if !u.IsActive {
		return nil, apperr.Validation("%s is not active", role)
	}
	return u, nil
}

// Book validates req, checks the doctor's calendar and stores the appointment
// as scheduled.
func (s *Service) Book(ctx context.Context, actor Actor, req BookingRequest) (*models.Appointment, error) {
	if err := s.validateBooking(&req); err != nil {
		return nil, err
	}
	if actor.Role == models.RolePatient && actor.ID != req.PatientID {
		return nil, apperr.Authorization("patients can only book appointments for themselves")
	}

	if _, err := activeUser(ctx, s.dir, req.DoctorID, models.RoleDoctor); err != nil {
		return nil, err
	}
	if _, err := activeUser(ctx, s.dir, req.PatientID, models.RolePatient); err != nil {
		return nil, err
	}
	clinic, err := s.dir.Clinic(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}
	if !clinic.IsActive {
		return nil, apperr.Validation("clinic is not active")
	}

	a := &models.Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		ClinicID:  req.ClinicID,
		Status:    models.StatusScheduled,
		Type:      req.Type,
		Notes:     strings.TrimSpace(req.Notes),
		Symptoms:  strings.TrimSpace(req.Symptoms),
	}
	a.SetSchedule(req.Start, req.Duration)

	unlock := s.doctors.Lock(req.DoctorID)
	err = s.store.CreateWithNoConflict(ctx, a)
	unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", a.ID),
		zap.String("doctor_id", a.DoctorID),
		zap.Time("start", a.StartTime),
	)
	s.notify(a, models.NotificationConfirmation, models.LifecycleMetadata{Status: a.Status, ActorID: actor.ID})
	return a, nil
}

func canView(actor Actor, a *models.Appointment) bool {
	return actor.Role == models.RoleAdmin || actor.ID == a.PatientID || actor.ID == a.DoctorID
}

// Get returns the appointment when actor is one of its parties or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*models.Appointment, error) {
	if err := validID("appointment id", id); err != nil {
		return nil, err
	}
	a, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, a) {
		return nil, apperr.Authorization("you are not authorized to view this appointment")
	}
	return a, nil
}

// authorizeStatus applies the status change rules to a loaded appointment.
func authorizeStatus(actor Actor, a *models.Appointment, next models.AppointmentStatus) error {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleDoctor:
		if actor.ID != a.DoctorID {
			return apperr.Authorization("you are not authorized to update this appointment")
		}
	case models.RolePatient:
		if actor.ID != a.PatientID {
			return apperr.Authorization("you are not authorized to update this appointment")
		}
		if next != models.StatusCancelled {
			return apperr.Authorization("patients can only cancel appointments")
		}
	default:
		return apperr.Authorization("you are not authorized to update this appointment")
	}

	if !a.Status.IsActive() {
		return apperr.Validation("appointment is %s and can no longer change", a.Status)
	}
	return nil
}

// ChangeStatus moves the appointment to next. Only active appointments move.
func (s *Service) ChangeStatus(ctx context.Context, actor Actor, id string, next models.AppointmentStatus, reason string) (*models.Appointment, error) {
	if err := validID("appointment id", id); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, apperr.Validation("invalid status %q", next)
	}

	var previous models.AppointmentStatus
	a, err := s.store.UpdateStatus(ctx, id, func(a *models.Appointment) error {
		if err := authorizeStatus(actor, a, next); err != nil {
			return err
		}
		previous = a.Status
		a.Status = next
		if next == models.StatusCancelled {
			a.CancelledBy = actor.ID
			a.CancellationReason = strings.TrimSpace(reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment status changed",
		zap.String("appointment_id", a.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(a.Status)),
		zap.String("actor_id", actor.ID),
	)
	if next == models.StatusCancelled {
		s.notify(a, models.NotificationCancellation, models.LifecycleMetadata{
			Status:  a.Status,
			Reason:  a.CancellationReason,
			ActorID: actor.ID,
		})
	}
	return a, nil
}

// Reschedule moves an active appointment to newStart, keeping its duration,
// after re-checking the doctor's calendar without the appointment itself.
func (s *Service) Reschedule(ctx context.Context, actor Actor, id string, newStart time.Time, reason string) (*models.Appointment, error) {
	if err := validID("appointment id", id); err != nil {
		return nil, err
	}
	now := s.now()
	if !newStart.After(now) {
		return nil, apperr.Validation("new appointment date must be in the future")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRescheduleReason
	}

	current, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, current) {
		return nil, apperr.Authorization("you are not authorized to reschedule this appointment")
	}

	var previousStart time.Time
	unlock := s.doctors.Lock(current.DoctorID)
	a, err := s.store.RescheduleWithNoConflict(ctx, id, func(a *models.Appointment) error {
		if !a.Status.IsActive() {
			return apperr.Validation("appointment is %s and cannot be rescheduled", a.Status)
		}
		previousStart = a.StartTime
		a.Move(newStart, reason, actor.ID, now)
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", a.ID),
		zap.Time("from", previousStart),
		zap.Time("to", a.StartTime),
		zap.String("actor_id", actor.ID),
	)
	s.notify(a, models.NotificationReschedule, models.LifecycleMetadata{
		Status:        a.Status,
		PreviousStart: &previousStart,
		Reason:        reason,
		ActorID:       actor.ID,
	})
	return a, nil
}

// notify sends the lifecycle push in the background. A failure is logged and
// never reaches the caller.
func (s *Service) notify(a *models.Appointment, kind models.NotificationType, meta models.LifecycleMetadata) {
	if s.notifier == nil {
		return
	}
	snapshot := *a
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		summary, err := s.notifier.NotifyLifecycle(ctx, &snapshot, kind, meta)
		if err != nil {
			s.logger.Warn("lifecycle notification failed",
				zap.String("appointment_id", snapshot.ID),
				zap.String("type", string(kind)),
				zap.Error(err),
			)
			return
		}
		s.logger.Debug("lifecycle notification sent",
			zap.String("appointment_id", snapshot.ID),
			zap.String("type", string(kind)),
			zap.Int("sent", summary.Sent),
			zap.Int("failed", summary.Failed),
		)
	}()
}

// Wait blocks until background lifecycle notifications finish.
func (s *Service) Wait() {
	s.pending.Wait()
}
