package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/slot"
)

// AppointmentRepo persists appointments and their reminder claims.
type AppointmentRepo struct{ db *gorm.DB }

func NewAppointmentRepo(db *gorm.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

// lockDoctor takes a row lock on the doctor so bookings for the same doctor
// serialize across processes. Dialects without row locks ignore the clause.
func lockDoctor(tx *gorm.DB, doctorID string) error {
	var doctor models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", doctorID).
		Take(&doctor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("doctor %s not found", doctorID)
	}
	if err != nil {
		return apperr.Store(err, "lock doctor")
	}
	return nil
}

// overlapping loads and locks the doctor's active appointments intersecting [start, end).
func overlapping(tx *gorm.DB, doctorID string, start, end time.Time) ([]models.Appointment, error) {
	var out []models.Appointment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("doctor_id = ? AND status IN ?", doctorID, models.ActiveStatuses).
		Where("start_time < ? AND end_time > ?", end, start). // overlap condition
		Find(&out).Error
	if err != nil {
		return nil, apperr.Store(err, "load doctor appointments")
	}
	return out, nil
}

func checkSlot(tx *gorm.DB, a *models.Appointment) error {
	existing, err := overlapping(tx, a.DoctorID, a.StartTime, a.End())
	if err != nil {
		return err
	}
	return slot.Check(existing, slot.Request{
		DoctorID:  a.DoctorID,
		Start:     a.StartTime,
		Duration:  time.Duration(a.Duration) * time.Minute,
		ExcludeID: a.ID,
	})
}

// CreateWithNoConflict inserts a in a transaction after verifying the doctor
// has no overlapping active appointment.
func (r *AppointmentRepo) CreateWithNoConflict(ctx context.Context, a *models.Appointment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDoctor(tx, a.DoctorID); err != nil {
			return err
		}
		if err := checkSlot(tx, a); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(a).Error; err != nil {
			return apperr.Store(err, "create appointment")
		}
		return nil
	})
}

func loadForUpdate(tx *gorm.DB, id string) (*models.Appointment, error) {
	var a models.Appointment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "load appointment")
	}
	return &a, nil
}

// RescheduleWithNoConflict loads the appointment, lets move change its time,
// re-checks the doctor's calendar excluding the appointment itself, saves it
// and clears its reminder claims so reminders fire again for the new time.
func (r *AppointmentRepo) RescheduleWithNoConflict(ctx context.Context, id string, move func(a *models.Appointment) error) (*models.Appointment, error) {
	var out *models.Appointment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Appointment
		if err := tx.Select("id", "doctor_id").First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("appointment %s not found", id)
			}
			return apperr.Store(err, "load appointment")
		}
		// doctor first, same order as CreateWithNoConflict
		if err := lockDoctor(tx, current.DoctorID); err != nil {
			return err
		}
		a, err := loadForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := move(a); err != nil {
			return err
		}
		if err := checkSlot(tx, a); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(a).Error; err != nil {
			return apperr.Store(err, "save appointment")
		}
		if err := tx.Where("appointment_id = ?", a.ID).Delete(&models.AppointmentReminder{}).Error; err != nil {
			return apperr.Store(err, "reset reminders")
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus loads the appointment, applies mutate and saves the result.
func (r *AppointmentRepo) UpdateStatus(ctx context.Context, id string, mutate func(a *models.Appointment) error) (*models.Appointment, error) {
	var out *models.Appointment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := mutate(a); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(a).Error; err != nil {
			return apperr.Store(err, "save appointment")
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ByID returns the appointment with its reminder claims.
func (r *AppointmentRepo) ByID(ctx context.Context, id string) (*models.Appointment, error) {
	var a models.Appointment
	err := r.db.WithContext(ctx).Preload("Reminders").First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "load appointment")
	}
	return &a, nil
}

// FindDue returns active appointments starting within [from, to] whose
// offsetKey reminder has not been claimed.
func (r *AppointmentRepo) FindDue(ctx context.Context, offsetKey string, from, to time.Time) ([]models.Appointment, error) {
	claimed := r.db.Model(&models.AppointmentReminder{}).
		Select("1").
		Where("appointment_reminders.appointment_id = appointments.id AND appointment_reminders.offset_key = ?", offsetKey)

	var out []models.Appointment
	err := r.db.WithContext(ctx).
		Where("status IN ?", models.ActiveStatuses).
		Where("start_time >= ? AND start_time <= ?", from.UTC(), to.UTC()).
		Where("NOT EXISTS (?)", claimed).
		Order("start_time ASC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Store(err, "find due appointments")
	}
	return out, nil
}

// ClaimReminder records the offsetKey reminder for the appointment. It reports
// true only for the single caller whose insert wins.
func (r *AppointmentRepo) ClaimReminder(ctx context.Context, appointmentID, offsetKey string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.AppointmentReminder{
			AppointmentID: appointmentID,
			OffsetKey:     offsetKey,
			ClaimedAt:     at.UTC(),
		})
	if res.Error != nil {
		return false, apperr.Store(res.Error, "claim reminder")
	}
	return res.RowsAffected == 1, nil
}
