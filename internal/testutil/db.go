// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"medicare-scheduler/internal/models"
)

// NewDB returns a migrated in-memory sqlite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps sqlite from reporting locked tables
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// Fixture is a clinic with one doctor and one patient.
type Fixture struct {
	Clinic  *models.Clinic
	Doctor  *models.User
	Patient *models.User
	Admin   *models.User
}

// Seed inserts a complete, active fixture.
func Seed(t *testing.T, db *gorm.DB) Fixture {
	t.Helper()

	clinic := &models.Clinic{Name: "Northside Clinic", Phone: "+15550100", IsActive: true}
	require.NoError(t, db.Create(clinic).Error)

	doctor := &models.User{
		Name:           "Grey",
		Email:          "grey@example.com",
		Phone:          "+15550101",
		Role:           models.RoleDoctor,
		ClinicID:       clinic.ID,
		Specialization: "Cardiology",
		IsActive:       true,
		Preferences:    models.DefaultNotificationPreferences(),
	}
	patient := &models.User{
		Name:        "Alex Morgan",
		Email:       "alex@example.com",
		Phone:       "+15550102",
		Role:        models.RolePatient,
		IsActive:    true,
		Preferences: models.DefaultNotificationPreferences(),
	}
	admin := &models.User{Name: "Root", Email: "root@example.com", Role: models.RoleAdmin, IsActive: true}
	for _, u := range []*models.User{doctor, patient, admin} {
		require.NoError(t, db.Create(u).Error)
	}

	return Fixture{Clinic: clinic, Doctor: doctor, Patient: patient, Admin: admin}
}

// Appointment inserts an appointment for the fixture starting at start.
func (f Fixture) Appointment(t *testing.T, db *gorm.DB, start time.Time, minutes int, status models.AppointmentStatus) *models.Appointment {
	t.Helper()

	a := &models.Appointment{
		PatientID: f.Patient.ID,
		DoctorID:  f.Doctor.ID,
		ClinicID:  f.Clinic.ID,
		Status:    status,
		Type:      models.TypeConsultation,
		Notes:     "bring previous results",
	}
	a.SetSchedule(start, minutes)
	require.NoError(t, db.Create(a).Error)
	return a
}

// Hour returns a whole-second UTC time h hours after a fixed reference.
func Hour(h int) time.Time {
	return time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
}
