package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/repository"
	"medicare-scheduler/internal/testutil"
)

func newAppointment(f testutil.Fixture, start time.Time, minutes int) *models.Appointment {
	a := &models.Appointment{
		PatientID: f.Patient.ID,
		DoctorID:  f.Doctor.ID,
		ClinicID:  f.Clinic.ID,
		Status:    models.StatusScheduled,
		Type:      models.TypeConsultation,
	}
	a.SetSchedule(start, minutes)
	return a
}

func TestCreateWithNoConflict(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)
	ctx := context.Background()

	first := newAppointment(f, testutil.Hour(1), 30)
	require.NoError(t, repo.CreateWithNoConflict(ctx, first))
	assert.NotEmpty(t, first.ID)

	overlap := newAppointment(f, testutil.Hour(1).Add(15*time.Minute), 30)
	err := repo.CreateWithNoConflict(ctx, overlap)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	touching := newAppointment(f, testutil.Hour(1).Add(30*time.Minute), 30)
	assert.NoError(t, repo.CreateWithNoConflict(ctx, touching))
}

func TestCreateIgnoresInactiveAppointments(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)

	f.Appointment(t, db, testutil.Hour(2), 60, models.StatusCancelled)
	f.Appointment(t, db, testutil.Hour(3), 60, models.StatusCompleted)

	assert.NoError(t, repo.CreateWithNoConflict(context.Background(), newAppointment(f, testutil.Hour(2), 120)))
}

func TestCreateUnknownDoctor(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)

	a := newAppointment(f, testutil.Hour(1), 30)
	a.DoctorID = "00000000-0000-0000-0000-000000000000"
	assert.ErrorIs(t, repo.CreateWithNoConflict(context.Background(), a), apperr.ErrNotFound)
}

func TestConcurrentBookingsSameSlot(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CreateWithNoConflict(context.Background(), newAppointment(f, testutil.Hour(4), 30))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRescheduleWithNoConflict(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)
	ctx := context.Background()

	a := f.Appointment(t, db, testutil.Hour(1), 30, models.StatusScheduled)
	other := f.Appointment(t, db, testutil.Hour(5), 30, models.StatusConfirmed)

	claimed, err := repo.ClaimReminder(ctx, a.ID, "24h", testutil.Hour(0))
	require.NoError(t, err)
	require.True(t, claimed)

	// moving onto another appointment conflicts
	_, err = repo.RescheduleWithNoConflict(ctx, a.ID, func(a *models.Appointment) error {
		a.Move(other.StartTime, "", f.Admin.ID, testutil.Hour(0))
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// overlapping its own old slot is fine
	moved, err := repo.RescheduleWithNoConflict(ctx, a.ID, func(a *models.Appointment) error {
		a.Move(testutil.Hour(1).Add(15*time.Minute), "running late", f.Admin.ID, testutil.Hour(0))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, testutil.Hour(1).Add(15*time.Minute), moved.StartTime)

	stored, err := repo.ByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, testutil.Hour(1).Add(15*time.Minute), stored.StartTime.UTC())
	assert.Equal(t, testutil.Hour(1).Add(45*time.Minute), stored.EndTime.UTC())
	assert.Empty(t, stored.Reminders, "reschedule clears reminder claims")
	require.Len(t, stored.RescheduleHistory, 1)
	assert.Equal(t, "running late", stored.RescheduleHistory[0].Reason)
}

func TestRescheduleMoveErrorRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)
	ctx := context.Background()

	a := f.Appointment(t, db, testutil.Hour(1), 30, models.StatusScheduled)
	_, err := repo.RescheduleWithNoConflict(ctx, a.ID, func(*models.Appointment) error {
		return apperr.Validation("nope")
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = repo.RescheduleWithNoConflict(ctx, "missing", func(*models.Appointment) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)
	ctx := context.Background()

	a := f.Appointment(t, db, testutil.Hour(1), 30, models.StatusScheduled)
	updated, err := repo.UpdateStatus(ctx, a.ID, func(a *models.Appointment) error {
		a.Status = models.StatusCancelled
		a.CancelledBy = f.Patient.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)

	stored, err := repo.ByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, f.Patient.ID, stored.CancelledBy)
}

func TestFindDueAndClaim(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)
	ctx := context.Background()

	due := f.Appointment(t, db, testutil.Hour(24), 30, models.StatusScheduled)
	f.Appointment(t, db, testutil.Hour(24).Add(5*time.Minute), 30, models.StatusCancelled)
	f.Appointment(t, db, testutil.Hour(30), 30, models.StatusConfirmed)

	from := testutil.Hour(24).Add(-7*time.Minute - 30*time.Second)
	to := testutil.Hour(24).Add(7*time.Minute + 30*time.Second)

	found, err := repo.FindDue(ctx, "24h", from, to)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)

	ok, err := repo.ClaimReminder(ctx, due.ID, "24h", testutil.Hour(0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimReminder(ctx, due.ID, "24h", testutil.Hour(0))
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	found, err = repo.FindDue(ctx, "24h", from, to)
	require.NoError(t, err)
	assert.Empty(t, found)

	// other offsets are independent
	found, err = repo.FindDue(ctx, "2h", from, to)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestConcurrentClaimsGrantOnce(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewAppointmentRepo(db)
	a := f.Appointment(t, db, testutil.Hour(2), 30, models.StatusScheduled)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ClaimReminder(context.Background(), a.ID, "2h", testutil.Hour(0))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, granted)
}
