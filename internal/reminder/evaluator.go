// Package reminder finds appointments entering a reminder window, claims them
// and hands them to the dispatcher on a fixed cadence.
package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/notify"
)

// DueStore finds unclaimed active appointments starting in a range.
type DueStore interface {
	FindDue(ctx context.Context, offsetKey string, from, to time.Time) ([]models.Appointment, error)
}

// Dispatcher sends a claimed reminder.
type Dispatcher interface {
	DispatchReminder(ctx context.Context, due notify.Due) (notify.Summary, error)
}

// Window returns the tolerance window [now+lead-P/2, now+lead+P/2] for one tick.
func Window(now time.Time, lead, interval time.Duration) (from, to time.Time) {
	target := now.Add(lead)
	half := interval / 2
	return target.Add(-half), target.Add(half)
}

// Stats counts what one evaluation did.
type Stats struct {
	Due        int
	Claimed    int
	Skipped    int
	Dispatched int
	Aborted    int
	Errors     int
	Sent       int
	Failed     int
}

// Evaluator runs one reminder cycle across all configured offsets.
type Evaluator struct {
	store      DueStore
	gate       *Gate
	dispatcher Dispatcher
	offsets    []models.Offset
	interval   time.Duration
	workers    int
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewEvaluator(store DueStore, gate *Gate, dispatcher Dispatcher, offsets []models.Offset, interval time.Duration, workers int, logger *zap.Logger) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{
		store:      store,
		gate:       gate,
		dispatcher: dispatcher,
		offsets:    offsets,
		interval:   interval,
		workers:    workers,
		logger:     logger.Named("reminder"),
		tracer:     otel.Tracer("medicare-scheduler/reminder"),
	}
}

// Run evaluates every offset against now. Claims are taken one by one before
// any send; dispatches run concurrently on a bounded pool. A failure on one
// appointment never stops the others. The returned error joins store failures
// of whole offsets.
func (e *Evaluator) Run(ctx context.Context, now time.Time) (Stats, error) {
	ctx, span := e.tracer.Start(ctx, "reminder.evaluate", trace.WithAttributes(
		attribute.String("evaluate.now", now.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	var (
		mu    sync.Mutex
		stats Stats
		errs  []error
	)
	p := pool.New().WithMaxGoroutines(e.workers)

	for _, offset := range e.offsets {
		from, to := Window(now, offset.Lead, e.interval)
		due, err := e.store.FindDue(ctx, offset.Key, from, to)
		if err != nil {
			e.logger.Error("failed to find due appointments", zap.String("offset", offset.Key), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		for _, a := range due {
			stats.Due++
			log := e.logger.With(zap.String("appointment_id", a.ID), zap.String("offset", offset.Key))

			granted, err := e.gate.Claim(ctx, a.ID, offset, now)
			if err != nil {
				// fail closed, the appointment stays eligible next cycle
				log.Error("failed to claim reminder", zap.Error(err))
				stats.Errors++
				continue
			}
			if !granted {
				stats.Skipped++
				continue
			}
			stats.Claimed++

			d := notify.Due{AppointmentID: a.ID, Offset: offset, ScheduledStart: a.StartTime}
			p.Go(func() {
				summary, err := e.dispatcher.DispatchReminder(ctx, d)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, notify.ErrAppointmentInactive), errors.Is(err, notify.ErrAppointmentMoved):
					log.Info("reminder aborted", zap.Error(err))
					stats.Aborted++
				case err != nil:
					log.Error("reminder dispatch failed", zap.Error(err))
					stats.Errors++
				default:
					stats.Dispatched++
				}
				stats.Sent += summary.Sent
				stats.Failed += summary.Failed
			})
		}
	}
	p.Wait()

	span.SetAttributes(
		attribute.Int("reminders.claimed", stats.Claimed),
		attribute.Int("notifications.sent", stats.Sent),
	)
	e.logger.Info("reminder evaluation finished",
		zap.Int("due", stats.Due),
		zap.Int("claimed", stats.Claimed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("aborted", stats.Aborted),
		zap.Int("errors", stats.Errors),
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed),
	)
	return stats, errors.Join(errs...)
}
