// Package notify turns due reminders and booking changes into per-recipient,
// per-channel deliveries, recording every attempt in the notification ledger.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/transport"
)

var (
	// ErrAppointmentInactive aborts a reminder whose appointment left scheduled/confirmed.
	ErrAppointmentInactive = errors.New("appointment is no longer active")
	// ErrAppointmentMoved aborts a reminder whose appointment was rescheduled after the scan.
	ErrAppointmentMoved = errors.New("appointment was rescheduled")
)

// AppointmentReader loads the current state of an appointment.
type AppointmentReader interface {
	ByID(ctx context.Context, id string) (*models.Appointment, error)
}

// Directory resolves user and clinic references.
type Directory interface {
	User(ctx context.Context, id string) (*models.User, error)
	Clinic(ctx context.Context, id string) (*models.Clinic, error)
}

// Ledger records delivery attempts.
type Ledger interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id, reason string, final bool) error
}

// ChannelDefaults says whether a channel is on for clinics that did not configure it.
type ChannelDefaults interface {
	Enabled(ch models.Channel) bool
}

type allChannels struct{}

func (allChannels) Enabled(models.Channel) bool { return true }

// Options tunes a Dispatcher.
type Options struct {
	Workers  int
	Timeout  time.Duration
	Retry    RetryPolicy
	Channels ChannelDefaults
	Now      func() time.Time
}

// Due is a claimed (appointment, offset) pair ready to send.
type Due struct {
	AppointmentID string
	Offset        models.Offset
	// ScheduledStart is the start time seen by the scan.
	ScheduledStart time.Time
}

// Outcome is the result of one (recipient, channel) delivery.
type Outcome struct {
	NotificationID string
	RecipientID    string
	Channel        models.Channel
	Err            error
}

// Summary aggregates the outcomes of one dispatch.
type Summary struct {
	Outcomes []Outcome
	Sent     int
	Failed   int
}

// delivery is one message to one recipient over one channel.
type delivery struct {
	recipient     *models.User
	channel       models.Channel
	kind          models.NotificationType
	appointmentID string
	subject       string
	body          string
	metadata      models.NotificationMetadata
}

// Dispatcher sends notifications through the channel senders.
type Dispatcher struct {
	appointments AppointmentReader
	directory    Directory
	ledger       Ledger
	senders      map[models.Channel]transport.Sender
	opts         Options
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewDispatcher(
	appointments AppointmentReader,
	directory Directory,
	ledger Ledger,
	senders map[models.Channel]transport.Sender,
	opts Options,
	logger *zap.Logger,
) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Channels == nil {
		opts.Channels = allChannels{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		appointments: appointments,
		directory:    directory,
		ledger:       ledger,
		senders:      senders,
		opts:         opts,
		logger:       logger.Named("dispatch"),
		tracer:       otel.Tracer("medicare-scheduler/notify"),
	}
}

func (d *Dispatcher) loadParties(ctx context.Context, a *models.Appointment) (parties, error) {
	patient, err := d.directory.User(ctx, a.PatientID)
	if err != nil {
		return parties{}, fmt.Errorf("load patient: %w", err)
	}
	doctor, err := d.directory.User(ctx, a.DoctorID)
	if err != nil {
		return parties{}, fmt.Errorf("load doctor: %w", err)
	}
	clinic, err := d.directory.Clinic(ctx, a.ClinicID)
	if err != nil {
		return parties{}, fmt.Errorf("load clinic: %w", err)
	}
	return parties{patient: patient, doctor: doctor, clinic: clinic}, nil
}

// channelAllowed applies the clinic setting for ch, or the deployment default
// when the clinic has none.
func (d *Dispatcher) channelAllowed(clinic *models.Clinic, ch models.Channel, offsetKey string) bool {
	if _, ok := clinic.ReminderSettings[ch]; ok {
		return clinic.ReminderSettings.Allows(ch, offsetKey, false)
	}
	return d.opts.Channels.Enabled(ch) && models.DefaultReminderSettings().Allows(ch, offsetKey, true)
}

// DispatchReminder sends the reminder for due. The appointment is re-read
// first; a cancelled or moved appointment aborts before any record is created.
func (d *Dispatcher) DispatchReminder(ctx context.Context, due Due) (Summary, error) {
	ctx, span := d.tracer.Start(ctx, "reminder.dispatch", trace.WithAttributes(
		attribute.String("appointment.id", due.AppointmentID),
		attribute.String("reminder.offset", due.Offset.Key),
	))
	defer span.End()

	summary, err := d.dispatchReminder(ctx, due)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("notifications.sent", summary.Sent), attribute.Int("notifications.failed", summary.Failed))
	return summary, err
}

func (d *Dispatcher) dispatchReminder(ctx context.Context, due Due) (Summary, error) {
	a, err := d.appointments.ByID(ctx, due.AppointmentID)
	if err != nil {
		return Summary{}, err
	}
	if !a.Status.IsActive() {
		return Summary{}, fmt.Errorf("%w: status %s", ErrAppointmentInactive, a.Status)
	}
	if !due.ScheduledStart.IsZero() && !a.StartTime.Equal(due.ScheduledStart) {
		return Summary{}, ErrAppointmentMoved
	}

	p, err := d.loadParties(ctx, a)
	if err != nil {
		return Summary{}, err
	}
	if err := p.validate(true); err != nil {
		return Summary{}, err
	}

	patientBody := patientReminder(a, p)
	meta := func(role models.RecipientRole) models.NotificationMetadata {
		return models.NotificationMetadata{Reminder: &models.ReminderMetadata{
			Offset:           due.Offset.Key,
			AppointmentStart: a.StartTime,
			Recipient:        role,
		}}
	}

	var deliveries []delivery
	for _, ch := range models.ReminderChannels {
		if !p.patient.Preferences.Allows(ch) || !d.channelAllowed(p.clinic, ch, due.Offset.Key) {
			continue
		}
		deliveries = append(deliveries, delivery{
			recipient:     p.patient,
			channel:       ch,
			kind:          models.NotificationReminder,
			appointmentID: a.ID,
			subject:       ReminderSubject,
			body:          patientBody,
			metadata:      meta(models.RecipientPatient),
		})
	}
	// the doctor always gets push, no preference applies
	deliveries = append(deliveries, delivery{
		recipient:     p.doctor,
		channel:       models.ChannelPush,
		kind:          models.NotificationReminder,
		appointmentID: a.ID,
		subject:       ReminderSubject,
		body:          doctorReminder(a, p),
		metadata:      meta(models.RecipientDoctor),
	})

	summary := d.deliver(ctx, deliveries)
	d.logger.Info("reminder dispatched",
		zap.String("appointment_id", a.ID),
		zap.String("offset", due.Offset.Key),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// NotifyLifecycle pushes a booking change to the patient and the doctor.
func (d *Dispatcher) NotifyLifecycle(ctx context.Context, a *models.Appointment, kind models.NotificationType, meta models.LifecycleMetadata) (Summary, error) {
	p, err := d.loadParties(ctx, a)
	if err != nil {
		return Summary{}, err
	}
	if err := p.validate(false); err != nil {
		return Summary{}, err
	}

	patientBody, doctorBody := lifecycleMessages(kind, a, p, meta)
	subject := lifecycleSubject(kind)
	metadata := models.NotificationMetadata{Lifecycle: &meta}

	return d.deliver(ctx, []delivery{
		{recipient: p.patient, channel: models.ChannelPush, kind: kind, appointmentID: a.ID, subject: subject, body: patientBody, metadata: metadata},
		{recipient: p.doctor, channel: models.ChannelPush, kind: kind, appointmentID: a.ID, subject: subject, body: doctorBody, metadata: metadata},
	}), nil
}

// deliver fans deliveries out over a bounded pool. Each one is isolated: a
// failure or a hang on one never holds up the others beyond the timeout.
func (d *Dispatcher) deliver(ctx context.Context, deliveries []delivery) Summary {
	p := pool.NewWithResults[Outcome]().WithMaxGoroutines(d.opts.Workers)
	for _, dl := range deliveries {
		dl := dl
		p.Go(func() Outcome {
			return d.send(ctx, dl)
		})
	}

	var summary Summary
	for _, o := range p.Wait() {
		summary.Outcomes = append(summary.Outcomes, o)
		if o.Err != nil {
			summary.Failed++
		} else {
			summary.Sent++
		}
	}
	return summary
}

func (d *Dispatcher) send(ctx context.Context, dl delivery) Outcome {
	out := Outcome{RecipientID: dl.recipient.ID, Channel: dl.channel}
	log := d.logger.With(
		zap.String("appointment_id", dl.appointmentID),
		zap.String("recipient_id", dl.recipient.ID),
		zap.String("channel", string(dl.channel)),
	)

	n := &models.Notification{
		RecipientID: dl.recipient.ID,
		Type:        dl.kind,
		Channel:     dl.channel,
		Subject:     dl.subject,
		Message:     dl.body,
		MaxRetries:  d.opts.Retry.MaxRetries,
		Metadata:    dl.metadata,
	}
	if dl.appointmentID != "" {
		id := dl.appointmentID
		n.AppointmentID = &id
	}
	if err := d.ledger.Create(ctx, n); err != nil {
		// nothing is sent without a ledger record
		log.Error("failed to record notification", zap.Error(err))
		out.Err = err
		return out
	}
	out.NotificationID = n.ID

	// from here the record exists: an issued call runs to completion or its
	// timeout and its outcome is recorded even if ctx is cancelled
	persist := context.WithoutCancel(ctx)

	sender, ok := d.senders[dl.channel]
	if !ok {
		out.Err = apperr.Transport(fmt.Errorf("no sender configured for channel %s", dl.channel), "%s delivery", dl.channel)
		d.fail(persist, log, n.ID, out.Err, true)
		return out
	}
	address := dl.recipient.Address(dl.channel)
	if address == "" {
		out.Err = apperr.Transport(transport.ErrNoAddress, "%s delivery", dl.channel)
		d.fail(persist, log, n.ID, out.Err, true)
		return out
	}

	msg := transport.Message{NotificationID: n.ID, Subject: dl.subject, Body: dl.body}
	attempts := d.opts.Retry.attempts()
	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(persist, d.opts.Timeout)
		err := sender.Send(sendCtx, address, msg)
		cancel()

		if err == nil {
			if err := d.ledger.MarkSent(persist, n.ID, d.opts.Now()); err != nil {
				log.Error("failed to mark notification sent", zap.String("notification_id", n.ID), zap.Error(err))
			}
			return out
		}

		err = apperr.Transport(err, "%s delivery", dl.channel)
		// a call abandoned at its deadline may still land, a retry could duplicate it
		final := attempt >= attempts || errors.Is(err, transport.ErrOutcomeUnknown)
		d.fail(persist, log, n.ID, err, final)
		if final {
			out.Err = err
			return out
		}

		timer := time.NewTimer(d.opts.Retry.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			out.Err = ctx.Err()
			if err := d.ledger.RecordFailure(persist, n.ID, "retry aborted: "+ctx.Err().Error(), true); err != nil {
				log.Error("failed to record aborted retry", zap.Error(err))
			}
			return out
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) fail(ctx context.Context, log *zap.Logger, id string, cause error, final bool) {
	log.Warn("notification send failed",
		zap.String("notification_id", id),
		zap.Bool("final", final),
		zap.Error(cause),
	)
	if err := d.ledger.RecordFailure(ctx, id, cause.Error(), final); err != nil {
		log.Error("failed to record notification failure", zap.String("notification_id", id), zap.Error(err))
	}
}
