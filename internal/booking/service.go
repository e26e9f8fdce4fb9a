package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/scheduling/internal/events"
	redisclient "github.com/careloop/scheduling/internal/redis"
	"github.com/careloop/scheduling/internal/schedule"
)

var (
	// Validation failures; surfaced as 400s and never retried.
	ErrPastTime    = errors.New("appointment time must be in the future")
	ErrOffGridTime = errors.New("appointment time does not fall on a slot boundary")
	ErrEmptyReason = errors.New("a reason for the visit is required")

	// ErrSlotContended means another booking for the same slot holds the
	// lock right now. Distinct from ErrSlotConflict so clients can retry
	// the same slot shortly instead of picking a new one.
	ErrSlotContended = errors.New("slot is currently being booked, please retry")

	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

// BookingRequest carries everything needed to reserve one slot.
type BookingRequest struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	ScheduledAt time.Time
	Reason      string
	Type        AppointmentType
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	bus      events.Publisher
	log      zerolog.Logger
	now      func() time.Time
	retryMax int
	backoff  time.Duration
}

type Options struct {
	RetryMax int           // attempts for the check-and-insert on transient store errors
	Backoff  time.Duration // base delay between attempts, grows linearly
	Now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, bus events.Publisher, log zerolog.Logger, opts Options) *Service {
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		bus:      bus,
		log:      log.With().Str("component", "booking").Logger(),
		now:      opts.Now,
		retryMax: opts.RetryMax,
		backoff:  opts.Backoff,
	}
}

// Book validates the request and atomically reserves the slot. Two
// concurrent requests for the same doctor and overlapping window cannot
// both succeed: one commits, the other gets ErrSlotConflict (or
// ErrSlotContended if it lost the lock race before the commit landed).
// New appointments start in scheduled status and are promoted to confirmed
// by a separate call, which is also what gates reminder eligibility.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	doctor, err := s.repo.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, ErrDoctorNotFound
	}

	if _, err := s.repo.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrEmptyReason
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, ErrPastTime
	}

	local := req.ScheduledAt.In(doctor.Location())
	if !schedule.OnGrid(doctor.Week, doctor.SlotMinutes, local) {
		return nil, ErrOffGridTime
	}

	if req.Type == "" {
		req.Type = TypeInPerson
	}

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		ClinicID:        doctor.ClinicID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: doctor.SlotMinutes,
		Status:          StatusScheduled,
		Type:            req.Type,
		Reason:          strings.TrimSpace(req.Reason),
	}

	var created *Appointment

	err = s.locker.WithBookingLock(ctx, req.DoctorID, req.ScheduledAt, func(lockCtx context.Context) error {
		var insertErr error
		created, insertErr = s.insertWithRetry(lockCtx, appt)
		return insertErr
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	// Watchers hear about the booking no later than the requester does.
	s.publish(ctx, events.Event{
		Kind:      events.KindSlotBooked,
		DoctorID:  created.DoctorID,
		SlotStart: created.ScheduledAt,
	})

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Time("scheduled_at", created.ScheduledAt).
		Msg("slot booked")

	return created, nil
}

// insertWithRetry re-runs the whole atomic check-and-insert on transient
// store errors. Validation is not assumed to still hold across attempts;
// the overlap re-check happens inside every attempt.
func (s *Service) insertWithRetry(ctx context.Context, appt Appointment) (*Appointment, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retryMax; attempt++ {
		created, err := s.repo.InsertIfAvailable(ctx, appt)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrTransientStore) {
			return nil, err
		}

		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("transient store error during booking")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return nil, fmt.Errorf("booking gave up after %d attempts: %w", s.retryMax, lastErr)
}

// Confirm promotes a scheduled appointment; confirmed appointments are the
// ones the reminder scheduler picks up.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed)
}

// CheckIn moves a confirmed appointment to in_progress.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress)
}

// Complete closes out an in-progress appointment.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

// MarkNoShow records a missed appointment and frees its slot.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	wasActive := appt.Status.LedgerActive()

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a status race; the compare-and-swap found a different
			// current status than the one we read.
			return nil, fmt.Errorf("%w: concurrent status change", ErrInvalidTransition)
		}
		return nil, err
	}

	if wasActive && !updated.Status.LedgerActive() {
		s.publish(ctx, events.Event{
			Kind:      events.KindSlotFreed,
			DoctorID:  updated.DoctorID,
			SlotStart: updated.ScheduledAt,
		})
	}

	return updated, nil
}

// Cancel transitions to cancelled with an audit reason. Allowed from any
// pre-completed state, for patients, doctors, and receptionists alike.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
	}

	cancelled, err := s.repo.CancelAppointment(ctx, id, appt.Status, reason)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: concurrent status change", ErrInvalidTransition)
		}
		return nil, err
	}

	// The interval is free again; watchers should re-fetch.
	s.publish(ctx, events.Event{
		Kind:      events.KindSlotFreed,
		DoctorID:  cancelled.DoctorID,
		SlotStart: cancelled.ScheduledAt,
	})

	return cancelled, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	return s.repo.ListAppointments(ctx, filter)
}

// UpdateDoctorSchedule replaces a doctor's working hours and slot length.
// Only the doctor mutates this; readers pick up the new grid on their next
// availability query.
func (s *Service) UpdateDoctorSchedule(ctx context.Context, doctorID uuid.UUID, week schedule.WeekSchedule, slotMinutes int) (*Doctor, error) {
	if err := week.Validate(); err != nil {
		return nil, err
	}
	if err := schedule.ValidateSlotMinutes(slotMinutes); err != nil {
		return nil, err
	}
	return s.repo.UpdateDoctorSchedule(ctx, doctorID, week, slotMinutes)
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("doctor_id", ev.DoctorID.String()).Msg("publish calendar event")
	}
}
