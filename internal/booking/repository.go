package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/schedule"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotConflict means the atomic check-and-insert found a
	// ledger-active appointment already occupying the requested interval.
	// Callers re-fetch availability and pick another slot.
	ErrSlotConflict = errors.New("slot is already booked")

	// ErrTransientStore wraps persistence hiccups that are safe to retry
	// by re-running the whole check-and-insert.
	ErrTransientStore = errors.New("transient store error")
)

// ListFilter narrows appointment listings. Zero values mean "any".
type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    Status
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Repository contains all ledger interactions needed by the service and
// the reminder scheduler. The appointments table is the only durable state
// this core owns.
type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	UpdateDoctorSchedule(ctx context.Context, id uuid.UUID, week schedule.WeekSchedule, slotMinutes int) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	// FindOverlapping returns ledger-active appointments for the doctor
	// whose [scheduledAt, scheduledAt+duration) intersects [from, to),
	// ordered by scheduledAt. Reads are snapshot-consistent.
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// InsertIfAvailable re-checks overlap and inserts as one atomic unit.
	// Returns ErrSlotConflict when a ledger-active appointment already
	// occupies the interval; nothing is persisted in that case.
	InsertIfAvailable(ctx context.Context, appt Appointment) (*Appointment, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus transitions id from one status to another, compare-and-
	// swap style. Returns ErrAppointmentNotFound when no row matched the
	// expected from status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// CancelAppointment is UpdateStatus to cancelled plus the cancel
	// audit fields, in one statement.
	CancelAppointment(ctx context.Context, id uuid.UUID, from Status, reason string) (*Appointment, error)

	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)
}
