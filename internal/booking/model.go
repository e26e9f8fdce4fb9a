package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/schedule"
)

// Status is the appointment lifecycle state. Appointments are never
// deleted; they only move forward through statuses so the ledger doubles
// as an audit trail.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// LedgerActiveStatuses are the statuses that occupy a slot for overlap
// purposes. A cancelled or completed appointment frees its interval.
var LedgerActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) LedgerActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

// CanTransitionTo encodes the forward chain scheduled -> confirmed ->
// in_progress -> completed, with cancelled and no_show reachable from any
// pre-completed state.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusCancelled, StatusNoShow:
		return true
	case StatusConfirmed:
		return s == StatusScheduled
	case StatusInProgress:
		return s == StatusConfirmed
	case StatusCompleted:
		return s == StatusInProgress
	}
	return false
}

type AppointmentType string

const (
	TypeInPerson AppointmentType = "in_person"
	TypeVideo    AppointmentType = "video"
)

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	ClinicID        *uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Status          Status
	Type            AppointmentType
	Reason          string
	Notes           string
	CancelReason    *string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is the exclusive end of the occupied interval.
func (a Appointment) End() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps is the half-open interval test against [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledAt.Before(end) && start.Before(a.End())
}

type Doctor struct {
	ID          uuid.UUID
	Name        string
	Specialty   *string
	ClinicID    *uuid.UUID
	Active      bool
	SlotMinutes int
	Week        schedule.WeekSchedule
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Location resolves the doctor's IANA timezone, falling back to UTC so a
// bad row never breaks slot generation.
func (d Doctor) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil || d.Timezone == "" {
		return time.UTC
	}
	return loc
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clinic struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}
