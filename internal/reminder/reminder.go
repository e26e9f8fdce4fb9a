// Package reminder scans the booking ledger on a minute tick and fans out
// due-appointment notices to the patient, the doctor, and the doctor's
// clinic. The fired-reminder log keeps repeated scans and process restarts
// from re-sending.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names one of the fixed lead times before an appointment start.
type Kind string

const (
	KindNow   Kind = "now"
	Kind15Min Kind = "15_min"
	Kind30Min Kind = "30_min"
)

type offsetSpec struct {
	Kind Kind
	Lead time.Duration
	Text string
}

// offsets are scanned every tick; one one-minute window per lead time.
var offsets = []offsetSpec{
	{KindNow, 0, "Appointment starting now"},
	{Kind15Min, 15 * time.Minute, "Appointment in 15 minutes"},
	{Kind30Min, 30 * time.Minute, "Appointment in 30 minutes"},
}

// Target is a confirmed appointment due for a reminder, hydrated with the
// names the messages are composed from.
type Target struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	ClinicID      *uuid.UUID
	ScheduledAt   time.Time
	DoctorName    string
	PatientName   string
}

// TopicKind distinguishes the recipient namespaces.
type TopicKind string

const (
	TopicUser   TopicKind = "user"
	TopicClinic TopicKind = "clinic"
)

// Topic addresses one logical recipient; the delivery transport behind it
// is an external collaborator.
type Topic struct {
	Kind TopicKind
	ID   uuid.UUID
}

func UserTopic(id uuid.UUID) Topic   { return Topic{Kind: TopicUser, ID: id} }
func ClinicTopic(id uuid.UUID) Topic { return Topic{Kind: TopicClinic, ID: id} }

func (t Topic) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// Payload is the reminder message pushed to each recipient topic.
type Payload struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	Message       string    `json:"message"`
	Time          time.Time `json:"time"`
	Kind          Kind      `json:"kind"`
}

// Ledger is the slice of the booking store the scheduler needs.
type Ledger interface {
	// FindConfirmedInWindow returns confirmed appointments whose start
	// falls in [from, to), with recipient names joined in.
	FindConfirmedInWindow(ctx context.Context, from, to time.Time) ([]Target, error)

	AlreadyFired(ctx context.Context, appointmentID uuid.UUID, kind Kind) (bool, error)
	RecordFired(ctx context.Context, appointmentID uuid.UUID, kind Kind) error

	// PruneFiredBefore drops fired records for appointments that started
	// before cutoff and returns how many were removed.
	PruneFiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier delivers one payload to one topic.
type Notifier interface {
	Notify(ctx context.Context, topic Topic, payload Payload) error
}
