package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/scheduling/internal/events"
	"github.com/careloop/scheduling/internal/schedule"
)

// A known Monday at 08:00 UTC; the test doctor works 09:00-17:00 weekdays.
var (
	testNow    = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	testMonday = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
)

func testWeek() schedule.WeekSchedule {
	var w schedule.WeekSchedule
	for d := time.Monday; d <= time.Friday; d++ {
		w[int(d)] = schedule.DaySchedule{
			Open:  true,
			Start: schedule.TimeOfDay{Hour: 9},
			End:   schedule.TimeOfDay{Hour: 17},
		}
	}
	return w
}

// passLocker runs the critical section without any lock so conflict tests
// exercise the repository's own atomic check-and-insert.
type passLocker struct{}

func (passLocker) WithBookingLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	return fn(ctx)
}

// recordingBus captures published invalidation events.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, ev events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) all() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.events))
	copy(out, b.events)
	return out
}

// flakyRepo fails the first failures InsertIfAvailable calls transiently.
type flakyRepo struct {
	*MemoryRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyRepo) InsertIfAvailable(ctx context.Context, appt Appointment) (*Appointment, error) {
	f.mu.Lock()
	f.calls++
	failing := f.calls <= f.failures
	f.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("%w: connection reset", ErrTransientStore)
	}
	return f.MemoryRepository.InsertIfAvailable(ctx, appt)
}

type fixture struct {
	repo    *MemoryRepository
	bus     *recordingBus
	svc     *Service
	doctor  Doctor
	patient Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	bus := &recordingBus{}

	clinicID := uuid.New()
	doctor := Doctor{
		ID:          uuid.New(),
		Name:        "Asha Raman",
		ClinicID:    &clinicID,
		Active:      true,
		SlotMinutes: 30,
		Week:        testWeek(),
		Timezone:    "UTC",
	}
	patient := Patient{ID: uuid.New(), Name: "Jonas Meyer"}

	repo.PutDoctor(doctor)
	repo.PutPatient(patient)

	svc := NewService(repo, passLocker{}, bus, zerolog.Nop(), Options{
		Now:     func() time.Time { return testNow },
		Backoff: time.Millisecond,
	})

	return &fixture{repo: repo, bus: bus, svc: svc, doctor: doctor, patient: patient}
}

func (f *fixture) request(at time.Time) BookingRequest {
	return BookingRequest{
		DoctorID:    f.doctor.ID,
		PatientID:   f.patient.ID,
		ScheduledAt: at,
		Reason:      "follow-up",
	}
}

func TestBookSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	at := testMonday.Add(10 * time.Hour)
	appt, err := f.svc.Book(ctx, f.request(at))
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 30, appt.DurationMinutes)
	assert.Equal(t, TypeInPerson, appt.Type)
	require.NotNil(t, appt.ClinicID)
	assert.Equal(t, *f.doctor.ClinicID, *appt.ClinicID)

	evs := f.bus.all()
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindSlotBooked, evs[0].Kind)
	assert.Equal(t, f.doctor.ID, evs[0].DoctorID)
	assert.True(t, evs[0].SlotStart.Equal(at))
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	onGrid := testMonday.Add(10 * time.Hour)

	inactive := Doctor{ID: uuid.New(), Active: false, SlotMinutes: 30, Week: testWeek(), Timezone: "UTC"}
	f.repo.PutDoctor(inactive)

	cases := []struct {
		name string
		req  BookingRequest
		want error
	}{
		{
			name: "empty reason",
			req: BookingRequest{
				DoctorID: f.doctor.ID, PatientID: f.patient.ID,
				ScheduledAt: onGrid, Reason: "   ",
			},
			want: ErrEmptyReason,
		},
		{
			name: "past time",
			req: BookingRequest{
				DoctorID: f.doctor.ID, PatientID: f.patient.ID,
				ScheduledAt: testNow.Add(-time.Hour), Reason: "checkup",
			},
			want: ErrPastTime,
		},
		{
			name: "off-grid ten past",
			req: BookingRequest{
				DoctorID: f.doctor.ID, PatientID: f.patient.ID,
				ScheduledAt: testMonday.Add(9*time.Hour + 10*time.Minute), Reason: "checkup",
			},
			want: ErrOffGridTime,
		},
		{
			name: "unknown doctor",
			req: BookingRequest{
				DoctorID: uuid.New(), PatientID: f.patient.ID,
				ScheduledAt: onGrid, Reason: "checkup",
			},
			want: ErrDoctorNotFound,
		},
		{
			name: "inactive doctor",
			req: BookingRequest{
				DoctorID: inactive.ID, PatientID: f.patient.ID,
				ScheduledAt: onGrid, Reason: "checkup",
			},
			want: ErrDoctorNotFound,
		},
		{
			name: "unknown patient",
			req: BookingRequest{
				DoctorID: f.doctor.ID, PatientID: uuid.New(),
				ScheduledAt: onGrid, Reason: "checkup",
			},
			want: ErrPatientNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Empty(t, f.bus.all())
}

func TestBookConflictOnOccupiedSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := testMonday.Add(11 * time.Hour)

	_, err := f.svc.Book(ctx, f.request(at))
	require.NoError(t, err)

	other := Patient{ID: uuid.New(), Name: "Mira Kovac"}
	f.repo.PutPatient(other)

	req := f.request(at)
	req.PatientID = other.ID
	_, err = f.svc.Book(ctx, req)
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestBookRaceExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := testMonday.Add(14 * time.Hour)

	other := Patient{ID: uuid.New(), Name: "Mira Kovac"}
	f.repo.PutPatient(other)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pid := range []uuid.UUID{f.patient.ID, other.ID} {
		wg.Add(1)
		go func(i int, pid uuid.UUID) {
			defer wg.Done()
			req := f.request(at)
			req.PatientID = pid
			_, errs[i] = f.svc.Book(ctx, req)
		}(i, pid)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrSlotConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	booked, err := f.repo.FindOverlapping(ctx, f.doctor.ID, at, at.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestBookRetriesTransientErrors(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyRepo{MemoryRepository: f.repo, failures: 2}
	svc := NewService(flaky, passLocker{}, f.bus, zerolog.Nop(), Options{
		Now:      func() time.Time { return testNow },
		RetryMax: 3,
		Backoff:  time.Millisecond,
	})

	appt, err := svc.Book(context.Background(), f.request(testMonday.Add(15*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 3, flaky.calls)
}

func TestBookGivesUpAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyRepo{MemoryRepository: f.repo, failures: 100}
	svc := NewService(flaky, passLocker{}, f.bus, zerolog.Nop(), Options{
		Now:      func() time.Time { return testNow },
		RetryMax: 3,
		Backoff:  time.Millisecond,
	})

	_, err := svc.Book(context.Background(), f.request(testMonday.Add(15*time.Hour)))
	assert.ErrorIs(t, err, ErrTransientStore)
	assert.Equal(t, 3, flaky.calls)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(testMonday.Add(10*time.Hour)))
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	inProgress, err := f.svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, inProgress.Status)

	completed, err := f.svc.Complete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	_, err = f.svc.Confirm(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, appt.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNoShowFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := testMonday.Add(13 * time.Hour)

	appt, err := f.svc.Book(ctx, f.request(at))
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)

	marked, err := f.svc.MarkNoShow(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)

	evs := f.bus.all()
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindSlotFreed, evs[len(evs)-1].Kind)
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := testMonday.Add(12 * time.Hour)

	appt, err := f.svc.Book(ctx, f.request(at))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, appt.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "patient request", *cancelled.CancelReason)
	assert.NotNil(t, cancelled.CancelledAt)

	evs := f.bus.all()
	require.Len(t, evs, 2)
	assert.Equal(t, events.KindSlotFreed, evs[1].Kind)

	// The interval is free again.
	rebooked, err := f.svc.Book(ctx, f.request(at))
	require.NoError(t, err)
	assert.True(t, rebooked.ScheduledAt.Equal(at))
}

func TestUpdateDoctorSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	week := testWeek()
	week[int(time.Saturday)] = schedule.DaySchedule{
		Open:  true,
		Start: schedule.TimeOfDay{Hour: 10},
		End:   schedule.TimeOfDay{Hour: 14},
	}

	updated, err := f.svc.UpdateDoctorSchedule(ctx, f.doctor.ID, week, 45)
	require.NoError(t, err)
	assert.Equal(t, 45, updated.SlotMinutes)
	assert.True(t, updated.Week[int(time.Saturday)].Open)

	var inverted schedule.WeekSchedule
	inverted[int(time.Monday)] = schedule.DaySchedule{
		Open:  true,
		Start: schedule.TimeOfDay{Hour: 17},
		End:   schedule.TimeOfDay{Hour: 9},
	}
	_, err = f.svc.UpdateDoctorSchedule(ctx, f.doctor.ID, inverted, 30)
	assert.ErrorIs(t, err, schedule.ErrHoursInverted)

	_, err = f.svc.UpdateDoctorSchedule(ctx, f.doctor.ID, testWeek(), 0)
	assert.ErrorIs(t, err, schedule.ErrBadSlotLength)
}

func TestStatusStateMachine(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusInProgress, false},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusNoShow, true},
		{StatusConfirmed, StatusInProgress, true},
		{StatusConfirmed, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusNoShow, StatusCompleted, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}
