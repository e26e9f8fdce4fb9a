package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAvailabilityMarksBookedSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bookedAt := testMonday.Add(10 * time.Hour)
	_, err := f.svc.Book(ctx, f.request(bookedAt))
	require.NoError(t, err)

	days, err := f.svc.ResolveAvailability(ctx, f.doctor.ID, 1)
	require.NoError(t, err)
	require.Len(t, days, 1)

	day := days[0]
	assert.Equal(t, "monday", day.DayName)
	// 09:00-17:00 at 30 minutes is 16 slots.
	require.Len(t, day.Slots, 16)
	assert.False(t, day.IsFullyBooked)

	for _, slot := range day.Slots {
		if slot.Start.Equal(bookedAt) {
			assert.False(t, slot.Available, "booked slot must not be available")
		} else {
			assert.True(t, slot.Available, "slot %s should be free", slot.Start)
		}
	}
}

// Availability/ledger consistency: a slot is unavailable exactly when a
// ledger-active appointment overlaps its interval.
func TestResolveAvailabilityConsistentWithLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, h := range []int{9, 11, 16} {
		_, err := f.svc.Book(ctx, f.request(testMonday.Add(time.Duration(h)*time.Hour)))
		require.NoError(t, err)
	}
	// A cancelled appointment must not occupy its slot.
	appt, err := f.svc.Book(ctx, f.request(testMonday.Add(13*time.Hour)))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, appt.ID, "moved")
	require.NoError(t, err)

	days, err := f.svc.ResolveAvailability(ctx, f.doctor.ID, 1)
	require.NoError(t, err)
	require.Len(t, days, 1)

	slotLen := 30 * time.Minute
	for _, slot := range days[0].Slots {
		ledger, err := f.repo.FindOverlapping(ctx, f.doctor.ID, slot.Start, slot.Start.Add(slotLen))
		require.NoError(t, err)
		assert.Equal(t, len(ledger) == 0, slot.Available, "slot %s", slot.Start)
	}
}

func TestResolveAvailabilityFullyBookedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateDoctorSchedule(ctx, f.doctor.ID, testWeek(), 60)
	require.NoError(t, err)

	for h := 9; h < 17; h++ {
		_, err := f.svc.Book(ctx, f.request(testMonday.Add(time.Duration(h)*time.Hour)))
		require.NoError(t, err)
	}

	days, err := f.svc.ResolveAvailability(ctx, f.doctor.ID, 1)
	require.NoError(t, err)
	require.Len(t, days, 1)

	day := days[0]
	require.Len(t, day.Slots, 8)
	assert.True(t, day.IsFullyBooked)
	for _, slot := range day.Slots {
		assert.False(t, slot.Available)
	}
}

func TestResolveAvailabilityClosedDaysIncluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Monday through Sunday; Saturday and Sunday are closed.
	days, err := f.svc.ResolveAvailability(ctx, f.doctor.ID, 7)
	require.NoError(t, err)
	require.Len(t, days, 7)

	saturday := days[5]
	assert.Equal(t, "saturday", saturday.DayName)
	assert.Empty(t, saturday.Slots)
	assert.False(t, saturday.IsFullyBooked, "a closed day is not fully booked")

	monday := days[0]
	assert.Equal(t, testMonday, monday.Date)
	assert.NotEmpty(t, monday.Slots)
}

func TestResolveAvailabilityUnknownDoctor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResolveAvailability(context.Background(), uuid.New(), 7)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestResolveAvailabilityAppointmentSpanningSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A 60-minute appointment booked under an older schedule occupies two
	// 30-minute slots of the current grid.
	long := Appointment{
		ID:              uuid.New(),
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		ScheduledAt:     testMonday.Add(10 * time.Hour),
		DurationMinutes: 60,
		Status:          StatusConfirmed,
		Type:            TypeInPerson,
		Reason:          "procedure",
	}
	_, err := f.repo.InsertIfAvailable(ctx, long)
	require.NoError(t, err)

	days, err := f.svc.ResolveAvailability(ctx, f.doctor.ID, 1)
	require.NoError(t, err)

	unavailable := map[string]bool{}
	for _, slot := range days[0].Slots {
		if !slot.Available {
			unavailable[slot.Start.Format("15:04")] = true
		}
	}
	assert.Equal(t, map[string]bool{"10:00": true, "10:30": true}, unavailable)
}
