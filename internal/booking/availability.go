package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/schedule"
)

// SlotView is one slot in the availability read path.
type SlotView struct {
	Start     time.Time
	Available bool
}

// DayAvailability is one day of the calendar a client renders.
type DayAvailability struct {
	Date          time.Time // midnight in the doctor's timezone
	DayName       string
	Slots         []SlotView
	IsFullyBooked bool
}

// ResolveAvailability merges the generated slot grid with the booking
// ledger for [today, today+days) in the doctor's timezone. Read-only; the
// occupancy check is a single range query walked in lockstep with the
// sorted slot grid, so the whole resolve is O(slots + ledger entries).
func (s *Service) ResolveAvailability(ctx context.Context, doctorID uuid.UUID, days int) ([]DayAvailability, error) {
	if days <= 0 {
		days = 1
	}

	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, ErrDoctorNotFound
	}

	from := schedule.StartOfDay(s.now().In(doctor.Location()))
	to := from.AddDate(0, 0, days)

	slots := schedule.GenerateSlots(doctor.Week, doctor.SlotMinutes, from, to)

	booked, err := s.repo.FindOverlapping(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}

	// Both sequences are chronological and ledger-active appointments
	// never overlap each other, so one forward pass suffices.
	views := make([]SlotView, len(slots))
	j := 0
	for i, slot := range slots {
		for j < len(booked) && !booked[j].End().After(slot.Start) {
			j++
		}
		occupied := j < len(booked) && booked[j].ScheduledAt.Before(slot.End)
		views[i] = SlotView{Start: slot.Start, Available: !occupied}
	}

	// Group per day, including days with zero generated slots (closed
	// weekdays) so clients always receive exactly `days` entries.
	result := make([]DayAvailability, 0, days)
	i := 0
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)

		dayView := DayAvailability{
			Date:    day,
			DayName: schedule.DayName(day.Weekday()),
		}

		allBooked := true
		for i < len(views) && views[i].Start.Before(next) {
			if views[i].Available {
				allBooked = false
			}
			dayView.Slots = append(dayView.Slots, views[i])
			i++
		}
		dayView.IsFullyBooked = len(dayView.Slots) > 0 && allBooked

		result = append(result, dayView)
	}

	return result, nil
}
