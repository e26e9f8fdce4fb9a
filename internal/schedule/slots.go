package schedule

import (
	"time"
)

// Slot is a candidate bookable interval. Slots are derived on demand from
// the week schedule and never persisted.
type Slot struct {
	Start time.Time
	End   time.Time
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// GenerateSlots walks each date in [from, to) and emits the slot grid for
// open weekdays: start-of-open to end-of-open in slotMinutes steps, with a
// trailing partial slot dropped rather than truncated. from and to are
// interpreted as dates; time-of-day components are discarded. Output is
// chronological and deterministic for fixed inputs.
func GenerateSlots(week WeekSchedule, slotMinutes int, from, to time.Time) []Slot {
	if slotMinutes <= 0 {
		return nil
	}

	step := time.Duration(slotMinutes) * time.Minute
	var slots []Slot

	for day := StartOfDay(from); day.Before(StartOfDay(to)); day = day.AddDate(0, 0, 1) {
		ds := week[int(day.Weekday())]
		if !ds.Open {
			continue
		}

		// Anchor open and close at the configured wall-clock times rather
		// than offsetting from midnight, so the grid stays aligned with
		// OnGrid across DST transitions.
		y, m, d := day.Date()
		open := time.Date(y, m, d, ds.Start.Hour, ds.Start.Minute, 0, 0, day.Location())
		close := time.Date(y, m, d, ds.End.Hour, ds.End.Minute, 0, 0, day.Location())

		for cur := open; !cur.Add(step).After(close); cur = cur.Add(step) {
			slots = append(slots, Slot{Start: cur, End: cur.Add(step)})
		}
	}

	return slots
}

// DaySlots returns the slot grid for the single date containing day.
func DaySlots(week WeekSchedule, slotMinutes int, day time.Time) []Slot {
	start := StartOfDay(day)
	return GenerateSlots(week, slotMinutes, start, start.AddDate(0, 0, 1))
}

// OnGrid reports whether t lands exactly on a slot boundary the generator
// would emit for this schedule. Off-grid instants are rejected at booking
// time so client and server never disagree on slot edges.
func OnGrid(week WeekSchedule, slotMinutes int, t time.Time) bool {
	if slotMinutes <= 0 {
		return false
	}
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}

	ds := week[int(t.Weekday())]
	if !ds.Open {
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	offset := minute - ds.Start.MinuteOfDay()
	if offset < 0 || offset%slotMinutes != 0 {
		return false
	}
	return minute+slotMinutes <= ds.End.MinuteOfDay()
}
