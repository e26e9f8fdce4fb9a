// Package schedule holds a doctor's working-hours configuration and the
// pure slot generator derived from it. Nothing in this package touches
// storage or the clock; callers pass dates in explicitly so the generated
// grid is deterministic.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrBadTimeOfDay  = errors.New("time of day must be HH:MM")
	ErrHoursInverted = errors.New("working hours start must be before end")
	ErrBadSlotLength = errors.New("slot duration must be a positive number of minutes")
)

// TimeOfDay is a wall-clock minute within a day, parsed from "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeOfDay, s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeOfDay, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeOfDay, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MinuteOfDay returns minutes elapsed since midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DaySchedule is one weekday's opening window. Start and End are ignored
// when Open is false.
type DaySchedule struct {
	Open  bool      `json:"open"`
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// WeekSchedule is indexed by time.Weekday (Sunday = 0). It marshals to the
// day-name-keyed object the doctor profile stores.
type WeekSchedule [7]DaySchedule

var dayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func (w WeekSchedule) MarshalJSON() ([]byte, error) {
	out := make(map[string]DaySchedule, 7)
	for i, day := range w {
		out[dayNames[i]] = day
	}
	return json.Marshal(out)
}

func (w *WeekSchedule) UnmarshalJSON(data []byte) error {
	var raw map[string]DaySchedule
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i, name := range dayNames {
		if day, ok := raw[name]; ok {
			w[i] = day
		} else {
			w[i] = DaySchedule{}
		}
	}
	return nil
}

// Validate checks that every open day has start strictly before end.
func (w WeekSchedule) Validate() error {
	for i, day := range w {
		if !day.Open {
			continue
		}
		if day.Start.MinuteOfDay() >= day.End.MinuteOfDay() {
			return fmt.Errorf("%w: %s %s-%s", ErrHoursInverted, dayNames[i], day.Start, day.End)
		}
	}
	return nil
}

// ValidateSlotMinutes checks the per-doctor slot duration.
func ValidateSlotMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: %d", ErrBadSlotLength, minutes)
	}
	return nil
}

// DayName returns the lowercase English weekday label used on the wire.
func DayName(d time.Weekday) string {
	return dayNames[int(d)]
}
