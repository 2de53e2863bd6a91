package calendar

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidDate     = errors.New("invalid date")
)

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Schedule is the fixed daily operating window, expressed as offsets from
// midnight in Location.
type Schedule struct {
	Open     time.Duration
	Close    time.Duration
	SlotSize time.Duration
	Location *time.Location
}

// DefaultSchedule opens at 14:00 and closes at 22:00 with 20-minute slots.
func DefaultSchedule() Schedule {
	return Schedule{
		Open:     14 * time.Hour,
		Close:    22 * time.Hour,
		SlotSize: 20 * time.Minute,
		Location: time.UTC,
	}
}

func (s Schedule) Validate() error {
	switch {
	case s.SlotSize <= 0:
		return fmt.Errorf("%w: slot size must be positive", ErrInvalidSchedule)
	case s.Open < 0 || s.Close > 24*time.Hour:
		return fmt.Errorf("%w: window must lie within one day", ErrInvalidSchedule)
	case s.Close-s.Open < s.SlotSize:
		return fmt.Errorf("%w: window shorter than one slot", ErrInvalidSchedule)
	}
	return nil
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// ParseDate parses a YYYY-MM-DD date at midnight in the schedule location.
func (s Schedule) ParseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, s.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return day, nil
}

// Floor truncates t to midnight of its date in the schedule location.
func (s Schedule) Floor(t time.Time) time.Time {
	y, m, d := t.In(s.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc())
}

// IsPast reports whether day falls strictly before the date of now.
func (s Schedule) IsPast(day, now time.Time) bool {
	return s.Floor(day).Before(s.Floor(now))
}

// at returns the wall-clock time off past midnight of day, so zone
// transitions never shift the grid.
func (s Schedule) at(day time.Time, off time.Duration) time.Time {
	y, m, d := day.In(s.loc()).Date()
	return time.Date(y, m, d, 0, 0, int(off/time.Second), 0, s.loc())
}

// Window returns the operating window of day.
func (s Schedule) Window(day time.Time) TimeRange {
	return TimeRange{Start: s.at(day, s.Open), End: s.at(day, s.Close)}
}

// Slots splits the window of day into whole slots. A trailing remainder
// shorter than one slot is dropped.
func (s Schedule) Slots(day time.Time) []TimeRange {
	slots := []TimeRange{}
	if s.SlotSize <= 0 {
		return slots
	}
	for off := s.Open; off+s.SlotSize <= s.Close; off += s.SlotSize {
		slots = append(slots, TimeRange{Start: s.at(day, off), End: s.at(day, off+s.SlotSize)})
	}
	return slots
}

// Starts lists the start times of every slot of day as "HH:MM".
func (s Schedule) Starts(day time.Time) []string {
	slots := s.Slots(day)
	out := make([]string, 0, len(slots))
	for _, sl := range slots {
		out = append(out, sl.Start.Format(TimeLayout))
	}
	return out
}

// Normalize validates a start time against the grid and returns it in
// canonical "HH:MM" form.
func (s Schedule) Normalize(start string) (string, bool) {
	t, err := time.Parse(TimeLayout, start)
	if err != nil {
		t, err = time.Parse("15:04:05", start)
		if err != nil {
			return "", false
		}
	}

	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second

	if offset < s.Open || offset+s.SlotSize > s.Close {
		return "", false
	}
	if s.SlotSize <= 0 || (offset-s.Open)%s.SlotSize != 0 {
		return "", false
	}
	return t.Format(TimeLayout), true
}
