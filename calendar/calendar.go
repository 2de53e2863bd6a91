// Package calendar computes the bookable consultation slots of a date.
package calendar

import (
	"context"
	"fmt"
	"time"

	mystic "github.com/phbpx/mystic-services"
)

// Calendar derives availability from the schedule and the reservations
// already held. It never writes.
type Calendar struct {
	schedule Schedule
	reserved mystic.ReservationReader
	now      func() time.Time
}

type Option func(*Calendar)

// WithClock overrides the source of "today".
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) { c.now = now }
}

func New(schedule Schedule, reserved mystic.ReservationReader, opts ...Option) *Calendar {
	c := &Calendar{
		schedule: schedule,
		reserved: reserved,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calendar) Schedule() Schedule { return c.schedule }

// AvailableSlots returns the unreserved start times of day in ascending
// order. Dates before today yield an empty list.
func (c *Calendar) AvailableSlots(ctx context.Context, day time.Time) ([]string, error) {
	if c.schedule.IsPast(day, c.now()) {
		return []string{}, nil
	}

	date := c.schedule.Floor(day).Format(DateLayout)
	taken, err := c.reserved.ReservedTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("reserved times for %s: %w", date, err)
	}

	held := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		if norm, ok := c.schedule.Normalize(t); ok {
			held[norm] = struct{}{}
		}
	}

	starts := c.schedule.Starts(day)
	free := make([]string, 0, len(starts))
	for _, s := range starts {
		if _, ok := held[s]; !ok {
			free = append(free, s)
		}
	}
	return free, nil
}
