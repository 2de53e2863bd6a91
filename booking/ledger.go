// Package booking records consultation reservations and keeps at most one
// reservation per slot.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/calendar"
	"github.com/phbpx/mystic-services/pkg/metrics"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Ledger struct {
	schedule calendar.Schedule
	store    mystic.ReservationStore
	events   mystic.Publisher
	log      *otelzap.SugaredLogger
	now      func() time.Time
}

func NewLedger(schedule calendar.Schedule, store mystic.ReservationStore, events mystic.Publisher, log *otelzap.SugaredLogger) *Ledger {
	return &Ledger{
		schedule: schedule,
		store:    store,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// StatusChange is published whenever staff move a reservation.
type StatusChange struct {
	ID     string                   `json:"id"`
	Date   string                   `json:"date"`
	Start  string                   `json:"start_time"`
	Status mystic.ReservationStatus `json:"status"`
}

// Reserve books the slot (date, start) for the customer. A slot taken in
// the meantime yields ErrSlotConflict; the caller decides what to offer
// next.
func (l *Ledger) Reserve(ctx context.Context, date, start string, c mystic.Customer) (mystic.Reservation, error) {
	ctx, span := otel.GetTracerProvider().Tracer("").Start(ctx, "booking.reserve")
	span.SetAttributes(attribute.String("slot.date", date), attribute.String("slot.start", start))
	defer span.End()

	day, err := l.schedule.ParseDate(date)
	if err != nil {
		metrics.IncReservation("invalid")
		return mystic.Reservation{}, fmt.Errorf("%w: %w", mystic.ErrInvalidSlot, err)
	}

	if l.schedule.IsPast(day, l.now()) {
		metrics.IncReservation("invalid")
		return mystic.Reservation{}, fmt.Errorf("%w: %s is in the past", mystic.ErrInvalidSlot, date)
	}

	norm, ok := l.schedule.Normalize(start)
	if !ok {
		metrics.IncReservation("invalid")
		return mystic.Reservation{}, fmt.Errorf("%w: %q is not a start time of the schedule", mystic.ErrInvalidSlot, start)
	}

	if fields := c.Missing(); len(fields) > 0 {
		metrics.IncReservation("invalid")
		return mystic.Reservation{}, &mystic.ValidationError{Fields: fields}
	}

	r := mystic.NewReservation(uuid.NewString(), day.Format(calendar.DateLayout), norm, c, l.now().UTC())

	if err := l.store.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, mystic.ErrSlotConflict) {
			metrics.IncReservation("conflict")
			return mystic.Reservation{}, err
		}
		metrics.IncReservation("error")
		return mystic.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}

	metrics.IncReservation("created")
	l.publish(ctx, mystic.EventReservationCreated, r)

	return r, nil
}

// UpdateStatus moves a reservation to status. Any known status may follow
// any other.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status mystic.ReservationStatus) (mystic.Reservation, error) {
	if !status.Valid() {
		return mystic.Reservation{}, fmt.Errorf("%w: %q", mystic.ErrInvalidStatus, status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return mystic.Reservation{}, mystic.ErrReservationNotFound
	}

	r, err := l.store.UpdateReservationStatus(ctx, id, status, l.now().UTC())
	if err != nil {
		return mystic.Reservation{}, err
	}

	l.publish(ctx, mystic.EventReservationStatusChanged, StatusChange{
		ID:     r.ID,
		Date:   r.Date,
		Start:  r.StartTime,
		Status: r.Status,
	})

	return r, nil
}

// List returns reservations for date, or every reservation when date is
// empty.
func (l *Ledger) List(ctx context.Context, date string) ([]mystic.Reservation, error) {
	if date != "" {
		day, err := l.schedule.ParseDate(date)
		if err != nil {
			return nil, &mystic.ValidationError{Fields: []string{"date"}, Reason: "date must be YYYY-MM-DD"}
		}
		date = day.Format(calendar.DateLayout)
	}
	return l.store.ListReservations(ctx, date)
}

func (l *Ledger) publish(ctx context.Context, key string, v any) {
	if err := l.events.PublishJSON(ctx, key, v); err != nil {
		l.log.Ctx(ctx).Warnw("publish", "event", key, "error", err.Error())
	}
}
