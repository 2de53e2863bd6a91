package mystic

import (
	"context"
	"strings"
	"time"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCompleted ReservationStatus = "completed"
)

// Valid reports whether s is a known lifecycle status. Transitions between
// known statuses are not ordered.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCompleted:
		return true
	}
	return false
}

// Customer holds the contact details captured when a slot is booked.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

// Missing lists the required customer fields that are blank.
func (c Customer) Missing() []string {
	return missing(
		[2]string{"name", c.Name},
		[2]string{"phone", c.Phone},
	)
}

// Reservation binds one customer to one (date, start time) slot.
type Reservation struct {
	ID           string            `json:"id" db:"id"`
	Date         string            `json:"date" db:"slot_date"`
	StartTime    string            `json:"start_time" db:"start_time"`
	CustomerName string            `json:"customer_name" db:"customer_name"`
	Phone        string            `json:"phone" db:"phone"`
	Notes        string            `json:"notes" db:"notes"`
	Status       ReservationStatus `json:"status" db:"status"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	ModifiedAt   time.Time         `json:"modified_at" db:"modified_at"`
}

// NewReservation builds a pending reservation for the given slot.
func NewReservation(id, date, start string, c Customer, now time.Time) Reservation {
	return Reservation{
		ID:           id,
		Date:         date,
		StartTime:    start,
		CustomerName: strings.TrimSpace(c.Name),
		Phone:        strings.TrimSpace(c.Phone),
		Notes:        strings.TrimSpace(c.Notes),
		Status:       ReservationPending,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
}

// ReservationReader exposes the reserved start times of a date.
type ReservationReader interface {
	ReservedTimes(ctx context.Context, date string) ([]string, error)
}

// ReservationStore persists reservations. CreateReservation must be an
// atomic conditional insert returning ErrSlotConflict when the slot is
// already held.
type ReservationStore interface {
	ReservationReader
	CreateReservation(ctx context.Context, r Reservation) error
	UpdateReservationStatus(ctx context.Context, id string, status ReservationStatus, at time.Time) (Reservation, error)
	ListReservations(ctx context.Context, date string) ([]Reservation, error)
}
