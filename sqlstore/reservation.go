package sqlstore

import (
	"context"
	"time"

	mystic "github.com/phbpx/mystic-services"
)

const reservationColumns = `
		id,
		slot_date,
		start_time,
		customer_name,
		phone,
		notes,
		status,
		created_at,
		modified_at`

// CreateReservation inserts r. The unique (slot_date, start_time)
// constraint makes the check and the insert one atomic step.
func (s *Store) CreateReservation(ctx context.Context, r mystic.Reservation) error {
	query := `
	INSERT INTO reservations (` + reservationColumns + `
	) VALUES (
		:id, :slot_date, :start_time, :customer_name, :phone, :notes, :status, :created_at, :modified_at
	)`

	return s.insert(ctx, query, r, mystic.ErrSlotConflict)
}

func (s *Store) ReservedTimes(ctx context.Context, date string) ([]string, error) {
	query := s.db.Rebind(`
	SELECT start_time
	FROM reservations
	WHERE slot_date = ?
	ORDER BY start_time`)

	times := []string{}
	if err := s.db.SelectContext(ctx, &times, query, date); err != nil {
		return nil, err
	}
	return times, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, status mystic.ReservationStatus, at time.Time) (mystic.Reservation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mystic.Reservation{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
	UPDATE reservations
	SET status = ?, modified_at = ?
	WHERE id = ?`), status, at, id)
	if err != nil {
		return mystic.Reservation{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return mystic.Reservation{}, err
	}
	if n == 0 {
		return mystic.Reservation{}, mystic.ErrReservationNotFound
	}

	var r mystic.Reservation
	query := tx.Rebind(`SELECT` + reservationColumns + ` FROM reservations WHERE id = ?`)
	if err := tx.GetContext(ctx, &r, query, id); err != nil {
		return mystic.Reservation{}, notFound(err, mystic.ErrReservationNotFound)
	}

	return r, tx.Commit()
}

// ListReservations returns reservations ordered by slot. An empty date
// lists every date.
func (s *Store) ListReservations(ctx context.Context, date string) ([]mystic.Reservation, error) {
	query := `SELECT` + reservationColumns + ` FROM reservations`
	var args []interface{}
	if date != "" {
		query += ` WHERE slot_date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY slot_date, start_time`

	out := []mystic.Reservation{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}
