package sqlstore

import (
	"context"
	"database/sql"
	"time"

	mystic "github.com/phbpx/mystic-services"
)

const intakeColumns = `
		i.id,
		i.session_id,
		i.service_type,
		i.full_name,
		i.birth_date,
		i.phone,
		i.beloved_name,
		i.situation,
		i.notes,
		i.status,
		i.created_at,
		i.modified_at`

func (s *Store) CreateIntake(ctx context.Context, in mystic.ClientIntake) error {
	query := `
	INSERT INTO client_intakes (
		id, session_id, service_type, full_name, birth_date, phone, beloved_name, situation, notes, status, created_at, modified_at
	) VALUES (
		:id, :session_id, :service_type, :full_name, :birth_date, :phone, :beloved_name, :situation, :notes, :status, :created_at, :modified_at
	)`

	return s.insert(ctx, query, in, mystic.ErrIntakeExists)
}

// intakeRow is an intake joined with its recorded payment, if any.
type intakeRow struct {
	mystic.ClientIntake
	PaymentStatus sql.NullString `db:"payment_status"`
	AmountTotal   sql.NullInt64  `db:"payment_amount"`
	Currency      sql.NullString `db:"payment_currency"`
	ServiceName   sql.NullString `db:"payment_service_name"`
}

func (r intakeRow) intake() mystic.ClientIntake {
	in := r.ClientIntake
	if r.PaymentStatus.Valid {
		in.Payment = &mystic.PaymentInfo{
			Status:      mystic.PaymentStatus(r.PaymentStatus.String),
			AmountTotal: r.AmountTotal.Int64,
			Currency:    r.Currency.String,
			ServiceName: r.ServiceName.String,
		}
	}
	return in
}

// ListIntakes returns every intake with its payment, newest first.
func (s *Store) ListIntakes(ctx context.Context) ([]mystic.ClientIntake, error) {
	query := `
	SELECT` + intakeColumns + `,
		p.status AS payment_status,
		p.amount_total AS payment_amount,
		p.currency AS payment_currency,
		p.service_name AS payment_service_name
	FROM client_intakes i
	LEFT JOIN payment_outcomes p ON p.session_id = i.session_id
	ORDER BY i.created_at DESC`

	var rows []intakeRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	out := make([]mystic.ClientIntake, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.intake())
	}
	return out, nil
}

func (s *Store) UpdateIntakeStatus(ctx context.Context, id string, status mystic.IntakeStatus, at time.Time) (mystic.ClientIntake, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mystic.ClientIntake{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
	UPDATE client_intakes
	SET status = ?, modified_at = ?
	WHERE id = ?`), status, at, id)
	if err != nil {
		return mystic.ClientIntake{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return mystic.ClientIntake{}, err
	}
	if n == 0 {
		return mystic.ClientIntake{}, mystic.ErrIntakeNotFound
	}

	var in mystic.ClientIntake
	query := tx.Rebind(`SELECT` + intakeColumns + ` FROM client_intakes i WHERE i.id = ?`)
	if err := tx.GetContext(ctx, &in, query, id); err != nil {
		return mystic.ClientIntake{}, notFound(err, mystic.ErrIntakeNotFound)
	}

	return in, tx.Commit()
}
