package sqlstore

import (
	"context"

	mystic "github.com/phbpx/mystic-services"
)

// RecordOutcome stores a terminal session decision once. Later decisions
// for the same session are ignored.
func (s *Store) RecordOutcome(ctx context.Context, cs mystic.CheckoutSession) error {
	query := `
	INSERT INTO payment_outcomes (
		session_id, service_type, service_name, status, amount_total, currency, resolved_at
	) VALUES (
		:session_id, :service_type, :service_name, :status, :amount_total, :currency, :resolved_at
	)
	ON CONFLICT (session_id) DO NOTHING`

	_, err := s.db.NamedExecContext(ctx, query, cs)
	return err
}

func (s *Store) Outcome(ctx context.Context, sessionID string) (mystic.CheckoutSession, error) {
	query := s.db.Rebind(`
	SELECT
		session_id,
		service_type,
		service_name,
		status,
		amount_total,
		currency,
		resolved_at
	FROM payment_outcomes
	WHERE session_id = ?`)

	var cs mystic.CheckoutSession
	if err := s.db.GetContext(ctx, &cs, query, sessionID); err != nil {
		return cs, notFound(err, mystic.ErrSessionNotFound)
	}
	return cs, nil
}
