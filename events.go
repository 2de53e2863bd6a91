package mystic

import "context"

// Routing keys of the events published to the fulfillment side.
const (
	EventReservationCreated       = "reservation.created"
	EventReservationStatusChanged = "reservation.status_changed"
	EventPaymentCompleted         = "payment.completed"
	EventPaymentExpired           = "payment.expired"
	EventIntakeSubmitted          = "intake.submitted"
	EventIntakeStatusChanged      = "intake.status_changed"
)

// Publisher delivers domain events. Failures never abort the flow that
// raised the event.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}
