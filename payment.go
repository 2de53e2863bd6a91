package mystic

import (
	"context"
	"time"
)

// PaymentStatus is the status of a checkout session as recorded locally.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentExpired PaymentStatus = "expired"
	PaymentError   PaymentStatus = "error"
)

// Metadata keys attached to every checkout session.
const (
	MetaServiceType = "service_type"
	MetaServiceName = "service_name"
)

// SessionRequest describes a hosted checkout session to open.
type SessionRequest struct {
	AmountMinor int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// Session is a provider-issued checkout session.
type Session struct {
	ID          string `json:"session_id"`
	RedirectURL string `json:"url"`
}

// SessionStatus is what the provider reports for a session.
type SessionStatus struct {
	PaymentStatus string            `json:"payment_status"`
	SessionStatus string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func (s SessionStatus) Paid() bool    { return s.PaymentStatus == "paid" }
func (s SessionStatus) Expired() bool { return s.SessionStatus == "expired" }

// SessionEvent is a provider-pushed notification about a session.
type SessionEvent struct {
	SessionID string
	Status    SessionStatus
}

// PaymentProvider is the hosted payment provider. It is the only authority
// on whether a session was paid.
type PaymentProvider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
}

// Outcome is the state of a payment resolution.
type Outcome string

const (
	OutcomeChecking  Outcome = "checking"
	OutcomeCompleted Outcome = "completed"
	OutcomeExpired   Outcome = "expired"
	OutcomeError     Outcome = "error"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Terminal reports whether no further status queries follow o.
func (o Outcome) Terminal() bool {
	return o != OutcomeChecking && o != ""
}

// CheckoutSession is the terminal decision recorded for a session.
type CheckoutSession struct {
	SessionID   string        `json:"session_id" db:"session_id"`
	ServiceType string        `json:"service_type" db:"service_type"`
	ServiceName string        `json:"service_name" db:"service_name"`
	Status      PaymentStatus `json:"status" db:"status"`
	AmountTotal int64         `json:"amount_total" db:"amount_total"`
	Currency    string        `json:"currency" db:"currency"`
	ResolvedAt  time.Time     `json:"resolved_at" db:"resolved_at"`
}

// OutcomeStore keeps terminal session decisions. RecordOutcome never
// overwrites an existing record.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, s CheckoutSession) error
	Outcome(ctx context.Context, sessionID string) (CheckoutSession, error)
}
