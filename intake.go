package mystic

import (
	"context"
	"strings"
	"time"
)

// IntakeFields are the personalization details collected after payment.
type IntakeFields struct {
	FullName    string `json:"full_name" db:"full_name"`
	BirthDate   string `json:"birth_date" db:"birth_date"`
	Phone       string `json:"phone" db:"phone"`
	BelovedName string `json:"beloved_name,omitempty" db:"beloved_name"`
	Situation   string `json:"situation" db:"situation"`
	Notes       string `json:"notes,omitempty" db:"notes"`
}

// Missing lists the required fields that are blank. The beloved's name is
// never required.
func (f IntakeFields) Missing() []string {
	return missing(
		[2]string{"full_name", f.FullName},
		[2]string{"birth_date", f.BirthDate},
		[2]string{"phone", f.Phone},
		[2]string{"situation", f.Situation},
	)
}

// Trimmed returns f with surrounding whitespace removed from every field.
func (f IntakeFields) Trimmed() IntakeFields {
	return IntakeFields{
		FullName:    strings.TrimSpace(f.FullName),
		BirthDate:   strings.TrimSpace(f.BirthDate),
		Phone:       strings.TrimSpace(f.Phone),
		BelovedName: strings.TrimSpace(f.BelovedName),
		Situation:   strings.TrimSpace(f.Situation),
		Notes:       strings.TrimSpace(f.Notes),
	}
}

// IntakeStatus tracks the fulfillment of a paid ritual.
type IntakeStatus string

const (
	IntakePending    IntakeStatus = "pending"
	IntakeInProgress IntakeStatus = "in_progress"
	IntakeDone       IntakeStatus = "done"
)

func (s IntakeStatus) Valid() bool {
	switch s {
	case IntakePending, IntakeInProgress, IntakeDone:
		return true
	}
	return false
}

// PaymentInfo summarizes the recorded payment behind an intake.
type PaymentInfo struct {
	Status      PaymentStatus `json:"status"`
	AmountTotal int64         `json:"amount_total"`
	Currency    string        `json:"currency"`
	ServiceName string        `json:"service_name"`
}

// ClientIntake is the intake form bound to a paid session. Payment is only
// filled in on staff listings.
type ClientIntake struct {
	ID          string `json:"id" db:"id"`
	SessionID   string `json:"session_id" db:"session_id"`
	ServiceType string `json:"service_type" db:"service_type"`
	IntakeFields
	Status     IntakeStatus `json:"status" db:"status"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	ModifiedAt time.Time    `json:"modified_at" db:"modified_at"`
	Payment    *PaymentInfo `json:"payment,omitempty" db:"-"`
}

// IntakeStore persists intakes. CreateIntake returns ErrIntakeExists when
// the session already has one.
type IntakeStore interface {
	CreateIntake(ctx context.Context, in ClientIntake) error
	ListIntakes(ctx context.Context) ([]ClientIntake, error)
	UpdateIntakeStatus(ctx context.Context, id string, status IntakeStatus, at time.Time) (ClientIntake, error)
}
