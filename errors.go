package mystic

import (
	"errors"
	"strings"
)

var (
	ErrUnknownService      = errors.New("unknown service")
	ErrPaymentProvider     = errors.New("payment provider failure")
	ErrSlotConflict        = errors.New("slot already reserved")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrNotPaid             = errors.New("payment not confirmed")
	ErrIntakeExists        = errors.New("intake already submitted for this session")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrIntakeNotFound      = errors.New("intake not found")
	ErrInvalidStatus       = errors.New("invalid status")
)

// ValidationError reports request fields that are missing or unusable.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing required fields"
	}
	if len(e.Fields) == 0 {
		return reason
	}
	return reason + ": " + strings.Join(e.Fields, ", ")
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func missing(fields ...[2]string) []string {
	var out []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			out = append(out, f[0])
		}
	}
	return out
}
