package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(reservations.WithLabelValues("conflict"))
	IncReservation("conflict")
	assert.Equal(t, before+1, testutil.ToFloat64(reservations.WithLabelValues("conflict")))

	before = testutil.ToFloat64(pollAttempts)
	IncPollAttempt()
	IncPollAttempt()
	assert.Equal(t, before+2, testutil.ToFloat64(pollAttempts))

	IncPaymentOutcome("completed")
	assert.GreaterOrEqual(t, testutil.ToFloat64(paymentOutcomes.WithLabelValues("completed")), 1.0)
}
