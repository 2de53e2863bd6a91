package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mystic"

var (
	once sync.Once

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Count of reservation attempts by result.",
		},
		[]string{"result"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Count of checkout sessions opened by service and result.",
		},
		[]string{"service", "result"},
	)

	pollAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_poll_attempts_total",
			Help:      "Count of session status queries sent to the payment provider.",
		},
	)

	paymentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_outcomes_total",
			Help:      "Count of payment resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	intakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intakes_total",
			Help:      "Count of intake submissions by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservations, checkouts, pollAttempts, paymentOutcomes, intakes)
	})
}

func IncReservation(result string) {
	reservations.WithLabelValues(result).Inc()
}

func IncCheckout(service, result string) {
	checkouts.WithLabelValues(service, result).Inc()
}

func IncPollAttempt() {
	pollAttempts.Inc()
}

func IncPaymentOutcome(outcome string) {
	paymentOutcomes.WithLabelValues(outcome).Inc()
}

func IncIntake(result string) {
	intakes.WithLabelValues(result).Inc()
}
