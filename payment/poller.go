package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/pkg/metrics"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 10
)

// Resolution is the terminal result of resolving a session.
type Resolution struct {
	SessionID   string         `json:"session_id"`
	Outcome     mystic.Outcome `json:"outcome"`
	ServiceType string         `json:"service_type,omitempty"`
	Attempts    int            `json:"attempts"`
	Error       string         `json:"error,omitempty"`
}

// Poller asks the provider for a session's status until it is paid,
// expired, fails, or the attempt budget runs out.
type Poller struct {
	provider    mystic.PaymentProvider
	outcomes    mystic.OutcomeStore
	events      mystic.Publisher
	log         *otelzap.SugaredLogger
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d >= 0 {
			p.interval = d
		}
	}
}

func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func NewPoller(provider mystic.PaymentProvider, outcomes mystic.OutcomeStore, events mystic.Publisher, log *otelzap.SugaredLogger, opts ...PollerOption) *Poller {
	p := &Poller{
		provider:    provider,
		outcomes:    outcomes,
		events:      events,
		log:         log,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve drives the session to a terminal outcome. It returns an error
// only when ctx ends first; every provider-side result is a Resolution.
func (p *Poller) Resolve(ctx context.Context, sessionID string) (Resolution, error) {
	ctx, span := otel.GetTracerProvider().Tracer("").Start(ctx, "payment.resolve")
	span.SetAttributes(attribute.String("session.id", sessionID))
	defer span.End()

	res := Resolution{SessionID: sessionID, Outcome: mystic.OutcomeChecking}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return res, &mystic.ValidationError{Fields: []string{"session_id"}}
	}

	for res.Attempts < p.maxAttempts {
		res.Attempts++
		metrics.IncPollAttempt()

		status, err := p.provider.SessionStatus(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.log.Ctx(ctx).Errorw("Resolve", "session", sessionID, "attempt", res.Attempts, "error", err.Error())
			res.Outcome = mystic.OutcomeError
			res.Error = fmt.Errorf("%w: %w", mystic.ErrPaymentProvider, err).Error()
			break
		}

		outcome, done, err := p.decide(ctx, sessionID, status)
		if err != nil {
			p.log.Ctx(ctx).Errorw("Resolve", "session", sessionID, "attempt", res.Attempts, "error", err.Error())
			res.Outcome = mystic.OutcomeError
			res.Error = err.Error()
			break
		}
		if done {
			res.Outcome = outcome
			res.ServiceType = status.Metadata[mystic.MetaServiceType]
			break
		}

		if res.Attempts == p.maxAttempts {
			res.Outcome = mystic.OutcomeTimedOut
			break
		}

		if err := p.wait(ctx); err != nil {
			return res, err
		}
	}

	span.SetAttributes(
		attribute.String("payment.outcome", string(res.Outcome)),
		attribute.Int("payment.attempts", res.Attempts),
	)
	metrics.IncPaymentOutcome(string(res.Outcome))

	return res, nil
}

// Acknowledge applies a provider-pushed status for a session. It returns
// the outcome the status maps to, recording it when terminal. An error
// means the outcome could not be recorded and the push should be retried.
func (p *Poller) Acknowledge(ctx context.Context, ev mystic.SessionEvent) (mystic.Outcome, error) {
	outcome, done, err := p.decide(ctx, ev.SessionID, ev.Status)
	switch {
	case err != nil:
		return mystic.OutcomeError, err
	case !done:
		return mystic.OutcomeChecking, nil
	}
	return outcome, nil
}

// decide maps a provider status to an outcome. Completed and expired are
// provider-authoritative and must be recorded before they are reported;
// anything else means keep checking.
func (p *Poller) decide(ctx context.Context, sessionID string, status mystic.SessionStatus) (mystic.Outcome, bool, error) {
	var (
		outcome mystic.Outcome
		stored  mystic.PaymentStatus
		event   string
	)
	switch {
	case status.Paid():
		outcome, stored, event = mystic.OutcomeCompleted, mystic.PaymentPaid, mystic.EventPaymentCompleted
	case status.Expired():
		outcome, stored, event = mystic.OutcomeExpired, mystic.PaymentExpired, mystic.EventPaymentExpired
	default:
		return mystic.OutcomeChecking, false, nil
	}

	rec := mystic.CheckoutSession{
		SessionID:   sessionID,
		ServiceType: status.Metadata[mystic.MetaServiceType],
		ServiceName: status.Metadata[mystic.MetaServiceName],
		Status:      stored,
		AmountTotal: status.AmountTotal,
		Currency:    status.Currency,
		ResolvedAt:  p.now().UTC(),
	}

	if err := p.outcomes.RecordOutcome(ctx, rec); err != nil {
		return mystic.OutcomeError, false, fmt.Errorf("recording %s outcome: %w", outcome, err)
	}

	if err := p.events.PublishJSON(ctx, event, rec); err != nil {
		p.log.Ctx(ctx).Warnw("publish", "event", event, "error", err.Error())
	}

	return outcome, true, nil
}

func (p *Poller) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.interval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
