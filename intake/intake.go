// Package intake collects client details after a confirmed payment.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/pkg/metrics"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

type Service struct {
	outcomes mystic.OutcomeStore
	store    mystic.IntakeStore
	events   mystic.Publisher
	log      *otelzap.SugaredLogger
	now      func() time.Time
}

func NewService(outcomes mystic.OutcomeStore, store mystic.IntakeStore, events mystic.Publisher, log *otelzap.SugaredLogger) *Service {
	return &Service{
		outcomes: outcomes,
		store:    store,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// Submit stores the intake for a paid session. Sessions without a recorded
// completed payment get ErrNotPaid; a second intake for the same session
// gets ErrIntakeExists.
func (s *Service) Submit(ctx context.Context, sessionID, serviceType string, fields mystic.IntakeFields) (mystic.ClientIntake, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		metrics.IncIntake("invalid")
		return mystic.ClientIntake{}, &mystic.ValidationError{Fields: []string{"session_id"}}
	}

	paid, err := s.outcomes.Outcome(ctx, sessionID)
	switch {
	case errors.Is(err, mystic.ErrSessionNotFound):
		metrics.IncIntake("not_paid")
		return mystic.ClientIntake{}, mystic.ErrNotPaid
	case err != nil:
		metrics.IncIntake("error")
		return mystic.ClientIntake{}, fmt.Errorf("looking up payment: %w", err)
	case paid.Status != mystic.PaymentPaid:
		metrics.IncIntake("not_paid")
		return mystic.ClientIntake{}, mystic.ErrNotPaid
	}

	fields = fields.Trimmed()
	if missing := fields.Missing(); len(missing) > 0 {
		metrics.IncIntake("invalid")
		return mystic.ClientIntake{}, &mystic.ValidationError{Fields: missing}
	}

	serviceType = strings.TrimSpace(serviceType)
	if serviceType == "" {
		serviceType = paid.ServiceType
	}
	if paid.ServiceType != "" && serviceType != paid.ServiceType {
		metrics.IncIntake("invalid")
		return mystic.ClientIntake{}, &mystic.ValidationError{
			Fields: []string{"service_type"},
			Reason: "service type does not match the paid session",
		}
	}
	if serviceType != mystic.LoveRitual {
		fields.BelovedName = ""
	}

	now := s.now().UTC()
	in := mystic.ClientIntake{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		ServiceType:  serviceType,
		IntakeFields: fields,
		Status:       mystic.IntakePending,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	if err := s.store.CreateIntake(ctx, in); err != nil {
		if errors.Is(err, mystic.ErrIntakeExists) {
			metrics.IncIntake("duplicate")
			return mystic.ClientIntake{}, err
		}
		metrics.IncIntake("error")
		return mystic.ClientIntake{}, fmt.Errorf("create intake: %w", err)
	}

	metrics.IncIntake("created")
	s.publish(ctx, mystic.EventIntakeSubmitted, in)

	return in, nil
}

// List returns every intake with its recorded payment, newest first.
func (s *Service) List(ctx context.Context) ([]mystic.ClientIntake, error) {
	return s.store.ListIntakes(ctx)
}

// UpdateStatus moves an intake through fulfillment. Any known status may
// follow any other.
func (s *Service) UpdateStatus(ctx context.Context, id string, status mystic.IntakeStatus) (mystic.ClientIntake, error) {
	if !status.Valid() {
		return mystic.ClientIntake{}, fmt.Errorf("%w: %q", mystic.ErrInvalidStatus, status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return mystic.ClientIntake{}, mystic.ErrIntakeNotFound
	}

	in, err := s.store.UpdateIntakeStatus(ctx, id, status, s.now().UTC())
	if err != nil {
		return mystic.ClientIntake{}, err
	}

	s.publish(ctx, mystic.EventIntakeStatusChanged, in)

	return in, nil
}

func (s *Service) publish(ctx context.Context, key string, v any) {
	if err := s.events.PublishJSON(ctx, key, v); err != nil {
		s.log.Ctx(ctx).Warnw("publish", "event", key, "error", err.Error())
	}
}
