// Package payment opens hosted checkout sessions and resolves their
// outcome against the payment provider.
package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/pkg/metrics"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Initiator opens checkout sessions. It keeps no session state of its own.
type Initiator struct {
	catalog  mystic.Catalog
	provider mystic.PaymentProvider
	currency string
	log      *otelzap.SugaredLogger
}

func NewInitiator(catalog mystic.Catalog, provider mystic.PaymentProvider, currency string, log *otelzap.SugaredLogger) *Initiator {
	return &Initiator{
		catalog:  catalog,
		provider: provider,
		currency: strings.ToLower(currency),
		log:      log,
	}
}

// SuccessURL is where the provider sends the buyer after paying. The
// provider substitutes the session id placeholder.
func SuccessURL(origin string) string {
	return origin + "/success?session_id=" + sessionPlaceholder
}

// CancelURL is where the provider sends a buyer who abandons checkout.
func CancelURL(origin string) string {
	return origin + "/cancel"
}

func normalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &mystic.ValidationError{
			Fields: []string{"origin_url"},
			Reason: "origin must be an absolute http(s) URL",
		}
	}
	u.RawQuery, u.Fragment = "", ""
	return strings.TrimRight(u.String(), "/"), nil
}

// StartCheckout opens a session for serviceID and returns it with the
// provider redirect URL untouched. Provider failures are not retried.
func (in *Initiator) StartCheckout(ctx context.Context, serviceID, originURL string) (mystic.Session, error) {
	ctx, span := otel.GetTracerProvider().Tracer("").Start(ctx, "payment.startCheckout")
	span.SetAttributes(attribute.String("service.id", serviceID))
	defer span.End()

	svc, ok := in.catalog.Service(serviceID)
	if !ok {
		metrics.IncCheckout(serviceID, "unknown_service")
		return mystic.Session{}, fmt.Errorf("%w: %q", mystic.ErrUnknownService, serviceID)
	}

	origin, err := normalizeOrigin(originURL)
	if err != nil {
		metrics.IncCheckout(serviceID, "invalid")
		return mystic.Session{}, err
	}

	req := mystic.SessionRequest{
		AmountMinor: svc.MinorUnits(),
		Currency:    in.currency,
		ProductName: svc.Name,
		SuccessURL:  SuccessURL(origin),
		CancelURL:   CancelURL(origin),
		Metadata: map[string]string{
			mystic.MetaServiceType: svc.ID,
			mystic.MetaServiceName: svc.Name,
		},
	}

	sess, err := in.provider.CreateSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session")
		metrics.IncCheckout(serviceID, "provider_error")
		in.log.Ctx(ctx).Errorw("StartCheckout", "service", serviceID, "error", err.Error())
		return mystic.Session{}, fmt.Errorf("%w: %w", mystic.ErrPaymentProvider, err)
	}

	metrics.IncCheckout(serviceID, "created")
	in.log.Ctx(ctx).Infow("StartCheckout", "service", serviceID, "session", sess.ID, "amount", req.AmountMinor)

	return sess, nil
}
