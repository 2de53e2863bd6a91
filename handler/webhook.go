package handler

import (
	"errors"
	"io"
	"net/http"

	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/payment"
	"github.com/phbpx/mystic-services/payment/stripecheckout"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// WebhookVerifier authenticates a provider event delivery.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (mystic.SessionEvent, error)
}

type WebhookHandler struct {
	verifier WebhookVerifier
	poller   *payment.Poller
	log      *otelzap.SugaredLogger
}

func NewWebhookHandler(verifier WebhookVerifier, poller *payment.Poller, log *otelzap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		poller:   poller,
		log:      log,
	}
}

func (wh WebhookHandler) Stripe(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	ev, err := wh.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripecheckout.ErrUnhandledEvent) {
			respond(ctx, rw, http.StatusOK, map[string]bool{"received": true})
			return
		}
		wh.log.Ctx(ctx).Warnw("Stripe", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	outcome, err := wh.poller.Acknowledge(ctx, ev)
	if err != nil {
		wh.log.Ctx(ctx).Errorw("Stripe", "session", ev.SessionID, "error", err.Error())
		respondErr(ctx, rw, http.StatusInternalServerError, err)
		return
	}
	wh.log.Ctx(ctx).Infow("Stripe", "session", ev.SessionID, "outcome", outcome)

	respond(ctx, rw, http.StatusOK, map[string]interface{}{
		"received": true,
		"outcome":  outcome,
	})
}
