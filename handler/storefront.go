package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/booking"
	"github.com/phbpx/mystic-services/calendar"
	"github.com/phbpx/mystic-services/intake"
	"github.com/phbpx/mystic-services/payment"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// StorefrontHandler serves the buyer-facing API.
type StorefrontHandler struct {
	catalog   mystic.Catalog
	calendar  *calendar.Calendar
	ledger    *booking.Ledger
	initiator *payment.Initiator
	poller    *payment.Poller
	intake    *intake.Service
	log       *otelzap.SugaredLogger
}

func NewStorefrontHandler(
	catalog mystic.Catalog,
	cal *calendar.Calendar,
	ledger *booking.Ledger,
	initiator *payment.Initiator,
	poller *payment.Poller,
	intakes *intake.Service,
	log *otelzap.SugaredLogger,
) *StorefrontHandler {
	return &StorefrontHandler{
		catalog:   catalog,
		calendar:  cal,
		ledger:    ledger,
		initiator: initiator,
		poller:    poller,
		intake:    intakes,
		log:       log,
	}
}

func (sh StorefrontHandler) Services(rw http.ResponseWriter, r *http.Request) {
	respond(r.Context(), rw, http.StatusOK, map[string]interface{}{
		"services": sh.catalog.Services(),
	})
}

func (sh StorefrontHandler) AvailableSlots(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := chi.URLParam(r, "date")

	day, err := sh.calendar.Schedule().ParseDate(date)
	if err != nil {
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	slots, err := sh.calendar.AvailableSlots(ctx, day)
	if err != nil {
		sh.log.Ctx(ctx).Errorw("AvailableSlots", "date", date, "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]interface{}{
		"date":      date,
		"available": slots,
	})
}

type reserveRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	mystic.Customer
}

func (sh StorefrontHandler) Reserve(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req reserveRequest
	if err := decode(r, &req); err != nil {
		sh.log.Ctx(ctx).Errorw("Reserve", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	res, err := sh.ledger.Reserve(ctx, req.Date, req.StartTime, req.Customer)
	if err != nil {
		sh.log.Ctx(ctx).Errorw("Reserve", "date", req.Date, "start", req.StartTime, "error", err.Error())

		if errors.Is(err, mystic.ErrSlotConflict) {
			body := errBody(http.StatusConflict, err)
			if day, perr := sh.calendar.Schedule().ParseDate(req.Date); perr == nil {
				if slots, serr := sh.calendar.AvailableSlots(ctx, day); serr == nil {
					body["available"] = slots
				}
			}
			respond(ctx, rw, http.StatusConflict, body)
			return
		}

		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusCreated, map[string]interface{}{
		"reservation": res,
	})
}

type checkoutRequest struct {
	ServiceID string `json:"service_id"`
	OriginURL string `json:"origin_url"`
}

func (sh StorefrontHandler) StartCheckout(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		sh.log.Ctx(ctx).Errorw("StartCheckout", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.OriginURL) == "" {
		req.OriginURL = r.Header.Get("Origin")
	}

	sess, err := sh.initiator.StartCheckout(ctx, req.ServiceID, req.OriginURL)
	if err != nil {
		sh.log.Ctx(ctx).Errorw("StartCheckout", "service", req.ServiceID, "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, sess)
}

func (sh StorefrontHandler) PaymentStatus(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := sh.poller.Resolve(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		sh.log.Ctx(ctx).Errorw("PaymentStatus", "session", res.SessionID, "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, res)
}

type intakeRequest struct {
	SessionID   string `json:"session_id"`
	ServiceType string `json:"service_type"`
	mystic.IntakeFields
}

func (sh StorefrontHandler) SubmitIntake(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req intakeRequest
	if err := decode(r, &req); err != nil {
		sh.log.Ctx(ctx).Errorw("SubmitIntake", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	in, err := sh.intake.Submit(ctx, req.SessionID, req.ServiceType, req.IntakeFields)
	if err != nil {
		sh.log.Ctx(ctx).Errorw("SubmitIntake", "session", req.SessionID, "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusCreated, in)
}
