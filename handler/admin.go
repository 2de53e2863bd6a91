package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/booking"
	"github.com/phbpx/mystic-services/intake"
	"github.com/phbpx/mystic-services/pkg/auth"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// AdminHandler serves the fulfillment staff surface. Every route except
// Login must sit behind RequireAdmin.
type AdminHandler struct {
	admin   *auth.Admin
	ledger  *booking.Ledger
	intakes *intake.Service
	log     *otelzap.SugaredLogger
}

func NewAdminHandler(admin *auth.Admin, ledger *booking.Ledger, intakes *intake.Service, log *otelzap.SugaredLogger) *AdminHandler {
	return &AdminHandler{
		admin:   admin,
		ledger:  ledger,
		intakes: intakes,
		log:     log,
	}
}

// RequireAdmin validates the bearer token on every request.
func (ah AdminHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondErr(ctx, rw, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		if _, err := ah.admin.Authorize(strings.TrimSpace(token)); err != nil {
			ah.log.Ctx(ctx).Warnw("RequireAdmin", "error", err.Error())
			respondErr(ctx, rw, http.StatusUnauthorized, auth.ErrInvalidToken)
			return
		}

		next.ServeHTTP(rw, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (ah AdminHandler) Login(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decode(r, &req); err != nil {
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	token, err := ah.admin.Login(req.Password)
	if err != nil {
		ah.log.Ctx(ctx).Warnw("Login", "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]string{"token": token})
}

func (ah AdminHandler) Reservations(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := ah.ledger.List(ctx, r.URL.Query().Get("date"))
	if err != nil {
		ah.log.Ctx(ctx).Errorw("Reservations", "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]interface{}{"reservations": list})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (ah AdminHandler) UpdateReservationStatus(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req statusRequest
	if err := decode(r, &req); err != nil {
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	res, err := ah.ledger.UpdateStatus(ctx, chi.URLParam(r, "id"), mystic.ReservationStatus(req.Status))
	if err != nil {
		ah.log.Ctx(ctx).Errorw("UpdateReservationStatus", "id", chi.URLParam(r, "id"), "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]interface{}{"reservation": res})
}

func (ah AdminHandler) Intakes(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := ah.intakes.List(ctx)
	if err != nil {
		ah.log.Ctx(ctx).Errorw("Intakes", "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]interface{}{"intakes": list})
}

func (ah AdminHandler) UpdateIntakeStatus(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req statusRequest
	if err := decode(r, &req); err != nil {
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	in, err := ah.intakes.UpdateStatus(ctx, chi.URLParam(r, "id"), mystic.IntakeStatus(req.Status))
	if err != nil {
		ah.log.Ctx(ctx).Errorw("UpdateIntakeStatus", "id", chi.URLParam(r, "id"), "error", err.Error())
		respondErr(ctx, rw, statusOf(err), err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]interface{}{"intake": in})
}
