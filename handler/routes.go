package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/riandyrn/otelchi"
)

// API holds everything the router mounts. Webhook is optional, and an
// empty CORSOrigins disables cross-origin access.
type API struct {
	ServerName  string
	CORSOrigins []string
	Storefront  *StorefrontHandler
	Admin       *AdminHandler
	Webhook     *WebhookHandler
	Readiness   func(ctx context.Context) error
	Metrics     http.Handler
}

// Routes builds the router with the request middleware stack.
func Routes(api API) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(otelchi.Middleware(api.ServerName, otelchi.WithChiRoutes(r)))
	if len(api.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: api.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	sh := api.Storefront
	r.Get("/services", sh.Services)
	r.Get("/slots/{date}", sh.AvailableSlots)
	r.Post("/reservations", sh.Reserve)
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", sh.StartCheckout)
		r.Get("/status/{sessionID}", sh.PaymentStatus)
	})
	r.Post("/intakes", sh.SubmitIntake)

	ah := api.Admin
	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", ah.Login)
		r.Group(func(r chi.Router) {
			r.Use(ah.RequireAdmin)
			r.Get("/reservations", ah.Reservations)
			r.Put("/reservations/{id}/status", ah.UpdateReservationStatus)
			r.Get("/intakes", ah.Intakes)
			r.Put("/intakes/{id}/status", ah.UpdateIntakeStatus)
		})
	})

	if api.Webhook != nil {
		r.Post("/webhook/stripe", api.Webhook.Stripe)
	}

	if api.Readiness != nil {
		r.Get("/readiness", readiness(api.Readiness))
	}
	if api.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", api.Metrics)
	}

	return r
}

func readiness(check func(ctx context.Context) error) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		if err := check(ctx); err != nil {
			respond(ctx, rw, http.StatusInternalServerError, map[string]string{"status": "db not ready"})
			return
		}
		respond(ctx, rw, http.StatusOK, map[string]string{"status": "ok"})
	}
}
