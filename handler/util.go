package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/pkg/auth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const maxBody = 1 << 20

var errBadBody = errors.New("request body is not valid JSON")

func decode(r *http.Request, into interface{}) error {
	rawJson, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}
	if err := json.Unmarshal(rawJson, into); err != nil {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}
	return nil
}

func respond(ctx context.Context, rw http.ResponseWriter, status int, data interface{}) {
	ctx, span := otel.GetTracerProvider().Tracer("").Start(ctx, "handler.respond")
	span.SetAttributes(attribute.Int("http.status", status))
	defer span.End()

	if status == http.StatusNoContent || data == nil {
		rw.WriteHeader(status)
		return
	}

	rawJson, err := json.Marshal(data)
	if err != nil {
		panic("respond-json-marshal:" + err.Error())
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	rw.Write(rawJson)
}

func respondErr(ctx context.Context, rw http.ResponseWriter, status int, err error) {
	respond(ctx, rw, status, errBody(status, err))
}

func errBody(status int, err error) map[string]interface{} {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	body := map[string]interface{}{
		"code":  http.StatusText(status),
		"error": msg,
	}
	if ve, ok := mystic.IsValidation(err); ok && len(ve.Fields) > 0 {
		body["fields"] = ve.Fields
	}
	return body
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	if _, ok := mystic.IsValidation(err); ok {
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, errBadBody),
		errors.Is(err, mystic.ErrInvalidSlot),
		errors.Is(err, mystic.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, mystic.ErrUnknownService),
		errors.Is(err, mystic.ErrReservationNotFound),
		errors.Is(err, mystic.ErrIntakeNotFound):
		return http.StatusNotFound
	case errors.Is(err, mystic.ErrSlotConflict),
		errors.Is(err, mystic.ErrIntakeExists):
		return http.StatusConflict
	case errors.Is(err, mystic.ErrNotPaid):
		return http.StatusPaymentRequired
	case errors.Is(err, mystic.ErrPaymentProvider):
		return http.StatusBadGateway
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
