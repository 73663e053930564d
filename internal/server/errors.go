package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/model"
	"github.com/yourorg/oracle-yield-curve/internal/oracle"
	"github.com/yourorg/oracle-yield-curve/internal/registry"
	"github.com/yourorg/oracle-yield-curve/internal/security"
	"github.com/yourorg/oracle-yield-curve/internal/validation"
	"github.com/yourorg/oracle-yield-curve/internal/yieldcurve"
	"github.com/yourorg/oracle-yield-curve/internal/yieldmath"
)

var (
	errInvalidBody     = errors.New("invalid request body")
	errBodyTooLarge    = errors.New("request body too large")
	errInvalidDecimals = errors.New("invalid output_decimals")
	errMissingKey      = errors.New("missing key")
	errRateLimited     = errors.New("rate limit exceeded")
	errUnauthorized    = errors.New("unauthorized")
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrEntryNotFound),
		errors.Is(err, model.ErrUnknownKey):
		return http.StatusNotFound
	case errors.Is(err, oracle.ErrStaleEntry),
		errors.Is(err, oracle.ErrPublisherExists),
		errors.Is(err, registry.ErrKeyConflict):
		return http.StatusConflict
	case errors.Is(err, oracle.ErrUnknownPublisher),
		errors.Is(err, security.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, validation.ErrInvalidEntry),
		errors.Is(err, yieldcurve.ErrInvalidOutputDecimals),
		errors.Is(err, yieldmath.ErrInvalidDecimals),
		errors.Is(err, errInvalidBody),
		errors.Is(err, errInvalidDecimals),
		errors.Is(err, errMissingKey):
		return http.StatusBadRequest
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
