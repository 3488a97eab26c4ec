package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/internal/runs"
	"github.com/sells-group/research-dashboard/internal/store"
)

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }
func (e *badRequest) Unwrap() error { return errBadRequest }

func invalid(msg string) error { return &badRequest{msg: msg} }

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, runs.ErrNoCompany):
		return http.StatusBadRequest
	case store.IsNotFound(err):
		return http.StatusNotFound
	}

	var pe *resilience.ProviderError
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError
	}
	switch pe.Kind {
	case resilience.KindNotFound:
		return http.StatusNotFound
	case resilience.KindNoCredential, resilience.KindNoConfig:
		return http.StatusPreconditionFailed
	case resilience.KindInvalidCredential:
		return http.StatusUnprocessableEntity
	case resilience.KindRateLimited, resilience.KindDailyLimitExceeded, resilience.KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var pe *resilience.ProviderError
	if errors.As(err, &pe) {
		body.Kind = pe.Kind.String()
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed",
			zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid("invalid request body")
	}
	return nil
}
