package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/54b3r/docarag-go/internal/agent"
	"github.com/54b3r/docarag-go/internal/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// errorStatus maps an error to its HTTP status. Validation is checked first
// so an embedder's rejection of blank input, which surfaces from a step,
// still answers 400.
func errorStatus(err error) int {
	var (
		verrs validator.ValidationErrors
		bre   *badRequestError
	)
	switch {
	case errors.Is(err, agent.ErrValidation), errors.As(err, &verrs), errors.As(err, &bre):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// outcome labels a query result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch errorStatus(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusBadGateway:
		return "provider_error"
	default:
		return "error"
	}
}

// decode reads a JSON body into dst and validates its tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &badRequestError{msg: "invalid request body: " + err.Error()}
	}
	return s.validate.Struct(dst)
}

// badRequestError is a malformed body.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

// writeError logs err and writes it as {"error": ...}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
