package http

import (
	"errors"
	"log/slog"
	"net/http"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/httpjson"
	"rallyup/backend/internal/venues"
)

type APIError struct {
	Message   string   `json:"message"`
	Code      string   `json:"code,omitempty"`
	Completed []string `json:"completed,omitempty"`
	Failed    string   `json:"failed,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	httpjson.Write(w, status, v)
}

func Fail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, APIError{Message: msg})
}

// mapError turns a domain error into its status, code and display text.
func mapError(err error) (int, string, string) {
	switch {
	case domain.IsErrPartialFailure(err):
		return http.StatusInternalServerError, "partial_failure", domain.Message(err)
	case domain.IsErrBadRequest(err):
		return http.StatusBadRequest, "bad_request", domain.Message(err)
	case domain.IsErrNotFound(err):
		return http.StatusNotFound, "not_found", domain.Message(err)
	case domain.IsErrMalformedData(err):
		return http.StatusUnprocessableEntity, "malformed_data", domain.Message(err)
	case domain.IsErrPermissionDenied(err):
		return http.StatusForbidden, "permission_denied", domain.Message(err)
	case domain.IsErrCapacityExceeded(err):
		return http.StatusConflict, "capacity_exceeded", domain.Message(err)
	case domain.IsErrWriteFailure(err):
		return http.StatusServiceUnavailable, "write_failure", domain.Message(err)
	case errors.Is(err, venues.ErrNotConfigured):
		return http.StatusServiceUnavailable, "venues_disabled", "Venue search is not available."
	case errors.Is(err, venues.ErrUpstream):
		return http.StatusBadGateway, "venues_upstream", "Venue search is temporarily unavailable."
	default:
		return http.StatusInternalServerError, "internal", domain.Message(err)
	}
}

// failErr writes err as an APIError. Server-side failures are logged.
func failErr(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, code, msg := mapError(err)
	body := APIError{Message: msg, Code: code}
	if pf, ok := domain.AsPartialFailure(err); ok {
		body.Completed = pf.Completed
		body.Failed = pf.Failed
	}
	if status >= 500 {
		log.Error("http: request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Debug("http: request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	WriteJSON(w, status, body)
}
