// Package handler provides the HTTP and WebSocket handlers of the storefront
// session service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/model"
	"github.com/vyrodovalexey/vibekart/internal/session"
	"github.com/vyrodovalexey/vibekart/internal/view"
)

// Version is the application version.
const Version = "1.0.0"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// SessionManager is the part of session.Manager the handlers use.
type SessionManager interface {
	Create(ctx context.Context) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) error
	Len() int
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// SessionResponse is returned when a session is created or read.
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	View      view.View `json:"view"`
}

func newSessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt().UTC(),
		View:      s.View(),
	}
}

// sessionErrorStatus maps session errors to an HTTP status and client message.
func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		return http.StatusBadRequest, "invalid session ID"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone, "session closed"
	case errors.Is(err, session.ErrProductNotListed):
		return http.StatusNotFound, "product is not in the displayed list"
	case errors.Is(err, session.ErrEmptyProductID):
		return http.StatusBadRequest, "product_id is required"
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusServiceUnavailable, "too many sessions"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	writeJSON(w, logger, status, model.NewErrorResponse[any](message))
}
