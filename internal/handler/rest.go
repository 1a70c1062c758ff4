package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/model"
	"github.com/vyrodovalexey/vibekart/internal/session"
)

// RESTHandler handles the storefront session REST API.
type RESTHandler struct {
	sessions SessionManager
	logger   *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(sessions SessionManager, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/query", h.UpdateQuery).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/cart", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/cart", h.AddToCart).Methods(http.MethodPost)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	response := ReadyResponse{
		Status:   "ready",
		Sessions: h.sessions.Len(),
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(response))
}

// CreateSession handles POST /api/v1/sessions requests.
func (h *RESTHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		h.handleSessionError(w, err, "create session")
		return
	}

	w.Header().Set("Location", "/api/v1/sessions/"+s.ID())
	writeJSON(w, h.logger, http.StatusCreated, model.NewSuccessResponse(newSessionResponse(s)))
}

// GetSession handles GET /api/v1/sessions/{id} requests.
func (h *RESTHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(newSessionResponse(s)))
}

// DeleteSession handles DELETE /api/v1/sessions/{id} requests.
func (h *RESTHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		h.handleSessionError(w, err, "delete session")
		return
	}

	writeJSON(w, h.logger, http.StatusNoContent, nil)
}

// UpdateQuery handles PUT /api/v1/sessions/{id}/query requests. Omitted
// fields keep their current value. The fetch runs after the debounce
// interval, so the returned view still shows the previous result.
func (h *RESTHandler) UpdateQuery(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var input model.QueryRequest
	if !h.decode(w, r, &input) {
		return
	}

	if err := applyQuery(s, input.Search, input.Category); err != nil {
		h.handleSessionError(w, err, "update query")
		return
	}

	writeJSON(w, h.logger, http.StatusAccepted, model.NewSuccessResponse(s.View()))
}

// GetCart handles GET /api/v1/sessions/{id}/cart requests.
func (h *RESTHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(model.NewCartSummary(s.Cart())))
}

// AddToCart handles POST /api/v1/sessions/{id}/cart requests.
func (h *RESTHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var input model.AddToCartRequest
	if !h.decode(w, r, &input) {
		return
	}

	if _, err := s.AddToCart(input.ProductID); err != nil {
		h.handleSessionError(w, err, "add to cart")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(model.NewCartSummary(s.Cart())))
}

// lookup resolves the {id} route variable, writing the error response when
// the session cannot be used.
func (h *RESTHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.handleSessionError(w, err, "get session")
		return nil, false
	}
	return s, true
}

// decode reads a JSON request body into dst.
func (h *RESTHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// handleSessionError writes the response for a failed session operation.
func (h *RESTHandler) handleSessionError(w http.ResponseWriter, err error, operation string) {
	status, message := sessionErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("session operation failed", zap.String("operation", operation), zap.Error(err))
	} else {
		h.logger.Debug("session operation rejected", zap.String("operation", operation), zap.Error(err))
	}
	writeError(w, h.logger, status, message)
}

// applyQuery routes a partial filter update to the matching session setter.
func applyQuery(s *session.Session, search, category *string) error {
	switch {
	case search != nil && category != nil:
		return s.SetFilter(model.Filter{SearchText: *search, Category: *category})
	case search != nil:
		return s.SetSearchText(*search)
	case category != nil:
		return s.SetCategory(*category)
	default:
		return nil
	}
}
