package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// CartSummary is the cart as returned by the session API.
type CartSummary struct {
	Lines []CartLine      `json:"lines"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// NewCartSummary derives count and total from the cart state.
func NewCartSummary(state CartState) CartSummary {
	lines := state.Lines
	if lines == nil {
		lines = []CartLine{}
	}
	return CartSummary{
		Lines: lines,
		Count: state.Count(),
		Total: state.Total(),
	}
}

// AddToCartRequest is the body of POST /api/v1/sessions/{id}/cart.
type AddToCartRequest struct {
	ProductID string `json:"product_id"`
}

// WebSocketMessage is exchanged over the storefront WebSocket.
// Server to client: view, error. Client to server: query, add_to_cart.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Search    *string   `json:"search,omitempty"`
	Category  *string   `json:"category,omitempty"`
	ProductID string    `json:"product_id,omitempty"`
	View      any       `json:"view,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeView      = "view"
	WSMessageTypeQuery     = "query"
	WSMessageTypeAddToCart = "add_to_cart"
	WSMessageTypeError     = "error"
)

// NewViewMessage wraps a view snapshot for the WebSocket.
func NewViewMessage(sessionID string, view any) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeView,
		SessionID: sessionID,
		View:      view,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorMessage creates a WebSocket error message.
func NewErrorMessage(msg string) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeError,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}

// QueryRequest is the body of PUT /api/v1/sessions/{id}/query. A nil field
// leaves that part of the filter unchanged.
type QueryRequest struct {
	Search   *string `json:"search"`
	Category *string `json:"category"`
}
