package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/model"
	"github.com/vyrodovalexey/vibekart/internal/session"
	"github.com/vyrodovalexey/vibekart/internal/view"
)

const testDebounce = 5 * time.Millisecond

// stubCatalog serves two categories and filters products by category and
// case-insensitive title substring.
type stubCatalog struct {
	mu       sync.Mutex
	products []stubProduct
}

type stubProduct struct {
	category string
	product  model.Product
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		products: []stubProduct{
			{"electronics", model.Product{ID: "1", Title: "Smart TV", Price: decimal.RequireFromString("499.99")}},
			{"electronics", model.Product{ID: "2", Title: "Radio", Price: decimal.RequireFromString("19.50")}},
			{"jewelery", model.Product{ID: "3", Title: "Silver Ring", Price: decimal.RequireFromString("120")}},
		},
	}
}

func (c *stubCatalog) Categories(_ context.Context) ([]model.Category, error) {
	return []model.Category{
		{Slug: "electronics", Name: "Electronics"},
		{Slug: "jewelery", Name: "Jewelery"},
	}, nil
}

func (c *stubCatalog) Products(_ context.Context, filter model.Filter) ([]model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := []model.Product{}
	for _, p := range c.products {
		if filter.Category != "" && p.category != filter.Category {
			continue
		}
		if !strings.Contains(strings.ToLower(p.product.Title), strings.ToLower(filter.SearchText)) {
			continue
		}
		out = append(out, p.product)
	}
	return out, nil
}

func newTestManager(t *testing.T, opts session.Options) *session.Manager {
	t.Helper()

	if opts.Debounce == 0 {
		opts.Debounce = testDebounce
	}
	m := session.NewManager(newStubCatalog(), zap.NewNop(), opts)
	t.Cleanup(m.CloseAll)
	return m
}

func newTestRouter(m SessionManager) *mux.Router {
	router := mux.NewRouter()
	NewRESTHandler(m, zap.NewNop()).RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) model.APIResponse[T] {
	t.Helper()

	var resp model.APIResponse[T]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

// waitView polls the session view until cond holds.
func waitView(t *testing.T, s *session.Session, cond func(view.View) bool) view.View {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		v := s.View()
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("view never reached the expected state, last: status=%s generation=%d", v.Status, v.Generation)
		}
		time.Sleep(time.Millisecond)
	}
}

func settled(v view.View) bool {
	return v.Status != view.StatusLoading
}
