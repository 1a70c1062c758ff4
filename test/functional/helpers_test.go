//go:build functional

// Package functional runs the storefront service end to end against a fake
// catalog service speaking the upstream wire format.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/catalog"
	"github.com/vyrodovalexey/vibekart/internal/config"
	"github.com/vyrodovalexey/vibekart/internal/server"
	"github.com/vyrodovalexey/vibekart/internal/session"
)

// Environment variable names for test configuration.
const (
	EnvTestDebounce = "TEST_DEBOUNCE"
	EnvTestLogLevel = "TEST_LOG_LEVEL"
)

// Default test configuration values.
const (
	DefaultTestDebounce    = 20 * time.Millisecond
	DefaultRequestTimeout  = 5 * time.Second
	DefaultSettleTimeout   = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// upstreamProducts is the fake catalog: numeric ids, string and numeric
// prices, one product without rating.
const upstreamProducts = `[
	{"id": 1, "title": "Mens Casual Shirt", "price": 22.3, "category": "clothing", "rating": 4.1},
	{"id": 2, "title": "Solid Gold Ring", "price": "695", "category": "jewelery", "rating": 4.6},
	{"id": 3, "title": "Silver Dragon Ring", "price": 10.99, "category": "jewelery"},
	{"id": 4, "title": "SSD 1TB", "price": 109, "category": "electronics", "rating": 4.8}
]`

const upstreamCategories = `{"items": [
	{"id": "clothing", "name": "Clothing"},
	{"slug": "jewelery", "name": "Jewelery"},
	{"id": "electronics"}
]}`

// FakeCatalog is an httptest server with /categories and /products.
type FakeCatalog struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
	delay    map[string]time.Duration
}

// NewFakeCatalog starts the fake catalog service.
func NewFakeCatalog(t *testing.T) *FakeCatalog {
	t.Helper()

	var all []map[string]any
	if err := json.Unmarshal([]byte(upstreamProducts), &all); err != nil {
		t.Fatalf("invalid fixture: %v", err)
	}

	fc := &FakeCatalog{delay: make(map[string]time.Duration)}
	mux := http.NewServeMux()
	mux.HandleFunc(catalog.CategoriesPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, upstreamCategories)
	})
	mux.HandleFunc(catalog.ProductsPath, func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		q := strings.ToLower(r.URL.Query().Get("q"))

		fc.mu.Lock()
		fc.requests = append(fc.requests, r.URL.RawQuery)
		delay := fc.delay[category+"|"+q]
		fc.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		items := []map[string]any{}
		for _, p := range all {
			if category != "" && p["category"] != category {
				continue
			}
			if !strings.Contains(strings.ToLower(p["title"].(string)), q) {
				continue
			}
			items = append(items, p)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	})

	fc.Server = httptest.NewServer(mux)
	t.Cleanup(fc.Close)
	return fc
}

// Delay makes /products answers for the given filter slow.
func (fc *FakeCatalog) Delay(category, search string, d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.delay[category+"|"+strings.ToLower(search)] = d
}

// ProductRequests returns the raw query of every /products request so far.
func (fc *FakeCatalog) ProductRequests() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return append([]string(nil), fc.requests...)
}

// TestServer runs the full storefront stack on a random port.
type TestServer struct {
	Server   *server.Server
	Sessions *session.Manager
	Catalog  *FakeCatalog
	BaseURL  string
	WSURL    string
}

// NewTestServer starts the storefront service.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	debounce := DefaultTestDebounce
	if val := os.Getenv(EnvTestDebounce); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			debounce = d
		}
	}

	logger := zap.NewNop()
	if level := os.Getenv(EnvTestLogLevel); level != "" {
		cfg := zap.NewDevelopmentConfig()
		if err := cfg.Level.UnmarshalText([]byte(level)); err == nil {
			if l, err := cfg.Build(); err == nil {
				logger = l
			}
		}
	}

	fc := NewFakeCatalog(t)
	client, err := catalog.NewClient(fc.URL, 2*time.Second, logger)
	if err != nil {
		t.Fatalf("failed to create catalog client: %v", err)
	}

	sessions := session.NewManager(client, logger, session.Options{Debounce: debounce})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	cfg := &config.Config{
		ServerPort:      listener.Addr().(*net.TCPAddr).Port,
		LogLevel:        "error",
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  true,
		AllowedOrigins:  []string{"*"},
	}
	srv := server.New(cfg, logger, sessions)

	go func() {
		if err := srv.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	ts := &TestServer{
		Server:   srv,
		Sessions: sessions,
		Catalog:  fc,
		BaseURL:  "http://" + listener.Addr().String(),
		WSURL:    "ws://" + listener.Addr().String() + "/ws",
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Logf("server shutdown error: %v", err)
		}
		sessions.CloseAll()
	})

	return ts
}

// APIResponse represents the response envelope.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ProductView is a product as rendered in a view.
type ProductView struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Price  string   `json:"price"`
	Rating *float64 `json:"rating"`
}

// CartLineView is a cart line as rendered in a view.
type CartLineView struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Product   ProductView `json:"product"`
}

// ViewResponse is the storefront view.
type ViewResponse struct {
	Status string `json:"status"`
	Filter struct {
		Search   string `json:"search"`
		Category string `json:"category"`
	} `json:"filter"`
	Generation uint64        `json:"generation"`
	Items      []ProductView `json:"items"`
	Categories []struct {
		Slug string `json:"slug"`
		Name string `json:"name"`
	} `json:"categories"`
	Cart      []CartLineView `json:"cart"`
	CartCount int            `json:"cart_count"`
	CartTotal string         `json:"cart_total"`
}

// SessionResponse is returned by the session endpoints.
type SessionResponse struct {
	ID   string       `json:"id"`
	View ViewResponse `json:"view"`
}

// CartResponse is returned by the cart endpoints.
type CartResponse struct {
	Lines []CartLineView `json:"lines"`
	Count int            `json:"count"`
	Total string         `json:"total"`
}

// Client is a small JSON client for the storefront API.
type Client struct {
	t       *testing.T
	http    *http.Client
	baseURL string
}

// NewClient creates a Client for ts.
func NewClient(t *testing.T, ts *TestServer) *Client {
	return &Client{
		t:       t,
		http:    &http.Client{Timeout: DefaultRequestTimeout},
		baseURL: ts.BaseURL,
	}
}

// Do sends a request and decodes the envelope's data into out when non-nil.
// It returns the status code.
func (c *Client) Do(method, path string, body any, out any) int {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		c.t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode
	}

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.t.Fatalf("failed to decode %s %s: %v", method, path, err)
	}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			c.t.Fatalf("failed to decode data of %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// CreateSession creates a session and fails the test on error.
func (c *Client) CreateSession() SessionResponse {
	c.t.Helper()

	var created SessionResponse
	if status := c.Do(http.MethodPost, "/api/v1/sessions", nil, &created); status != http.StatusCreated {
		c.t.Fatalf("create session: status = %d", status)
	}
	return created
}

// WaitView polls the session until cond holds.
func (c *Client) WaitView(id string, cond func(ViewResponse) bool) ViewResponse {
	c.t.Helper()

	deadline := time.Now().Add(DefaultSettleTimeout)
	for {
		var s SessionResponse
		if status := c.Do(http.MethodGet, "/api/v1/sessions/"+id, nil, &s); status != http.StatusOK {
			c.t.Fatalf("get session: status = %d", status)
		}
		if cond(s.View) {
			return s.View
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("view never reached the expected state: %+v", s.View)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Settled reports whether the view shows a landed result.
func Settled(v ViewResponse) bool {
	return v.Status != "loading"
}

// AtGeneration matches a settled view of generation g.
func AtGeneration(g uint64) func(ViewResponse) bool {
	return func(v ViewResponse) bool {
		return Settled(v) && v.Generation == g
	}
}

// IDs lists the product ids of items.
func IDs(items []ProductView) []string {
	out := make([]string, 0, len(items))
	for _, p := range items {
		out = append(out, p.ID)
	}
	return out
}

func describe(v ViewResponse) string {
	return fmt.Sprintf("status=%s gen=%d items=%v", v.Status, v.Generation, IDs(v.Items))
}
