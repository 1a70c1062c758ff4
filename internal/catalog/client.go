// Package catalog consumes the external catalog service: the product and
// category read endpoints, and the per-session category directory.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/model"
)

// Upstream failure classes. Every error returned by Client wraps exactly one.
var (
	ErrTransport = errors.New("catalog transport failure")
	ErrParse     = errors.New("catalog parse failure")
)

// Endpoint paths on the catalog service.
const (
	CategoriesPath = "/categories"
	ProductsPath   = "/products"
)

// maxBodyBytes bounds how much of a catalog response is read.
const maxBodyBytes = 8 << 20

// Source is the read interface of the catalog service.
type Source interface {
	// Categories returns every category known to the catalog.
	Categories(ctx context.Context) ([]model.Category, error)

	// Products returns the products matching filter. Empty filter fields are
	// not sent.
	Products(ctx context.Context, filter model.Filter) ([]model.Product, error)
}

// listResponse is the envelope shared by both endpoints.
type listResponse[T any] struct {
	Items []T `json:"items"`
}

// Client issues requests against the catalog service. It holds no state
// besides its configuration and is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client for baseURL. A zero timeout leaves the request
// bounded only by the caller's context.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing catalog base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog base URL %q: scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Categories issues GET /categories.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var body listResponse[model.Category]
	if err := c.get(ctx, CategoriesPath, nil, &body); err != nil {
		return nil, err
	}
	if body.Items == nil {
		return []model.Category{}, nil
	}
	return body.Items, nil
}

// Products issues GET /products with the category and q parameters.
// Products failing validation are dropped; the rest of the list is kept.
func (c *Client) Products(ctx context.Context, filter model.Filter) ([]model.Product, error) {
	var body listResponse[model.Product]
	if err := c.get(ctx, ProductsPath, productQuery(filter), &body); err != nil {
		return nil, err
	}

	items := make([]model.Product, 0, len(body.Items))
	for i := range body.Items {
		if err := body.Items[i].Validate(); err != nil {
			invalidProductsTotal.Inc()
			c.logger.Warn("dropping invalid catalog product",
				zap.Int("index", i),
				zap.String("product_id", body.Items[i].ID),
				zap.Error(err),
			)
			continue
		}
		items = append(items, body.Items[i])
	}
	return items, nil
}

// productQuery builds the /products query, omitting empty values.
func productQuery(filter model.Filter) url.Values {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.SearchText != "" {
		q.Set("q", filter.SearchText)
	}
	return q
}

// get performs the request and decodes a JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	start := time.Now()
	err := c.do(ctx, u.String(), out)
	observeRequest(path, err, time.Since(start))

	if err != nil {
		c.logger.Debug("catalog request failed",
			zap.String("url", u.String()),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
		}
		return fmt.Errorf("%w: %w", ErrParse, err)
	}

	return nil
}
