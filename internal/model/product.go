// Package model defines data structures used throughout the storefront.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors for catalog records.
var (
	ErrEmptyProductID  = errors.New("product id cannot be empty")
	ErrNegativePrice   = errors.New("price cannot be negative")
	ErrRatingRange     = errors.New("rating must be between 0 and 5")
	ErrEmptyCategoryID = errors.New("category must carry a slug or an id")
)

// Rating bounds and the value shown when a product has no rating.
const (
	MinRating     = 0.0
	MaxRating     = 5.0
	DefaultRating = 4.0
)

// Product is a catalog entry as returned by the catalog service.
// Products are immutable once fetched.
type Product struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Price  decimal.Decimal `json:"price"`
	Image  string          `json:"image,omitempty"`
	Rating *float64        `json:"rating,omitempty"`
}

// UnmarshalJSON accepts numeric or string product ids.
func (p *Product) UnmarshalJSON(data []byte) error {
	type alias Product
	var raw struct {
		alias
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := identity(raw.ID)
	if err != nil {
		return fmt.Errorf("product id: %w", err)
	}

	*p = Product(raw.alias)
	p.ID = id
	return nil
}

// Validate checks the product invariants.
func (p *Product) Validate() error {
	if p.ID == "" {
		return ErrEmptyProductID
	}

	if p.Price.IsNegative() {
		return ErrNegativePrice
	}

	if p.Rating != nil && (*p.Rating < MinRating || *p.Rating > MaxRating) {
		return ErrRatingRange
	}

	return nil
}

// DisplayRating returns the rating, or DefaultRating when the catalog has none.
func (p *Product) DisplayRating() float64 {
	if p.Rating == nil {
		return DefaultRating
	}
	return *p.Rating
}

// Category is a catalog category used as a product filter.
type Category struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// UnmarshalJSON reads {slug, name} and falls back to id when slug is absent.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Slug string          `json:"slug"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	slug := raw.Slug
	if slug == "" {
		id, err := identity(raw.ID)
		if err != nil {
			return fmt.Errorf("category id: %w", err)
		}
		slug = id
	}
	if slug == "" {
		return ErrEmptyCategoryID
	}

	c.Slug = slug
	c.Name = raw.Name
	if c.Name == "" {
		c.Name = slug
	}
	return nil
}

// identity normalizes a JSON string or number into a string identifier.
func identity(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
