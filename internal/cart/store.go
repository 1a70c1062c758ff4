// Package cart aggregates "add to cart" actions into quantity-counted lines.
package cart

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/vyrodovalexey/vibekart/internal/model"
)

// ErrInvalidProduct is returned when a product without identity is added.
var ErrInvalidProduct = errors.New("product cannot be added to cart")

// Store owns the lines of one cart. Lines keep the order of their first add
// and no two lines share a product id.
type Store struct {
	mu    sync.RWMutex
	lines []model.CartLine
	index map[string]int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// AddItem adds one unit of product. The first add snapshots the product into
// a new line at the end; later adds replace that line with one whose quantity
// is one higher.
func (s *Store) AddItem(product model.Product) (model.CartLine, error) {
	if product.ID == "" {
		return model.CartLine{}, fmt.Errorf("add item: %w: %w", ErrInvalidProduct, model.ErrEmptyProductID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, exists := s.index[product.ID]; exists {
		existing := s.lines[i]
		updated := model.CartLine{
			ProductID: existing.ProductID,
			Quantity:  existing.Quantity + 1,
			Product:   existing.Product,
		}
		s.lines[i] = updated
		return updated, nil
	}

	line := model.CartLine{
		ProductID: product.ID,
		Quantity:  1,
		Product:   product,
	}
	s.index[product.ID] = len(s.lines)
	s.lines = append(s.lines, line)
	return line, nil
}

// Lines returns the cart lines in first-add order.
func (s *Store) Lines() []model.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.lines)
}

// Count returns the total quantity across lines.
func (s *Store) Count() int {
	return s.State().Count()
}

// State returns a snapshot of the cart.
func (s *Store) State() model.CartState {
	return model.CartState{Lines: s.Lines()}
}
