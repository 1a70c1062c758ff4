// Package view composes query and cart state into what the presentation
// layer renders.
package view

import (
	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/vibekart/internal/model"
)

// Status is the display state of the product area.
type Status string

// Display states.
const (
	StatusLoading   Status = "loading"
	StatusEmpty     Status = "empty"
	StatusPopulated Status = "populated"
)

// View is everything a storefront screen needs.
type View struct {
	Status     Status           `json:"status"`
	Filter     model.Filter     `json:"filter"`
	Generation uint64           `json:"generation"`
	Items      []model.Product  `json:"items"`
	Categories []model.Category `json:"categories"`
	Cart       []model.CartLine `json:"cart"`
	CartCount  int              `json:"cart_count"`
	CartTotal  decimal.Decimal  `json:"cart_total"`
}

// StatusOf derives the display state from a query state.
func StatusOf(q model.QueryState) Status {
	switch {
	case q.Loading:
		return StatusLoading
	case len(q.Items) == 0:
		return StatusEmpty
	default:
		return StatusPopulated
	}
}

// Compose builds a View. It is a pure function of its arguments and is
// recomputed on every state change.
func Compose(q model.QueryState, c model.CartState, categories []model.Category) View {
	v := View{
		Status:     StatusOf(q),
		Filter:     q.Filter,
		Generation: q.Generation,
		Items:      q.Items,
		Categories: categories,
		Cart:       c.Lines,
		CartCount:  c.Count(),
		CartTotal:  c.Total(),
	}

	if v.Items == nil {
		v.Items = []model.Product{}
	}
	if v.Categories == nil {
		v.Categories = []model.Category{}
	}
	if v.Cart == nil {
		v.Cart = []model.CartLine{}
	}

	return v
}
