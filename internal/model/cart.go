package model

import "github.com/shopspring/decimal"

// CartLine is one aggregated cart entry. Product is the snapshot taken at the
// first add; later adds only bump Quantity.
type CartLine struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// Subtotal returns price × quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartState is the ordered set of cart lines, ordered by first add.
type CartState struct {
	Lines []CartLine `json:"lines"`
}

// Count returns the sum of line quantities.
func (s CartState) Count() int {
	count := 0
	for _, line := range s.Lines {
		count += line.Quantity
	}
	return count
}

// Total returns the sum of line subtotals.
func (s CartState) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}
