package cart

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/vibekart/internal/model"
)

func product(id, price string) model.Product {
	return model.Product{ID: id, Title: "product " + id, Price: decimal.RequireFromString(price)}
}

func TestNewStore(t *testing.T) {
	// Act
	s := NewStore()

	// Assert
	if s == nil {
		t.Fatal("NewStore() returned nil")
	}
	if s.index == nil {
		t.Error("index map should be initialized")
	}
	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	if got := s.Lines(); len(got) != 0 {
		t.Errorf("Lines() = %v, want empty", got)
	}
}

func TestStore_AddItem_SameProductTwice(t *testing.T) {
	// Arrange
	s := NewStore()
	p1 := product("p1", "10.00")

	// Act
	first, err := s.AddItem(p1)
	if err != nil {
		t.Fatalf("AddItem() unexpected error: %v", err)
	}
	second, err := s.AddItem(p1)
	if err != nil {
		t.Fatalf("AddItem() unexpected error: %v", err)
	}

	// Assert
	lines := s.Lines()
	if len(lines) != 1 {
		t.Fatalf("len(Lines()) = %d, want 1", len(lines))
	}
	if lines[0].Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", lines[0].Quantity)
	}
	if first.Quantity != 1 {
		t.Errorf("first add returned Quantity = %d, want 1", first.Quantity)
	}
	if second.Quantity != 2 {
		t.Errorf("second add returned Quantity = %d, want 2", second.Quantity)
	}
}

func TestStore_Count(t *testing.T) {
	tests := []struct {
		name  string
		adds  []string
		want  int
		lines int
	}{
		{name: "empty", adds: nil, want: 0, lines: 0},
		{name: "single", adds: []string{"p1"}, want: 1, lines: 1},
		{name: "p1 p1 p2", adds: []string{"p1", "p1", "p2"}, want: 3, lines: 2},
		{name: "many distinct", adds: []string{"a", "b", "c", "d"}, want: 4, lines: 4},
		{name: "many repeated", adds: []string{"a", "a", "a", "a", "a"}, want: 5, lines: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			for _, id := range tt.adds {
				if _, err := s.AddItem(product(id, "1")); err != nil {
					t.Fatalf("AddItem(%s) unexpected error: %v", id, err)
				}
			}

			if got := s.Count(); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
			if got := len(s.Lines()); got != tt.lines {
				t.Errorf("len(Lines()) = %d, want %d", got, tt.lines)
			}
		})
	}
}

func TestStore_LinesKeepFirstAddOrder(t *testing.T) {
	// Arrange
	s := NewStore()

	// Act: p3 receives the most adds but was added last.
	for _, id := range []string{"p1", "p2", "p3", "p3", "p3", "p2"} {
		if _, err := s.AddItem(product(id, "1")); err != nil {
			t.Fatalf("AddItem(%s) unexpected error: %v", id, err)
		}
	}

	// Assert
	lines := s.Lines()
	wantOrder := []string{"p1", "p2", "p3"}
	wantQty := []int{1, 2, 3}
	if len(lines) != len(wantOrder) {
		t.Fatalf("len(Lines()) = %d, want %d", len(lines), len(wantOrder))
	}
	for i := range lines {
		if lines[i].ProductID != wantOrder[i] {
			t.Errorf("lines[%d].ProductID = %s, want %s", i, lines[i].ProductID, wantOrder[i])
		}
		if lines[i].Quantity != wantQty[i] {
			t.Errorf("lines[%d].Quantity = %d, want %d", i, lines[i].Quantity, wantQty[i])
		}
	}
}

func TestStore_AddItem_KeepsFirstSnapshot(t *testing.T) {
	s := NewStore()

	if _, err := s.AddItem(product("p1", "10.00")); err != nil {
		t.Fatalf("AddItem() unexpected error: %v", err)
	}
	repriced := product("p1", "99.00")
	repriced.Title = "renamed"
	if _, err := s.AddItem(repriced); err != nil {
		t.Fatalf("AddItem() unexpected error: %v", err)
	}

	line := s.Lines()[0]
	if !line.Product.Price.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Price = %s, want snapshot price 10.00", line.Product.Price)
	}
	if line.Product.Title != "product p1" {
		t.Errorf("Title = %s, want snapshot title", line.Product.Title)
	}
	if !s.State().Total().Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("Total() = %s, want 20.00", s.State().Total())
	}
}

func TestStore_AddItem_DoesNotMutatePreviousSnapshots(t *testing.T) {
	s := NewStore()

	if _, err := s.AddItem(product("p1", "1")); err != nil {
		t.Fatalf("AddItem() unexpected error: %v", err)
	}
	before := s.Lines()

	if _, err := s.AddItem(product("p1", "1")); err != nil {
		t.Fatalf("AddItem() unexpected error: %v", err)
	}

	if before[0].Quantity != 1 {
		t.Errorf("earlier snapshot changed: Quantity = %d, want 1", before[0].Quantity)
	}
	if s.Lines()[0].Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", s.Lines()[0].Quantity)
	}
}

func TestStore_AddItem_EmptyID(t *testing.T) {
	s := NewStore()

	_, err := s.AddItem(model.Product{Title: "no id"})

	if !errors.Is(err, ErrInvalidProduct) {
		t.Errorf("AddItem() error = %v, want %v", err, ErrInvalidProduct)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}

func TestStore_ConcurrentAdds(t *testing.T) {
	s := NewStore()
	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_, _ = s.AddItem(product("shared", "1"))
			}
		}()
	}
	wg.Wait()

	lines := s.Lines()
	if len(lines) != 1 {
		t.Fatalf("len(Lines()) = %d, want 1", len(lines))
	}
	if lines[0].Quantity != workers*perWorker {
		t.Errorf("Quantity = %d, want %d", lines[0].Quantity, workers*perWorker)
	}
}
