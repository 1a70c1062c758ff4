package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/model"
)

// Directory holds the category list of one session. The list is fetched on
// the first Load and kept for the lifetime of the Directory; a failed fetch
// yields an empty list and is not retried.
type Directory struct {
	source Source
	logger *zap.Logger

	once       sync.Once
	categories []model.Category
}

// NewDirectory creates a Directory backed by source.
func NewDirectory(source Source, logger *zap.Logger) *Directory {
	return &Directory{
		source: source,
		logger: logger,
	}
}

// Load returns the session's categories. It never fails.
func (d *Directory) Load(ctx context.Context) []model.Category {
	d.once.Do(func() {
		categories, err := d.source.Categories(ctx)
		if err != nil {
			d.logger.Warn("category load failed, continuing without categories", zap.Error(err))
			categories = []model.Category{}
		}
		d.categories = categories
	})

	out := make([]model.Category, len(d.categories))
	copy(out, d.categories)
	return out
}
