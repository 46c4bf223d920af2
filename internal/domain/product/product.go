package product

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item. Prices are stored in minor currency
// units (satang) so all monetary arithmetic stays integral.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	Category   string
	ImageURL   string
	Active     bool
	InStock    bool
}

// Available reports whether the product can currently be sold or awarded
// as a promotional gift.
func (p Product) Available() bool {
	return p.Active && p.InStock
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
