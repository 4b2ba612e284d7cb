package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product identifier does not exist in the
// catalog.
var ErrNotFound = errors.New("product not found")

// Product is the catalog read model. Price is the authoritative unit price
// in decimal currency units as stored in the catalog.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	Image    Image
}

// Image holds product image paths for different viewports.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// PriceMinorUnits converts the catalog price to integer minor units (cents).
// All money arithmetic downstream of the catalog happens in minor units.
func (p Product) PriceMinorUnits() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}

// Repository defines read access to the product catalog. This is the only
// place unit prices are resolved from; every other component treats prices
// as already-resolved minor units.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
