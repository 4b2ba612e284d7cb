package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidVoucher is returned when a voucher code is not found or is
	// not active.
	ErrInvalidVoucher = errors.New("invalid voucher code")
	// ErrVoucherExpired is returned when a voucher is outside its valid time
	// window.
	ErrVoucherExpired = errors.New("voucher expired")
)

// Voucher is a fixed-amount discount code. Discounts are always absolute
// amounts in minor units, never percentages.
type Voucher struct {
	Code               string
	DiscountMinorUnits int64
	Active             bool
	ValidFrom          *time.Time
	ValidUntil         *time.Time
}

// Repository provides lookup of voucher codes.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	// ListCodes returns every known voucher code, active or not. Used to warm
	// the in-memory code filter at startup.
	ListCodes(ctx context.Context) ([]string, error)
}
