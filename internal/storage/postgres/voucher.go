package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hexshop/checkout/internal/domain/voucher"
)

var _ voucher.Repository = (*VoucherRepository)(nil)

const (
	getVoucherSQL = `SELECT code, discount_amount, active, valid_from, valid_until
	FROM vouchers WHERE code = $1`

	listVoucherCodesSQL = `SELECT code FROM vouchers`
)

// VoucherRepository implements voucher.Repository backed by PostgreSQL.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// FindByCode looks up a voucher by its exact code. Returns
// voucher.ErrInvalidVoucher when no such code exists.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	var v voucher.Voucher
	err := r.pool.QueryRow(ctx, getVoucherSQL, code).
		Scan(&v.Code, &v.DiscountMinorUnits, &v.Active, &v.ValidFrom, &v.ValidUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrInvalidVoucher
		}
		return nil, errors.Wrapf(err, "find voucher %q", code)
	}
	return &v, nil
}

// ListCodes returns every voucher code, for warming the code filter.
func (r *VoucherRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listVoucherCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list voucher codes")
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, errors.Wrap(err, "scan voucher code")
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list voucher codes")
	}
	return codes, nil
}
