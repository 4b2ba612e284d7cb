package voucher

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// Validator resolves a voucher code to its discount amount in minor units.
type Validator interface {
	Validate(ctx context.Context, code string) (int64, error)
}

// RepoValidator implements Validator by looking up vouchers from a Repository
// and checking the active flag and validity window.
//
// An optional bloom filter over all known codes lets the validator reject
// unknown codes without a database round trip: a filter miss proves the code
// does not exist. Filter hits (including false positives) fall through to the
// repository, so correctness never depends on the filter.
type RepoValidator struct {
	repo   Repository
	filter *bloom.BloomFilter
	now    func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// WarmFilter builds the code bloom filter from the repository's current code
// set. Codes added after warmup are not in the filter and would be rejected,
// so deployments that insert vouchers at runtime should re-warm or skip the
// filter entirely.
func (v *RepoValidator) WarmFilter(ctx context.Context) error {
	codes, err := v.repo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list voucher codes")
	}

	filter := bloom.NewWithEstimates(uint(max(len(codes), 1024)), 0.001)
	for _, code := range codes {
		filter.AddString(code)
	}
	v.filter = filter
	return nil
}

// Validate returns the discount amount for code, or ErrInvalidVoucher /
// ErrVoucherExpired. The discount is a fixed amount in minor units.
func (v *RepoValidator) Validate(ctx context.Context, code string) (int64, error) {
	if code == "" {
		return 0, ErrInvalidVoucher
	}

	if v.filter != nil && !v.filter.TestString(code) {
		return 0, ErrInvalidVoucher
	}

	vo, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidVoucher) {
			return 0, ErrInvalidVoucher
		}
		return 0, errors.Wrap(err, "lookup voucher")
	}

	if !vo.Active {
		return 0, ErrInvalidVoucher
	}

	now := v.now()
	if vo.ValidFrom != nil && now.Before(*vo.ValidFrom) {
		return 0, ErrVoucherExpired
	}
	if vo.ValidUntil != nil && now.After(*vo.ValidUntil) {
		return 0, ErrVoucherExpired
	}

	return vo.DiscountMinorUnits, nil
}
