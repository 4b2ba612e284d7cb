package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/hexshop/checkout/internal/domain/voucher"
)

// validateVoucher handles GET /api/voucher/validate?code=...: the storefront
// calls this before quoting so it can display the discount it will later echo
// back as the claimed discount. Unknown, inactive, and expired codes all
// answer {valid:false} with 200; the response never reveals which.
func (h *Handler) validateVoucher(w http.ResponseWriter, r *http.Request) {
	discount, err := h.vouchers.Validate(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		if errors.Is(err, voucher.ErrInvalidVoucher) || errors.Is(err, voucher.ErrVoucherExpired) {
			var e jx.Encoder
			e.ObjStart()
			e.FieldStart("valid")
			e.Bool(false)
			e.ObjEnd()
			writeJSON(w, http.StatusOK, &e)
			return
		}
		logError(r, "validate voucher", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(true)
	e.FieldStart("discount")
	e.Int64(discount)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
