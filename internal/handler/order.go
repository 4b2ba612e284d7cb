package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/hexshop/checkout/internal/domain/order"
	"github.com/hexshop/checkout/internal/domain/payment"
	"github.com/hexshop/checkout/internal/domain/voucher"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type quoteOrderRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	VoucherCode string `json:"voucherCode"`
	// Discount is the client's claimed discount in minor units; optional.
	Discount *int64 `json:"discount"`
}

// quoteOrder handles POST /api/order: price the cart server-side, persist the
// order, and return its id and digest.
func (h *Handler) quoteOrder(w http.ResponseWriter, r *http.Request) {
	var req quoteOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.CartItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.CartItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	quote, err := h.orders.QuoteOrder(r.Context(), order.QuoteRequest{
		Items:           items,
		VoucherCode:     req.VoucherCode,
		ClaimedDiscount: req.Discount,
		UserID:          r.Header.Get(UserIDHeader),
	})
	if err != nil {
		h.writeQuoteError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(quote.Order.ID)
	e.FieldStart("digest")
	e.Str(quote.Digest)
	e.FieldStart("total")
	e.Int64(quote.Order.TotalMinorUnits)
	e.FieldStart("discount")
	e.Int64(quote.Order.DiscountMinorUnits)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) writeQuoteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "items required")
	case errors.As(err, &iqErr):
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.Is(err, voucher.ErrInvalidVoucher):
		writeError(w, http.StatusUnprocessableEntity, "invalid voucher code")
	case errors.Is(err, voucher.ErrVoucherExpired):
		writeError(w, http.StatusUnprocessableEntity, "voucher expired")
	case errors.Is(err, order.ErrDiscountMismatch):
		writeError(w, http.StatusUnprocessableEntity, "claimed discount does not match voucher")
	default:
		logError(r, "quote order", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type checkoutSessionRequest struct {
	OrderID string `json:"orderId"`
	Digest  string `json:"digest"`
}

// createCheckoutSession handles POST /api/create-checkout-session.
func (h *Handler) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutSessionRequest
	if err := decodeBody(w, r, &req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId and digest required")
		return
	}

	result, err := h.checkout.CreateSession(r.Context(), req.OrderID, req.Digest)
	if err != nil {
		var provErr *payment.ProviderError
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, payment.ErrDigestMismatch):
			logError(r, "checkout digest mismatch", err)
			writeError(w, http.StatusBadRequest, "digest verification failed")
		case errors.As(err, &provErr):
			logError(r, "create checkout session", err)
			writeError(w, http.StatusBadGateway, "payment provider unavailable")
		default:
			logError(r, "create checkout session", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	var e jx.Encoder
	e.ObjStart()
	if result.Free {
		e.FieldStart("free")
		e.Bool(true)
	} else {
		e.FieldStart("sessionId")
		e.Str(result.SessionID)
		e.FieldStart("url")
		e.Str(result.URL)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// verify handles GET /api/verify?session_id=...: settlement poll combining
// the provider's status with local transaction presence.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	paid, err := h.checkout.Verify(r.Context(), sessionID)
	if err != nil {
		logError(r, "verify session", err)
		var provErr *payment.ProviderError
		if errors.As(err, &provErr) {
			writeError(w, http.StatusBadGateway, "payment provider unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("paid")
	e.Bool(paid)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// recentOrders handles GET /api/orders/recent?limit=n for the authenticated
// user.
func (h *Handler) recentOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	orders, err := h.orderStore.ListRecentPaid(r.Context(), userID, limit)
	if err != nil {
		logError(r, "list recent orders", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, o := range orders {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(o.ID)
		e.FieldStart("total")
		e.Int64(o.TotalMinorUnits)
		e.FieldStart("currency")
		e.Str(o.Currency)
		e.FieldStart("createdAt")
		e.Str(o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		e.ObjEnd()
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
