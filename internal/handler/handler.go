// Package handler exposes the storefront checkout API over net/http.
package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/hexshop/checkout/internal/domain/order"
	"github.com/hexshop/checkout/internal/domain/payment"
	"github.com/hexshop/checkout/internal/domain/product"
	"github.com/hexshop/checkout/internal/domain/voucher"
)

// UserIDHeader carries the authenticated user id, set by the upstream
// gateway. Authentication itself is out of scope for this service.
const UserIDHeader = "X-User-ID"

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler maps HTTP requests to the domain services and domain errors back to
// status codes.
type Handler struct {
	products   product.Repository
	orders     *order.Service
	orderStore order.Repository
	vouchers   voucher.Validator
	checkout   *payment.CheckoutService
	reconciler *payment.Reconciler

	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	orders *order.Service,
	orderStore order.Repository,
	vouchers voucher.Validator,
	checkout *payment.CheckoutService,
	reconciler *payment.Reconciler,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		orderStore:   orderStore,
		vouchers:     vouchers,
		checkout:     checkout,
		reconciler:   reconciler,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register mounts all API routes on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/voucher/validate", h.validateVoucher)
	mux.HandleFunc("POST /api/order", h.quoteOrder)
	mux.HandleFunc("POST /api/create-checkout-session", h.createCheckoutSession)
	mux.HandleFunc("GET /api/verify", h.verify)
	mux.HandleFunc("GET /api/orders/recent", h.recentOrders)
	mux.HandleFunc("POST /api/webhook", h.webhook)
}

// writeJSON writes an encoded jx object with the given status.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the {code,message} error body shared by all endpoints.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// logError logs a 5xx-class failure with the request-scoped logger.
func logError(r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
}
