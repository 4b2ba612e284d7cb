package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/hexshop/checkout/internal/domain/payment"
)

// webhook handles POST /api/webhook. The raw body is read before any parsing
// because the provider signature covers the exact bytes on the wire.
//
// 200 means the event was durably handled, including the deliberately ignored
// cases; 4xx/5xx prompt the provider to redeliver.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	err = h.reconciler.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSignatureInvalid):
			writeError(w, http.StatusBadRequest, "signature verification failed")
		case errors.Is(err, payment.ErrDigestMismatch):
			writeError(w, http.StatusBadRequest, "digest verification failed")
		default:
			logError(r, "webhook processing", err)
			writeError(w, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("received")
	e.Bool(true)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
