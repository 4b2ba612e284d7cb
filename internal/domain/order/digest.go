package order

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// digestSep joins digest fields. None of the fields can contain it: currency
// codes and hex salts are alphanumeric, product ids are validated on ingest,
// and the numeric fields are decimal digits.
const digestSep = "|"

// Digest computes the tamper-evident fingerprint of an order: SHA-256 over
// the currency code, merchant identity, salt, every item as
// productID:quantity:unitPrice in the exact order supplied, and the total
// price, pipe-joined. The result is lowercase hex.
//
// Item order is load-bearing: the same items in a different order produce a
// different digest, so callers must preserve creation order between quoting
// and reconciliation.
func Digest(currency, merchant, salt string, items []Item, totalMinorUnits int64) string {
	parts := make([]string, 0, len(items)+4)
	parts = append(parts, currency, merchant, salt)
	for _, it := range items {
		parts = append(parts, it.ProductID+":"+strconv.Itoa(it.Quantity)+":"+strconv.FormatInt(it.UnitPriceMinorUnits, 10))
	}
	parts = append(parts, strconv.FormatInt(totalMinorUnits, 10))

	sum := sha256.Sum256([]byte(strings.Join(parts, digestSep)))
	return hex.EncodeToString(sum[:])
}

// NewSalt returns a fresh 128-bit random salt, hex-encoded. Each order gets
// its own salt so digests cannot be precomputed or replayed across orders.
func NewSalt() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("order: read random salt: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
