// Package health provides liveness and readiness probe endpoints.
//
// Checks run periodically from a single background goroutine; probe handlers
// only read the latest recorded results, so a slow dependency can never slow
// down the probe endpoints themselves.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one component. It returns nil when healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	mu        sync.RWMutex
	ready     bool
	liveness  []check
	readiness []check
	results   map[string]error
	cancel    context.CancelFunc
}

// New creates a Health service. It starts not-ready; call SetReady(true)
// once initialization finishes.
func New() *Health {
	return &Health{results: make(map[string]error)}
}

// AddLivenessCheck registers a liveness check (is the process functional).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a readiness check (can the service take
// traffic, e.g. database connectivity).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, check{name: name, timeout: timeout, fn: fn})
}

// SetReady flips the readiness gate. Readiness endpoints report failure while
// false regardless of check results; used to drain before shutdown.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Start runs all registered checks every interval until ctx is cancelled or
// Stop is called. Checks run once immediately so probes have results from
// the start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]check, 0, len(h.liveness)+len(h.readiness))
	checks = append(checks, h.liveness...)
	checks = append(checks, h.readiness...)
	h.mu.Unlock()

	go func() {
		h.runAll(ctx, checks)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.runAll(ctx, checks)
			}
		}
	}()
}

// Stop halts the background check loop.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Health) runAll(ctx context.Context, checks []check) {
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.fn(checkCtx)
		cancel()

		h.mu.Lock()
		h.results[c.name] = err
		h.mu.Unlock()
	}
}

// LiveEndpoint is the HTTP handler for liveness probes.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.respond(w, h.liveness, true)
}

// ReadyEndpoint is the HTTP handler for readiness probes. It fails while
// SetReady(false), which drains traffic during shutdown.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.respond(w, h.readiness, h.ready)
}

// respond writes the probe result. Caller holds at least a read lock.
func (h *Health) respond(w http.ResponseWriter, checks []check, gate bool) {
	status := "ok"
	code := http.StatusOK
	if !gate {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	details := make(map[string]string, len(checks))
	for _, c := range checks {
		if err, recorded := h.results[c.name]; recorded && err != nil {
			details[c.name] = err.Error()
			status = "unavailable"
			code = http.StatusServiceUnavailable
		} else {
			details[c.name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}{Status: status, Checks: details})
}
