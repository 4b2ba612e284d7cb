package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestReadyEndpoint_GatedUntilSetReady(t *testing.T) {
	h := New()

	rec := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReady(true)
	rec = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.SetReady(false)
	rec = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "drain must flip readiness off")
}

func TestLiveEndpoint_ReportsCheckFailure(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})
	h.AddLivenessCheck("self", time.Second, func(context.Context) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Hour)
	defer h.Stop()

	// First run fires immediately; give the goroutine a moment.
	require.Eventually(t, func() bool {
		return probe(t, h.LiveEndpoint).Code == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)

	rec := probe(t, h.LiveEndpoint)
	assert.Contains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), `"self":"ok"`)
}

func TestLiveEndpoint_HealthyChecks(t *testing.T) {
	h := New()
	h.AddLivenessCheck("self", time.Second, func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Hour)
	defer h.Stop()

	require.Eventually(t, func() bool {
		return probe(t, h.LiveEndpoint).Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)
}
