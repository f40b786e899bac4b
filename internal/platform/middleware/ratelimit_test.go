package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "riskgraph/pkg/domain"
	"riskgraph/pkg/requestcontext"
)

type failingLimitStore struct{}

func (failingLimitStore) Allow(context.Context, string, int, time.Duration) (*LimitResult, error) {
	return nil, errors.New("connection refused")
}

func limitedHandler(t *testing.T, store LimitStore, limit int) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&testWriter{t}, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RateLimit(store, logger, limit, time.Minute)(inner)
}

type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestRateLimitPerTenant(t *testing.T) {
	h := limitedHandler(t, NewMemoryLimitStore(), 2)

	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()

	do := func(tenant id.TenantID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", nil)
		req = req.WithContext(requestcontext.WithTenantID(req.Context(), tenant))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do(tenantA)
	require.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	require.Equal(t, http.StatusNoContent, do(tenantA).Code)

	third := do(tenantA)
	require.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "0", third.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, third.Header().Get("Retry-After"))

	// A different tenant holds its own budget.
	require.Equal(t, http.StatusNoContent, do(tenantB).Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := limitedHandler(t, failingLimitStore{}, 1)

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", nil)
		req = req.WithContext(requestcontext.WithTenantID(req.Context(), id.NewTenantID()))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestMemoryLimitStoreWindowExpiry(t *testing.T) {
	store := NewMemoryLimitStore()
	ctx := context.Background()

	res, err := store.Allow(ctx, "k", 1, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = store.Allow(ctx, "k", 1, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(15 * time.Millisecond)

	res, err = store.Allow(ctx, "k", 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
