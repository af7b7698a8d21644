package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "compliance/pkg/domain"
	"compliance/pkg/requestcontext"
)

type brokenStore struct{}

func (brokenStore) AllowN(context.Context, string, int, int, time.Duration) (*Result, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Reset(context.Context, string) error { return nil }

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, actor id.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req = req.WithContext(requestcontext.WithActor(req.Context(), actor))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newActor() id.Actor {
	return id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
}

func TestPerTenant(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := NewMetrics(prometheus.NewRegistry())
	h := New(NewInMemoryStore(), 2, time.Minute, logger, metrics).PerTenant(noContent)
	tenantA, tenantB := newActor(), newActor()

	for range 2 {
		w := serve(h, tenantA)
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := serve(h, tenantA)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body ExceededResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Positive(t, body.RetryAfter)

	assert.Equal(t, http.StatusNoContent, serve(h, tenantB).Code)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues("rejected")))
}

func TestPerTenant_FailsOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := NewMetrics(prometheus.NewRegistry())
	h := New(brokenStore{}, 1, time.Minute, logger, metrics).PerTenant(noContent)

	actor := newActor()
	assert.Equal(t, http.StatusNoContent, serve(h, actor).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, actor).Code)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues("error")))
}

func TestPerTenant_PassThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("no actor", func(t *testing.T) {
		h := New(NewInMemoryStore(), 1, time.Minute, logger, nil).PerTenant(noContent)
		for range 3 {
			assert.Equal(t, http.StatusNoContent, serve(h, id.Actor{}).Code)
		}
	})

	t.Run("nil middleware", func(t *testing.T) {
		var m *Middleware
		assert.Equal(t, http.StatusNoContent, serve(m.PerTenant(noContent), newActor()).Code)
	})
}
