package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"regwatch/internal/ratelimit/metrics"
	"regwatch/internal/ratelimit/models"
	"regwatch/internal/ratelimit/store/bucket"
	"regwatch/pkg/requestcontext"
	"regwatch/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, models.Limit) (*models.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func request(t *testing.T, ip string) *http.Request {
	req := testutil.NewRequest(t, http.MethodPost, "/domains")
	return req.WithContext(requestcontext.WithClientIP(req.Context(), ip))
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	mw := New(bucket.NewInMemoryBucketStore(), logger,
		WithLimit(models.ClassWrite, models.Limit{Requests: 1, Window: time.Minute}),
		WithMetrics(m),
	)
	handler := mw.RateLimit(models.ClassWrite)(okHandler)

	t.Run("first request passes with headers", func(t *testing.T) {
		rr := testutil.DoRequest(handler, request(t, "192.0.2.1"))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("second request from the same client is refused", func(t *testing.T) {
		rr := testutil.DoRequest(handler, request(t, "192.0.2.1"))
		testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
		body := testutil.UnmarshalResponse[models.RateLimitExceededResponse](t, rr)
		assert.Equal(t, "rate_limit_exceeded", body.Error)
		assert.Positive(t, body.RetryAfter)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
		assert.Equal(t, float64(1), promtestutil.ToFloat64(m.Denied.WithLabelValues("write")))
	})

	t.Run("other clients are unaffected", func(t *testing.T) {
		rr := testutil.DoRequest(handler, request(t, "192.0.2.2"))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})
}

func TestRateLimit_UnconfiguredClassPassesThrough(t *testing.T) {
	mw := New(bucket.NewInMemoryBucketStore(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	handler := mw.RateLimit(models.ClassRead)(okHandler)
	for range 5 {
		testutil.AssertStatus(t, testutil.DoRequest(handler, request(t, "192.0.2.1")), http.StatusNoContent)
	}
}

func TestRateLimit_StoreFailureFailsOpen(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	mw := New(failingStore{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		WithLimit(models.ClassWrite, models.Limit{Requests: 1, Window: time.Minute}),
		WithMetrics(m),
	)
	rr := testutil.DoRequest(mw.RateLimit(models.ClassWrite)(okHandler), request(t, "192.0.2.1"))
	testutil.AssertStatus(t, rr, http.StatusNoContent)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.StoreErrors))
}
