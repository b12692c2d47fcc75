package httpapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cataloghandler "regwatch/internal/catalog/handler"
	catalogservice "regwatch/internal/catalog/service"
	domainstore "regwatch/internal/catalog/store/domain"
	flagstore "regwatch/internal/catalog/store/flag"
	lifecyclehandler "regwatch/internal/lifecycle/handler"
	lifecycleservice "regwatch/internal/lifecycle/service"
	lifecyclestore "regwatch/internal/lifecycle/store"
	listinghandler "regwatch/internal/listing/handler"
	listingservice "regwatch/internal/listing/service"
	"regwatch/internal/listing/snapshot"
	"regwatch/internal/platform/metrics"
	"regwatch/internal/platform/middleware"
	ratelimitmw "regwatch/internal/ratelimit/middleware"
	ratelimitmodels "regwatch/internal/ratelimit/models"
	"regwatch/internal/ratelimit/store/bucket"
	"regwatch/internal/seed"
	"regwatch/pkg/platform/middleware/admin"
	"regwatch/pkg/testutil"
)

const adminToken = "router-token"

func newTestRouter(t *testing.T, checks map[string]HealthCheck, limiter ...*ratelimitmw.Middleware) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	reg := prometheus.NewRegistry()

	catalog := catalogservice.New(domainstore.NewInMemory(), flagstore.NewInMemory(), catalogservice.WithLogger(logger))
	lifecycle := lifecycleservice.New(lifecyclestore.NewInMemory(), catalog, lifecycleservice.WithLogger(logger))
	cache := snapshot.New(snapshot.NewMemoryBackend(time.Minute), catalog, snapshot.WithLogger(logger))
	listing := listingservice.New(catalog, lifecycle, cache)
	require.NoError(t, seed.Load(ctx, catalog, lifecycle, logger))

	return NewRouter(Config{
		Logger:       logger,
		Metrics:      metrics.NewWithRegisterer(reg),
		Gatherer:     reg,
		AdminToken:   adminToken,
		HealthChecks: checks,
		RateLimiter:  firstLimiter(limiter),
	},
		cataloghandler.New(catalog, logger),
		lifecyclehandler.New(lifecycle, logger),
		listinghandler.New(listing, logger),
	)
}

func TestRouter(t *testing.T) {
	router := newTestRouter(t, nil)

	testutil.Given(t, "the seeded router", func(t *testing.T) {
		testutil.When(t, "the derived listing is requested", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/listings/current?at=2024-10-01T00:00:00Z"))
			testutil.Then(t, "it reflects the fixtures", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				resp := testutil.UnmarshalResponse[listinghandler.ListingResponse](t, rr)
				assert.Equal(t, []string{"dualflag.net", "example.com", "testdomain.org"}, resp.Domains)
				assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
			})
		})

		testutil.When(t, "a write arrives without the admin token", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": "new.org"}))
			testutil.Then(t, "it is refused", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			})
		})

		testutil.When(t, "a write carries the admin token", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": "new.org"})
			req.Header.Set(admin.HeaderAdminToken, adminToken)
			rr := testutil.DoRequest(router, req)
			testutil.Then(t, "it is accepted", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
			})
		})

		testutil.When(t, "a write is not JSON", func(t *testing.T) {
			req := testutil.NewRequestWithBody(t, http.MethodPost, "/domains", "fqdn=new.org")
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set(admin.HeaderAdminToken, adminToken)
			rr := testutil.DoRequest(router, req)
			testutil.Then(t, "it is rejected before the handler", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
			})
		})
	})
}

func TestRouter_MetricsExposeRouteLatency(t *testing.T) {
	router := newTestRouter(t, nil)
	testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/listings/snapshot")))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(t, rr)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `regwatch_http_requests_total{method="GET",route="/listings/snapshot",status="200"} 1`), body)
}

func TestRouter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := newTestRouter(t, map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("degraded", func(t *testing.T) {
		router := newTestRouter(t, map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		resp := testutil.UnmarshalResponse[HealthResponse](t, rr)
		assert.Equal(t, "connection refused", resp.Checks["redis"])
	})
}

func firstLimiter(l []*ratelimitmw.Middleware) *ratelimitmw.Middleware {
	if len(l) == 0 {
		return nil
	}
	return l[0]
}

func TestRouter_WritesAreRateLimitedSeparately(t *testing.T) {
	limiter := ratelimitmw.New(bucket.NewInMemoryBucketStore(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		ratelimitmw.WithLimit(ratelimitmodels.ClassWrite, ratelimitmodels.Limit{Requests: 1, Window: time.Minute}),
	)
	router := newTestRouter(t, nil, limiter)

	write := func(fqdn string) *http.Request {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": fqdn})
		req.Header.Set(admin.HeaderAdminToken, adminToken)
		return req
	}

	testutil.AssertStatus(t, testutil.DoRequest(router, write("one.org")), http.StatusCreated)
	// A forged forwarding header does not buy the same peer a fresh bucket.
	spoofed := write("two.org")
	spoofed.Header.Set("X-Forwarded-For", "203.0.113.99")
	rr := testutil.DoRequest(router, spoofed)
	testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	assert.Equal(t, "rate_limit_exceeded", testutil.UnmarshalResponse[ratelimitmodels.RateLimitExceededResponse](t, rr).Error)

	for range 3 {
		testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/listings/snapshot")))
	}
}
