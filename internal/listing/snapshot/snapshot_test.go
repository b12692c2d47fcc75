package snapshot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogmodels "regwatch/internal/catalog/models"
	listingmetrics "regwatch/internal/listing/metrics"
	id "regwatch/pkg/domain"
)

type stubLister struct {
	calls   atomic.Int32
	release chan struct{}
	domains []*catalogmodels.Domain
	err     error
}

func (l *stubLister) ListDomains(context.Context) ([]*catalogmodels.Domain, error) {
	l.calls.Add(1)
	if l.release != nil {
		<-l.release
	}
	return l.domains, l.err
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]string, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingBackend) Set(context.Context, string, []string, time.Duration) error {
	return errors.New("connection refused")
}
func (failingBackend) Delete(context.Context, string) error { return errors.New("connection refused") }

func domain(t *testing.T, name, tld string, registered, clear bool) *catalogmodels.Domain {
	t.Helper()
	d, err := catalogmodels.NewDomain(id.NewDomainID(), name, tld, time.Now())
	require.NoError(t, err)
	d.IsRegistered = registered
	d.ClearStatus = clear
	return d
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestCache_FiltersAndSorts(t *testing.T) {
	lister := &stubLister{domains: []*catalogmodels.Domain{
		domain(t, "testdomain", "org", true, true),
		domain(t, "example", "com", true, true),
		domain(t, "notclear", "com", true, false),
		domain(t, "gone", "net", false, true),
	}}
	c := New(NewMemoryBackend(time.Minute), lister, WithLogger(quietLogger()))

	fqdns, err := c.FQDNs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "testdomain.org"}, fqdns)
}

func TestCache_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	lister := &stubLister{domains: []*catalogmodels.Domain{domain(t, "example", "com", true, true)}}
	m := listingmetrics.NewWithRegisterer(prometheus.NewRegistry())
	c := New(NewMemoryBackend(time.Minute), lister, WithMetrics(m), WithLogger(quietLogger()))

	for range 3 {
		_, err := c.FQDNs(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), lister.calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMisses))

	require.NoError(t, c.Invalidate(ctx))
	_, err := c.FQDNs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lister.calls.Load())
}

func TestCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	lister := &stubLister{
		release: make(chan struct{}),
		domains: []*catalogmodels.Domain{domain(t, "example", "com", true, true)},
	}
	c := New(NewMemoryBackend(time.Minute), lister, WithLogger(quietLogger()))

	const readers = 10
	var wg sync.WaitGroup
	results := make([][]string, readers)
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.FQDNs(context.Background())
		}()
	}
	// Let the readers pile up behind the first load.
	time.Sleep(20 * time.Millisecond)
	close(lister.release)
	wg.Wait()

	assert.Equal(t, int32(1), lister.calls.Load())
	for _, r := range results {
		assert.Equal(t, []string{"example.com"}, r)
	}
}

// catalogLister copies the domain state when the scan starts, then waits.
type catalogLister struct {
	started chan struct{}
	release chan struct{}
	domain  *catalogmodels.Domain
	calls   atomic.Int32
}

func (l *catalogLister) ListDomains(context.Context) ([]*catalogmodels.Domain, error) {
	scanned := *l.domain
	if l.calls.Add(1) == 1 {
		close(l.started)
		<-l.release
	}
	return []*catalogmodels.Domain{&scanned}, nil
}

func TestCache_InvalidateDuringLoadIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	lister := &catalogLister{
		started: make(chan struct{}),
		release: make(chan struct{}),
		domain:  domain(t, "example", "com", true, true),
	}
	c := New(NewMemoryBackend(time.Minute), lister, WithLogger(quietLogger()))

	done := make(chan []string)
	go func() {
		fqdns, _ := c.FQDNs(ctx)
		done <- fqdns
	}()

	<-lister.started
	lister.domain.ClearStatus = false
	require.NoError(t, c.Invalidate(ctx))
	close(lister.release)

	// The in-flight reader gets what it scanned.
	assert.Equal(t, []string{"example.com"}, <-done)

	fqdns, err := c.FQDNs(ctx)
	require.NoError(t, err)
	assert.Empty(t, fqdns)
	assert.Equal(t, int32(2), lister.calls.Load())
}

func TestCache_BackendFailureFallsBackToCatalog(t *testing.T) {
	lister := &stubLister{domains: []*catalogmodels.Domain{domain(t, "example", "com", true, true)}}
	m := listingmetrics.NewWithRegisterer(prometheus.NewRegistry())
	c := New(failingBackend{}, lister, WithMetrics(m), WithLogger(quietLogger()))

	fqdns, err := c.FQDNs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, fqdns)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheErrors))

	assert.Error(t, c.Invalidate(context.Background()))
}

func TestCache_CatalogErrorIsReturned(t *testing.T) {
	lister := &stubLister{err: errors.New("catalog down")}
	c := New(NewMemoryBackend(time.Minute), lister, WithLogger(quietLogger()))

	_, err := c.FQDNs(context.Background())
	assert.EqualError(t, err, "catalog down")
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(time.Minute)
	require.NoError(t, b.Set(ctx, "k", []string{"a.com"}, time.Minute))

	got, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	got[0] = "mutated"

	again, _, _ := b.Get(ctx, "k")
	assert.Equal(t, []string{"a.com"}, again)
}
