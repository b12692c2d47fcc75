// Package snapshot serves the cached-snapshot listing: domains whose
// operator-maintained is_registered and clear_status fields are both true.
//
// These fields are a separately maintained source of truth. The cache reads
// them through the catalog and never consults the transition log.
package snapshot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	catalogmodels "regwatch/internal/catalog/models"
	listingmetrics "regwatch/internal/listing/metrics"
	"regwatch/pkg/platform/strings"
)

const listingKey = "cached_snapshot"

const defaultTTL = time.Minute

// DomainLister is the catalog read used to rebuild the listing.
type DomainLister interface {
	ListDomains(ctx context.Context) ([]*catalogmodels.Domain, error)
}

// Cache is a read-through cache over the catalog. Concurrent misses share
// one catalog scan.
type Cache struct {
	backend Backend
	lister  DomainLister
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger

	// mu orders Invalidate against the Set of a load, and generation tells a
	// load that an Invalidate happened while it was reading the catalog.
	mu         sync.Mutex
	generation uint64

	metrics *listingmetrics.Metrics
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMetrics(m *listingmetrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func New(backend Backend, lister DomainLister, opts ...Option) *Cache {
	c := &Cache{backend: backend, lister: lister, ttl: defaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// FQDNs returns the sorted cached-snapshot listing. Backend failures are
// logged and the listing is rebuilt from the catalog.
func (c *Cache) FQDNs(ctx context.Context) ([]string, error) {
	fqdns, found, err := c.backend.Get(ctx, listingKey)
	if err != nil {
		c.backendFailed(ctx, "get", err)
	}
	if found {
		if c.metrics != nil {
			c.metrics.IncrementCacheHit()
		}
		return fqdns, nil
	}
	if c.metrics != nil {
		c.metrics.IncrementCacheMiss()
	}

	v, err, _ := c.group.Do(listingKey, func() (any, error) {
		gen := c.currentGeneration()
		fqdns, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, gen, fqdns)
		return fqdns, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string{}, v.([]string)...), nil
}

// Invalidate drops the cached listing. The catalog calls it after the
// snapshot fields of any domain change.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.group.Forget(listingKey)
	return c.backend.Delete(ctx, listingKey)
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// store caches fqdns unless an Invalidate ran since the load began.
func (c *Cache) store(ctx context.Context, gen uint64, fqdns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	if err := c.backend.Set(ctx, listingKey, fqdns, c.ttl); err != nil {
		c.backendFailed(ctx, "set", err)
	}
}

func (c *Cache) load(ctx context.Context) ([]string, error) {
	domains, err := c.lister.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	fqdns := make([]string, 0, len(domains))
	for _, d := range domains {
		if d.IsRegistered && d.ClearStatus {
			fqdns = append(fqdns, d.FQDN())
		}
	}
	return strings.SortedUnique(fqdns), nil
}

func (c *Cache) backendFailed(ctx context.Context, op string, err error) {
	c.logger.WarnContext(ctx, "snapshot cache backend failure",
		"op", op,
		"error", err,
	)
	if c.metrics != nil {
		c.metrics.IncrementCacheError()
	}
}
