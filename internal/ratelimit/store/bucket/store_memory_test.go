package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"regwatch/internal/ratelimit/models"
)

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	now   time.Time
	limit models.Limit
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.now = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryBucketStore()
	s.store.now = func() time.Time { return s.now }
	s.limit = models.Limit{Requests: 3, Window: time.Minute}
}

func (s *InMemoryBucketStoreSuite) TestAllowsUpToLimit() {
	ctx := context.Background()
	for i := range 3 {
		result, err := s.store.Allow(ctx, "k", s.limit)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}

	result, err := s.store.Allow(ctx, "k", s.limit)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(60, result.RetryAfter)
}

func (s *InMemoryBucketStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	for range 3 {
		_, err := s.store.Allow(ctx, "k", s.limit)
		s.Require().NoError(err)
		s.now = s.now.Add(20 * time.Second)
	}

	// The first request is now exactly one window old and no longer counts.
	result, err := s.store.Allow(ctx, "k", s.limit)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	for range 3 {
		_, err := s.store.Allow(ctx, "a", s.limit)
		s.Require().NoError(err)
	}
	result, err := s.store.Allow(ctx, "b", s.limit)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestIdleBucketsAreEvicted() {
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		_, err := s.store.Allow(ctx, key, s.limit)
		s.Require().NoError(err)
	}
	s.Len(s.store.buckets, 3)

	s.now = s.now.Add(2 * time.Minute)
	_, err := s.store.Allow(ctx, "d", s.limit)
	s.Require().NoError(err)

	s.Len(s.store.buckets, 1)
	s.Contains(s.store.buckets, "d")
}

func TestInMemoryBucketStore_Concurrent(t *testing.T) {
	store := NewInMemoryBucketStore()
	limit := models.Limit{Requests: 10, Window: time.Hour}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := store.Allow(context.Background(), "shared", limit)
			require.NoError(t, err)
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}
