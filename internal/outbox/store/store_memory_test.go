package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/internal/outbox/models"
)

func TestInMemory_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	for _, agg := range []string{"a", "b", "c"} {
		require.NoError(t, s.Add(ctx, models.Entry{AggregateID: agg, EventType: "transition_recorded"}))
	}

	t.Run("claims in insertion order up to the limit", func(t *testing.T) {
		var seen []string
		n, err := s.ProcessBatch(ctx, 2, func(_ context.Context, entries []models.Entry) error {
			for _, e := range entries {
				seen = append(seen, e.AggregateID)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"a", "b"}, seen)
	})

	t.Run("failed batch stays pending", func(t *testing.T) {
		boom := errors.New("boom")
		n, err := s.ProcessBatch(ctx, 10, func(context.Context, []models.Entry) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, n)

		pending, err := s.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)
	})

	t.Run("published entries are not claimed again", func(t *testing.T) {
		n, err := s.ProcessBatch(ctx, 10, func(_ context.Context, entries []models.Entry) error {
			require.Len(t, entries, 1)
			assert.Equal(t, "c", entries[0].AggregateID)
			assert.Equal(t, 1, entries[0].Attempts)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.ProcessBatch(ctx, 10, func(context.Context, []models.Entry) error {
			t.Fatal("nothing should be claimed")
			return nil
		})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
