package broker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	ctx := log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))

	b := NewBroker[*atomic.Int32]()
	require.Equal(t, 0, b.Len())

	var a, c atomic.Int32
	handleA := b.Register(&a)
	handleC := b.Register(&c)
	require.NotEqual(t, handleA, handleC)
	require.Equal(t, 2, b.Len())

	b.Publish(ctx, func(ctx context.Context, counter *atomic.Int32) {
		counter.Add(1)
	})
	require.Eventually(t, func() bool {
		return a.Load() == 1 && c.Load() == 1
	}, time.Second, time.Millisecond)

	t.Run("Unregister is idempotent", func(t *testing.T) {
		b.Unregister(handleA)
		b.Unregister(handleA)
		b.Unregister(Handle("unknown"))
		require.Equal(t, 1, b.Len())
	})

	t.Run("Panicking subscriber does not affect others", func(t *testing.T) {
		var d atomic.Int32
		b.Register(&d)
		b.Publish(ctx, func(ctx context.Context, counter *atomic.Int32) {
			if counter == &d {
				panic("boom")
			}
			counter.Add(1)
		})
		require.Eventually(t, func() bool {
			return c.Load() == 2
		}, time.Second, time.Millisecond)
		require.Equal(t, int32(1), a.Load())
	})
}
