package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

func TestWorkerStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := Start(testContext(t), "loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Equal(t, "loop", w.Name())
	require.NoError(t, w.Stop(time.Second))
	<-w.Done()
}

func TestWorkerError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	errTest := errors.New("test")
	w := Start(testContext(t), "failing", func(ctx context.Context) error {
		return errTest
	})
	<-w.Done()
	require.ErrorIs(t, w.Err(), errTest)
	require.ErrorIs(t, w.Stop(time.Second), errTest)
}

func TestWorkerPanic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := Start(testContext(t), "panicking", func(ctx context.Context) error {
		panic("boom")
	})
	<-w.Done()
	require.ErrorContains(t, w.Err(), "panic: boom")
}

func TestWorkerStopTimeout(t *testing.T) {
	release := make(chan struct{})
	w := Start(testContext(t), "stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.ErrorIs(t, w.Stop(10*time.Millisecond), ErrStopTimeout)
	close(release)
	<-w.Done()
}
