package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fornellas/slogxt/log"
)

var ErrStopTimeout = errors.New("timeout waiting for worker to stop")

// Worker is a single supervised goroutine.
type Worker struct {
	name       string
	cancelFunc context.CancelFunc
	doneCh     chan struct{}
	err        error
}

// Start runs fn in a new goroutine, with a context that is cancelled by Stop. A panic within fn is
// recovered and returned as its error.
func Start(ctx context.Context, name string, fn func(context.Context) error) *Worker {
	ctx, logger := log.MustWithGroup(ctx, name)
	ctx, cancelFunc := context.WithCancel(ctx)
	w := &Worker{
		name:       name,
		cancelFunc: cancelFunc,
		doneCh:     make(chan struct{}),
	}
	go func() {
		defer close(w.doneCh)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic", "recovered", r, "stack", string(debug.Stack()))
				w.err = fmt.Errorf("panic: %v", r)
			}
			logger.Debug("Finished", "err", w.err)
		}()
		logger.Debug("Starting")
		w.err = fn(ctx)
	}()
	return w
}

func (w *Worker) Name() string {
	return w.name
}

// Done is closed when the worker function returns.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

// Err returns the worker function error. It must only be called after Done is closed.
func (w *Worker) Err() error {
	return w.err
}

// Stop cancels the worker context and waits up to timeout for it to return. On timeout the
// goroutine is abandoned and ErrStopTimeout is returned.
func (w *Worker) Stop(timeout time.Duration) error {
	w.cancelFunc()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.doneCh:
		if errors.Is(w.err, context.Canceled) {
			return nil
		}
		return w.err
	case <-timer.C:
		return fmt.Errorf("%s: %w", w.name, ErrStopTimeout)
	}
}
