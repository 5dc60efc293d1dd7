package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/fornellas/slogxt/log"
	"github.com/google/uuid"
)

// Handle identifies one registration. It is only useful for Unregister.
type Handle string

func (h Handle) String() string {
	return string(h)
}

// Broker implements a simple handle-keyed fan-out of events to subscribers.
type Broker[T any] struct {
	mu          sync.RWMutex
	subscribers map[Handle]T
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: make(map[Handle]T),
	}
}

// Register adds a new subscriber, returning a handle that can be used to unregister it.
func (b *Broker[T]) Register(subscriber T) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := Handle(uuid.New().String())
	b.subscribers[handle] = subscriber

	return handle
}

// Unregister removes a subscriber. Unknown or already removed handles are ignored.
func (b *Broker[T]) Unregister(handle Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, handle)
}

// Len returns the number of registered subscribers.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers)
}

// Publish calls fn once per subscriber, each in its own goroutine, and returns without waiting for
// them. A panic inside fn is recovered and logged.
func (b *Broker[T]) Publish(ctx context.Context, fn func(ctx context.Context, subscriber T)) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for handle, subscriber := range b.subscribers {
		go func() {
			ctx, logger := log.MustWithAttrs(ctx, "subscriber", handle.String())
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Subscriber panicked", "err", fmt.Sprintf("%v", r))
				}
			}()
			fn(ctx, subscriber)
		}()
	}
}
