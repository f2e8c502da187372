package statebus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/icodeforyou/entsoe-transparency/types"
)

// Listener handles one state change. Listeners must not block.
type Listener func(ctx context.Context, event types.StateChangedEvent) error

type subscription struct {
	name     string
	listener Listener
}

// Bus fans state_changed events out to every registered listener in
// registration order. A failing listener does not stop the others.
type Bus struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	listeners []subscription
}

var _ types.EventSink = (*Bus)(nil)

func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

func (b *Bus) Listen(name string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, subscription{name: name, listener: listener})
}

func (b *Bus) Fire(ctx context.Context, event types.StateChangedEvent) error {
	b.mu.RLock()
	listeners := append([]subscription(nil), b.listeners...)
	b.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l.listener(ctx, event); err != nil {
			b.logger.Warn("state change listener failed",
				slog.String("listener", l.name),
				slog.String("entityId", event.EntityID),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	// Only report a failure when nobody received the event
	if len(listeners) > 0 && len(errs) == len(listeners) {
		return errors.Join(errs...)
	}
	return nil
}
