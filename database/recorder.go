package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/icodeforyou/entsoe-transparency/types"
)

const (
	recorderQueueSize = 1024
	recordTimeout     = 5 * time.Second
)

// StateRecorder persists the current state of each entity off the emission
// path. Events are queued by OnStateChanged and written by Run.
type StateRecorder struct {
	logger *slog.Logger
	db     *Database
	queue  chan types.StateChangedEvent
}

func NewStateRecorder(logger *slog.Logger, db *Database) *StateRecorder {
	return &StateRecorder{
		logger: logger,
		db:     db,
		queue:  make(chan types.StateChangedEvent, recorderQueueSize),
	}
}

// OnStateChanged is a state bus listener, it never blocks.
func (r *StateRecorder) OnStateChanged(ctx context.Context, ev types.StateChangedEvent) error {
	select {
	case r.queue <- ev:
		return nil
	default:
		return fmt.Errorf("state recorder queue full, dropping state of %s", ev.EntityID)
	}
}

// Run writes queued states until ctx is done, then flushes what is left.
func (r *StateRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case ev := <-r.queue:
			r.record(ev)
		}
	}
}

func (r *StateRecorder) flush() {
	for {
		select {
		case ev := <-r.queue:
			r.record(ev)
		default:
			return
		}
	}
}

func (r *StateRecorder) record(ev types.StateChangedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.db.RecordStateChange(ctx, ev); err != nil {
		r.logger.Warn("recording state failed", slog.String("entityId", ev.EntityID), slog.Any("error", err))
	}
}
