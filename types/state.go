package types

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/icodeforyou/entsoe-transparency/types/maybe"
)

const EventStateChanged = "state_changed"

type State struct {
	EntityID    string         `json:"entity_id"`
	Value       float64        `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

type StateChangedEvent struct {
	ID        uuid.UUID          `json:"id"`
	EventType string             `json:"event_type"`
	EntityID  string             `json:"entity_id"`
	OldState  maybe.Maybe[State] `json:"old_state"`
	NewState  State              `json:"new_state"`
	TimeFired time.Time          `json:"time_fired"`
}

func NewStateChangedEvent(oldState maybe.Maybe[State], newState State, timeFired time.Time) StateChangedEvent {
	return StateChangedEvent{
		ID:        uuid.New(),
		EventType: EventStateChanged,
		EntityID:  newState.EntityID,
		OldState:  oldState,
		NewState:  newState,
		TimeFired: timeFired,
	}
}

// EventSink receives state changes in the order they are fired.
type EventSink interface {
	Fire(ctx context.Context, event StateChangedEvent) error
}

// Entity is what the scheduling layer drives.
type Entity interface {
	EntityID() string
	Update(ctx context.Context) error
	CurrentState() maybe.Maybe[State]
}
