package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/icodeforyou/entsoe-transparency/types"
)

// StateRow is the latest known state of one entity.
type StateRow struct {
	EntityID    string
	Value       float64
	Attributes  map[string]any
	LastChanged time.Time
	LastUpdated time.Time
	EventID     string
}

func (d *Database) SaveState(ctx context.Context, row StateRow) error {
	attrs, err := json.Marshal(row.Attributes)
	if err != nil {
		return fmt.Errorf("encoding attributes of %s: %w", row.EntityID, err)
	}

	_, err = d.write.ExecContext(ctx, `
		INSERT INTO state (entity_id, value, attributes, last_changed, last_updated, event_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			value = excluded.value,
			attributes = excluded.attributes,
			last_changed = excluded.last_changed,
			last_updated = excluded.last_updated,
			event_id = excluded.event_id`,
		row.EntityID,
		row.Value,
		string(attrs),
		row.LastChanged.UTC().Format(time.RFC3339),
		row.LastUpdated.UTC().Format(time.RFC3339),
		row.EventID)
	if err != nil {
		return fmt.Errorf("saving state of %s: %w", row.EntityID, err)
	}
	return nil
}

// RecordStateChange stores the new state carried by an event.
func (d *Database) RecordStateChange(ctx context.Context, ev types.StateChangedEvent) error {
	return d.SaveState(ctx, StateRow{
		EntityID:    ev.NewState.EntityID,
		Value:       ev.NewState.Value,
		Attributes:  ev.NewState.Attributes,
		LastChanged: ev.NewState.LastChanged,
		LastUpdated: ev.NewState.LastUpdated,
		EventID:     ev.ID.String(),
	})
}

func (d *Database) GetStates(ctx context.Context) ([]StateRow, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT entity_id, value, attributes, last_changed, last_updated, event_id
		FROM state
		ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("fetching states: %w", err)
	}
	defer rows.Close()

	states := make([]StateRow, 0)
	for rows.Next() {
		var r StateRow
		var attrs, changed, updated string
		if err := rows.Scan(&r.EntityID, &r.Value, &attrs, &changed, &updated, &r.EventID); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes of %s: %w", r.EntityID, err)
		}
		if r.LastChanged, err = time.Parse(time.RFC3339, changed); err != nil {
			return nil, fmt.Errorf("parsing last_changed of %s: %w", r.EntityID, err)
		}
		if r.LastUpdated, err = time.Parse(time.RFC3339, updated); err != nil {
			return nil, fmt.Errorf("parsing last_updated of %s: %w", r.EntityID, err)
		}
		states = append(states, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading state rows: %w", err)
	}

	return states, nil
}

func (d *Database) DeleteState(ctx context.Context, entityID string) error {
	_, err := d.write.ExecContext(ctx, `DELETE FROM state WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("deleting state of %s: %w", entityID, err)
	}
	return nil
}
