package www

import (
	"log/slog"
	"net/http"
	"time"
)

type stateResponse struct {
	EntityID    string         `json:"entity_id"`
	State       float64        `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	EventID     string         `json:"event_id"`
}

func NewStatesHandler(logger *slog.Logger, db Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.GetStates(r.Context())
		if err != nil {
			logger.Error("handling states request", slog.Any("error", err))
			writeError(logger, w, http.StatusInternalServerError, err)
			return
		}

		states := make([]stateResponse, len(rows))
		for i, row := range rows {
			states[i] = stateResponse{
				EntityID:    row.EntityID,
				State:       row.Value,
				Attributes:  row.Attributes,
				LastChanged: row.LastChanged,
				LastUpdated: row.LastUpdated,
				EventID:     row.EventID,
			}
		}
		writeJSON(logger, w, http.StatusOK, states)
	}
}
