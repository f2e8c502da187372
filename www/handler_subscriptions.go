package www

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/icodeforyou/entsoe-transparency/task"
)

func NewSubscriptionsHandler(logger *slog.Logger, tasks Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, http.StatusOK, tasks.Subscriptions())
	}
}

type refreshResponse struct {
	Region string `json:"region"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// NewRefreshHandler runs a poll tick for one region. A refresh that is not
// due yet answers 200 with result "skipped".
func NewRefreshHandler(logger *slog.Logger, tasks Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		region := r.PathValue("region")

		result, err := tasks.Refresh(r.Context(), region)
		switch {
		case errors.Is(err, task.ErrUnknownRegion):
			writeError(logger, w, http.StatusNotFound, err)
		case err != nil:
			writeJSON(logger, w, http.StatusBadGateway, refreshResponse{Region: region, Result: result.String(), Error: err.Error()})
		default:
			writeJSON(logger, w, http.StatusOK, refreshResponse{Region: region, Result: result.String()})
		}
	}
}
