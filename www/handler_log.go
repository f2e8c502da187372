package www

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/icodeforyou/entsoe-transparency/logging"
)

type logEntryResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Attrs     string    `json:"attrs"`
}

func NewLogHandler(logger *slog.Logger, db Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := intOrDefault(r.URL, "page", 1)
		pageSize := intOrDefault(r.URL, "pageSize", 25)
		minLvl := slog.LevelDebug
		if l := r.URL.Query().Get("level"); l != "" {
			minLvl = logging.LevelFromString(&l)
		}

		entries, err := db.GetLogEntries(r.Context(), minLvl, page, pageSize)
		if err != nil {
			logger.Error("handling log request", slog.Any("error", err))
			writeError(logger, w, http.StatusInternalServerError, err)
			return
		}

		resp := make([]logEntryResponse, len(entries))
		for i, e := range entries {
			resp[i] = logEntryResponse{
				Timestamp: e.Timestamp,
				Level:     slog.Level(e.Level).String(),
				Message:   e.Message,
				Attrs:     e.Attrs,
			}
		}
		writeJSON(logger, w, http.StatusOK, resp)
	}
}
