package www

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

type SysInfo struct {
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
}

func NewSysInfoHandler(logger *slog.Logger, sysInfo SysInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, http.StatusOK, struct {
			SysInfo
			GoVersion string `json:"go_version"`
			Uptime    string `json:"uptime"`
		}{
			SysInfo:   sysInfo,
			GoVersion: runtime.Version(),
			Uptime:    time.Since(sysInfo.StartTime).Round(time.Second).String(),
		})
	}
}
