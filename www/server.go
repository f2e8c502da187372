package www

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/icodeforyou/entsoe-transparency/config"
	"github.com/icodeforyou/entsoe-transparency/database"
	"github.com/icodeforyou/entsoe-transparency/sensor"
	"github.com/icodeforyou/entsoe-transparency/task"
)

type Store interface {
	GetStates(ctx context.Context) ([]database.StateRow, error)
	GetLogEntries(ctx context.Context, minLvl slog.Level, page, pageSize int) ([]database.LogEntryRow, error)
}

type Scheduler interface {
	Subscriptions() []task.SubscriptionStatus
	Refresh(ctx context.Context, region string) (sensor.UpdateResult, error)
}

type Server struct {
	logger *slog.Logger
	config config.AppConfigApi
	hub    *Hub
	mux    *http.ServeMux
}

func NewServer(
	logger *slog.Logger,
	config config.AppConfigApi,
	db Store,
	tasks Scheduler,
	hub *Hub,
	metrics http.Handler,
	sysInfo SysInfo,
) *Server {
	s := &Server{
		logger: logger,
		config: config,
		hub:    hub,
		mux:    http.NewServeMux(),
	}

	logReqMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("remoteAddr", r.RemoteAddr))
			next.ServeHTTP(w, r)
		})
	}

	s.mux.Handle("GET /api/states", logReqMW(NewStatesHandler(
		logger.With(slog.String("handler", "states")),
		db)))

	s.mux.Handle("GET /api/subscriptions", logReqMW(NewSubscriptionsHandler(
		logger.With(slog.String("handler", "subscriptions")),
		tasks)))

	s.mux.Handle("POST /api/subscriptions/{region}/refresh", logReqMW(NewRefreshHandler(
		logger.With(slog.String("handler", "refresh")),
		tasks)))

	s.mux.Handle("GET /api/log", logReqMW(NewLogHandler(
		logger.With(slog.String("handler", "log")),
		db)))

	s.mux.Handle("GET /api/sys_info", logReqMW(NewSysInfoHandler(logger.With(slog.String("handler", "sys_info")), sysInfo)))

	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}

	s.mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get("User-Agent")
		client, err := NewClient(s.hub, w, r, name)
		if err != nil {
			s.logger.Error("new websocket client failed", slog.Any("error", err))
			return
		}
		if !s.hub.register(client) {
			client.conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("starting server...", "port", s.config.Port)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErrors := make(chan error, 1)

	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.Any("error", err))
		}

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", slog.Any("error", err))
		}
	}
}
