package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/icodeforyou/entsoe-transparency/config"
	"github.com/icodeforyou/entsoe-transparency/database"
	"github.com/icodeforyou/entsoe-transparency/entsoe"
	"github.com/icodeforyou/entsoe-transparency/logging"
	"github.com/icodeforyou/entsoe-transparency/metrics"
	"github.com/icodeforyou/entsoe-transparency/mqttbridge"
	"github.com/icodeforyou/entsoe-transparency/statebus"
	"github.com/icodeforyou/entsoe-transparency/task"
	"github.com/icodeforyou/entsoe-transparency/www"
	"github.com/lmittmann/tint"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cnfg.Logging.GetConsoleLevel(),
		TimeFormat: time.RFC3339,
	})
	consoleLogger := slog.New(consoleHandler)
	consoleLogger.Debug("entsoe-transparency is starting...", slog.String("version", Version))

	db, err := database.New(ctx, consoleLogger.With("module", "database"), cnfg.Database.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer db.Close()

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
	slog.SetDefault(logger)

	// Now we can use the logger to log database operations into the database itself
	db.SetLogger(logger.With("module", "database"))

	m := metrics.New()
	hub := www.NewHub(logger.With("module", "websocket"))
	go hub.Run(ctx)

	recorder := database.NewStateRecorder(logger.With("module", "recorder"), db)
	recorderDone := make(chan struct{})
	go func() {
		recorder.Run(ctx)
		close(recorderDone)
	}()
	// Flush pending states before the database is closed
	defer func() {
		cancel()
		<-recorderDone
	}()

	bus := statebus.New(logger.With("module", "statebus"))
	bus.Listen("recorder", recorder.OnStateChanged)
	bus.Listen("metrics", m.OnStateChanged)
	bus.Listen("websocket", hub.OnStateChanged)

	if cnfg.Mqtt.Enabled {
		publisher, client := mqttbridge.New(logger.With("module", "mqtt"), mqttbridge.Options{
			Host:        cnfg.Mqtt.Host,
			Port:        cnfg.Mqtt.Port,
			Username:    cnfg.Mqtt.Username,
			Password:    cnfg.Mqtt.Password,
			ClientID:    cnfg.Mqtt.GetClientID(),
			TopicPrefix: cnfg.Mqtt.GetTopicPrefix(),
		})
		if isDevMode() {
			logger.Info("dev mode, skipping mqtt connection")
		} else {
			if err := mqttbridge.Connect(client); err != nil {
				panic(fmt.Sprintf("mqtt connection error: %v", err))
			}
			defer client.Disconnect(250)
			go publisher.Run(ctx)
			bus.Listen("mqtt", publisher.OnStateChanged)
		}
	}

	fetcher := entsoe.NewFetcher(
		logger.With("module", "entsoe"),
		entsoe.NewClient(logger.With("module", "entsoe"), cnfg.Entsoe.GetBaseURL(), cnfg.Entsoe.GetTimeout()))

	tasks := task.NewTasks(logger.With("module", "tasks"), db, fetcher, bus, m, cnfg)
	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		tasks.Run()
		defer tasks.Stop()

		err := config.Watch(*configPath,
			func(c *config.AppConfig) {
				logger.Info("config changed, syncing subscriptions", slog.Int("noOfSubscriptions", len(c.Subscriptions)))
				tasks.Sync(c.Subscriptions)
			},
			func(err error) {
				logger.Warn("ignoring invalid config change", slog.Any("error", err))
			})
		if err != nil {
			logger.Warn("config watch disabled", slog.Any("error", err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("main context done")
		case sig := <-sigCh:
			logger.Info("received signal", slog.Any("signal", sig))
			cancel()
		}
	}()

	server := www.NewServer(logger.With("module", "www"), cnfg.Api, db, tasks, hub, m.Handler(), www.SysInfo{
		Version:   Version,
		StartTime: time.Now(),
	})
	server.Run(ctx)
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	if syncer, ok := logger.Handler().(interface{ Sync() error }); ok {
		if syncErr := syncer.Sync(); syncErr != nil {
			logger.Error("failed to flush logger", slog.Any("error", syncErr))
		}
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}
