package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/icodeforyou/entsoe-transparency/config"
)

type Store interface {
	stateStore
	Backup(ctx context.Context) error
	PurgeBackups(ctx context.Context, retentionDays int) error
	PurgeLog(ctx context.Context, maxLogEntries int) error
}

func NewMaintenanceTask(logger *slog.Logger, db Store, cnfg *config.AppConfig) func() {
	return func() {
		logger.Debug("running maintenance task...")

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		if err := db.Backup(ctx); err != nil {
			logger.Error("database backup error", slog.Any("error", err))
		}

		if err := db.PurgeBackups(ctx, cnfg.Database.GetBackupRetentionDays()); err != nil {
			logger.Error("backup maintenance error", slog.Any("error", err))
		}

		if err := db.PurgeLog(ctx, cnfg.Logging.GetDbMaxEntries()); err != nil {
			logger.Error("log maintenance error", slog.Any("error", err))
		}

		logger.Info("maintenance task done")
	}
}
