package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/icodeforyou/entsoe-transparency/metrics"
	"github.com/icodeforyou/entsoe-transparency/sensor"
	"github.com/icodeforyou/entsoe-transparency/types"
	"github.com/icodeforyou/entsoe-transparency/types/maybe"
)

const pollTimeout = 2 * time.Minute

// Driver is the entity a poll job ticks.
type Driver interface {
	types.Entity
	Region() string
	Name() string
	Phase() sensor.Phase
	LastSuccessfulFetch() maybe.Maybe[time.Time]
	Tick(ctx context.Context) (sensor.UpdateResult, error)
}

var _ Driver = (*sensor.DayAhead)(nil)

// NewPollTask returns the cron job for one driver. ctx is the lifetime of
// the subscription, cancelling it aborts a tick in flight.
func NewPollTask(ctx context.Context, logger *slog.Logger, d Driver, m *metrics.Metrics) func() {
	return func() {
		logger.Debug("running poll task...")
		result, err := runPoll(ctx, d, m)
		if err != nil {
			// already reported by the sensor, next tick retries
			return
		}
		if result == sensor.UpdateDone {
			logger.Info("poll task done")
		}
	}
}

func runPoll(ctx context.Context, d Driver, m *metrics.Metrics) (sensor.UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	result, err := d.Tick(ctx)
	if m != nil {
		m.ObserveRefresh(d.Region(), metricResult(result), time.Now())
	}
	return result, err
}

func metricResult(r sensor.UpdateResult) string {
	switch r {
	case sensor.UpdateDone:
		return metrics.ResultSuccess
	case sensor.UpdateFailed:
		return metrics.ResultFailure
	default:
		return metrics.ResultSkipped
	}
}
