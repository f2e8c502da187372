package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/icodeforyou/entsoe-transparency/config"
	"github.com/icodeforyou/entsoe-transparency/metrics"
	"github.com/icodeforyou/entsoe-transparency/sensor"
	"github.com/icodeforyou/entsoe-transparency/types"
	"github.com/icodeforyou/entsoe-transparency/types/maybe"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPollRunAt        = "@hourly"
	DefaultMaintenanceRunAt = "30 2 * * *"
)

var ErrUnknownRegion = errors.New("region is not subscribed")

type stateStore interface {
	DeleteState(ctx context.Context, entityID string) error
}

type subscription struct {
	cnfg    config.Subscription
	driver  Driver
	poll    func()
	entryID cron.EntryID
	cancel  context.CancelFunc
}

type SubscriptionStatus struct {
	Region              string                   `json:"region"`
	EntityID            string                   `json:"entity_id"`
	Name                string                   `json:"name"`
	Phase               string                   `json:"phase"`
	LastSuccessfulFetch maybe.Maybe[time.Time]   `json:"last_successful_fetch"`
	CurrentState        maybe.Maybe[types.State] `json:"current_state"`
}

// Tasks owns the cron schedule: one poll job per subscription and the
// nightly maintenance job.
type Tasks struct {
	logger          *slog.Logger
	cron            *cron.Cron
	cnfg            *config.AppConfig
	fetcher         types.RatesFetcher
	sink            types.EventSink
	states          stateStore
	metrics         *metrics.Metrics
	mu              sync.Mutex
	subs            map[string]*subscription
	MaintenanceTask func()
}

func NewTasks(
	logger *slog.Logger,
	db Store,
	fetcher types.RatesFetcher,
	sink types.EventSink,
	m *metrics.Metrics,
	cnfg *config.AppConfig,
) *Tasks {
	return &Tasks{
		logger:          logger,
		cron:            cron.New(),
		cnfg:            cnfg,
		fetcher:         fetcher,
		sink:            sink,
		states:          db,
		metrics:         m,
		subs:            make(map[string]*subscription),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg),
	}
}

// regionKey identifies a subscription by the entity it publishes to.
func regionKey(region string) string {
	return sensor.EntityID(region)
}

func (t *Tasks) Run() {
	_, err := t.cron.AddFunc(t.cnfg.Maintenance.GetRunAt(DefaultMaintenanceRunAt), t.MaintenanceTask)
	if err != nil {
		panic(err)
	}
	t.Sync(t.cnfg.Subscriptions)
	t.cron.Start()
}

func (t *Tasks) Stop() context.Context {
	t.mu.Lock()
	for _, s := range t.subs {
		s.cancel()
	}
	t.mu.Unlock()
	return t.cron.Stop()
}

// Add creates the sensor for a configuration entry, schedules its poll job
// and runs a first update right away.
func (t *Tasks) Add(c config.Subscription) error {
	key := regionKey(c.Region)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subs[key]; ok {
		return fmt.Errorf("region %s is already subscribed", c.Region)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := sensor.NewDayAhead(
		t.logger.With(slog.String("module", "sensor"), slog.String("region", c.Region)),
		sensor.Config{ApiKey: c.ApiKey, Region: c.Region, Currency: c.Currency},
		t.fetcher,
		t.sink)
	poll := NewPollTask(ctx, t.logger.With(slog.String("task", "poll"), slog.String("region", c.Region)), s, t.metrics)

	entryID, err := t.cron.AddFunc(t.cnfg.Poll.GetRunAt(DefaultPollRunAt), poll)
	if err != nil {
		cancel()
		return fmt.Errorf("scheduling poll for %s: %w", c.Region, err)
	}

	t.subs[key] = &subscription{cnfg: c, driver: s, poll: poll, entryID: entryID, cancel: cancel}
	t.logger.Info("subscription added", slog.String("region", c.Region), slog.String("entityId", s.EntityID()))

	go poll()
	return nil
}

// Remove tears a subscription down. An update in flight is cancelled and
// the entity's stored state is deleted.
func (t *Tasks) Remove(region string) error {
	key := regionKey(region)

	t.mu.Lock()
	s, ok := t.subs[key]
	if ok {
		delete(t.subs, key)
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}

	s.cancel()
	t.cron.Remove(s.entryID)
	if t.metrics != nil {
		t.metrics.Forget(s.cnfg.Region, s.driver.EntityID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.states.DeleteState(ctx, s.driver.EntityID()); err != nil {
		t.logger.Warn("failed to delete state of removed subscription", slog.Any("error", err))
	}

	t.logger.Info("subscription removed", slog.String("region", s.cnfg.Region))
	return nil
}

// Sync makes the running subscriptions match the configuration entries.
// An entry whose api key or currency changed is recreated.
func (t *Tasks) Sync(entries []config.Subscription) {
	wanted := make(map[string]config.Subscription, len(entries))
	for _, e := range entries {
		wanted[regionKey(e.Region)] = e
	}

	t.mu.Lock()
	var stale []string
	for key, s := range t.subs {
		if e, ok := wanted[key]; !ok || e != s.cnfg {
			stale = append(stale, s.cnfg.Region)
		}
	}
	t.mu.Unlock()

	for _, region := range stale {
		if err := t.Remove(region); err != nil {
			t.logger.Warn("sync remove failed", slog.Any("error", err))
		}
	}

	for _, e := range entries {
		t.mu.Lock()
		_, running := t.subs[regionKey(e.Region)]
		t.mu.Unlock()
		if running {
			continue
		}
		if err := t.Add(e); err != nil {
			t.logger.Error("sync add failed", slog.Any("error", err))
		}
	}
}

// Refresh runs a poll tick for one region now. The daily guard still applies.
func (t *Tasks) Refresh(ctx context.Context, region string) (sensor.UpdateResult, error) {
	t.mu.Lock()
	s, ok := t.subs[regionKey(region)]
	t.mu.Unlock()
	if !ok {
		return sensor.UpdateSkipped, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	return runPoll(ctx, s.driver, t.metrics)
}

func (t *Tasks) Subscriptions() []SubscriptionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	statuses := make([]SubscriptionStatus, 0, len(t.subs))
	for _, s := range t.subs {
		statuses = append(statuses, SubscriptionStatus{
			Region:              s.cnfg.Region,
			EntityID:            s.driver.EntityID(),
			Name:                s.driver.Name(),
			Phase:               s.driver.Phase().String(),
			LastSuccessfulFetch: s.driver.LastSuccessfulFetch(),
			CurrentState:        s.driver.CurrentState(),
		})
	}
	slices.SortFunc(statuses, func(a, b SubscriptionStatus) int {
		return strings.Compare(a.Region, b.Region)
	})
	return statuses
}
