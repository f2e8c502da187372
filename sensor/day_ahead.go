package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/icodeforyou/entsoe-transparency/hours"
	"github.com/icodeforyou/entsoe-transparency/types"
	"github.com/icodeforyou/entsoe-transparency/types/maybe"
)

const entityIDPrefix = "sensor.entsoe_transparency_day_ahead_"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseEmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseEmitting:
		return "emitting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Config struct {
	ApiKey   string
	Region   string
	Currency string
}

// UpdateResult tells the caller what a tick did.
type UpdateResult int

const (
	UpdateSkipped UpdateResult = iota
	UpdateDone
	UpdateFailed
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateSkipped:
		return "skipped"
	case UpdateDone:
		return "done"
	case UpdateFailed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// DayAhead publishes the day-ahead prices of one region as state changes of
// a single entity. At most one successful refresh happens per UTC calendar day.
type DayAhead struct {
	logger   *slog.Logger
	cnfg     Config
	entityID string
	fetcher  types.RatesFetcher
	sink     types.EventSink
	now      func() time.Time

	mu                  sync.Mutex
	phase               Phase
	lastSuccessfulFetch maybe.Maybe[time.Time]
	current             maybe.Maybe[types.State]
}

var _ types.Entity = (*DayAhead)(nil)

func NewDayAhead(logger *slog.Logger, cnfg Config, fetcher types.RatesFetcher, sink types.EventSink) *DayAhead {
	entityID := EntityID(cnfg.Region)
	return &DayAhead{
		logger:   logger.With(slog.String("entityId", entityID)),
		cnfg:     cnfg,
		entityID: entityID,
		fetcher:  fetcher,
		sink:     sink,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock, used by tests.
func (s *DayAhead) WithClock(now func() time.Time) *DayAhead {
	s.now = now
	return s
}

var nonEntityChars = regexp.MustCompile(`[^a-z0-9]+`)

// EntityID derives the entity id for a region, "SE-3" and "se_3" map to the same id.
func EntityID(region string) string {
	id := nonEntityChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(region)), "_")
	return entityIDPrefix + strings.Trim(id, "_")
}

func (s *DayAhead) EntityID() string {
	return s.entityID
}

func (s *DayAhead) Region() string {
	return s.cnfg.Region
}

func (s *DayAhead) Name() string {
	return fmt.Sprintf("Day-ahead Electricity Price (%s)", s.cnfg.Region)
}

func (s *DayAhead) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *DayAhead) LastSuccessfulFetch() maybe.Maybe[time.Time] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccessfulFetch
}

func (s *DayAhead) CurrentState() maybe.Maybe[types.State] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update is one poll tick, see Tick.
func (s *DayAhead) Update(ctx context.Context) error {
	_, err := s.Tick(ctx)
	return err
}

// Tick runs a refresh cycle when one is due. It is a no-op while another
// cycle is in flight or when today's prices were already published.
func (s *DayAhead) Tick(ctx context.Context) (UpdateResult, error) {
	now := s.now()
	if !s.begin(now) {
		return UpdateSkipped, nil
	}

	if err := s.refresh(ctx, now); err != nil {
		s.finish(maybe.None[time.Time]())
		s.logger.Error("day-ahead refresh failed", slog.Any("error", err))
		return UpdateFailed, err
	}

	s.finish(maybe.Some(s.now()))
	return UpdateDone, nil
}

// begin moves Idle to Fetching when the daily guard allows it. A refresh
// is due when nothing was fetched yet or the last success was on an
// earlier UTC date than now.
func (s *DayAhead) begin(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		s.logger.Debug("refresh skipped", slog.String("phase", s.phase.String()))
		return false
	}
	if s.lastSuccessfulFetch.IsValid() && !hours.DateBefore(s.lastSuccessfulFetch.Value(), now) {
		s.logger.Debug("refresh skipped, already fetched today",
			slog.Time("lastSuccessfulFetch", s.lastSuccessfulFetch.Value()))
		return false
	}

	s.phase = PhaseFetching
	return true
}

func (s *DayAhead) finish(fetchedAt maybe.Maybe[time.Time]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fetchedAt.IsValid() {
		s.lastSuccessfulFetch = fetchedAt
	}
	s.phase = PhaseIdle
}

func (s *DayAhead) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *DayAhead) refresh(ctx context.Context, now time.Time) error {
	start, end := hours.DayWindow(now)
	s.logger.Debug("refreshing day-ahead rates",
		slog.String("from", hours.FromTime(start).String()),
		slog.String("to", hours.FromTime(end).String()))

	observations, err := s.fetcher.FetchDayAheadRates(ctx, s.cnfg.ApiKey, s.cnfg.Region, start, end)
	if err != nil {
		return err
	}

	s.setPhase(PhaseEmitting)

	observations = slices.Clone(observations)
	slices.SortStableFunc(observations, func(a, b types.PriceObservation) int {
		return a.Timepoint.Compare(b.Timepoint)
	})

	previous := maybe.None[types.State]()
	for _, o := range observations {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("refresh cancelled: %w", err)
		}

		next := s.stateFor(o)
		if err := s.sink.Fire(ctx, types.NewStateChangedEvent(previous, next, o.Timepoint)); err != nil {
			return fmt.Errorf("fire state change for %s: %w", hours.FromTime(o.Timepoint), err)
		}
		previous = maybe.Some(next)

		s.mu.Lock()
		s.current = previous
		s.mu.Unlock()
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh cancelled: %w", err)
	}

	s.logger.Info("day-ahead rates published", slog.Int("noOfHours", len(observations)))
	return nil
}

func (s *DayAhead) stateFor(o types.PriceObservation) types.State {
	return types.State{
		EntityID: s.entityID,
		Value:    o.Price,
		Attributes: map[string]any{
			"friendly_name":       s.Name(),
			"unit_of_measurement": s.cnfg.Currency,
			"currency":            o.Currency,
			"unit":                o.Unit,
			"region":              s.cnfg.Region,
		},
		LastChanged: o.Timepoint,
		LastUpdated: o.Timepoint,
	}
}
