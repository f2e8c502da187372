package sensor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/icodeforyou/entsoe-transparency/types"
)

type fakeFetcher struct {
	mu           sync.Mutex
	observations []types.PriceObservation
	err          error
	calls        int
	start, end   time.Time
	block        chan struct{}
	started      chan struct{}
}

func (f *fakeFetcher) FetchDayAheadRates(ctx context.Context, apiKey, region string, start, end time.Time) ([]types.PriceObservation, error) {
	f.mu.Lock()
	f.calls++
	f.start, f.end = start, end
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.observations, f.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type collectingSink struct {
	mu     sync.Mutex
	events []types.StateChangedEvent
	onFire func(n int) error
}

func (s *collectingSink) Fire(ctx context.Context, event types.StateChangedEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	n := len(s.events)
	s.mu.Unlock()
	if s.onFire != nil {
		return s.onFire(n)
	}
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func hourlyObservations(start time.Time, prices ...float64) []types.PriceObservation {
	obs := make([]types.PriceObservation, len(prices))
	for i, p := range prices {
		obs[i] = types.PriceObservation{
			Timepoint: start.Add(time.Duration(i) * time.Hour),
			Price:     p,
			Currency:  "EUR",
			Unit:      types.UnitKWh,
		}
	}
	return obs
}

func newTestSensor(f *fakeFetcher, sink *collectingSink, c *clock) *DayAhead {
	cnfg := Config{ApiKey: "key", Region: "AT", Currency: "EUR"}
	return NewDayAhead(slog.New(slog.DiscardHandler), cnfg, f, sink).WithClock(c.now)
}

func TestEntityID(t *testing.T) {
	tests := []struct {
		region   string
		expected string
	}{
		{"AT", "sensor.entsoe_transparency_day_ahead_at"},
		{"SE-3", "sensor.entsoe_transparency_day_ahead_se_3"},
		{"se_3", "sensor.entsoe_transparency_day_ahead_se_3"},
		{"10YAT-APG------L", "sensor.entsoe_transparency_day_ahead_10yat_apg_l"},
	}
	for _, tt := range tests {
		if got := EntityID(tt.region); got != tt.expected {
			t.Errorf("EntityID(%q) expected %q, got %q", tt.region, tt.expected, got)
		}
	}
}

func TestEmissionOrdering(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{observations: hourlyObservations(midnight, 0.05, 0.075, 0.06)}
	sink := &collectingSink{}
	c := &clock{t: midnight.Add(10*time.Hour + 17*time.Minute)}
	s := newTestSensor(f, sink, c)

	result, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != UpdateDone {
		t.Errorf("expected UpdateDone, got %v", result)
	}

	if !f.start.Equal(midnight) || !f.end.Equal(midnight.Add(24*time.Hour)) {
		t.Errorf("expected window [%v, %v), got [%v, %v)", midnight, midnight.Add(24*time.Hour), f.start, f.end)
	}

	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(sink.events))
	}
	for i, ev := range sink.events {
		o := f.observations[i]
		if ev.EventType != types.EventStateChanged {
			t.Errorf("[%d] expected event type %q, got %q", i, types.EventStateChanged, ev.EventType)
		}
		if ev.EntityID != "sensor.entsoe_transparency_day_ahead_at" || ev.NewState.EntityID != ev.EntityID {
			t.Errorf("[%d] unexpected entity id %q", i, ev.EntityID)
		}
		if !ev.TimeFired.Equal(o.Timepoint) || !ev.NewState.LastChanged.Equal(o.Timepoint) || !ev.NewState.LastUpdated.Equal(o.Timepoint) {
			t.Errorf("[%d] expected timestamps %v, got fired %v changed %v", i, o.Timepoint, ev.TimeFired, ev.NewState.LastChanged)
		}
		if ev.NewState.Value != o.Price {
			t.Errorf("[%d] expected value %v, got %v", i, o.Price, ev.NewState.Value)
		}
		if i == 0 {
			if ev.OldState.IsValid() {
				t.Errorf("expected no previous state for the first event")
			}
			continue
		}
		prev := sink.events[i-1].NewState
		if !ev.OldState.IsValid() || ev.OldState.Value().Value != prev.Value || !ev.OldState.Value().LastChanged.Equal(prev.LastChanged) {
			t.Errorf("[%d] expected previous state %+v, got %+v", i, prev, ev.OldState)
		}
	}

	current := s.CurrentState()
	if !current.IsValid() || current.Value().Value != 0.06 {
		t.Errorf("expected current state 0.06, got %+v", current)
	}

	last := s.LastSuccessfulFetch()
	if !last.IsValid() || !last.Value().Equal(c.t) {
		t.Errorf("expected last successful fetch %v, got %+v", c.t, last)
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", s.Phase())
	}
}

func TestEmissionSortsByTimepoint(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := hourlyObservations(midnight, 1, 2, 3)
	f := &fakeFetcher{observations: []types.PriceObservation{obs[2], obs[0], obs[1]}}
	sink := &collectingSink{}
	s := newTestSensor(f, sink, &clock{t: midnight.Add(time.Hour)})

	if err := s.Update(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, ev := range sink.events {
		if !ev.TimeFired.Equal(obs[i].Timepoint) {
			t.Errorf("[%d] expected %v, got %v", i, obs[i].Timepoint, ev.TimeFired)
		}
	}
}

func TestDailyGuard(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{observations: hourlyObservations(midnight, 1)}
	c := &clock{t: midnight.Add(20 * time.Hour)}
	s := newTestSensor(f, &collectingSink{}, c)

	if err := s.Update(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, at := range []time.Duration{20*time.Hour + time.Minute, 22 * time.Hour, 23*time.Hour + 59*time.Minute + 59*time.Second} {
		c.t = midnight.Add(at)
		result, err := s.Tick(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != UpdateSkipped {
			t.Errorf("expected tick at %v to be skipped", c.t)
		}
	}
	if f.Calls() != 1 {
		t.Fatalf("expected 1 fetch before midnight, got %d", f.Calls())
	}

	c.t = midnight.Add(24 * time.Hour)
	if result, _ := s.Tick(context.Background()); result != UpdateDone {
		t.Errorf("expected the first tick of the next day to refresh, got %v", result)
	}
	c.t = midnight.Add(25 * time.Hour)
	s.Tick(context.Background())
	if f.Calls() != 2 {
		t.Errorf("expected exactly 2 fetches, got %d", f.Calls())
	}
}

func TestFetchFailureKeepsLastFetch(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{err: errors.New("boom")}
	sink := &collectingSink{}
	s := newTestSensor(f, sink, &clock{t: midnight.Add(time.Hour)})

	result, err := s.Tick(context.Background())
	if err == nil || result != UpdateFailed {
		t.Fatalf("expected failure, got %v, %v", result, err)
	}
	if s.LastSuccessfulFetch().IsValid() {
		t.Errorf("expected no last successful fetch")
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", s.Phase())
	}
	if len(sink.events) != 0 {
		t.Errorf("expected no events, got %d", len(sink.events))
	}

	f.err = nil
	f.observations = hourlyObservations(midnight, 1)
	if result, err := s.Tick(context.Background()); err != nil || result != UpdateDone {
		t.Errorf("expected retry on next tick to succeed, got %v, %v", result, err)
	}
	if f.Calls() != 2 {
		t.Errorf("expected 2 fetches, got %d", f.Calls())
	}
}

func TestSinkFailureAbortsCycle(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{observations: hourlyObservations(midnight, 1, 2, 3)}
	sink := &collectingSink{onFire: func(n int) error {
		if n == 2 {
			return errors.New("bus closed")
		}
		return nil
	}}
	s := newTestSensor(f, sink, &clock{t: midnight})

	if _, err := s.Tick(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}
	if len(sink.events) != 2 {
		t.Errorf("expected emission to stop after the failing event, got %d events", len(sink.events))
	}
	if s.LastSuccessfulFetch().IsValid() {
		t.Errorf("expected no last successful fetch")
	}
}

func TestCancelledDuringEmission(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{observations: hourlyObservations(midnight, 1, 2, 3)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &collectingSink{onFire: func(n int) error {
		cancel()
		return nil
	}}
	s := newTestSensor(f, sink, &clock{t: midnight})

	_, err := s.Tick(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sink.events) != 1 {
		t.Errorf("expected 1 event before cancellation, got %d", len(sink.events))
	}
	if s.LastSuccessfulFetch().IsValid() {
		t.Errorf("expected no last successful fetch after cancellation")
	}
}

func TestReentryBlocked(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{
		observations: hourlyObservations(midnight, 1),
		block:        make(chan struct{}),
		started:      make(chan struct{}),
	}
	s := newTestSensor(f, &collectingSink{}, &clock{t: midnight.Add(time.Hour)})

	done := make(chan UpdateResult)
	go func() {
		result, _ := s.Tick(context.Background())
		done <- result
	}()

	<-f.started
	if s.Phase() != PhaseFetching {
		t.Errorf("expected fetching, got %v", s.Phase())
	}
	if result, err := s.Tick(context.Background()); err != nil || result != UpdateSkipped {
		t.Errorf("expected the second tick to be skipped, got %v, %v", result, err)
	}

	close(f.block)
	if result := <-done; result != UpdateDone {
		t.Errorf("expected first tick to finish, got %v", result)
	}
	if f.Calls() != 1 {
		t.Errorf("expected 1 fetch, got %d", f.Calls())
	}
}
