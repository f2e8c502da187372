package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/icodeforyou/entsoe-transparency/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRefresh(t *testing.T) {
	m := New()
	at := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	m.ObserveRefresh("AT", ResultSuccess, at)
	m.ObserveRefresh("AT", ResultSkipped, at)
	m.ObserveRefresh("AT", ResultSkipped, at)
	m.ObserveRefresh("AT", ResultFailure, at.Add(time.Hour))

	if v := testutil.ToFloat64(m.refreshes.WithLabelValues("AT", ResultSkipped)); v != 2 {
		t.Errorf("expected 2 skipped refreshes, got %v", v)
	}
	if v := testutil.ToFloat64(m.lastRefresh.WithLabelValues("AT")); v != float64(at.Unix()) {
		t.Errorf("expected last refresh %d, got %v", at.Unix(), v)
	}

	m.Forget("AT", "sensor.x")
	if n := testutil.CollectAndCount(m.refreshes); n != 0 {
		t.Errorf("expected no refresh series after forget, got %d", n)
	}
}

func TestStateChangesAndHandler(t *testing.T) {
	m := New()
	ev := types.StateChangedEvent{EntityID: "sensor.entsoe_transparency_day_ahead_at"}
	for i := 0; i < 3; i++ {
		m.OnStateChanged(context.Background(), ev)
	}

	if v := testutil.ToFloat64(m.stateChanges.WithLabelValues(ev.EntityID)); v != 3 {
		t.Errorf("expected 3 state changes, got %v", v)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "entsoe_state_changes_total") {
		t.Errorf("expected metrics output to contain entsoe_state_changes_total")
	}
}
