package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/icodeforyou/entsoe-transparency/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "entsoe_"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

type Metrics struct {
	registry     *prometheus.Registry
	refreshes    *prometheus.CounterVec
	stateChanges *prometheus.CounterVec
	lastRefresh  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "refresh_total",
			Help: "Poll ticks per region by result",
		}, []string{"region", "result"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "state_changes_total",
			Help: "State changes fired per entity",
		}, []string{"entity_id"}),
		lastRefresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh per region",
		}, []string{"region"}),
	}
	m.registry.MustRegister(m.refreshes, m.stateChanges, m.lastRefresh)
	return m
}

func (m *Metrics) ObserveRefresh(region, result string, at time.Time) {
	m.refreshes.WithLabelValues(region, result).Inc()
	if result == ResultSuccess {
		m.lastRefresh.WithLabelValues(region).Set(float64(at.Unix()))
	}
}

// OnStateChanged is a state bus listener.
func (m *Metrics) OnStateChanged(ctx context.Context, ev types.StateChangedEvent) error {
	m.stateChanges.WithLabelValues(ev.EntityID).Inc()
	return nil
}

// Forget drops the series of a removed region.
func (m *Metrics) Forget(region, entityID string) {
	m.refreshes.DeletePartialMatch(prometheus.Labels{"region": region})
	m.lastRefresh.DeleteLabelValues(region)
	m.stateChanges.DeleteLabelValues(entityID)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
