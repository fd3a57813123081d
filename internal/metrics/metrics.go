// Package metrics exposes Prometheus counters for ticks and publish attempts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"album_poster/internal/domain"
)

type Collector struct {
	ticks           *prometheus.CounterVec
	refreshFailures prometheus.Counter
	publishes       *prometheus.CounterVec
	publishDuration prometheus.Histogram
}

// NewCollector registers the poster metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poster_ticks_total",
			Help: "Scheduler ticks by kind.",
		}, []string{"kind"}),
		refreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poster_refresh_failures_total",
			Help: "Failed credential refreshes.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poster_publish_total",
			Help: "Publish attempts by outcome.",
		}, []string{"outcome"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poster_publish_duration_seconds",
			Help:    "Duration of publish attempts.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.ticks,
		c.refreshFailures,
		c.publishes,
		c.publishDuration,
	)

	return c
}

func (c *Collector) ObserveTick(kind domain.TickKind) {
	c.ticks.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) ObserveRefreshFailure() {
	c.refreshFailures.Inc()
}

func (c *Collector) ObservePublish(outcome domain.Outcome, duration time.Duration) {
	c.publishes.WithLabelValues(string(outcome)).Inc()
	c.publishDuration.Observe(duration.Seconds())
}
