package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "firexview"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeClosed  = "closed"
)

// Collectors groups every metric the client exports. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	exchanges       *prometheus.CounterVec
	exchangeLatency *prometheus.HistogramVec
	pending         prometheus.Gauge
	lateResponses   prometheus.Counter
	liveUpdates     prometheus.Counter
	merges          prometheus.Counter
	graphTasks      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Correlated exchanges by request op and outcome.",
		}, []string{"op", "outcome"}),
		exchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from request send to settlement.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_exchanges",
			Help:      "Exchanges waiting for a reply.",
		}),
		lateResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_responses_total",
			Help:      "Replies that arrived with no pending exchange.",
		}),
		liveUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_updates_total",
			Help:      "Push events delivered to the live update handler.",
		}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_merges_total",
			Help:      "Incremental merges applied to the task graph.",
		}),
		graphTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_tasks",
			Help:      "Tasks in the current graph snapshot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.exchanges,
			c.exchangeLatency,
			c.pending,
			c.lateResponses,
			c.liveUpdates,
			c.merges,
			c.graphTasks,
		)
	}
	return c
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collectors) ExchangeStarted() {
	if c == nil {
		return
	}
	c.pending.Inc()
}

func (c *Collectors) ExchangeSettled(op, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.pending.Dec()
	c.exchanges.WithLabelValues(op, outcome).Inc()
	c.exchangeLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (c *Collectors) LateResponse() {
	if c == nil {
		return
	}
	c.lateResponses.Inc()
}

func (c *Collectors) LiveUpdate() {
	if c == nil {
		return
	}
	c.liveUpdates.Inc()
}

func (c *Collectors) GraphChanged(merged bool, size int) {
	if c == nil {
		return
	}
	if merged {
		c.merges.Inc()
	}
	c.graphTasks.Set(float64(size))
}
