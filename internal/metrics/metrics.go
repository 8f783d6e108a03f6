// Package metrics exposes dispatch activity as Prometheus metrics. It
// listens on the event bus, so the engine never depends on it.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dailydispatch/internal/dispatch"
	"dailydispatch/internal/eventbus"
	logx "dailydispatch/pkg/logx"
)

// Collector owns a private registry so several instances (tests) never
// collide on the global one.
type Collector struct {
	reg *prometheus.Registry
	log logx.Logger

	recipients     *prometheus.CounterVec
	attemptFailed  *prometheus.CounterVec
	runs           *prometheus.CounterVec
	persistFailed  *prometheus.CounterVec
	deliverSeconds *prometheus.HistogramVec
	lastRun        *prometheus.GaugeVec
	lastSuccesses  *prometheus.GaugeVec
}

func New(log logx.Logger) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Collector{
		reg: prometheus.NewRegistry(),
		log: log.With(logx.String("comp", "metrics")),
		recipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_recipients_total",
			Help: "Recipients processed by final state.",
		}, []string{"campaign", "outcome"}),
		attemptFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_send_attempt_failures_total",
			Help: "Gateway attempts that failed, including ones later retried.",
		}, []string{"campaign"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Campaign runs by result.",
		}, []string{"campaign", "result"}),
		persistFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_history_persist_failures_total",
			Help: "End-of-run history writes that failed.",
		}, []string{"campaign"}),
		deliverSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_delivery_seconds",
			Help:    "Time from first attempt to a final send outcome, backoff included.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120},
		}, []string{"campaign", "outcome"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_last_run_timestamp_seconds",
			Help: "Unix time the last run of a campaign finished.",
		}, []string{"campaign"}),
		lastSuccesses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_last_run_successes",
			Help: "Deliveries made by the last run of a campaign.",
		}, []string{"campaign"}),
	}
	c.reg.MustRegister(
		c.recipients, c.attemptFailed, c.runs, c.persistFailed,
		c.deliverSeconds, c.lastRun, c.lastSuccesses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}

// Observe applies one event.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeSkipped:
		c.recipients.WithLabelValues(e.Campaign, string(dispatch.StateSkipped)).Inc()
	case eventbus.TypeRenderFailed:
		c.recipients.WithLabelValues(e.Campaign, string(dispatch.StateRenderFailed)).Inc()
	case eventbus.TypeSent, eventbus.TypeFailed:
		o, _ := e.Data.(dispatch.Outcome)
		outcome := string(dispatch.StateSent)
		if e.Type == eventbus.TypeFailed {
			outcome = string(dispatch.StateFailed)
		}
		c.recipients.WithLabelValues(e.Campaign, outcome).Inc()
		c.deliverSeconds.WithLabelValues(e.Campaign, outcome).Observe(o.Duration.Seconds())
	case eventbus.TypeAttemptFailed:
		c.attemptFailed.WithLabelValues(e.Campaign).Inc()
	case eventbus.TypePersistFailed:
		c.persistFailed.WithLabelValues(e.Campaign).Inc()
	case eventbus.TypeRunDone:
		r, ok := e.Data.(dispatch.Result)
		if !ok {
			return
		}
		result := "completed"
		if r.Interrupted {
			result = "interrupted"
		}
		c.runs.WithLabelValues(e.Campaign, result).Inc()
		c.lastRun.WithLabelValues(e.Campaign).Set(float64(r.FinishedAt.Unix()))
		c.lastSuccesses.WithLabelValues(e.Campaign).Set(float64(r.Counters.Successes))
	}
}
