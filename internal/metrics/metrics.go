package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fede"

// Observer exports bot telemetry to Prometheus. A nil *Observer is a no-op.
type Observer struct {
	registry *prometheus.Registry

	updates      *prometheus.CounterVec
	llmDuration  prometheus.Histogram
	llmErrors    prometheus.Counter
	llmRounds    prometheus.Histogram
	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec
	actions      *prometheus.CounterVec
}

// New creates an observer with its own registry
func New() (*Observer, error) {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_turn_duration_seconds",
			Help:      "Latency of a full model turn including tool calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
		}),
		llmErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Failed model turns.",
		}),
		llmRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_turn_rounds",
			Help:      "Model round trips per turn.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
		}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Latency of MCP tool calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_call_errors_total",
			Help:      "Failed MCP tool calls.",
		}, []string{"server"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Pending action transitions, by kind and resulting state.",
		}, []string{"kind", "state"}),
	}

	collectors := []prometheus.Collector{
		o.updates, o.llmDuration, o.llmErrors, o.llmRounds, o.toolDuration, o.toolErrors, o.actions,
		collectors.NewGoCollector(),
	}
	for _, c := range collectors {
		if err := o.registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return o, nil
}

// Handler serves the registry in the Prometheus text format
func (o *Observer) Handler() http.Handler {
	if o == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (o *Observer) Registry() *prometheus.Registry {
	if o == nil {
		return nil
	}
	return o.registry
}

// RecordUpdate counts an inbound update
func (o *Observer) RecordUpdate(kind, outcome string) {
	if o == nil {
		return
	}
	o.updates.WithLabelValues(kind, outcome).Inc()
}

// RecordLLM tracks a model turn
func (o *Observer) RecordLLM(duration time.Duration, rounds int, err error) {
	if o == nil {
		return
	}
	o.llmDuration.Observe(duration.Seconds())
	if err != nil {
		o.llmErrors.Inc()
		return
	}
	o.llmRounds.Observe(float64(rounds))
}

// RecordTool tracks an MCP tool call
func (o *Observer) RecordTool(server string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.toolDuration.WithLabelValues(server).Observe(duration.Seconds())
	if err != nil {
		o.toolErrors.WithLabelValues(server).Inc()
	}
}

// RecordAction counts a pending action entering a state
func (o *Observer) RecordAction(kind, state string) {
	if o == nil {
		return
	}
	o.actions.WithLabelValues(kind, state).Inc()
}
