// Package metrics exposes Prometheus collectors for conversation rounds,
// tool calls, model completions and profile consolidation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/langflow/ai-teacher/internal/application/orchestrator"
	"github.com/langflow/ai-teacher/internal/application/tools"
)

const namespace = "ai_teacher"

// Collector implements tools.Observer and orchestrator.Observer.
type Collector struct {
	registry *prometheus.Registry

	rounds                   *prometheus.CounterVec
	toolCalls                *prometheus.CounterVec
	toolCallDuration         *prometheus.HistogramVec
	completionDuration       *prometheus.HistogramVec
	consolidationSuggestions prometheus.Counter
	consolidations           *prometheus.CounterVec
	jobRuns                  *prometheus.CounterVec
	jobDuration              *prometheus.HistogramVec
}

var (
	_ tools.Observer        = (*Collector)(nil)
	_ orchestrator.Observer = (*Collector)(nil)
)

// New creates a Collector on its own registry, with Go runtime and process
// collectors included.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newCollector(reg)
}

func newCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Conversation rounds by outcome.",
		}, []string{"outcome"}),

		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),

		toolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency, including backend round trips.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),

		completionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Chat completion latency by stage.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"stage"}),

		consolidationSuggestions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_suggestions_total",
			Help:      "Times the policy asked the model to offer a profile analysis.",
		}),

		consolidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidations_total",
			Help:      "Profile consolidations by outcome.",
		}, []string{"outcome"}),

		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Housekeeping job runs by job and outcome.",
		}, []string{"job", "outcome"}),

		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Housekeeping job duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

// ObserveToolCall records one executed tool call.
func (c *Collector) ObserveToolCall(tool string, outcome tools.Outcome, elapsed time.Duration) {
	c.toolCalls.WithLabelValues(tool, string(outcome)).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveRound records the outcome of a conversation round.
func (c *Collector) ObserveRound(outcome string) {
	c.rounds.WithLabelValues(outcome).Inc()
}

// ObserveCompletion records a chat completion latency.
func (c *Collector) ObserveCompletion(stage orchestrator.Stage, elapsed time.Duration) {
	c.completionDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// ObserveSuggestion records a consolidation suggestion.
func (c *Collector) ObserveSuggestion() {
	c.consolidationSuggestions.Inc()
}

// ObserveConsolidation records a consolidation attempt.
func (c *Collector) ObserveConsolidation(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	c.consolidations.WithLabelValues(outcome).Inc()
}

// ObserveJob records a housekeeping job run.
func (c *Collector) ObserveJob(job string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.jobRuns.WithLabelValues(job, outcome).Inc()
	c.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// RegisterGauge exposes a value computed at scrape time, such as the number
// of buffers held in memory.
func (c *Collector) RegisterGauge(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
