// Package metrics provides Prometheus-based recording for interview turns
// and LLM calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements gateway.UsageRecorder and graph.TurnRecorder.
type Recorder struct {
	registry *prometheus.Registry

	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder registers the triage metrics on a fresh registry, alongside
// the Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_turns_total",
				Help: "Interview turns by operation and outcome (question, confirmation, diagnosis, error)",
			},
			[]string{"operation", "outcome"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_turn_duration_seconds",
				Help:    "Duration of interview turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model and status",
			},
			[]string{"model", "status"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
	}
}

// ObserveTurn records one start/resume/confirm call.
func (r *Recorder) ObserveTurn(operation, outcome string, elapsed time.Duration) {
	r.turnsTotal.WithLabelValues(operation, outcome).Inc()
	r.turnDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveModelCall records one completion attempt. Tokens and cost are
// only known for successful calls.
func (r *Recorder) ObserveModelCall(model, outcome string, elapsed time.Duration, usage *schema.TokenUsage, costUSD float64) {
	status := "success"
	if outcome != "ok" {
		status = "error"
	}
	r.requestsTotal.WithLabelValues(model, status).Inc()
	r.requestDuration.WithLabelValues(model).Observe(elapsed.Seconds())

	if usage != nil {
		r.tokensTotal.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
		r.tokensTotal.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	}
	if costUSD > 0 {
		r.costsTotal.WithLabelValues(model).Add(costUSD)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
