// Package metrics holds the prometheus collectors shared by the sensei runtime.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensei"

// Metrics owns a private registry so tests and multiple runtimes in one
// process never collide on the global default registerer.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	assembleSeconds  prometheus.Histogram
	degraded         *prometheus.CounterVec
	policyDecisions  *prometheus.CounterVec
	classifications  *prometheus.CounterVec
	summarizerRuns   *prometheus.CounterVec
	tasks            *prometheus.CounterVec
	artifactsDropped prometheus.Counter
}

// New builds and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assembleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aperture",
			Name:      "assemble_seconds",
			Help:      "Wall time spent assembling a learner context.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aperture",
			Name:      "degraded_total",
			Help:      "Context assemblies that returned an empty or partial snapshot.",
		}, []string{"reason"}),
		policyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Policy decisions by evaluation kind and outcome.",
		}, []string{"kind", "allowed"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gatekeeper",
			Name:      "classifications_total",
			Help:      "Memory gatekeeper classifications by scope.",
		}, []string{"scope"}),
		summarizerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summarizer",
			Name:      "runs_total",
			Help:      "Conversation summarization runs by outcome.",
		}, []string{"outcome"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "Background tasks handled by name and outcome.",
		}, []string{"task", "outcome"}),
		artifactsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "artifacts_dropped_total",
			Help:      "Proposed artifacts dropped because the store rejected them.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.assembleSeconds,
		m.degraded,
		m.policyDecisions,
		m.classifications,
		m.summarizerRuns,
		m.tasks,
		m.artifactsDropped,
	)

	return m
}

// Registry exposes the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAssemble(d time.Duration) {
	if m == nil {
		return
	}
	m.assembleSeconds.Observe(d.Seconds())
}

func (m *Metrics) IncDegraded(reason string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncPolicyDecision(kind string, allowed bool) {
	if m == nil {
		return
	}
	m.policyDecisions.WithLabelValues(kind, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) IncClassification(scope string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncSummarizerRun(outcome string) {
	if m == nil {
		return
	}
	m.summarizerRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTask(task, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(task, outcome).Inc()
}

func (m *Metrics) IncArtifactDropped() {
	if m == nil {
		return
	}
	m.artifactsDropped.Inc()
}
