// Package metrics holds the prometheus collectors shared by the daemon.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "navguard"

// Classifier request outcomes.
const (
	ClassifierOK       = "ok"
	ClassifierFallback = "fallback"
	ClassifierTimeout  = "timeout"
	ClassifierDisabled = "disabled"
)

type Metrics struct {
	decisions         *prometheus.CounterVec
	classifier        *prometheus.CounterVec
	classifierLatency prometheus.Histogram
	redirects         *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	listEntries       *prometheus.GaugeVec
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Navigation decisions by verdict and deciding stage.",
		}, []string{"verdict", "stage"}),
		classifier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Classifier calls by outcome.",
		}, []string{"result"}),
		classifierLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_request_duration_seconds",
			Help:      "Classifier round-trip time.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Block redirects by outcome (sent, stale, failed).",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by status code.",
		}, []string{"code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		listEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "list_entries",
			Help:      "Number of entries in each persisted list.",
		}, []string{"list"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.classifier, m.classifierLatency, m.redirects,
			m.httpRequests, m.httpDuration, m.listEntries)
	}
	return m
}

func (m *Metrics) ObserveDecision(verdict, stage string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(verdict, stage).Inc()
}

func (m *Metrics) ObserveClassifier(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.classifier.WithLabelValues(result).Inc()
	if took > 0 {
		m.classifierLatency.Observe(took.Seconds())
	}
}

func (m *Metrics) ObserveRedirect(result string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}

func (m *Metrics) SetListEntries(list string, n int) {
	if m == nil {
		return
	}
	m.listEntries.WithLabelValues(list).Set(float64(n))
}
