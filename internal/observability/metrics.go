// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing used by the claim path and its storage.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rowlease"

// Metrics implements claim.Metrics, writer.Observer and
// pebblestore.MetricsHook on one registry.
type Metrics struct {
	reg *prometheus.Registry

	Claims        *prometheus.CounterVec
	ClaimDuration *prometheus.HistogramVec
	Reclaims      *prometheus.CounterVec
	LostRaces     prometheus.Counter
	Writes        *prometheus.CounterVec
	WrittenCells  prometheus.Counter
	WriteDuration prometheus.Histogram
	StoreReads    prometheus.Counter
	StoreCommits  prometheus.Counter
	StoreBytes    *prometheus.CounterVec
}

// NewMetrics builds the collectors on a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "attempts_total",
			Help:      "Claim attempts by outcome (claimed, empty, error).",
		}, []string{"outcome"}),
		ClaimDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "duration_seconds",
			Help:      "Wall time of a claim attempt including table round-trips.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		Reclaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "reclaims_total",
			Help:      "Rows claimed over an existing lease, by reason (stale, corrupt).",
		}, []string{"reason"}),
		LostRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "lost_races_total",
			Help:      "Conditional claim writes that found the row already changed.",
		}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "requests_total",
			Help:      "Batch write requests by result (ok, error).",
		}, []string{"result"}),
		WrittenCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "cells_total",
			Help:      "Cells sent in batch write requests.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "duration_seconds",
			Help:      "Latency of one batch write request.",
			Buckets:   prometheus.DefBuckets,
		}),
		StoreReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pebble",
			Name:      "reads_total",
			Help:      "Point reads served by the local store.",
		}),
		StoreCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pebble",
			Name:      "batch_commits_total",
			Help:      "Batches committed to the local store.",
		}),
		StoreBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pebble",
			Name:      "bytes_total",
			Help:      "Bytes read from and committed to the local store.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.Claims, m.ClaimDuration, m.Reclaims, m.LostRaces,
		m.Writes, m.WrittenCells, m.WriteDuration,
		m.StoreReads, m.StoreCommits, m.StoreBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveClaim(outcome string, elapsed time.Duration) {
	m.Claims.WithLabelValues(outcome).Inc()
	m.ClaimDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReclaim(reason string) { m.Reclaims.WithLabelValues(reason).Inc() }

func (m *Metrics) ObserveLostRace() { m.LostRaces.Inc() }

func (m *Metrics) ObserveWrite(elapsed time.Duration, cells int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Writes.WithLabelValues(result).Inc()
	m.WrittenCells.Add(float64(cells))
	m.WriteDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRead(_ time.Duration, bytes int) {
	m.StoreReads.Inc()
	m.StoreBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(_ time.Duration, _ int, bytes int) {
	m.StoreCommits.Inc()
	m.StoreBytes.WithLabelValues("commit").Add(float64(bytes))
}
