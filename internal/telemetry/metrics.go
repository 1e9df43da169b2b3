/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics for the broadcast pipeline.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process metric set.
type Metrics struct {
	registry *prometheus.Registry

	TracksStarted  prometheus.Counter
	TracksSkipped  prometheus.Counter
	PacketsEmitted prometheus.Counter
	BytesEmitted   prometheus.Counter
	LagSeconds     prometheus.Gauge
}

// NewMetrics creates and registers the metric set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		TracksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muninn_tracks_started_total",
			Help: "Tracks that began streaming.",
		}),
		TracksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muninn_tracks_skipped_total",
			Help: "Tracks skipped due to per-file errors.",
		}),
		PacketsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muninn_packets_emitted_total",
			Help: "Audio packets written to the sink.",
		}),
		BytesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muninn_bytes_emitted_total",
			Help: "Payload bytes written to the sink.",
		}),
		LagSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "muninn_timeline_lag_seconds",
			Help: "Wall-clock lead over the emitted timeline position; positive means the broadcast is behind real time.",
		}),
	}

	registry.MustRegister(m.TracksStarted, m.TracksSkipped, m.PacketsEmitted, m.BytesEmitted, m.LagSeconds)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
