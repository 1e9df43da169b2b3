/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"

	"github.com/friendsincode/muninn_cast/internal/events"
	"github.com/rs/zerolog"
)

// Collector feeds track-level counters from the event bus.
type Collector struct {
	metrics *Metrics
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewCollector creates a collector.
func NewCollector(metrics *Metrics, bus *events.Bus, logger zerolog.Logger) *Collector {
	return &Collector{
		metrics: metrics,
		bus:     bus,
		logger:  logger.With().Str("component", "telemetry").Logger(),
	}
}

// Run consumes events until context cancellation.
func (c *Collector) Run(ctx context.Context) {
	started := c.bus.Subscribe(events.EventNowPlaying)
	skipped := c.bus.Subscribe(events.EventTrackSkipped)
	defer c.bus.Unsubscribe(events.EventNowPlaying, started)
	defer c.bus.Unsubscribe(events.EventTrackSkipped, skipped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-started:
			c.metrics.TracksStarted.Inc()
		case <-skipped:
			c.metrics.TracksSkipped.Inc()
		}
	}
}
