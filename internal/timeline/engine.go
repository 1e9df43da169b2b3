/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline maintains the single continuous output timestamp domain
// for the broadcast. It rebases each file's internal timestamp space onto
// one running timeline, paces packet emission to real time using declared
// packet durations, and compensates for accumulated scheduler drift so
// playback neither races ahead of nor falls behind real time over long runs.
package timeline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/friendsincode/muninn_cast/internal/media"
	"github.com/friendsincode/muninn_cast/internal/telemetry"
	"github.com/rs/zerolog"
)

// ClockRate is the output time-base denominator: timestamps handed to the
// sink are in 1/90000 second ticks.
const ClockRate = 90000

var outputTimeBase = media.Rational{Num: 1, Den: ClockRate}

// PacketWriter is the sink surface the engine emits into.
type PacketWriter interface {
	Write(pkt *media.Packet) error
}

// SinkError marks a failed sink write. The underlying connection is presumed
// broken; callers must not attempt further files on it.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink write: %v", e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// Engine owns the process-lifetime timeline state. It has exactly one
// execution context; no method is safe for concurrent use.
type Engine struct {
	clock   Clock
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	start        time.Time
	offset       int64
	lastPTS      int64
	lastDuration int64
	lag          time.Duration
	emitted      bool
}

// NewEngine creates the engine. The wall-clock anchor for lag measurement is
// taken here, before any file is opened, so the very first packet's lag
// already accounts for time spent scanning and opening.
func NewEngine(clock Clock, metrics *telemetry.Metrics, logger zerolog.Logger) *Engine {
	return &Engine{
		clock:   clock,
		metrics: metrics,
		logger:  logger.With().Str("component", "timeline").Logger(),
		start:   clock.Now(),
	}
}

// Lag returns the most recent wall-clock-vs-timeline deficit. Positive means
// the broadcast is running behind real time.
func (e *Engine) Lag() time.Duration { return e.lag }

// Position returns the timeline position after the last emitted packet, in
// output ticks.
func (e *Engine) Position() int64 { return e.lastPTS + e.lastDuration }

// Stream plays one track into w. Read failures are returned as-is and leave
// the timeline usable for the next file; write failures are wrapped in
// SinkError. The transition offset is advanced on every exit path, so the
// next file continues seamlessly from wherever this one stopped emitting,
// whether that was end of input or a mid-file failure. A file with no
// packets leaves the transition point untouched.
func (e *Engine) Stream(track media.Track, w PacketWriter) error {
	defer func() {
		e.offset = e.lastPTS + e.lastDuration
	}()

	first := true
	for {
		pkt, err := track.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}

		if err := e.emit(pkt, first, w); err != nil {
			return err
		}
		first = false
	}
}

func (e *Engine) emit(pkt *media.Packet, first bool, w PacketWriter) error {
	var corrected int64
	if pkt.PTS != media.NoPTS {
		pts := rescale(pkt.PTS, pkt.TimeBase, outputTimeBase)
		if first && pts < 0 {
			// Some encoders stamp the priming frame with a negative
			// timestamp; fold it into the offset so the corrected value is
			// non-negative and later packets of the file stay continuous.
			e.offset += -pts
		}
		corrected = pts + e.offset
	} else {
		// No source timestamp: hold the previous position and rely on
		// duration-based pacing for forward progress.
		corrected = e.lastPTS
	}

	if e.emitted && corrected < e.lastPTS {
		e.logger.Debug().
			Int64("pts", corrected).
			Int64("last", e.lastPTS).
			Msg("clamped non-monotonic timestamp")
		corrected = e.lastPTS
	}

	duration := rescale(pkt.Duration, pkt.TimeBase, outputTimeBase)
	if duration > 0 {
		// Sleep the packet's real-time length net of accumulated lag. When
		// already behind schedule, skip sleeping entirely.
		if sleep := ticksToDuration(duration) - e.lag; sleep > 0 {
			e.clock.Sleep(sleep)
		}
	}

	pkt.PTS = corrected
	pkt.DTS = corrected // audio has no reordering
	pkt.Duration = duration
	pkt.TimeBase = outputTimeBase

	if err := w.Write(pkt); err != nil {
		return &SinkError{Err: err}
	}

	e.lastPTS = corrected
	e.lastDuration = duration
	e.emitted = true
	e.lag = e.clock.Now().Sub(e.start) - ticksToDuration(corrected)

	if e.metrics != nil {
		e.metrics.PacketsEmitted.Inc()
		e.metrics.BytesEmitted.Add(float64(len(pkt.Data)))
		e.metrics.LagSeconds.Set(e.lag.Seconds())
	}
	return nil
}

// rescale converts v between time-bases, rounding half away from zero.
func rescale(v int64, from, to media.Rational) int64 {
	if from == to {
		return v
	}
	num := from.Num * to.Den
	den := from.Den * to.Num
	p := v * num
	if p >= 0 {
		return (p + den/2) / den
	}
	return (p - den/2) / den
}

// ticksToDuration converts output ticks to wall-clock time without
// overflowing on multi-day positions.
func ticksToDuration(ticks int64) time.Duration {
	secs := ticks / ClockRate
	rem := ticks % ClockRate
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/ClockRate
}
