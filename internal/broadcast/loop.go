/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast drives the infinite playout cycle: rescan the directory,
// shuffle, and stream each file through the timing engine into the sink.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_cast/internal/events"
	"github.com/friendsincode/muninn_cast/internal/media"
	"github.com/friendsincode/muninn_cast/internal/playlist"
	"github.com/friendsincode/muninn_cast/internal/timeline"
)

// Sink is the output connection the broadcast streams into.
type Sink interface {
	// Negotiate performs the one-time source handshake. Called exactly once
	// per process, with the first streamable file's parameters.
	Negotiate(ctx context.Context, info media.TrackInfo) error
	Write(pkt *media.Packet) error
	Close() error
}

// Options tunes loop behaviour.
type Options struct {
	// EmptyRescanWait is how long to idle when the directory has no
	// eligible files before rescanning.
	EmptyRescanWait time.Duration
	// SkipPause is the pause after a per-file failure before moving on.
	SkipPause time.Duration
}

// Broadcaster owns the outer loop and its error classification.
type Broadcaster struct {
	scanner *playlist.Scanner
	opener  media.Opener
	sink    Sink
	engine  *timeline.Engine
	clock   timeline.Clock
	bus     *events.Bus
	opts    Options
	logger  zerolog.Logger

	sessionID  string
	negotiated bool
}

// New creates a broadcaster.
func New(scanner *playlist.Scanner, opener media.Opener, sink Sink, engine *timeline.Engine, clock timeline.Clock, bus *events.Bus, opts Options, logger zerolog.Logger) *Broadcaster {
	if opts.EmptyRescanWait <= 0 {
		opts.EmptyRescanWait = 5 * time.Second
	}
	if opts.SkipPause < 0 {
		opts.SkipPause = 0
	}
	sessionID := uuid.NewString()
	return &Broadcaster{
		scanner:   scanner,
		opener:    opener,
		sink:      sink,
		engine:    engine,
		clock:     clock,
		bus:       bus,
		opts:      opts,
		logger:    logger.With().Str("component", "broadcast").Str("session", sessionID).Logger(),
		sessionID: sessionID,
	}
}

// Run cycles {rescan, shuffle, stream each file} until a fatal sink error or
// context cancellation. The sink is finalized on every exit path.
func (b *Broadcaster) Run(ctx context.Context) error {
	defer func() {
		if err := b.sink.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("sink close failed")
		}
	}()

	b.logger.Info().Msg("broadcast started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		files, err := b.scanner.List()
		if err != nil {
			b.logger.Warn().Err(err).Msg("playlist scan failed")
			files = nil
		}
		if len(files) == 0 {
			b.logger.Info().
				Dur("wait", b.opts.EmptyRescanWait).
				Msg("no eligible files, waiting")
			if !b.wait(ctx, b.opts.EmptyRescanWait) {
				return ctx.Err()
			}
			continue
		}

		playlist.Shuffle(files)

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := b.streamFile(ctx, path)
			if err == nil {
				continue
			}
			if IsFatal(err) {
				b.logger.Error().Err(err).Msg("fatal broadcast error")
				b.bus.Publish(events.EventFatal, events.Payload{
					"session_id": b.sessionID,
					"error":      err.Error(),
				})
				return err
			}

			b.logger.Warn().Err(err).Str("file", path).Msg("skipping file")
			b.bus.Publish(events.EventTrackSkipped, events.Payload{
				"session_id": b.sessionID,
				"file":       path,
				"error":      err.Error(),
			})
			if b.opts.SkipPause > 0 && !b.wait(ctx, b.opts.SkipPause) {
				return ctx.Err()
			}
		}
	}
}

func (b *Broadcaster) streamFile(ctx context.Context, path string) error {
	track, err := b.opener.Open(ctx, path)
	if err != nil {
		return recoverable(path, fmt.Errorf("open: %w", err))
	}
	defer track.Close()

	info := track.Info()

	if !b.negotiated {
		// One-shot gate: the stream descriptor is built from whichever file
		// happens to be first and reused for every later file. Later files
		// with differing parameters are not renegotiated.
		if err := b.sink.Negotiate(ctx, info); err != nil {
			return fatal(fmt.Errorf("negotiate: %w", err))
		}
		b.negotiated = true
	}

	b.logger.Info().
		Str("file", filepath.Base(path)).
		Str("codec", info.Codec).
		Int("sample_rate", info.SampleRate).
		Msg("now playing")
	b.bus.Publish(events.EventNowPlaying, events.Payload{
		"session_id":  b.sessionID,
		"file":        path,
		"title":       filepath.Base(path),
		"codec":       info.Codec,
		"sample_rate": info.SampleRate,
		"channels":    info.Channels,
	})

	if err := b.engine.Stream(track, b.sink); err != nil {
		var sinkErr *timeline.SinkError
		if errors.As(err, &sinkErr) {
			return fatal(err)
		}
		return recoverable(path, err)
	}

	b.bus.Publish(events.EventHealth, events.Payload{
		"session_id": b.sessionID,
		"position":   b.engine.Position(),
		"lag_ms":     b.engine.Lag().Milliseconds(),
	})
	return nil
}

// wait sleeps d through the pacing clock, returning false when the context
// ended first.
func (b *Broadcaster) wait(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.clock.Sleep(d)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return true
	}
}
