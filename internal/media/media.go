/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media opens local audio files and exposes their audio elementary
// stream as a sequence of timestamped packets. Packets are passed through
// compressed and unchanged; no decoding happens here.
package media

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// NoPTS marks a packet whose container carried no timestamp.
const NoPTS = int64(math.MinInt64)

// Rational is a time-base unit (Num/Den seconds per tick).
type Rational struct {
	Num int64
	Den int64
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Packet is one decodable audio access unit. Timestamps and duration are in
// the originating track's time-base. A packet lives for exactly one pass
// through read, rebase and write; it is never retained after the sink call.
type Packet struct {
	PTS      int64
	DTS      int64
	Duration int64
	TimeBase Rational
	Data     []byte
}

// TrackInfo describes an opened track's audio parameters.
type TrackInfo struct {
	Path        string
	Codec       string
	ContentType string
	SampleRate  int
	Channels    int
	TimeBase    Rational
}

// Track is an open file's audio elementary stream.
type Track interface {
	Info() TrackInfo
	// ReadPacket returns the next packet, or io.EOF after the last one.
	ReadPacket() (*Packet, error)
	Close() error
}

// Opener opens a file path into a Track.
type Opener interface {
	Open(ctx context.Context, path string) (Track, error)
}

var (
	// ErrNoAudioTrack is returned when a file contains no usable audio stream.
	ErrNoAudioTrack = errors.New("media: no audio track")
	// ErrUnsupportedFormat is returned for files outside the recognized
	// container/codec set.
	ErrUnsupportedFormat = errors.New("media: unsupported format")
)
