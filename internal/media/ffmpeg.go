/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// ffmpegTrack wraps an ffmpeg subprocess that remuxes a file's audio track
// to ADTS on stdout without re-encoding. The caller reads one ADTS frame per
// packet; timestamps are synthesized in a 1/sample-rate time-base.
type ffmpegTrack struct {
	info      TrackInfo
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	cancel    context.CancelFunc
	parser    *adtsParser
	stderrBuf *bytes.Buffer
	pts       int64 // next PTS, in samples
}

// openADTS probes the file and starts the remux subprocess.
func openADTS(ctx context.Context, ffmpegBin, ffprobeBin, path string, logger zerolog.Logger) (Track, error) {
	stream, err := probeAudioStream(ctx, ffprobeBin, path)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(stream.Codec, "aac") {
		return nil, fmt.Errorf("%s: codec %q: %w", path, stream.Codec, ErrUnsupportedFormat)
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, ffmpegBin,
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-map", "0:a:0",
		"-c:a", "copy",
		"-f", "adts",
		"pipe:1",
	)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("remux stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start remux: %w", err)
	}

	logger.Debug().
		Int("pid", cmd.Process.Pid).
		Str("path", path).
		Str("codec", stream.Codec).
		Int("sample_rate", stream.SampleRate).
		Msg("remux started")

	return &ffmpegTrack{
		info: TrackInfo{
			Path:        path,
			Codec:       stream.Codec,
			ContentType: "audio/aac",
			SampleRate:  stream.SampleRate,
			Channels:    stream.Channels,
			TimeBase:    Rational{Num: 1, Den: int64(stream.SampleRate)},
		},
		cmd:       cmd,
		stdout:    stdout,
		cancel:    cancel,
		parser:    newADTSParser(stdout),
		stderrBuf: &stderrBuf,
	}, nil
}

func (t *ffmpegTrack) Info() TrackInfo { return t.info }

func (t *ffmpegTrack) ReadPacket() (*Packet, error) {
	frame, err := t.parser.Next()
	if err != nil {
		if err == io.EOF {
			if waitErr := t.cmd.Wait(); waitErr != nil {
				return nil, fmt.Errorf("remux %s: %w: %s", t.info.Path, waitErr, t.stderr())
			}
			t.cmd = nil
			return nil, io.EOF
		}
		return nil, fmt.Errorf("remux %s: %w", t.info.Path, err)
	}

	duration := int64(frame.rawDataBlocks) * samplesPerAACFrame
	pkt := &Packet{
		PTS:      t.pts,
		DTS:      t.pts,
		Duration: duration,
		TimeBase: t.info.TimeBase,
		Data:     frame.data,
	}
	t.pts += duration
	return pkt, nil
}

func (t *ffmpegTrack) Close() error {
	t.cancel()
	_ = t.stdout.Close()
	if t.cmd != nil {
		_ = t.cmd.Wait()
	}
	return nil
}

func (t *ffmpegTrack) stderr() string {
	return strings.TrimSpace(t.stderrBuf.String())
}
