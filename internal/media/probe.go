/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

const probeTimeout = 10 * time.Second

// audioStreamInfo is what ffprobe reports about the first audio stream.
type audioStreamInfo struct {
	Codec      string
	SampleRate int
	Channels   int
}

// probeAudioStream runs ffprobe against the first audio stream of a file.
func probeAudioStream(ctx context.Context, ffprobeBin, path string) (*audioStreamInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*audioStreamInfo, error) {
	var probe struct {
		Streams []struct {
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, ErrNoAudioTrack
	}

	stream := probe.Streams[0]
	rate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("ffprobe: invalid sample rate %q", stream.SampleRate)
	}

	return &audioStreamInfo{
		Codec:      stream.CodecName,
		SampleRate: rate,
		Channels:   stream.Channels,
	}, nil
}
