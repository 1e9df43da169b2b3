/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FileOpener opens local files, picking a reader by extension.
type FileOpener struct {
	ffmpegBin  string
	ffprobeBin string
	logger     zerolog.Logger
}

// NewFileOpener creates an opener using the given ffmpeg/ffprobe binaries
// for containers that need remuxing.
func NewFileOpener(ffmpegBin, ffprobeBin string, logger zerolog.Logger) *FileOpener {
	return &FileOpener{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		logger:     logger.With().Str("component", "media").Logger(),
	}
}

// Open opens path into a Track.
func (o *FileOpener) Open(ctx context.Context, path string) (Track, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return openMP3(path)
	case ".m4a", ".mp4", ".aac":
		return openADTS(ctx, o.ffmpegBin, o.ffprobeBin, path, o.logger)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}
