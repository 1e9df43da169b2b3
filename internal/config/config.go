/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers process level configuration read from environment variables.
// The sink endpoint and media directory come from the command line, not from
// here.
type Config struct {
	Environment string

	// Stream metadata presented to the Icecast server.
	StreamName        string
	StreamGenre       string
	StreamDescription string
	StreamPublic      bool

	// Playlist behaviour.
	Extensions      []string // recognized file extensions, leading dot
	EmptyRescanWait time.Duration
	SkipPause       time.Duration

	// External binaries for containers that need remuxing.
	FFmpegBin  string
	FFprobeBin string

	// MetricsBind is the Prometheus listen address; empty disables metrics.
	MetricsBind string
}

// Load reads environment variables, applies defaults, and validates the
// result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:       getEnv("MUNINN_ENV", "development"),
		StreamName:        getEnv("MUNINN_STREAM_NAME", "Muninn Cast"),
		StreamGenre:       getEnv("MUNINN_STREAM_GENRE", "Music"),
		StreamDescription: getEnv("MUNINN_STREAM_DESCRIPTION", ""),
		StreamPublic:      getEnvBool("MUNINN_STREAM_PUBLIC", false),
		Extensions:        getEnvList("MUNINN_EXTENSIONS", []string{".m4a", ".mp4", ".aac", ".mp3"}),
		EmptyRescanWait:   time.Duration(getEnvInt("MUNINN_EMPTY_RESCAN_SECONDS", 5)) * time.Second,
		SkipPause:         time.Duration(getEnvInt("MUNINN_SKIP_PAUSE_SECONDS", 1)) * time.Second,
		FFmpegBin:         getEnv("MUNINN_FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:        getEnv("MUNINN_FFPROBE_BIN", "ffprobe"),
		MetricsBind:       getEnv("MUNINN_METRICS_BIND", "127.0.0.1:9000"),
	}

	if cfg.EmptyRescanWait <= 0 {
		return nil, fmt.Errorf("MUNINN_EMPTY_RESCAN_SECONDS must be positive")
	}
	if cfg.SkipPause < 0 {
		return nil, fmt.Errorf("MUNINN_SKIP_PAUSE_SECONDS must not be negative")
	}
	if len(cfg.Extensions) == 0 {
		return nil, fmt.Errorf("MUNINN_EXTENSIONS must not be empty")
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			cfg.Extensions[i] = "." + ext
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
