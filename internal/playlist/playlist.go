/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist enumerates and shuffles the broadcast directory.
package playlist

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

// Scanner lists eligible audio files in a single directory. The directory is
// re-read on every List call so files added between passes are picked up.
type Scanner struct {
	dir        string
	extensions map[string]struct{}
}

// NewScanner creates a scanner for dir accepting the given extensions
// (leading dot, matched case-insensitively).
func NewScanner(dir string, extensions []string) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{dir: dir, extensions: exts}
}

// List returns the eligible files in directory order. An empty result is an
// idle state, not an error.
func (s *Scanner) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := s.extensions[ext]; !ok {
			continue
		}
		files = append(files, filepath.Join(s.dir, entry.Name()))
	}
	return files, nil
}

// Shuffle applies a uniform random permutation in place.
func Shuffle(files []string) {
	rand.Shuffle(len(files), func(i, j int) {
		files[i], files[j] = files[j], files[i]
	})
}
