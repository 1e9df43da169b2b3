/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"errors"
	"fmt"
)

// Kind splits failures into the two classes the loop cares about.
type Kind int

const (
	// KindRecoverable covers per-file failures (open, probe, no audio
	// track, read); the current file is skipped and the loop continues.
	KindRecoverable Kind = iota
	// KindFatal covers sink failures; the connection is presumed broken and
	// the whole broadcast terminates.
	KindFatal
)

// Error carries the failure class alongside the cause.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsFatal reports whether err ends the broadcast.
func IsFatal(err error) bool {
	var berr *Error
	return errors.As(err, &berr) && berr.Kind == KindFatal
}

func recoverable(path string, err error) *Error {
	return &Error{Kind: KindRecoverable, Path: path, Err: err}
}

func fatal(err error) *Error {
	return &Error{Kind: KindFatal, Err: err}
}
