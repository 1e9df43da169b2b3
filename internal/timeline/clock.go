/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import "time"

// Clock abstracts wall-clock reads and pacing sleeps so the engine's drift
// behaviour can be exercised without real time passing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }
