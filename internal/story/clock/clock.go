// Package clock schedules callbacks against wall or virtual time.
//
// Everything that paces playback (fade timers, animation frames, fallback
// scene timers, export frame pacing) goes through a Clock so it can be driven
// by a Fake in tests without real delays.
package clock

import "time"

// FrameInterval is the animation-frame cadence used for visual stage flips.
const FrameInterval = time.Second / 60

// Timer is a scheduled callback. Stop reports whether the call prevented the
// callback from running.
type Timer interface {
	Stop() bool
}

// Clock is the time source for every scheduled transition.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is a Clock backed by the runtime timers.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NextFrame schedules f on the next animation frame of c.
func NextFrame(c Clock, f func()) Timer {
	return c.AfterFunc(FrameInterval, f)
}
