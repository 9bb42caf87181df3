package util

import "time"

// Timer is a cancellable handle to a scheduled callback.
type Timer interface {
	// Stop reports whether the callback was prevented from running.
	Stop() bool
}

// Scheduler runs callbacks after a delay. Services take a Scheduler instead of
// calling time.AfterFunc so tests can drive time by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

type clockScheduler struct{}

func NewScheduler() Scheduler {
	return clockScheduler{}
}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (clockScheduler) Now() time.Time {
	return time.Now()
}
