package services

import "time"

// Task is a scheduled callback that can be stopped before it fires.
type Task interface {
	// Stop prevents the callback from running. It reports whether the
	// call stopped the task, false if it already ran or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay. Timers in this package go
// through it so tests can drive time by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// RealScheduler schedules on the runtime timer heap.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}
