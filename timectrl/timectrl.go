// Package timectrl drives simulation time in discrete, strictly ordered
// steps. The engine pulls the clock forward one tick at a time; listeners
// observe every advance.
package timectrl

import (
	"sync"
	"time"
)

// SimClock is a read-only view of simulation time for components that must
// not advance it.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// StepCount returns the number of completed ticks since the start.
	StepCount() uint64
}

// Mode describes how the TimeController paces simulation time.
type Mode int

const (
	// RealTime paces each tick against wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as fast as the stepping loop runs.
	Accelerated
)

// TimeController is the stepped simulation clock. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	stepCount   uint64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// StepCount returns the number of completed ticks.
func (tc *TimeController) StepCount() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.stepCount
}

// SetTime repositions the clock without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked after every advance.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Advance moves simulation time forward one tick and returns the new time.
// In RealTime mode it first sleeps for the tick duration so simulation time
// tracks wall-clock time.
func (tc *TimeController) Advance() time.Time {
	if tc.Mode == RealTime {
		time.Sleep(tc.Tick)
	}

	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.stepCount++
	now := tc.currentTime
	tc.mu.Unlock()

	for _, fn := range tc.listeners {
		fn(now)
	}
	return now
}
