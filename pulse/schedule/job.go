// Package schedule runs recurring jobs from a persisted schedule.
//
// Each registered Job has one row in the job table holding its next run
// time. The Scheduler ticks, dispatches every due job in its own goroutine,
// and after each run (success or failure) moves the job's next run time
// forward by its interval. Schedule writes are monotonic: a row never
// moves back in time.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Job is a unit of recurring work.
type Job interface {
	// Name is the job's stable identifier, used as the schedule key.
	Name() string
	// Interval is the time between the start of one cycle and the next.
	Interval() time.Duration
	// SetRunWindow receives the previously scheduled time and the current
	// tick time before Perform is called.
	SetRunWindow(previous, current time.Time)
	// Perform runs one cycle. It must not block indefinitely.
	Perform(ctx context.Context) error
}

// RunWindow is embeddable run-window bookkeeping for Job implementations.
type RunWindow struct {
	mu       sync.Mutex
	previous time.Time
	current  time.Time
}

// SetRunWindow implements Job.
func (w *RunWindow) SetRunWindow(previous, current time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.previous = previous
	w.current = current
}

// Window returns the last window handed to the job.
func (w *RunWindow) Window() (previous, current time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.previous, w.current
}
