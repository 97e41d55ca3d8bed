package poller

import (
	"time"
)

// Deadline describes the budget left to an idle slice.
type Deadline interface {
	// Returns the time left before the slice must yield.
	TimeRemaining() time.Duration

	// Reports whether the slice started after its budget was already spent.
	DidTimeout() bool
}

// Scheduler runs functions on the next idle opportunity of the host.
type Scheduler interface {
	// Schedules fn to run once. The returned function cancels fn if it has not
	// started yet.
	Schedule(fn func(Deadline)) (cancel func())
}

// TimerScheduler approximates idle callbacks with a timer: each scheduled
// function runs after Interval with a time budget of Budget.
type TimerScheduler struct {
	// The delay before a scheduled function runs.
	Interval time.Duration

	// The time a scheduled function is allowed to run.
	Budget time.Duration
}

func (s TimerScheduler) Schedule(fn func(Deadline)) (cancel func()) {
	scheduledAt := time.Now()

	timer := time.AfterFunc(s.Interval, func() {
		fn(newTimeDeadline(scheduledAt.Add(s.Interval), s.Budget))
	})

	return func() {
		timer.Stop()
	}
}

type timeDeadline struct {
	end      time.Time
	timedOut bool
}

func newTimeDeadline(expectedStart time.Time, budget time.Duration) *timeDeadline {
	now := time.Now()

	// A timer firing later than one budget after its due time means the host
	// was busy for the whole slice.
	return &timeDeadline{
		end:      now.Add(budget),
		timedOut: now.Sub(expectedStart) > budget,
	}
}

func (d *timeDeadline) TimeRemaining() time.Duration {
	remaining := time.Until(d.end)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (d *timeDeadline) DidTimeout() bool {
	return d.timedOut
}
