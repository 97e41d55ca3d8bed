package poller

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler is a Scheduler whose idle slices only run when asked to. It
// is the host used to replay scenarios and to test the poller
// deterministically.
type ManualScheduler struct {
	mutex    sync.Mutex
	sequence uint64
	pending  map[uint64]func(Deadline)
}

func (s *ManualScheduler) Schedule(fn func(Deadline)) (cancel func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.pending == nil {
		s.pending = make(map[uint64]func(Deadline))
	}

	s.sequence++
	id := s.sequence
	s.pending[id] = fn

	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		delete(s.pending, id)
	}
}

// Pending returns the number of functions waiting to run.
func (s *ManualScheduler) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.pending)
}

// RunIdle runs the functions pending at call time, each with a fresh time
// budget. Functions they schedule wait for the next call. It returns the number
// of functions run.
func (s *ManualScheduler) RunIdle(budget time.Duration) int {
	return s.run(func() Deadline {
		return FixedDeadline{Remaining: budget}
	})
}

// RunWith runs the functions pending at call time with the given deadline.
func (s *ManualScheduler) RunWith(d Deadline) int {
	return s.run(func() Deadline {
		return d
	})
}

func (s *ManualScheduler) run(deadline func() Deadline) int {
	s.mutex.Lock()
	ids := make([]uint64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	fns := make([]func(Deadline), len(ids))
	for i, id := range ids {
		fns[i] = s.pending[id]
		delete(s.pending, id)
	}
	s.mutex.Unlock()

	for _, fn := range fns {
		fn(deadline())
	}
	return len(fns)
}

// FixedDeadline is a Deadline whose remaining time never decreases.
type FixedDeadline struct {
	Remaining time.Duration
	TimedOut  bool
}

func (d FixedDeadline) TimeRemaining() time.Duration {
	return d.Remaining
}

func (d FixedDeadline) DidTimeout() bool {
	return d.TimedOut
}

// CountdownDeadline is a Deadline that runs out after a fixed number of budget
// checks. The poller checks the budget once per entry, which makes it an item
// budget.
type CountdownDeadline struct {
	checks int
}

func NewCountdownDeadline(checks int) *CountdownDeadline {
	return &CountdownDeadline{checks: checks}
}

func (d *CountdownDeadline) TimeRemaining() time.Duration {
	if d.checks <= 0 {
		return 0
	}
	d.checks--
	return time.Millisecond
}

func (d *CountdownDeadline) DidTimeout() bool {
	return d.checks <= 0
}
