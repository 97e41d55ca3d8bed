package poller

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualScheduler(t *testing.T) {
	t.Run("runs in scheduling order", func(t *testing.T) {
		var s ManualScheduler
		var order []int

		for i := 0; i < 3; i++ {
			i := i
			s.Schedule(func(Deadline) {
				order = append(order, i)
			})
		}

		require.Equal(t, 3, s.Pending())
		require.Equal(t, 3, s.RunIdle(time.Millisecond))
		require.Equal(t, []int{0, 1, 2}, order)
		require.Zero(t, s.Pending())
	})

	t.Run("cancelled functions do not run", func(t *testing.T) {
		var s ManualScheduler
		var ran bool

		cancel := s.Schedule(func(Deadline) {
			ran = true
		})
		cancel()
		cancel()

		require.Zero(t, s.RunIdle(time.Millisecond))
		require.False(t, ran)
	})

	t.Run("functions scheduled while running wait", func(t *testing.T) {
		var s ManualScheduler
		var runs int

		var fn func(Deadline)
		fn = func(Deadline) {
			runs++
			s.Schedule(fn)
		}
		s.Schedule(fn)

		s.RunIdle(time.Millisecond)
		require.Equal(t, 1, runs)
		require.Equal(t, 1, s.Pending())
	})

	t.Run("run idle passes the budget", func(t *testing.T) {
		var s ManualScheduler
		var remaining time.Duration

		s.Schedule(func(d Deadline) {
			remaining = d.TimeRemaining()
			require.False(t, d.DidTimeout())
		})
		s.RunIdle(3 * time.Millisecond)
		require.Equal(t, 3*time.Millisecond, remaining)
	})
}

func TestCountdownDeadline(t *testing.T) {
	d := NewCountdownDeadline(2)
	require.False(t, d.DidTimeout())
	require.Positive(t, d.TimeRemaining())
	require.Positive(t, d.TimeRemaining())
	require.True(t, d.DidTimeout())
	require.Zero(t, d.TimeRemaining())
}

func TestTimerScheduler(t *testing.T) {
	t.Run("runs with a budget", func(t *testing.T) {
		s := TimerScheduler{
			Interval: time.Millisecond,
			Budget:   time.Second,
		}

		done := make(chan time.Duration, 1)
		s.Schedule(func(d Deadline) {
			done <- d.TimeRemaining()
		})

		select {
		case remaining := <-done:
			require.Positive(t, remaining)
			require.LessOrEqual(t, remaining, time.Second)
		case <-time.After(time.Second):
			t.Fatal("scheduled function did not run")
		}
	})

	t.Run("cancel", func(t *testing.T) {
		s := TimerScheduler{
			Interval: 20 * time.Millisecond,
			Budget:   time.Millisecond,
		}

		var ran int32
		cancel := s.Schedule(func(Deadline) {
			atomic.StoreInt32(&ran, 1)
		})
		cancel()

		time.Sleep(40 * time.Millisecond)
		require.Zero(t, atomic.LoadInt32(&ran))
	})
}
