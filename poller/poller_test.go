package poller

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/stretchr/testify/require"
)

type layout struct {
	mutex  sync.Mutex
	rects  map[string]geometry.Rect
	counts map[string]int
}

func newLayout() *layout {
	return &layout{
		rects:  make(map[string]geometry.Rect),
		counts: make(map[string]int),
	}
}

func (l *layout) set(id string, r geometry.Rect) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.rects[id] = r
}

func (l *layout) measured(id string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.counts[id]
}

func (l *layout) rectFunc(id string) RectFunc {
	return func() geometry.Rect {
		l.mutex.Lock()
		defer l.mutex.Unlock()
		l.counts[id]++
		return l.rects[id]
	}
}

type changeRecorder struct {
	mutex   sync.Mutex
	changes []Change
}

func (r *changeRecorder) record(c Change) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) all() []Change {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Change(nil), r.changes...)
}

func TestPollerTrack(t *testing.T) {
	t.Run("zero rect baseline is silent", func(t *testing.T) {
		l := newLayout()
		p := New(&ManualScheduler{}, Config{})

		var rec changeRecorder
		p.OnChange(rec.record)

		p.Track("a", l.rectFunc("a"))
		require.True(t, p.IsTracked("a"))
		require.Equal(t, 1, l.measured("a"))
		require.Empty(t, rec.all())
	})

	t.Run("laid out rect is emitted", func(t *testing.T) {
		l := newLayout()
		l.set("a", geometry.NewRect(1, 2, 3, 4))
		p := New(&ManualScheduler{}, Config{})

		var rec changeRecorder
		p.OnChange(rec.record)

		p.Track("a", l.rectFunc("a"))
		require.Equal(t, []Change{{
			ID:   "a",
			Rect: geometry.NewRect(1, 2, 3, 4),
		}}, rec.all())
		require.Equal(t, geometry.NewRect(1, 2, 3, 4), p.Rect("a"))
	})

	t.Run("tracking again replaces the callback", func(t *testing.T) {
		l := newLayout()
		l.set("a", geometry.NewRect(1, 1, 1, 1))
		l.set("b", geometry.NewRect(2, 2, 2, 2))
		p := New(&ManualScheduler{}, Config{})

		p.Track("a", l.rectFunc("a"))
		p.Track("a", l.rectFunc("b"))
		require.Equal(t, 1, p.Len())
		require.Equal(t, geometry.NewRect(2, 2, 2, 2), p.Rect("a"))

		p.ForceUpdate("a")
		require.Equal(t, 2, l.measured("b"))
		require.Equal(t, 1, l.measured("a"))
	})
}

func TestPollerChangeDetection(t *testing.T) {
	l := newLayout()
	l.set("a", geometry.NewRect(0, 0, 10, 10))
	p := New(&ManualScheduler{}, Config{})
	p.Track("a", l.rectFunc("a"))

	var rec changeRecorder
	p.OnChange(rec.record)

	p.ForceUpdate("a")
	require.Empty(t, rec.all())

	l.set("a", geometry.NewRect(5, 0, 10, 10))
	p.ForceUpdate("a")
	p.ForceUpdate("a")
	require.Equal(t, []Change{{
		ID:       "a",
		Rect:     geometry.NewRect(5, 0, 10, 10),
		Previous: geometry.NewRect(0, 0, 10, 10),
	}}, rec.all())
}

func TestPollerChangeOrder(t *testing.T) {
	t.Run("late measurement is discarded", func(t *testing.T) {
		r1 := geometry.NewRect(0, 0, 10, 10)
		r2 := geometry.NewRect(20, 0, 10, 10)
		r3 := geometry.NewRect(40, 0, 10, 10)

		started := make(chan struct{})
		release := make(chan struct{})
		var calls atomic.Int32
		rectOf := func() geometry.Rect {
			switch calls.Add(1) {
			case 1:
				return r1
			case 2:
				close(started)
				<-release
				return r2
			default:
				return r3
			}
		}

		p := New(&ManualScheduler{}, Config{})
		var rec changeRecorder
		p.OnChange(rec.record)
		p.Track("a", rectOf)

		done := make(chan struct{})
		go func() {
			defer close(done)
			p.ForceUpdate("a")
		}()

		<-started
		p.ForceUpdate("a")
		close(release)
		<-done

		require.Equal(t, r3, p.Rect("a"))
		require.Equal(t, []Change{
			{ID: "a", Rect: r1},
			{ID: "a", Rect: r3, Previous: r1},
		}, rec.all())
	})

	t.Run("changes from a handler are delivered after it returns", func(t *testing.T) {
		l := newLayout()
		p := New(&ManualScheduler{}, Config{})
		p.Track("a", l.rectFunc("a"))
		p.Track("b", l.rectFunc("b"))

		p.OnChange(func(c Change) {
			if c.ID == "a" {
				l.set("b", geometry.NewRect(5, 5, 5, 5))
				p.ForceUpdate("b")
			}
		})
		var rec changeRecorder
		p.OnChange(rec.record)

		l.set("a", geometry.NewRect(1, 1, 1, 1))
		p.ForceUpdate("a")

		require.Equal(t, []Change{
			{ID: "a", Rect: geometry.NewRect(1, 1, 1, 1)},
			{ID: "b", Rect: geometry.NewRect(5, 5, 5, 5)},
		}, rec.all())
	})
}

func TestPollerUnknownIDs(t *testing.T) {
	p := New(&ManualScheduler{}, Config{})

	var rec changeRecorder
	p.OnChange(rec.record)

	p.Untrack("missing")
	p.ForceUpdate("missing")
	require.False(t, p.IsTracked("missing"))
	require.Equal(t, geometry.Rect{}, p.Rect("missing"))
	require.Empty(t, rec.all())
}

func TestPollerHandlersRunWithoutLock(t *testing.T) {
	l := newLayout()
	p := New(&ManualScheduler{}, Config{})

	var seen geometry.Rect
	p.OnChange(func(c Change) {
		seen = p.Rect(c.ID)
	})

	l.set("a", geometry.NewRect(3, 3, 3, 3))
	p.Track("a", l.rectFunc("a"))
	require.Equal(t, geometry.NewRect(3, 3, 3, 3), seen)
}

func TestPollerScanLoop(t *testing.T) {
	t.Run("slice is bounded by max items", func(t *testing.T) {
		l := newLayout()
		s := &ManualScheduler{}
		p := New(s, Config{MaxItemsPerSlice: 2})

		for _, id := range []string{"a", "b", "c"} {
			p.Track(id, l.rectFunc(id))
		}

		p.Start()
		require.True(t, p.Running())
		require.Equal(t, 1, s.Pending())

		require.Equal(t, 1, s.RunIdle(time.Second))
		require.Equal(t, 2, l.measured("a"))
		require.Equal(t, 2, l.measured("b"))
		require.Equal(t, 1, l.measured("c"))
		require.Equal(t, 1, s.Pending())

		s.RunIdle(time.Second)
		require.Equal(t, 2, l.measured("c"))
		require.Equal(t, 3, l.measured("a"))
	})

	t.Run("slice is bounded by the deadline", func(t *testing.T) {
		l := newLayout()
		s := &ManualScheduler{}
		p := New(s, Config{})

		for _, id := range []string{"a", "b", "c"} {
			p.Track(id, l.rectFunc(id))
		}
		p.Start()

		s.RunWith(NewCountdownDeadline(1))
		require.Equal(t, 2, l.measured("a"))
		require.Equal(t, 1, l.measured("b"))

		s.RunWith(FixedDeadline{Remaining: time.Second, TimedOut: true})
		require.Equal(t, 1, l.measured("b"))

		s.RunWith(FixedDeadline{})
		require.Equal(t, 1, l.measured("b"))
		require.Equal(t, 1, s.Pending())
	})

	t.Run("queue is refilled once per slice", func(t *testing.T) {
		l := newLayout()
		s := &ManualScheduler{}
		p := New(s, Config{})

		p.Track("a", l.rectFunc("a"))
		p.Track("b", l.rectFunc("b"))
		p.Start()

		s.RunIdle(time.Second)
		require.Equal(t, 2, l.measured("a"))
		require.Equal(t, 2, l.measured("b"))
	})

	t.Run("stale ids are skipped", func(t *testing.T) {
		l := newLayout()
		s := &ManualScheduler{}
		p := New(s, Config{})

		for _, id := range []string{"a", "b", "c"} {
			p.Track(id, l.rectFunc(id))
		}
		p.Start()

		s.RunWith(NewCountdownDeadline(1))
		p.Untrack("b")

		s.RunWith(NewCountdownDeadline(1))
		require.Equal(t, 1, l.measured("b"))
		require.Equal(t, 2, l.measured("c"))
	})

	t.Run("changes are emitted from the loop", func(t *testing.T) {
		l := newLayout()
		s := &ManualScheduler{}
		p := New(s, Config{})

		var rec changeRecorder
		p.OnChange(rec.record)

		p.Track("a", l.rectFunc("a"))
		p.Start()

		l.set("a", geometry.NewRect(10, 10, 5, 5))
		s.RunIdle(time.Second)
		s.RunIdle(time.Second)
		require.Equal(t, []Change{{
			ID:   "a",
			Rect: geometry.NewRect(10, 10, 5, 5),
		}}, rec.all())
	})
}

func TestPollerStop(t *testing.T) {
	t.Run("pending slice is cancelled", func(t *testing.T) {
		s := &ManualScheduler{}
		p := New(s, Config{})

		p.Start()
		p.Start()
		require.Equal(t, 1, s.Pending())

		p.Stop()
		require.False(t, p.Running())
		require.Zero(t, s.Pending())

		p.Stop()
		p.Start()
		require.Equal(t, 1, s.Pending())
	})

	t.Run("running slice finishes its batch", func(t *testing.T) {
		l := newLayout()
		s := &ManualScheduler{}
		p := New(s, Config{})

		p.Track("a", func() geometry.Rect {
			p.Stop()
			return l.rectFunc("a")()
		})
		p.Track("b", l.rectFunc("b"))
		p.Start()

		s.RunIdle(time.Second)
		require.Equal(t, 2, l.measured("a"))
		require.Equal(t, 2, l.measured("b"))
		require.Zero(t, s.Pending())
	})

	t.Run("restart does not duplicate slices", func(t *testing.T) {
		s := &ManualScheduler{}
		p := New(s, Config{})

		p.Track("a", func() geometry.Rect {
			p.Stop()
			p.Start()
			return geometry.Rect{}
		})
		p.Start()
		require.Equal(t, 1, s.Pending())

		s.RunIdle(time.Second)
		require.Equal(t, 1, s.Pending())
	})
}

func TestPollerWithTimerScheduler(t *testing.T) {
	l := newLayout()
	p := New(TimerScheduler{
		Interval: time.Millisecond,
		Budget:   10 * time.Millisecond,
	}, Config{})
	defer p.Stop()

	var rec changeRecorder
	p.OnChange(rec.record)

	p.Track("a", l.rectFunc("a"))
	p.Start()

	l.set("a", geometry.NewRect(1, 1, 1, 1))
	require.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, time.Millisecond)
}
