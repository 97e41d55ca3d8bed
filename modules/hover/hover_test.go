package hover

import (
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/canvasindex/modules"
	"github.com/aukilabs/canvasindex/poller"
	"github.com/stretchr/testify/require"
)

type layout struct {
	mutex sync.Mutex
	rects map[string]geometry.Rect
}

func (l *layout) set(id string, r geometry.Rect) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.rects[id] = r
}

func (l *layout) rectFunc(id string) poller.RectFunc {
	return func() geometry.Rect {
		l.mutex.Lock()
		defer l.mutex.Unlock()
		return l.rects[id]
	}
}

func TestHover(t *testing.T) {
	l := &layout{rects: make(map[string]geometry.Rect)}
	s := &poller.ManualScheduler{}
	p := poller.New(s, poller.Config{})
	r := models.NewRegistry(models.RegistryConfig{
		Universe: geometry.Size{Width: 1000, Height: 1000},
	}, p)
	defer r.Close()

	add := func(id string, depth int, rect geometry.Rect) {
		l.set(id, rect)
		r.Add(models.ElementRecord{
			ID:     id,
			Depth:  depth,
			RectOf: l.rectFunc(id),
		})
	}

	m := &Module{}
	detach := modules.Attach(r, m)
	defer detach()

	var changes []Change
	m.OnHoverChange(func(c Change) {
		changes = append(changes, c)
	})

	add("page", 0, geometry.NewRect(0, 0, 500, 500))
	add("button", 1, geometry.NewRect(100, 100, 50, 20))

	t.Run("pointer resolves the frontest element", func(t *testing.T) {
		require.Equal(t, "button", m.SetPointer(geometry.Point{X: 110, Y: 110}))
		hovered, ok := m.Hovered()
		require.True(t, ok)
		require.Equal(t, "button", hovered)

		require.Equal(t, "page", m.SetPointer(geometry.Point{X: 10, Y: 10}))
		require.Equal(t, []Change{
			{Current: "button"},
			{Previous: "button", Current: "page"},
		}, changes)
	})

	t.Run("rect changes under the pointer", func(t *testing.T) {
		changes = nil
		p.Start()
		defer p.Stop()

		l.set("button", geometry.NewRect(0, 0, 50, 20))
		s.RunIdle(time.Second)
		require.Equal(t, []Change{{Previous: "page", Current: "button"}}, changes)

		l.set("button", geometry.NewRect(300, 300, 50, 20))
		s.RunIdle(time.Second)
		hovered, _ := m.Hovered()
		require.Equal(t, "page", hovered)
	})

	t.Run("clear pointer", func(t *testing.T) {
		changes = nil
		m.ClearPointer()

		_, ok := m.Hovered()
		require.False(t, ok)
		require.Equal(t, []Change{{Previous: "page"}}, changes)
	})
}
