package scenario

import (
	"sync"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/poller"
)

// Layout stands in for the rendering layer: it holds the rect each element is
// laid out at.
type Layout struct {
	mutex sync.RWMutex
	rects map[string]geometry.Rect
}

func NewLayout() *Layout {
	return &Layout{rects: make(map[string]geometry.Rect)}
}

func (l *Layout) Set(id string, r geometry.Rect) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.rects[id] = r
}

func (l *Layout) Delete(id string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	delete(l.rects, id)
}

// Rect returns the rect of id, or the zero rect when id is not laid out.
func (l *Layout) Rect(id string) geometry.Rect {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.rects[id]
}

// RectFunc returns a function that measures id.
func (l *Layout) RectFunc(id string) poller.RectFunc {
	return func() geometry.Rect {
		return l.Rect(id)
	}
}
