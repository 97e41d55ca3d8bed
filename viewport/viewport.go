package viewport

import (
	"sync"
	"time"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/observe"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	ErrTypeInvalidZoom = "invalid_zoom"
)

// Viewport is the visible part of a canvas. It pushes window changes right
// away and canvas size changes once they settled for CanvasSizeDebounce.
type Viewport struct {
	// The time a canvas size must stay unchanged before it is pushed. Zero
	// pushes it synchronously.
	CanvasSizeDebounce time.Duration

	mutex      sync.Mutex
	scroll     geometry.Point
	zoom       float64
	viewSize   geometry.Size
	canvasSize geometry.Size
	sizeTimer  *time.Timer
	closed     bool
	windowSubs observe.Handlers[geometry.Rect]
	canvasSubs observe.Handlers[geometry.Size]
}

func New(viewSize, canvasSize geometry.Size) *Viewport {
	return &Viewport{
		zoom:       1,
		viewSize:   viewSize,
		canvasSize: canvasSize,
	}
}

// Window returns the visible window in canvas coordinates.
func (v *Viewport) Window() geometry.Rect {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	return v.window()
}

func (v *Viewport) window() geometry.Rect {
	return geometry.Rect{
		X:      v.scroll.X / v.zoom,
		Y:      v.scroll.Y / v.zoom,
		Width:  v.viewSize.Width / v.zoom,
		Height: v.viewSize.Height / v.zoom,
	}
}

func (v *Viewport) Zoom() float64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	return v.zoom
}

// SetScroll sets the scroll location, in view coordinates.
func (v *Viewport) SetScroll(p geometry.Point) {
	v.updateWindow(func() {
		v.scroll = p
	})
}

func (v *Viewport) SetZoom(zoom float64) error {
	if zoom <= 0 {
		return errors.New("zoom must be greater than zero").
			WithType(ErrTypeInvalidZoom).
			WithTag("zoom", zoom)
	}

	v.updateWindow(func() {
		v.zoom = zoom
	})
	return nil
}

func (v *Viewport) SetViewSize(s geometry.Size) {
	v.updateWindow(func() {
		v.viewSize = s
	})
}

// SetWindow moves and resizes the view so that it shows r at the current
// zoom.
func (v *Viewport) SetWindow(r geometry.Rect) {
	v.updateWindow(func() {
		v.scroll = geometry.Point{X: r.X * v.zoom, Y: r.Y * v.zoom}
		v.viewSize = geometry.Size{Width: r.Width * v.zoom, Height: r.Height * v.zoom}
	})
}

func (v *Viewport) updateWindow(update func()) {
	v.mutex.Lock()
	before := v.window()
	update()
	after := v.window()
	closed := v.closed
	v.mutex.Unlock()

	if closed || after.Equal(before) {
		return
	}
	v.windowSubs.Notify(after)
}

func (v *Viewport) CanvasSize() geometry.Size {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	return v.canvasSize
}

// SetCanvasSize sets the canvas size. Subscribers are notified once the size
// stopped changing for CanvasSizeDebounce.
func (v *Viewport) SetCanvasSize(s geometry.Size) {
	v.mutex.Lock()
	if v.closed || s.Equal(v.canvasSize) {
		v.mutex.Unlock()
		return
	}
	v.canvasSize = s

	if v.CanvasSizeDebounce <= 0 {
		v.mutex.Unlock()
		v.canvasSubs.Notify(s)
		return
	}

	if v.sizeTimer != nil {
		v.sizeTimer.Stop()
	}
	v.sizeTimer = time.AfterFunc(v.CanvasSizeDebounce, v.pushCanvasSize)
	v.mutex.Unlock()
}

func (v *Viewport) pushCanvasSize() {
	v.mutex.Lock()
	if v.closed {
		v.mutex.Unlock()
		return
	}
	size := v.canvasSize
	v.sizeTimer = nil
	v.mutex.Unlock()

	logs.WithTag("canvas_size", size).Debug("canvas size settled")
	v.canvasSubs.Notify(size)
}

func (v *Viewport) OnWindowChange(h func(geometry.Rect)) (cancel func()) {
	return v.windowSubs.Add(h)
}

func (v *Viewport) OnCanvasSizeChange(h func(geometry.Size)) (cancel func()) {
	return v.canvasSubs.Add(h)
}

// Close stops pushing changes. A pending canvas size is dropped.
func (v *Viewport) Close() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.closed = true
	if v.sizeTimer != nil {
		v.sizeTimer.Stop()
		v.sizeTimer = nil
	}
}
