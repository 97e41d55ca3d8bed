package canvassize

import (
	"sync"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Sink receives the canvas size computed from the root elements.
type Sink interface {
	SetCanvasSize(geometry.Size)
}

// Module grows and shrinks the canvas so that it contains every root element.
type Module struct {
	Sink Sink

	// The space added to the right and the bottom of the root elements.
	Padding geometry.Size

	// The smallest size pushed to the sink.
	MinSize geometry.Size

	registry *models.Registry

	mutex sync.Mutex
	size  geometry.Size
}

func (m *Module) Name() string {
	return "canvassize"
}

func (m *Module) Init(r *models.Registry) {
	m.registry = r
	m.update()
}

func (m *Module) HandleRectChange(c models.RectChange) {
	rec, ok := m.registry.Record(c.ID)
	if !ok || rec.Depth != 0 {
		return
	}
	m.update()
}

func (m *Module) Close() {
}

// Size returns the last size pushed to the sink.
func (m *Module) Size() geometry.Size {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.size
}

func (m *Module) update() {
	boundary := m.registry.GetBoundarySize()
	size := geometry.Size{
		Width:  boundary.Width + m.Padding.Width,
		Height: boundary.Height + m.Padding.Height,
	}.Max(m.MinSize)

	m.mutex.Lock()
	if size.Equal(m.size) {
		m.mutex.Unlock()
		return
	}
	m.size = size
	m.mutex.Unlock()

	logs.WithTag("registry_uuid", m.registry.UUID).
		WithTag("canvas_size", size).
		Debug("canvas resized to fit root elements")
	m.Sink.SetCanvasSize(size)
}
