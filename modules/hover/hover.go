package hover

import (
	"sync"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/canvasindex/observe"
)

// Change is emitted when the hovered element changes. An empty id means no
// element.
type Change struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// Module resolves the element under the pointer.
type Module struct {
	// Makes the module ignore rect changes. The hovered element is then only
	// resolved when the pointer moves.
	IgnoreRectChanges bool

	registry *models.Registry
	handlers observe.Handlers[Change]

	mutex      sync.Mutex
	pointer    geometry.Point
	hasPointer bool
	hovered    string
}

func (m *Module) Name() string {
	return "hover"
}

func (m *Module) Init(r *models.Registry) {
	m.registry = r
}

func (m *Module) HandleRectChange(c models.RectChange) {
	if m.IgnoreRectChanges {
		return
	}

	m.mutex.Lock()
	p := m.pointer
	concerned := m.hasPointer &&
		(c.ID == m.hovered || c.Rect.Contains(p) || c.Previous.Contains(p))
	m.mutex.Unlock()

	if concerned {
		m.refresh()
	}
}

func (m *Module) Close() {
	m.ClearPointer()
}

// SetPointer moves the pointer and resolves the frontest element under it.
func (m *Module) SetPointer(p geometry.Point) string {
	m.mutex.Lock()
	m.pointer = p
	m.hasPointer = true
	m.mutex.Unlock()

	return m.refresh()
}

// ClearPointer removes the pointer from the canvas.
func (m *Module) ClearPointer() {
	m.mutex.Lock()
	m.hasPointer = false
	previous := m.hovered
	m.hovered = ""
	m.mutex.Unlock()

	if previous != "" {
		m.handlers.Notify(Change{Previous: previous})
	}
}

// Hovered returns the element under the pointer.
func (m *Module) Hovered() (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.hovered, m.hovered != ""
}

func (m *Module) OnHoverChange(h func(Change)) (cancel func()) {
	return m.handlers.Add(h)
}

func (m *Module) refresh() string {
	m.mutex.Lock()
	p := m.pointer
	m.mutex.Unlock()

	id, _ := m.registry.GetFrontest(p)

	m.mutex.Lock()
	if !m.hasPointer || m.pointer != p || id == m.hovered {
		m.mutex.Unlock()
		return id
	}
	change := Change{
		Previous: m.hovered,
		Current:  id,
	}
	m.hovered = id
	m.mutex.Unlock()

	m.handlers.Notify(change)
	return id
}
