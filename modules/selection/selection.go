package selection

import (
	"sync"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
)

// Module keeps the set of selected elements and the bounds around them.
type Module struct {
	registry *models.Registry

	mutex    sync.Mutex
	selected []string
	bounds   geometry.Rect
}

func (m *Module) Name() string {
	return "selection"
}

func (m *Module) Init(r *models.Registry) {
	m.registry = r
}

func (m *Module) HandleRectChange(c models.RectChange) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !contains(m.selected, c.ID) {
		return
	}
	m.bounds = m.computeBounds()
}

func (m *Module) Close() {
	m.Clear()
}

// SelectRegion selects the elements overlapping r and returns them.
func (m *Module) SelectRegion(r geometry.Rect) []string {
	ids := m.registry.FindIn(r)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.selected = ids
	m.bounds = m.computeBounds()
	return append([]string(nil), ids...)
}

// Select adds the given elements to the selection. Unknown elements are
// ignored.
func (m *Module) Select(ids ...string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, id := range ids {
		if _, ok := m.registry.Record(id); !ok || contains(m.selected, id) {
			continue
		}
		m.selected = append(m.selected, id)
	}
	m.bounds = m.computeBounds()
}

func (m *Module) Selected() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return append([]string(nil), m.selected...)
}

// Bounds returns the union of the selected element rects.
func (m *Module) Bounds() geometry.Rect {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.bounds
}

func (m *Module) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.selected = nil
	m.bounds = geometry.Rect{}
}

func (m *Module) computeBounds() geometry.Rect {
	var bounds geometry.Rect
	for _, id := range m.selected {
		bounds = bounds.Union(m.registry.GetRect(id))
	}
	return bounds
}

func contains(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
