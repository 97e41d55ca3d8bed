package models

import (
	"sort"
	"sync"

	"github.com/aukilabs/canvasindex/featureflag"
	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/observe"
	"github.com/aukilabs/canvasindex/poller"
	"github.com/aukilabs/canvasindex/spatial"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
)

const (
	DefaultVisibilityMargin = 0.2
)

type RegistryConfig struct {
	// The initial canvas size.
	Universe geometry.Size

	// The capacity of the spatial index leaves.
	Capacity int

	// The maximum depth of the spatial index.
	MaxDepth int

	// The ratio of the visible window size added on each side of the window
	// when deciding which elements to track.
	VisibilityMargin float64

	FeatureFlags featureflag.FeatureFlag
}

// Registry owns the elements of a canvas. It keeps them in a spatial index,
// asks a tracker to poll the ones near the visible window and relocates them
// in the index when their rect changes.
type Registry struct {
	UUID string

	tracker          Tracker
	capacity         int
	maxDepth         int
	margin           float64
	retainDegenerate bool
	trackAll         bool

	mutex    sync.RWMutex
	records  map[string]*ElementRecord
	rects    map[string]geometry.Rect
	roots    map[string]struct{}
	pending  map[string]struct{}
	tracked  map[string]struct{}
	index    spatial.Partition
	window   geometry.Rect
	closed   bool
	unbinds  []func()
	deferred []RectChange

	// Tracking updates call the tracker without holding mutex. Changes it
	// reports meanwhile are deferred until the update is over.
	trackMutex sync.Mutex
	deferring  bool

	subMutex    sync.RWMutex
	subscribers map[string]*observe.Handlers[RectChange]
	global      observe.Handlers[RectChange]

	cancelTracker func()
}

func NewRegistry(cfg RegistryConfig, tracker Tracker) *Registry {
	if cfg.VisibilityMargin <= 0 {
		cfg.VisibilityMargin = DefaultVisibilityMargin
	}

	r := &Registry{
		UUID:             uuid.NewString(),
		tracker:          tracker,
		capacity:         cfg.Capacity,
		maxDepth:         cfg.MaxDepth,
		margin:           cfg.VisibilityMargin,
		retainDegenerate: cfg.FeatureFlags.IsSet(featureflag.FlagRetainDegenerateItems),
		trackAll:         cfg.FeatureFlags.IsSet(featureflag.FlagDisableVisibilityGating),
		records:          make(map[string]*ElementRecord),
		rects:            make(map[string]geometry.Rect),
		roots:            make(map[string]struct{}),
		pending:          make(map[string]struct{}),
		tracked:          make(map[string]struct{}),
		window:           geometry.RectFromSize(cfg.Universe),
		subscribers:      make(map[string]*observe.Handlers[RectChange]),
	}

	r.index = r.newIndex(cfg.Universe)
	r.cancelTracker = tracker.OnChange(r.handleChange)
	return r
}

// Add registers an element and returns a function that unregisters it. Adding
// an id again replaces its record. The element is indexed with the zero rect
// and tracked until its first measurement.
func (r *Registry) Add(rec ElementRecord) (unregister func()) {
	r.lockTracking()
	defer r.unlockTracking()

	record := &rec

	r.mutex.Lock()
	_, replaced := r.records[rec.ID]
	_, wasTracked := r.tracked[rec.ID]
	if replaced {
		r.unindex(rec.ID)
		delete(r.roots, rec.ID)
		delete(r.tracked, rec.ID)
	} else {
		instrumentAddElement()
	}

	r.records[rec.ID] = record
	r.rects[rec.ID] = geometry.Rect{}
	r.pending[rec.ID] = struct{}{}
	if rec.Depth == 0 {
		r.roots[rec.ID] = struct{}{}
	}
	r.index.Insert(rec.ID)
	r.mutex.Unlock()

	if wasTracked {
		r.tracker.Untrack(rec.ID)
		instrumentTrackedDelta(-1)
	}
	r.applyTracking()

	logs.WithTag("registry_uuid", r.UUID).
		WithTag("element_id", rec.ID).
		WithTag("depth", rec.Depth).
		WithTag("scope", rec.Scope).
		WithTag("replaced", replaced).
		Debug("element added")

	var once sync.Once
	return func() {
		once.Do(func() {
			r.remove(rec.ID, record)
		})
	}
}

// Remove unregisters an element. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.remove(id, nil)
}

func (r *Registry) remove(id string, record *ElementRecord) {
	r.lockTracking()
	defer r.unlockTracking()

	r.mutex.Lock()
	current, ok := r.records[id]
	if !ok || (record != nil && current != record) {
		r.mutex.Unlock()
		return
	}

	r.unindex(id)
	delete(r.records, id)
	delete(r.rects, id)
	delete(r.roots, id)
	delete(r.pending, id)
	_, wasTracked := r.tracked[id]
	delete(r.tracked, id)
	r.mutex.Unlock()

	if wasTracked {
		r.tracker.Untrack(id)
		instrumentTrackedDelta(-1)
	}
	instrumentRemoveElement()

	logs.WithTag("registry_uuid", r.UUID).
		WithTag("element_id", id).
		Debug("element removed")
}

// GetRect returns the last known rect of an element, or the zero rect when the
// element is unknown.
func (r *Registry) GetRect(id string) geometry.Rect {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.rects[id]
}

// Record returns the record of an element.
func (r *Registry) Record(id string) (ElementRecord, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return ElementRecord{}, false
	}
	return *rec, true
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.records)
}

// Roots returns the sorted ids of the elements with a depth of 0.
func (r *Registry) Roots() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return sortedKeys(r.roots)
}

// FindIn returns the elements whose rect overlaps rect.
func (r *Registry) FindIn(rect geometry.Rect) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.index.FindIn(rect)
}

// FindOn returns the elements whose rect contains p.
func (r *Registry) FindOn(p geometry.Point) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.index.FindOn(p)
}

// GetFrontest returns the deepest element whose rect contains p. Elements with
// the same depth resolve to the first one found by the spatial index.
func (r *Registry) GetFrontest(p geometry.Point) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var frontest string
	var depth int
	var found bool

	for _, id := range r.index.FindOn(p) {
		rec, ok := r.records[id]
		if !ok {
			continue
		}
		if !found || rec.Depth > depth {
			frontest = id
			depth = rec.Depth
			found = true
		}
	}

	return frontest, found
}

// GetBoundarySize returns the smallest canvas size that contains every root
// element.
func (r *Registry) GetBoundarySize() geometry.Size {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var size geometry.Size
	for id := range r.roots {
		rect := r.rects[id]
		size = size.Max(geometry.Size{
			Width:  rect.Right(),
			Height: rect.Bottom(),
		})
	}
	return size
}

// SetVisibleWindow changes the visible window and tracks the elements that
// overlap it once expanded by the visibility margin.
func (r *Registry) SetVisibleWindow(window geometry.Rect) {
	r.lockTracking()
	defer r.unlockTracking()

	r.mutex.Lock()
	r.window = window
	r.mutex.Unlock()

	r.applyTracking()
}

// VisibleWindow returns the last visible window, without margin.
func (r *Registry) VisibleWindow() geometry.Rect {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.window
}

// SetCanvasSize rebuilds the spatial index over the new canvas extent.
func (r *Registry) SetCanvasSize(size geometry.Size) {
	r.lockTracking()
	defer r.unlockTracking()

	r.mutex.Lock()
	r.index = r.newIndex(size)
	for _, id := range sortedKeys(r.records) {
		r.index.Insert(id)
	}
	count := len(r.records)
	r.mutex.Unlock()

	instrumentIndexRebuild()
	logs.WithTag("registry_uuid", r.UUID).
		WithTag("canvas_size", size).
		WithTag("elements", count).
		Info("spatial index rebuilt")

	r.applyTracking()
}

// Subscribe registers a handler called when the rect of the given element
// changes.
func (r *Registry) Subscribe(id string, h func(RectChange)) (cancel func()) {
	r.subMutex.Lock()
	defer r.subMutex.Unlock()

	handlers, ok := r.subscribers[id]
	if !ok {
		handlers = &observe.Handlers[RectChange]{}
		r.subscribers[id] = handlers
	}
	cancelHandler := handlers.Add(h)

	return func() {
		r.subMutex.Lock()
		defer r.subMutex.Unlock()

		cancelHandler()
		if handlers.Len() == 0 && r.subscribers[id] == handlers {
			delete(r.subscribers, id)
		}
	}
}

// SubscribeAll registers a handler called when the rect of any element
// changes.
func (r *Registry) SubscribeAll(h func(RectChange)) (cancel func()) {
	return r.global.Add(h)
}

// ForceUpdate measures an element right away. Unknown or untracked elements
// are ignored.
func (r *Registry) ForceUpdate(id string) {
	r.tracker.ForceUpdate(id)
}

// Bind syncs the registry with the canvas size and the visible window of the
// given viewport, and follows their changes until the returned function is
// called.
func (r *Registry) Bind(v ViewportProvider) (unbind func()) {
	r.SetCanvasSize(v.CanvasSize())
	r.SetVisibleWindow(v.Window())

	cancelCanvas := v.OnCanvasSizeChange(r.SetCanvasSize)
	cancelWindow := v.OnWindowChange(r.SetVisibleWindow)

	var once sync.Once
	unbind = func() {
		once.Do(func() {
			cancelCanvas()
			cancelWindow()
		})
	}

	r.mutex.Lock()
	r.unbinds = append(r.unbinds, unbind)
	r.mutex.Unlock()
	return unbind
}

// Close unbinds the registry from its viewports and stops tracking its
// elements. Changes reported after Close are ignored.
func (r *Registry) Close() {
	r.lockTracking()
	defer r.unlockTracking()

	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return
	}
	r.closed = true
	unbinds := r.unbinds
	r.unbinds = nil
	tracked := sortedKeys(r.tracked)
	r.tracked = make(map[string]struct{})
	r.mutex.Unlock()

	for _, unbind := range unbinds {
		unbind()
	}
	r.cancelTracker()

	for _, id := range tracked {
		r.tracker.Untrack(id)
	}
	instrumentTrackedDelta(-len(tracked))

	logs.WithTag("registry_uuid", r.UUID).
		WithTag("untracked", len(tracked)).
		Debug("registry closed")
}

func (r *Registry) IsTracked(id string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.tracked[id]
	return ok
}

func (r *Registry) TrackedCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.tracked)
}

func (r *Registry) SpatialDebugInfo() spatial.DebugInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.index.GetDebugInfo()
}

func (r *Registry) SpatialSnapshot() SpatialSnapshot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snap := SpatialSnapshot{
		Universe:      r.index.Universe(),
		VisibleWindow: r.window,
		Nodes:         r.index.Snapshot(),
		Elements:      make([]ElementSnapshot, 0, len(r.records)),
	}

	for _, id := range sortedKeys(r.records) {
		rec := r.records[id]
		_, tracked := r.tracked[id]

		snap.Elements = append(snap.Elements, ElementSnapshot{
			ID:      id,
			Depth:   rec.Depth,
			Scope:   rec.Scope,
			Rect:    r.rects[id],
			Tracked: tracked,
		})
	}
	return snap
}

func (r *Registry) handleChange(c poller.Change) {
	if change, ok := r.relocate(c); ok {
		r.publish(change)
	}
}

// relocate stores the new rect of a tracked element and moves it in the
// spatial index. It reports whether the change must be published now, changes
// arriving while tracking is updated are published by unlockTracking.
func (r *Registry) relocate(c poller.Change) (RectChange, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.records[c.ID]; !ok || r.closed {
		return RectChange{}, false
	}

	previous := r.rects[c.ID]
	r.unindex(c.ID)
	r.rects[c.ID] = c.Rect
	if !c.Rect.IsZero() {
		delete(r.pending, c.ID)
	}
	r.index.Insert(c.ID)
	instrumentRectChange()

	change := RectChange{
		ID:       c.ID,
		Rect:     c.Rect,
		Previous: previous,
	}

	if r.deferring {
		r.deferred = append(r.deferred, change)
		return RectChange{}, false
	}
	return change, true
}

func (r *Registry) publish(c RectChange) {
	r.subMutex.RLock()
	handlers := r.subscribers[c.ID]
	r.subMutex.RUnlock()

	if handlers != nil {
		handlers.Notify(c)
	}
	r.global.Notify(c)
}

func (r *Registry) lockTracking() {
	r.trackMutex.Lock()

	r.mutex.Lock()
	r.deferring = true
	r.mutex.Unlock()
}

func (r *Registry) unlockTracking() {
	r.mutex.Lock()
	r.deferring = false
	deferred := r.deferred
	r.deferred = nil
	r.mutex.Unlock()

	r.trackMutex.Unlock()

	for _, c := range deferred {
		r.publish(c)
	}
}

type trackRequest struct {
	id     string
	rectOf poller.RectFunc
}

// applyTracking diffs the elements that should be tracked against the tracked
// ones and updates the tracker. It must be called between lockTracking and
// unlockTracking.
func (r *Registry) applyTracking() {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return
	}

	desired := r.desiredTracking()

	var untrack []string
	for id := range r.tracked {
		if _, ok := desired[id]; !ok {
			untrack = append(untrack, id)
			delete(r.tracked, id)
		}
	}
	sort.Strings(untrack)

	var track []trackRequest
	for _, id := range sortedKeys(desired) {
		if _, ok := r.tracked[id]; ok {
			continue
		}
		r.tracked[id] = struct{}{}
		track = append(track, trackRequest{
			id:     id,
			rectOf: r.records[id].RectOf,
		})
	}
	r.mutex.Unlock()

	for _, id := range untrack {
		r.tracker.Untrack(id)
	}
	for _, t := range track {
		r.tracker.Track(t.id, t.rectOf)
	}
	instrumentTrackedDelta(len(track) - len(untrack))

	if len(track) != 0 || len(untrack) != 0 {
		logs.WithTag("registry_uuid", r.UUID).
			WithTag("tracked", len(track)).
			WithTag("untracked", len(untrack)).
			Debug("tracking updated")
	}
}

func (r *Registry) desiredTracking() map[string]struct{} {
	desired := make(map[string]struct{}, len(r.tracked))

	if r.trackAll {
		for id := range r.records {
			desired[id] = struct{}{}
		}
		return desired
	}

	for _, id := range r.index.FindIn(r.window.Expand(r.margin)) {
		if _, ok := r.records[id]; ok {
			desired[id] = struct{}{}
		}
	}
	for id := range r.pending {
		desired[id] = struct{}{}
	}
	return desired
}

func (r *Registry) newIndex(size geometry.Size) spatial.Partition {
	return spatial.NewQuadtree(geometry.RectFromSize(size), r.rectOf, spatial.Config{
		Capacity:         r.capacity,
		MaxDepth:         r.maxDepth,
		RetainDegenerate: r.retainDegenerate,
	})
}

// rectOf must be called with mutex held.
func (r *Registry) rectOf(id string) geometry.Rect {
	return r.rects[id]
}

func (r *Registry) unindex(id string) {
	r.index.Remove(id, r.index.FindNodes(id))
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
