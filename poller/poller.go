package poller

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/observe"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// RectFunc returns the current rect of a tracked entry, or the zero rect when
// the entry is not laid out.
type RectFunc func() geometry.Rect

// Change is emitted when a measurement differs from the last known rect.
type Change struct {
	ID       string        `json:"id"`
	Rect     geometry.Rect `json:"rect"`
	Previous geometry.Rect `json:"previous"`
}

type Config struct {
	// The maximum number of entries measured in one idle slice. Zero means the
	// slice is only bounded by its deadline.
	MaxItemsPerSlice int
}

type entry struct {
	sequence uint64
	rectOf   RectFunc
	rect     geometry.Rect

	// Measurements are numbered when they start. A measurement older than the
	// last committed one is discarded.
	started   uint64
	committed uint64
}

// Poller measures tracked entries during idle slices and reports the ones
// whose rect changed.
type Poller struct {
	scheduler Scheduler
	maxItems  int
	handlers  observe.Handlers[Change]

	mutex       sync.Mutex
	sequence    uint64
	entries     map[string]*entry
	waiting     []string
	running     bool
	generation  uint64
	cancelSlice func()
	outbox      []Change
	notifying   bool
}

func New(s Scheduler, cfg Config) *Poller {
	return &Poller{
		scheduler: s,
		maxItems:  cfg.MaxItemsPerSlice,
		entries:   make(map[string]*entry),
	}
}

// OnChange registers a handler called for every detected change. Handlers are
// called without the poller lock held.
func (p *Poller) OnChange(h func(Change)) (cancel func()) {
	return p.handlers.Add(h)
}

// Track starts tracking id and measures it right away. A change is emitted
// when the first measurement is not the zero rect. Tracking an id again
// replaces its callback and measures it.
func (p *Poller) Track(id string, rectOf RectFunc) {
	p.mutex.Lock()
	if e, ok := p.entries[id]; ok {
		e.rectOf = rectOf
	} else {
		p.sequence++
		p.entries[id] = &entry{
			sequence: p.sequence,
			rectOf:   rectOf,
		}
		instrumentTrack()
	}
	p.mutex.Unlock()

	p.measure(id)
}

// Untrack stops tracking id. Unknown ids are ignored.
func (p *Poller) Untrack(id string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, ok := p.entries[id]; !ok {
		return
	}
	delete(p.entries, id)
	instrumentUntrack()
}

// ForceUpdate measures id outside of the scan loop. Unknown ids are ignored.
//
// Changes are delivered in the order their measurements are committed, by one
// goroutine at a time. When another goroutine is delivering changes, or when
// ForceUpdate is called from a change handler, the change is queued and
// ForceUpdate returns before it is delivered.
func (p *Poller) ForceUpdate(id string) {
	p.measure(id)
}

func (p *Poller) IsTracked(id string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, ok := p.entries[id]
	return ok
}

func (p *Poller) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.entries)
}

// Rect returns the last known rect of id.
func (p *Poller) Rect(id string) geometry.Rect {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if e, ok := p.entries[id]; ok {
		return e.rect
	}
	return geometry.Rect{}
}

// IDs returns the tracked ids in tracking order.
func (p *Poller) IDs() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.trackedIDs()
}

// Start starts the scan loop. It is a no-op when the loop is running.
func (p *Poller) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.generation++
	p.scheduleSlice(p.generation)

	logs.WithTag("max_items_per_slice", p.maxItems).Debug("rect poller started")
}

// Stop cancels the pending slice. A slice being executed finishes its batch
// but is not rescheduled.
func (p *Poller) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.running {
		return
	}
	p.running = false
	p.generation++
	if p.cancelSlice != nil {
		p.cancelSlice()
		p.cancelSlice = nil
	}

	logs.WithTag("tracked_entries", len(p.entries)).Debug("rect poller stopped")
}

func (p *Poller) Running() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.running
}

func (p *Poller) scheduleSlice(generation uint64) {
	p.cancelSlice = p.scheduler.Schedule(func(d Deadline) {
		p.slice(generation, d)
	})
}

func (p *Poller) slice(generation uint64, d Deadline) {
	start := time.Now()
	processed := 0
	refilled := false

	for {
		if p.maxItems > 0 && processed >= p.maxItems {
			break
		}
		if d.DidTimeout() || d.TimeRemaining() <= 0 {
			break
		}

		id, ok := p.next(&refilled)
		if !ok {
			break
		}
		p.measure(id)
		processed++
	}

	instrumentSlice(start, processed)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.running && p.generation == generation {
		p.scheduleSlice(generation)
	}
}

// next pops the next live id from the waiting queue. The queue is refilled
// from the tracked entries at most once per slice.
func (p *Poller) next(refilled *bool) (string, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for {
		if len(p.waiting) == 0 {
			if *refilled {
				return "", false
			}
			*refilled = true

			p.waiting = p.trackedIDs()
			if len(p.waiting) == 0 {
				return "", false
			}
		}

		id := p.waiting[0]
		p.waiting = p.waiting[1:]

		if _, ok := p.entries[id]; ok {
			return id, true
		}
	}
}

func (p *Poller) measure(id string) {
	p.mutex.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mutex.Unlock()
		return
	}
	e.started++
	ticket := e.started
	rectOf := e.rectOf
	p.mutex.Unlock()

	rect := rectOf()

	p.mutex.Lock()
	if p.entries[id] != e || ticket < e.committed {
		p.mutex.Unlock()
		return
	}
	e.committed = ticket
	previous := e.rect
	changed := !rect.Equal(previous)
	if changed {
		e.rect = rect
		p.outbox = append(p.outbox, Change{
			ID:       id,
			Rect:     rect,
			Previous: previous,
		})
	}
	p.mutex.Unlock()

	instrumentMeasurement(changed)
	p.flush()
}

// flush delivers the queued changes unless another call is already doing it.
func (p *Poller) flush() {
	p.mutex.Lock()
	if p.notifying {
		p.mutex.Unlock()
		return
	}
	p.notifying = true

	for len(p.outbox) != 0 {
		c := p.outbox[0]
		p.outbox = p.outbox[1:]
		p.mutex.Unlock()

		p.handlers.Notify(c)

		p.mutex.Lock()
	}
	p.notifying = false
	p.mutex.Unlock()
}

func (p *Poller) trackedIDs() []string {
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return p.entries[ids[i]].sequence < p.entries[ids[j]].sequence
	})
	return ids
}
