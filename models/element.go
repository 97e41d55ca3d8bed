package models

import (
	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/poller"
	"github.com/aukilabs/canvasindex/spatial"
)

// ElementRecord describes a rendered element known to a registry.
type ElementRecord struct {
	ID string

	// The z-order of the element. Root elements have a depth of 0.
	Depth int

	// The owner of the element, such as the page or component it belongs to.
	Scope string

	// Returns the live rect of the element, or the zero rect when it is not
	// mounted.
	RectOf poller.RectFunc
}

// RectChange is published when the rect of an element changed. It is
// published after the rect was written into the registry.
type RectChange struct {
	ID       string        `json:"id"`
	Rect     geometry.Rect `json:"rect"`
	Previous geometry.Rect `json:"previous"`
}

// Tracker measures the rects of the elements a registry asks it to track.
type Tracker interface {
	Track(id string, rectOf poller.RectFunc)
	Untrack(id string)
	IsTracked(id string) bool
	ForceUpdate(id string)
	OnChange(h func(poller.Change)) (cancel func())
}

// ViewportProvider reports the visible window and the canvas size.
type ViewportProvider interface {
	Window() geometry.Rect
	CanvasSize() geometry.Size
	OnWindowChange(h func(geometry.Rect)) (cancel func())
	OnCanvasSizeChange(h func(geometry.Size)) (cancel func())
}

// ElementSnapshot is the state of an element at snapshot time.
type ElementSnapshot struct {
	ID      string        `json:"id"`
	Depth   int           `json:"depth"`
	Scope   string        `json:"scope,omitempty"`
	Rect    geometry.Rect `json:"rect"`
	Tracked bool          `json:"tracked"`
}

// SpatialSnapshot is a copy of the spatial partition of a registry and of the
// elements it indexes.
type SpatialSnapshot struct {
	Universe      geometry.Rect          `json:"universe"`
	VisibleWindow geometry.Rect          `json:"visible_window"`
	Nodes         []spatial.NodeSnapshot `json:"nodes"`
	Elements      []ElementSnapshot      `json:"elements"`
}
