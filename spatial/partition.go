package spatial

import "github.com/aukilabs/canvasindex/geometry"

// RectFunc returns the current rect of an item. A partition never stores rects
// itself, it asks again every time it needs one.
type RectFunc func(id string) geometry.Rect

// NodeID addresses a node inside a partition.
type NodeID int

const noNode NodeID = -1

type DebugInfo struct {
	Universe  geometry.Rect `json:"universe"`
	Capacity  int           `json:"capacity"`
	MaxDepth  int           `json:"max_depth"`
	NodeCount int           `json:"node_count"`
	LeafCount int           `json:"leaf_count"`
	Depth     int           `json:"depth"`
	ItemCount int           `json:"item_count"`
	ItemRefs  int           `json:"item_refs"`
}

// NodeSnapshot is a copy of a node state.
type NodeSnapshot struct {
	ID     NodeID        `json:"id"`
	Parent NodeID        `json:"parent"`
	Region geometry.Rect `json:"region"`
	Depth  int           `json:"depth"`
	Leaf   bool          `json:"leaf"`
	Items  []string      `json:"items,omitempty"`
}

type Partition interface {
	Insert(id string)
	Delete(id string)
	Remove(id string, leaves []NodeID)

	FindIn(r geometry.Rect) []string
	FindOn(p geometry.Point) []string
	FindNodes(id string) []NodeID

	HasChildren() bool
	Len() int
	Universe() geometry.Rect

	// debug stuff:
	GetDebugInfo() DebugInfo
	Snapshot() []NodeSnapshot
}
