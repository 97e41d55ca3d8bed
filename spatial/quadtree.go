package spatial

import (
	"sort"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Region Quadtree Spatial Partition
//
// A quadtree implementing the Partition interface. The particularities are:
//   - items are rects, not points. An item whose rect straddles several
//     quadrants is stored in every leaf it overlaps, so queries deduplicate.
//   - splits and merges count the items that only partly cover a node: a leaf
//     splits when Capacity of its items do not cover its whole region, and an
//     internal node merges its subtree back when fewer than Capacity such
//     items are left in it. Nested rects covering a leaf would be copied into
//     every child of a split, so they never force one.
//   - nodes live in an arena and reference each other by index.
//   - items with a zero area overlap no quadrant and are dropped when a leaf
//     distributes its items to its children, unless RetainDegenerate is set.

const (
	DefaultCapacity = 5
	DefaultMaxDepth = 12

	ErrTypeCorruptedIndex = "corrupted_index"
)

type Config struct {
	// The number of items that makes a leaf split.
	Capacity int

	// The depth at which leaves stop splitting. Items sharing a single point
	// would otherwise make the tree recurse forever.
	MaxDepth int

	// Keeps zero area items in the child containing their origin instead of
	// dropping them when a leaf is split.
	RetainDegenerate bool
}

type node struct {
	region   geometry.Rect
	parent   NodeID
	children [4]NodeID
	internal bool
	depth    int
	items    []string
	alive    bool
}

type Quadtree struct {
	capacity         int
	maxDepth         int
	retainDegenerate bool
	rectOf           RectFunc

	root  NodeID
	nodes []node
	free  []NodeID
}

func NewQuadtree(universe geometry.Rect, rectOf RectFunc, cfg Config) *Quadtree {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}

	q := &Quadtree{
		capacity:         cfg.Capacity,
		maxDepth:         cfg.MaxDepth,
		retainDegenerate: cfg.RetainDegenerate,
		rectOf:           rectOf,
	}
	q.root = q.alloc(universe, noNode, 0)
	return q
}

func (q *Quadtree) Universe() geometry.Rect {
	return q.nodes[q.root].region
}

// HasChildren reports whether the root has been split.
func (q *Quadtree) HasChildren() bool {
	return q.nodes[q.root].internal
}

// Len returns the number of distinct items stored in the tree.
func (q *Quadtree) Len() int {
	return len(q.collect(q.root))
}

func (q *Quadtree) Insert(id string) {
	q.insert(q.root, id, q.rectOf(id))
}

func (q *Quadtree) insert(n NodeID, id string, rect geometry.Rect) {
	if q.nodes[n].internal {
		q.distribute(n, id, rect)
		return
	}

	for _, item := range q.nodes[n].items {
		if item == id {
			return
		}
	}

	q.nodes[n].items = append(q.nodes[n].items, id)
	if q.nodes[n].depth < q.maxDepth && q.crowding(q.nodes[n].region, q.nodes[n].items) >= q.capacity {
		q.split(n)
	}
}

// crowding returns the number of items whose rect does not cover region.
func (q *Quadtree) crowding(region geometry.Rect, items []string) int {
	count := 0
	for _, id := range items {
		if !q.rectOf(id).Covers(region) {
			count++
		}
	}
	return count
}

func (q *Quadtree) distribute(n NodeID, id string, rect geometry.Rect) {
	children := q.nodes[n].children

	placed := false
	for _, c := range children {
		if q.nodes[c].region.Overlaps(rect) {
			q.insert(c, id, rect)
			placed = true
		}
	}

	if placed || !q.retainDegenerate || !rect.IsDegenerate() {
		return
	}

	origin := rect.Origin()
	for _, c := range children {
		if q.nodes[c].region.Contains(origin) {
			q.insert(c, id, rect)
			return
		}
	}
}

func (q *Quadtree) split(n NodeID) {
	depth := q.nodes[n].depth
	quadrants := q.nodes[n].region.Quadrants()

	var children [4]NodeID
	for i, region := range quadrants {
		children[i] = q.alloc(region, n, depth+1)
	}

	items := q.nodes[n].items
	q.nodes[n].items = nil
	q.nodes[n].children = children
	q.nodes[n].internal = true
	instrumentSplit()

	for _, id := range items {
		q.distribute(n, id, q.rectOf(id))
	}
}

// Delete removes id from every leaf holding it.
func (q *Quadtree) Delete(id string) {
	q.Remove(id, q.FindNodes(id))
}

// Remove removes id from the given leaves, then merges the parents that fell
// under capacity, deepest first. A merge can release parents collected from
// other leaves, those are skipped. Leaves must come from FindNodes and the tree
// must not have been modified in between: a node that is not a live leaf
// means the index is corrupted and Remove panics.
func (q *Quadtree) Remove(id string, leaves []NodeID) {
	parents := make(map[NodeID]struct{}, len(leaves))

	for _, n := range leaves {
		nd := q.mustNode(n)
		if nd.internal {
			panic(errors.New("removing an item from an internal node").
				WithType(ErrTypeCorruptedIndex).
				WithTag("node", n).
				WithTag("item", id))
		}

		items := nd.items[:0]
		for _, item := range nd.items {
			if item != id {
				items = append(items, item)
			}
		}
		nd.items = items

		if nd.parent != noNode {
			parents[nd.parent] = struct{}{}
		}
	}

	ordered := make([]NodeID, 0, len(parents))
	for p := range parents {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		di := q.nodes[ordered[i]].depth
		dj := q.nodes[ordered[j]].depth
		if di != dj {
			return di > dj
		}
		return ordered[i] < ordered[j]
	})

	for _, p := range ordered {
		if nd := &q.nodes[p]; nd.alive && nd.internal {
			q.mergeUpward(p)
		}
	}
}

func (q *Quadtree) mergeUpward(n NodeID) {
	for n != noNode {
		nd := &q.nodes[n]
		if !nd.alive || !nd.internal {
			return
		}

		items := q.collect(n)
		if q.crowding(nd.region, items) >= q.capacity {
			return
		}

		for _, c := range nd.children {
			q.release(c)
		}

		nd = q.mustNode(n)
		nd.children = [4]NodeID{noNode, noNode, noNode, noNode}
		nd.internal = false
		nd.items = items
		instrumentMerge()

		n = nd.parent
	}
}

// FindIn returns the items whose rect overlaps r, in the order they are found
// by a breadth first traversal.
func (q *Quadtree) FindIn(r geometry.Rect) []string {
	return q.find(
		func(region geometry.Rect) bool { return region.Overlaps(r) },
		func(rect geometry.Rect) bool { return rect.Overlaps(r) },
	)
}

// FindOn returns the items whose rect contains p, in the order they are found
// by a breadth first traversal.
func (q *Quadtree) FindOn(p geometry.Point) []string {
	return q.find(
		func(region geometry.Rect) bool { return region.Contains(p) },
		func(rect geometry.Rect) bool { return rect.Contains(p) },
	)
}

func (q *Quadtree) find(matchNode, matchItem func(geometry.Rect) bool) []string {
	var result []string
	checked := make(map[string]struct{})

	queue := []NodeID{q.root}
	for len(queue) != 0 {
		n := queue[0]
		queue = queue[1:]

		nd := &q.nodes[n]
		if !matchNode(nd.region) {
			continue
		}

		if nd.internal {
			queue = append(queue, nd.children[:]...)
			continue
		}

		for _, id := range nd.items {
			if _, ok := checked[id]; ok {
				continue
			}
			checked[id] = struct{}{}

			if matchItem(q.rectOf(id)) {
				result = append(result, id)
			}
		}
	}

	return result
}

// FindNodes returns the leaves currently holding id.
func (q *Quadtree) FindNodes(id string) []NodeID {
	var leaves []NodeID

	queue := []NodeID{q.root}
	for len(queue) != 0 {
		n := queue[0]
		queue = queue[1:]

		nd := &q.nodes[n]
		if nd.internal {
			queue = append(queue, nd.children[:]...)
			continue
		}

		for _, item := range nd.items {
			if item == id {
				leaves = append(leaves, n)
				break
			}
		}
	}

	return leaves
}

func (q *Quadtree) GetDebugInfo() DebugInfo {
	info := DebugInfo{
		Universe:  q.Universe(),
		Capacity:  q.capacity,
		MaxDepth:  q.maxDepth,
		ItemCount: q.Len(),
	}

	q.walk(func(n NodeID, nd *node) {
		info.NodeCount++
		if nd.depth > info.Depth {
			info.Depth = nd.depth
		}
		if !nd.internal {
			info.LeafCount++
			info.ItemRefs += len(nd.items)
		}
	})

	return info
}

func (q *Quadtree) Snapshot() []NodeSnapshot {
	var nodes []NodeSnapshot

	q.walk(func(n NodeID, nd *node) {
		s := NodeSnapshot{
			ID:     n,
			Parent: nd.parent,
			Region: nd.region,
			Depth:  nd.depth,
			Leaf:   !nd.internal,
		}
		if len(nd.items) != 0 {
			s.Items = append([]string(nil), nd.items...)
		}
		nodes = append(nodes, s)
	})

	return nodes
}

// walk visits the live nodes breadth first.
func (q *Quadtree) walk(fn func(NodeID, *node)) {
	queue := []NodeID{q.root}
	for len(queue) != 0 {
		n := queue[0]
		queue = queue[1:]

		nd := &q.nodes[n]
		fn(n, nd)

		if nd.internal {
			queue = append(queue, nd.children[:]...)
		}
	}
}

// collect returns the distinct items of the subtree rooted at n.
func (q *Quadtree) collect(n NodeID) []string {
	var items []string
	seen := make(map[string]struct{})

	q.walkFrom(n, func(nd *node) {
		for _, id := range nd.items {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			items = append(items, id)
		}
	})

	return items
}

func (q *Quadtree) walkFrom(n NodeID, fn func(*node)) {
	nd := &q.nodes[n]
	fn(nd)

	if nd.internal {
		for _, c := range nd.children {
			q.walkFrom(c, fn)
		}
	}
}

func (q *Quadtree) alloc(region geometry.Rect, parent NodeID, depth int) NodeID {
	nd := node{
		region:   region,
		parent:   parent,
		children: [4]NodeID{noNode, noNode, noNode, noNode},
		depth:    depth,
		alive:    true,
	}

	if n := len(q.free); n != 0 {
		id := q.free[n-1]
		q.free = q.free[:n-1]
		q.nodes[id] = nd
		return id
	}

	q.nodes = append(q.nodes, nd)
	return NodeID(len(q.nodes) - 1)
}

func (q *Quadtree) release(n NodeID) {
	nd := q.mustNode(n)
	children := nd.children
	internal := nd.internal

	q.nodes[n] = node{parent: noNode, children: [4]NodeID{noNode, noNode, noNode, noNode}}
	q.free = append(q.free, n)

	if internal {
		for _, c := range children {
			q.release(c)
		}
	}
}

func (q *Quadtree) mustNode(n NodeID) *node {
	if n < 0 || int(n) >= len(q.nodes) || !q.nodes[n].alive {
		panic(errors.New("quadtree node not found").
			WithType(ErrTypeCorruptedIndex).
			WithTag("node", n))
	}
	return &q.nodes[n]
}
