package lod

import (
	"math"

	"terrainstream/internal/config"
	"terrainstream/internal/world"
)

const none int32 = -1

type node struct {
	key    world.ChunkKey
	parent int32
	child  [4]int32

	// seen is the viewer position the subtree was last evaluated at; slack is
	// how far the viewer may move from it before any node below could cross
	// a threshold.
	seen  world.Coord
	slack float64
	fresh bool
}

func (n *node) leaf() bool { return n.child[0] == none }

// Tree is a sparse quadtree over an unbounded plane of root tiles. Nodes live
// in an arena and refer to each other by index. Root tiles appear within the
// view distance and are dropped once beyond view distance plus hysteresis.
type Tree struct {
	cfg   config.LODConfig
	nodes []node
	free  []int32
	roots map[[2]int64]int32

	viewer      world.Coord
	transitions uint64
	evaluations uint64
}

func New(cfg config.LODConfig) *Tree {
	return &Tree{cfg: cfg, roots: make(map[[2]int64]int32)}
}

// Update moves the viewer and applies every subdivide and collapse the move
// calls for. Subtrees the viewer cannot have affected since their last
// evaluation are skipped. It returns the number of transitions made.
func (t *Tree) Update(viewer world.Coord) int {
	viewer = viewer.Normalize()
	t.viewer = viewer
	before := t.transitions

	t.updateRoots(viewer)
	for _, idx := range t.roots {
		t.visit(idx, viewer)
	}
	return int(t.transitions - before)
}

func (t *Tree) updateRoots(viewer world.Coord) {
	root := t.cfg.RootSize
	reach := int64(math.Ceil(t.cfg.ViewDistance)) + 1
	x0 := world.FloorDiv(viewer.Cell[0]-reach, root)
	x1 := world.FloorDiv(viewer.Cell[0]+reach, root)
	y0 := world.FloorDiv(viewer.Cell[1]-reach, root)
	y1 := world.FloorDiv(viewer.Cell[1]+reach, root)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			pos := [2]int64{x, y}
			if _, ok := t.roots[pos]; ok {
				continue
			}
			key := world.ChunkKey{Level: 0, X: x, Y: y}
			if t.rectDistance(key, viewer) <= t.cfg.ViewDistance {
				t.roots[pos] = t.alloc(key, none)
			}
		}
	}
	for pos, idx := range t.roots {
		if t.rectDistance(t.nodes[idx].key, viewer) > t.cfg.ViewDistance+t.cfg.ViewHysteresis {
			t.release(idx)
			delete(t.roots, pos)
		}
	}
}

// visit re-evaluates the subtree at idx and returns its remaining slack.
func (t *Tree) visit(idx int32, viewer world.Coord) float64 {
	if n := &t.nodes[idx]; n.fresh {
		if moved := viewer.Distance(n.seen); moved < n.slack {
			return n.slack - moved
		}
	}

	t.evaluations++
	key := t.nodes[idx].key
	d := t.Distance(key, viewer)
	size := float64(t.cfg.ChunkSize(key.Level))
	subdivide := t.cfg.SubdivideFactor * size
	collapse := t.cfg.CollapseFactor * size
	canSplit := key.Level < t.cfg.MaxLevel && t.cfg.ChunkSize(key.Level+1) > 0

	if t.nodes[idx].leaf() && canSplit && d < subdivide {
		t.split(idx)
		t.transitions++
	} else if !t.nodes[idx].leaf() && d > collapse {
		t.merge(idx)
		t.transitions++
	}

	var slack float64
	if t.nodes[idx].leaf() {
		slack = math.Inf(1)
		if canSplit {
			slack = d - subdivide
		}
	} else {
		slack = collapse - d
		for q := 0; q < 4; q++ {
			slack = math.Min(slack, t.visit(t.nodes[idx].child[q], viewer))
		}
	}

	n := &t.nodes[idx]
	n.seen = viewer
	n.slack = slack
	n.fresh = true
	return slack
}

func (t *Tree) split(idx int32) {
	key := t.nodes[idx].key
	var children [4]int32
	for q := 0; q < 4; q++ {
		children[q] = t.alloc(key.Child(q), idx)
	}
	t.nodes[idx].child = children
}

func (t *Tree) merge(idx int32) {
	for q := 0; q < 4; q++ {
		t.release(t.nodes[idx].child[q])
	}
	t.nodes[idx].child = [4]int32{none, none, none, none}
}

func (t *Tree) alloc(key world.ChunkKey, parent int32) int32 {
	n := node{key: key, parent: parent, child: [4]int32{none, none, none, none}}
	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tree) release(idx int32) {
	if !t.nodes[idx].leaf() {
		for q := 0; q < 4; q++ {
			t.release(t.nodes[idx].child[q])
		}
	}
	t.nodes[idx] = node{parent: none, child: [4]int32{none, none, none, none}}
	t.free = append(t.free, idx)
}

// Distance is the viewer distance used for subdivision: from the viewer to
// the horizontal centre of the key's column, measured vertically only when
// the viewer is above or below the column.
func (t *Tree) Distance(key world.ChunkKey, viewer world.Coord) float64 {
	size := t.cfg.ChunkSize(key.Level)
	center := world.Coord{Cell: [3]int64{key.X*size + size/2, key.Y*size + size/2, viewer.Cell[2]}}
	if size%2 == 1 {
		center.Frac[0], center.Frac[1] = 0.5, 0.5
	}
	d := viewer.Delta(center)

	z := viewer.Axis(2)
	switch {
	case z < float64(t.cfg.MinZ):
		d[2] = z - float64(t.cfg.MinZ)
	case z > float64(t.cfg.MaxZ):
		d[2] = z - float64(t.cfg.MaxZ)
	default:
		d[2] = 0
	}
	return d.Len()
}

// rectDistance is the horizontal distance from the viewer to the key's square.
func (t *Tree) rectDistance(key world.ChunkKey, viewer world.Coord) float64 {
	size := t.cfg.ChunkSize(key.Level)
	var sum float64
	for axis, k := range [2]int64{key.X, key.Y} {
		lo := k * size
		v := float64(viewer.Cell[axis]-lo) + float64(viewer.Frac[axis])
		var d float64
		switch {
		case v < 0:
			d = -v
		case v > float64(size):
			d = v - float64(size)
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Viewer returns the position of the last update.
func (t *Tree) Viewer() world.Coord { return t.viewer }

// Transitions counts every subdivide and collapse since creation.
func (t *Tree) Transitions() uint64 { return t.transitions }

// Nodes returns the number of live nodes.
func (t *Tree) Nodes() int { return len(t.nodes) - len(t.free) }

// Roots returns the number of live root tiles.
func (t *Tree) Roots() int { return len(t.roots) }
