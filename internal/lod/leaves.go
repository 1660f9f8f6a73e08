package lod

import (
	"sort"

	"terrainstream/internal/world"
)

// DesiredLeaves updates the tree for viewer and returns its leaf set.
func (t *Tree) DesiredLeaves(viewer world.Coord) []world.Leaf {
	t.Update(viewer)
	return t.Leaves()
}

// Leaves returns every leaf of the tree, nearest to the last viewer first,
// each with the level of the leaf across each of its faces.
func (t *Tree) Leaves() []world.Leaf {
	var out []world.Leaf
	var walk func(idx int32)
	walk = func(idx int32) {
		n := &t.nodes[idx]
		if !n.leaf() {
			for q := 0; q < 4; q++ {
				walk(n.child[q])
			}
			return
		}
		leaf := world.Leaf{Key: n.key, Distance: t.Distance(n.key, t.viewer)}
		for _, face := range world.Faces {
			leaf.Neighbors[face] = t.neighborLevel(n.key, face)
		}
		out = append(out, leaf)
	}
	for _, idx := range t.roots {
		walk(idx)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		a, b := out[i].Key, out[j].Key
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return out
}

// neighborLevel returns the level of the leaf covering the region across
// face from key. Missing roots and finer neighbours report key's own level.
func (t *Tree) neighborLevel(key world.ChunkKey, face world.Face) int {
	if found, ok := t.Locate(key.Neighbor(face)); ok {
		return found.Level
	}
	return key.Level
}

// Locate returns the leaf key covering key's region, if the tree holds one
// at key's level or coarser.
func (t *Tree) Locate(key world.ChunkKey) (world.ChunkKey, bool) {
	root := key.Ancestor(0)
	idx, ok := t.roots[[2]int64{root.X, root.Y}]
	if !ok {
		return world.ChunkKey{}, false
	}
	for {
		n := &t.nodes[idx]
		if n.leaf() {
			return n.key, true
		}
		if n.key.Level >= key.Level {
			return world.ChunkKey{}, false
		}
		idx = n.child[quadrant(n.key, key.Ancestor(n.key.Level+1))]
	}
}

func quadrant(parent, child world.ChunkKey) int {
	return int(child.X-parent.X*2) | int(child.Y-parent.Y*2)<<1
}
