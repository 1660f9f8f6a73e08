package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkKey identifies a node of the spatial tree: its level and its integer
// index among the nodes of that level. Level 0 nodes are root tiles.
type ChunkKey struct {
	Level int
	X     int64
	Y     int64
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("L%d[%d,%d]", k.Level, k.X, k.Y)
}

// Ancestor returns the key of the node at level containing k. Levels at or
// below k's own return k unchanged.
func (k ChunkKey) Ancestor(level int) ChunkKey {
	if level >= k.Level {
		return k
	}
	if level < 0 {
		level = 0
	}
	shift := uint(k.Level - level)
	return ChunkKey{Level: level, X: k.X >> shift, Y: k.Y >> shift}
}

// Parent returns the enclosing key one level up.
func (k ChunkKey) Parent() ChunkKey {
	return k.Ancestor(k.Level - 1)
}

// Child returns one of the four children. Bit 0 of quadrant selects +X, bit 1
// selects +Y.
func (k ChunkKey) Child(quadrant int) ChunkKey {
	return ChunkKey{
		Level: k.Level + 1,
		X:     k.X*2 + int64(quadrant&1),
		Y:     k.Y*2 + int64(quadrant>>1&1),
	}
}

// Contains reports whether o lies inside k (or is k).
func (k ChunkKey) Contains(o ChunkKey) bool {
	return o.Level >= k.Level && o.Ancestor(k.Level) == k
}

// Overlaps reports whether the footprints of the two keys intersect.
func (k ChunkKey) Overlaps(o ChunkKey) bool {
	return k.Contains(o) || o.Contains(k)
}

// Neighbor returns the same-level key across face.
func (k ChunkKey) Neighbor(face Face) ChunkKey {
	dx, dy := face.Offset()
	return ChunkKey{Level: k.Level, X: k.X + dx, Y: k.Y + dy}
}

// Face names one of the four horizontal faces of a chunk column.
type Face int

const (
	FaceNegX Face = iota
	FacePosX
	FaceNegY
	FacePosY
)

// Faces lists every face in index order.
var Faces = [4]Face{FaceNegX, FacePosX, FaceNegY, FacePosY}

// Offset is the unit step across the face in key space.
func (f Face) Offset() (int64, int64) {
	switch f {
	case FaceNegX:
		return -1, 0
	case FacePosX:
		return 1, 0
	case FaceNegY:
		return 0, -1
	case FacePosY:
		return 0, 1
	default:
		return 0, 0
	}
}

// Axis is the world axis the face is perpendicular to.
func (f Face) Axis() int {
	if f == FaceNegX || f == FacePosX {
		return 0
	}
	return 1
}

// Positive reports whether the face lies on the max side of its axis.
func (f Face) Positive() bool {
	return f == FacePosX || f == FacePosY
}

func (f Face) String() string {
	switch f {
	case FaceNegX:
		return "-x"
	case FacePosX:
		return "+x"
	case FaceNegY:
		return "-y"
	case FacePosY:
		return "+y"
	default:
		return fmt.Sprintf("face(%d)", int(f))
	}
}

// Bounds is an axis-aligned box in integer world units.
type Bounds struct {
	Min [3]int64
	Max [3]int64
}

// Size returns the extent along every axis.
func (b Bounds) Size() [3]int64 {
	return [3]int64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// KeyBounds returns the column covered by key for the given root tile size and
// vertical extent.
func KeyBounds(key ChunkKey, rootSize, minZ, maxZ int64) Bounds {
	size := rootSize >> uint(key.Level)
	return Bounds{
		Min: [3]int64{key.X * size, key.Y * size, minZ},
		Max: [3]int64{key.X*size + size, key.Y*size + size, maxZ},
	}
}

// Leaf is one entry of the desired set: a tree leaf with the level of the
// leaf across each face. A neighbour level never exceeds Key.Level; unknown
// or finer neighbours are reported as Key.Level.
type Leaf struct {
	Key       ChunkKey
	Neighbors [4]int
	Distance  float64
}

// Uniform returns a leaf whose neighbours all match its own level.
func Uniform(key ChunkKey) Leaf {
	return Leaf{Key: key, Neighbors: [4]int{key.Level, key.Level, key.Level, key.Level}}
}

// ChunkMesh is the renderable output of one generation job. Positions are
// relative to Origin. Published meshes are never modified.
type ChunkMesh struct {
	Key       ChunkKey
	Origin    [3]int64
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
	Neighbors [4]int
	Version   uint64

	generation uint64
}

// Triangles returns the number of triangles in the mesh.
func (m *ChunkMesh) Triangles() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

// Empty reports whether the chunk produced no geometry.
func (m *ChunkMesh) Empty() bool {
	return m.Triangles() == 0
}
