package mesh

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"terrainstream/internal/terrain"
	"terrainstream/internal/world"
)

func generate(t *testing.T, field terrain.Field, lat terrain.Lattice) *terrain.DensityGrid {
	t.Helper()
	grid, err := terrain.Generate(context.Background(), field, lat)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return grid
}

func TestExtractFlatPlane(t *testing.T) {
	lat := terrain.Lattice{Size: [3]int64{1, 1, 1}, Samples: [3]int{8, 8, 8}}
	grid := generate(t, terrain.FieldFunc(func(p world.Coord) float32 {
		return float32(p.Axis(2))
	}), lat)

	m := Extract(grid, 0.5)
	if got := m.Triangles(); got != 7*7*8 {
		t.Fatalf("expected 8 triangles per crossed cell, got %d", got)
	}
	for i, p := range m.Positions {
		if math.Abs(float64(p[2])-0.5) > 1e-5 {
			t.Fatalf("vertex %d off the plane: %v", i, p)
		}
		if !m.Normals[i].ApproxEqualThreshold(mgl32.Vec3{0, 0, 1}, 1e-5) {
			t.Fatalf("vertex %d normal %v", i, m.Normals[i])
		}
	}

	area := 0.0
	for i := 0; i < len(m.Indices); i += 3 {
		a := m.Positions[m.Indices[i]]
		b := m.Positions[m.Indices[i+1]]
		c := m.Positions[m.Indices[i+2]]
		n := b.Sub(a).Cross(c.Sub(a))
		if n[2] <= 0 {
			t.Fatalf("triangle %d faces %v", i/3, n)
		}
		area += 0.5 * float64(n.Len())
	}
	if math.Abs(area-1) > 1e-4 {
		t.Fatalf("plane area %f, want 1", area)
	}
}

func TestExtractUniformGridsAreEmpty(t *testing.T) {
	lat := terrain.Lattice{Size: [3]int64{4, 4, 4}, Samples: [3]int{5, 5, 5}, Pad: 1}
	for _, v := range []float32{0, 1} {
		grid := terrain.NewDensityGrid(lat)
		for i := range grid.Values {
			grid.Values[i] = v
		}
		m := Extract(grid, 0.5)
		if !m.Empty() || len(m.Positions) != 0 {
			t.Fatalf("uniform grid %f produced %d triangles", v, m.Triangles())
		}
		if m.Origin != lat.Origin {
			t.Fatalf("origin not carried")
		}
	}
}

func TestExtractClosedSurfaceIsConsistentlyOriented(t *testing.T) {
	center := mgl64.Vec3{0.5, 0.5, 0.5}
	lat := terrain.Lattice{Size: [3]int64{1, 1, 1}, Samples: [3]int{12, 12, 12}}
	grid := generate(t, terrain.FieldFunc(func(p world.Coord) float32 {
		return float32(p.Vec().Sub(center).Len())
	}), lat)
	m := Extract(grid, 0.31)
	if m.Empty() {
		t.Fatalf("expected a sphere")
	}

	directed := make(map[[2]uint32]int)
	for i := 0; i < len(m.Indices); i += 3 {
		tri := [3]uint32{m.Indices[i], m.Indices[i+1], m.Indices[i+2]}
		for k := 0; k < 3; k++ {
			directed[[2]uint32{tri[k], tri[(k+1)%3]}]++
		}
		a, b, c := vec64(m.Positions[tri[0]]), vec64(m.Positions[tri[1]]), vec64(m.Positions[tri[2]])
		n := b.Sub(a).Cross(c.Sub(a))
		if n.Dot(a.Sub(center)) <= 0 {
			t.Fatalf("triangle %d points inwards", i/3)
		}
	}
	for edge, count := range directed {
		if count != 1 {
			t.Fatalf("directed edge %v used %d times", edge, count)
		}
		if directed[[2]uint32{edge[1], edge[0]}] != 1 {
			t.Fatalf("edge %v has no opposite twin", edge)
		}
	}
	for i, n := range m.Normals {
		out := vec64(m.Positions[i]).Sub(center).Normalize()
		if vec64(n).Dot(out) < 0.9 {
			t.Fatalf("vertex %d normal %v does not follow the gradient", i, n)
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	noise := terrain.NewFractal(11, 3, 2, 0.5, 8)
	field := terrain.FieldFunc(func(p world.Coord) float32 {
		return float32(0.5 + 0.5*noise.Eval(p))
	})
	lat := terrain.Lattice{Origin: [3]int64{1 << 36, 77, -8}, Size: [3]int64{16, 16, 16}, Samples: [3]int{9, 9, 9}, Pad: 1}

	a := Extract(generate(t, field, lat), 0.5)
	b := Extract(generate(t, field, lat), 0.5)
	if a.Empty() {
		t.Fatalf("expected geometry")
	}
	if len(a.Positions) != len(b.Positions) || len(a.Indices) != len(b.Indices) {
		t.Fatalf("mesh sizes differ")
	}
	for i := range a.Positions {
		for axis := 0; axis < 3; axis++ {
			if math.Float32bits(a.Positions[i][axis]) != math.Float32bits(b.Positions[i][axis]) ||
				math.Float32bits(a.Normals[i][axis]) != math.Float32bits(b.Normals[i][axis]) {
				t.Fatalf("vertex %d differs", i)
			}
		}
	}
	for i := range a.Indices {
		if a.Indices[i] != b.Indices[i] {
			t.Fatalf("index %d differs", i)
		}
	}
}

// segments returns the isoline pieces a mesh draws on the plane
// local[axis] == plane, in world (tangent, z) coordinates.
func segments(m *world.ChunkMesh, axis int, plane float32) [][2]mgl64.Vec2 {
	tangent := 1 - axis
	var out [][2]mgl64.Vec2
	for i := 0; i < len(m.Indices); i += 3 {
		var on []mgl64.Vec2
		for k := 0; k < 3; k++ {
			p := m.Positions[m.Indices[i+k]]
			if p[axis] == plane {
				on = append(on, faceCoord(m, p, tangent))
			}
		}
		if len(on) == 2 {
			out = append(out, [2]mgl64.Vec2{on[0], on[1]})
		}
	}
	return out
}

func faceCoord(m *world.ChunkMesh, p mgl32.Vec3, tangent int) mgl64.Vec2 {
	return mgl64.Vec2{float64(m.Origin[tangent]) + float64(p[tangent]), float64(m.Origin[2]) + float64(p[2])}
}

func distanceToSegment(p mgl64.Vec2, s [2]mgl64.Vec2) float64 {
	d := s[1].Sub(s[0])
	l := d.Dot(d)
	if l == 0 {
		return p.Sub(s[0]).Len()
	}
	t := p.Sub(s[0]).Dot(d) / l
	t = math.Max(0, math.Min(1, t))
	return p.Sub(s[0].Add(d.Mul(t))).Len()
}

func onPolyline(p mgl64.Vec2, segs [][2]mgl64.Vec2, tol float64) bool {
	for _, s := range segs {
		if distanceToSegment(p, s) <= tol {
			return true
		}
	}
	return false
}

func TestStitchedFaceSharesTheCoarseIsoline(t *testing.T) {
	const tol = 1e-3
	// Root 32: the level 1 key (1,0) spans x 16..32 and its +x neighbour is
	// covered by the level 0 key (1,0) spanning x 32..64.
	fineLat := terrain.Lattice{Origin: [3]int64{16, 0, 0}, Size: [3]int64{16, 16, 16}, Samples: [3]int{9, 9, 9}, Pad: 1}
	coarseLat := terrain.Lattice{Origin: [3]int64{32, 0, 0}, Size: [3]int64{32, 32, 16}, Samples: [3]int{9, 9, 5}, Pad: 1}

	checked := 0
	for seed := int64(1); seed <= 8; seed++ {
		noise := terrain.NewFractal(seed, 2, 2, 0.5, 6)
		field := terrain.FieldFunc(func(p world.Coord) float32 {
			return float32(0.5 + 0.5*noise.Eval(p))
		})

		fineGrid := generate(t, field, fineLat)
		if n := Stitch(fineGrid, field, []Seam{{Face: world.FacePosX, Coarse: coarseLat}}); n != 9*9 {
			t.Fatalf("stitched %d samples, want 81", n)
		}
		fine := Extract(fineGrid, 0.5)
		coarse := Extract(generate(t, field, coarseLat), 0.5)

		fineSegs := segments(fine, 0, 16)
		coarseSegs := segments(coarse, 0, 0)

		for _, p := range fine.Positions {
			if p[0] != 16 {
				continue
			}
			q := faceCoord(fine, p, 1)
			if !onPolyline(q, coarseSegs, tol) {
				t.Fatalf("seed %d: fine seam vertex %v is off the coarse surface", seed, q)
			}
			checked++
		}
		for _, p := range coarse.Positions {
			if p[0] != 0 || p[1] > 16 {
				continue
			}
			q := faceCoord(coarse, p, 1)
			if !onPolyline(q, fineSegs, tol) {
				t.Fatalf("seed %d: coarse seam vertex %v is off the fine surface", seed, q)
			}
			checked++
		}
	}
	if checked < 10 {
		t.Fatalf("too few seam vertices checked: %d", checked)
	}
}

func TestStitchKeepsCoarseSamplesAndInterior(t *testing.T) {
	field := terrain.FieldFunc(func(p world.Coord) float32 {
		return float32(math.Sin(p.Axis(1)*0.7) + math.Cos(p.Axis(2)*0.3))
	})
	fineLat := terrain.Lattice{Origin: [3]int64{16, 0, 0}, Size: [3]int64{16, 16, 16}, Samples: [3]int{9, 9, 9}, Pad: 1}
	coarseLat := terrain.Lattice{Origin: [3]int64{32, 0, 0}, Size: [3]int64{32, 32, 16}, Samples: [3]int{9, 9, 5}, Pad: 1}

	original := generate(t, field, fineLat)
	grid := generate(t, field, fineLat)
	Stitch(grid, field, []Seam{{Face: world.FacePosX, Coarse: coarseLat}})

	face := fineLat.Pad + fineLat.Samples[0] - 1
	dims := fineLat.Dims()
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				onSeam := x == face && y >= 1 && y <= 9 && z >= 1 && z <= 9
				got, want := grid.At(x, y, z), original.At(x, y, z)
				if !onSeam && got != want {
					t.Fatalf("sample %d,%d,%d changed off the seam", x, y, z)
				}
				// Even fine samples coincide with the coarse lattice.
				if onSeam && (y-1)%2 == 0 && (z-1)%2 == 0 && got != want {
					t.Fatalf("coarse lattice sample %d,%d,%d: got %f want %f", x, y, z, got, want)
				}
			}
		}
	}
}

func TestStitchAppliesCoarsestSeamLast(t *testing.T) {
	field := terrain.FieldFunc(func(p world.Coord) float32 {
		return float32(math.Sin(p.Axis(0)*0.9) + math.Cos(p.Axis(1)*0.4) + 0.1*p.Axis(2))
	})
	fineLat := terrain.Lattice{Origin: [3]int64{16, 16, 0}, Size: [3]int64{16, 16, 16}, Samples: [3]int{9, 9, 9}, Pad: 1}
	xSeam := Seam{Face: world.FacePosX, Coarse: terrain.Lattice{Origin: [3]int64{32, 0, 0}, Size: [3]int64{32, 32, 16}, Samples: [3]int{9, 9, 5}, Pad: 1}}
	ySeam := Seam{Face: world.FacePosY, Coarse: terrain.Lattice{Origin: [3]int64{0, 32, 0}, Size: [3]int64{64, 64, 16}, Samples: [3]int{9, 9, 3}, Pad: 1}}

	both := generate(t, field, fineLat)
	if n := Stitch(both, field, []Seam{ySeam, xSeam}); n != 2*81 {
		t.Fatalf("stitched %d samples", n)
	}
	only := generate(t, field, fineLat)
	Stitch(only, field, []Seam{ySeam})

	corner := fineLat.Pad + 8
	for z := 1; z <= 9; z++ {
		if both.At(corner, corner, z) != only.At(corner, corner, z) {
			t.Fatalf("corner column at z %d does not follow the coarsest seam", z)
		}
	}
}
