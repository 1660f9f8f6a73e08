package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"terrainstream/internal/terrain"
	"terrainstream/internal/world"
)

const minTriangleArea = 1e-12

// Extract triangulates the surface density == iso of grid with marching
// tetrahedra. Samples below iso are solid. Only cells between non-apron
// samples produce triangles; the apron feeds the gradient normals.
// Positions are relative to the lattice origin and triangles wind counter
// clockwise seen from the air side. The result is a pure function of the
// grid and iso.
func Extract(grid *terrain.DensityGrid, iso float32) *world.ChunkMesh {
	lat := grid.Lattice
	e := &extractor{
		grid:  grid,
		lat:   lat,
		dims:  lat.Dims(),
		iso:   iso,
		edges: make(map[uint64]uint32),
		mesh:  &world.ChunkMesh{Origin: lat.Origin},
	}
	for axis := 0; axis < 3; axis++ {
		e.step[axis] = lat.Step(axis)
	}

	n := lat.Samples
	for z := 0; z < n[2]-1; z++ {
		for y := 0; y < n[1]-1; y++ {
			for x := 0; x < n[0]-1; x++ {
				e.cell(x, y, z)
			}
		}
	}
	return e.mesh
}

type extractor struct {
	grid  *terrain.DensityGrid
	lat   terrain.Lattice
	dims  [3]int
	step  [3]float64
	iso   float32
	edges map[uint64]uint32
	mesh  *world.ChunkMesh
}

type corner struct {
	stored [3]int
	local  mgl64.Vec3
	index  int
	value  float32
}

func (e *extractor) cell(x, y, z int) {
	var corners [8]corner
	inside := 0
	for i, off := range cornerOffsets {
		k := [3]int{x + off[0], y + off[1], z + off[2]}
		c := corner{}
		for axis := 0; axis < 3; axis++ {
			c.stored[axis] = k[axis] + e.lat.Pad
			c.local[axis] = localOffset(e.lat, axis, k[axis])
		}
		c.index = e.lat.Index(c.stored[0], c.stored[1], c.stored[2])
		c.value = e.grid.Values[c.index]
		if c.value < e.iso {
			inside |= 1 << i
		}
		corners[i] = c
	}
	if inside == 0 || inside == 0xff {
		return
	}
	for _, tet := range tetrahedra {
		e.tetra(corners, tet, inside)
	}
}

func (e *extractor) tetra(corners [8]corner, tet [4]int, mask int) {
	var in, out []corner
	for _, i := range tet {
		if mask&(1<<i) != 0 {
			in = append(in, corners[i])
		} else {
			out = append(out, corners[i])
		}
	}
	if len(in) == 0 || len(out) == 0 {
		return
	}

	// away points from the solid corners towards the air corners.
	away := centroid(out).Sub(centroid(in))

	switch len(in) {
	case 1:
		e.triangle(away, e.vertex(in[0], out[0]), e.vertex(in[0], out[1]), e.vertex(in[0], out[2]))
	case 3:
		e.triangle(away, e.vertex(in[0], out[0]), e.vertex(in[1], out[0]), e.vertex(in[2], out[0]))
	case 2:
		a := e.vertex(in[0], out[0])
		b := e.vertex(in[0], out[1])
		c := e.vertex(in[1], out[1])
		d := e.vertex(in[1], out[0])
		e.triangle(away, a, b, c)
		e.triangle(away, a, c, d)
	}
}

func centroid(cs []corner) mgl64.Vec3 {
	var sum mgl64.Vec3
	for _, c := range cs {
		sum = sum.Add(c.local)
	}
	return sum.Mul(1 / float64(len(cs)))
}

func (e *extractor) triangle(away mgl64.Vec3, a, b, c uint32) {
	if a == b || b == c || a == c {
		return
	}
	pa := vec64(e.mesh.Positions[a])
	pb := vec64(e.mesh.Positions[b])
	pc := vec64(e.mesh.Positions[c])
	n := pb.Sub(pa).Cross(pc.Sub(pa))
	if n.Len() < minTriangleArea {
		return
	}
	if n.Dot(away) < 0 {
		b, c = c, b
	}
	e.mesh.Indices = append(e.mesh.Indices, a, b, c)
}

// vertex returns the welded vertex on the edge between two corners. The
// edge is always interpolated from its lower stored index, so every cell
// sharing the edge computes the same bits.
func (e *extractor) vertex(p, q corner) uint32 {
	if q.index < p.index {
		p, q = q, p
	}
	key := uint64(p.index)<<32 | uint64(q.index)
	if idx, ok := e.edges[key]; ok {
		return idx
	}

	t := (float64(e.iso) - float64(p.value)) / (float64(q.value) - float64(p.value))
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	pos := p.local.Add(q.local.Sub(p.local).Mul(t))

	gp := e.gradient(p.stored)
	gq := e.gradient(q.stored)
	normal := gp.Add(gq.Sub(gp).Mul(t))
	if l := normal.Len(); l > 0 {
		normal = normal.Mul(1 / l)
	} else {
		normal = mgl64.Vec3{0, 0, 1}
	}

	idx := uint32(len(e.mesh.Positions))
	e.mesh.Positions = append(e.mesh.Positions, vec32(pos))
	e.mesh.Normals = append(e.mesh.Normals, vec32(normal))
	e.edges[key] = idx
	return idx
}

// gradient estimates the density gradient at a stored sample with central
// differences, falling back to one sided differences at the grid border.
func (e *extractor) gradient(s [3]int) mgl64.Vec3 {
	var g mgl64.Vec3
	for axis := 0; axis < 3; axis++ {
		lo, hi := s, s
		if lo[axis] > 0 {
			lo[axis]--
		}
		if hi[axis] < e.dims[axis]-1 {
			hi[axis]++
		}
		span := hi[axis] - lo[axis]
		if span == 0 {
			continue
		}
		vl := float64(e.grid.At(lo[0], lo[1], lo[2]))
		vh := float64(e.grid.At(hi[0], hi[1], hi[2]))
		g[axis] = (vh - vl) / (float64(span) * e.step[axis])
	}
	return g
}

func localOffset(lat terrain.Lattice, axis, k int) float64 {
	return float64(int64(k)*lat.Size[axis]) / float64(lat.Samples[axis]-1)
}

func vec64(v mgl32.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

func vec32(v mgl64.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}
