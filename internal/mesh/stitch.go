package mesh

import (
	"sort"

	"terrainstream/internal/terrain"
	"terrainstream/internal/world"
)

// Seam is a chunk face bordered by a coarser neighbour whose samples follow
// the Coarse lattice.
type Seam struct {
	Face   world.Face
	Coarse terrain.Lattice
}

// Stitch rewrites the face samples of grid along each seam with the coarse
// neighbour's piecewise linear interpolant over the same diagonal split the
// extractor uses. The fine triangulation nests inside the coarse one, so both
// meshes then cut the shared face along the same isoline. Columns shared by
// two seams take the coarser neighbour's values. It returns the number of
// samples written.
func Stitch(grid *terrain.DensityGrid, field terrain.Field, seams []Seam) int {
	ordered := make([]Seam, len(seams))
	copy(ordered, seams)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Coarse.Step(0) < ordered[j].Coarse.Step(0)
	})

	written := 0
	for _, seam := range ordered {
		written += stitchFace(grid, field, seam)
	}
	return written
}

func stitchFace(grid *terrain.DensityGrid, field terrain.Field, seam Seam) int {
	fine := grid.Lattice
	coarse := seam.Coarse
	normal := seam.Face.Axis()
	tangent := 1 - normal

	face := 0
	plane := fine.Origin[normal]
	if seam.Face.Positive() {
		face = fine.Samples[normal] - 1
		plane += fine.Size[normal]
	}

	cache := make(map[[2]int]float64)
	sample := func(jt, jz int) float64 {
		key := [2]int{jt, jz}
		if v, ok := cache[key]; ok {
			return v
		}
		var p world.Coord
		p.Cell[normal] = plane
		p.Cell[tangent], p.Frac[tangent] = coarse.AxisCoord(tangent, jt)
		p.Cell[2], p.Frac[2] = coarse.AxisCoord(2, jz)
		v := float64(field.Evaluate(p.Normalize()))
		cache[key] = v
		return v
	}

	written := 0
	var s [3]int
	s[normal] = face + fine.Pad
	for kz := 0; kz < fine.Samples[2]; kz++ {
		jz, rz, dz := locate(fine, coarse, 2, kz)
		s[2] = kz + fine.Pad
		for kt := 0; kt < fine.Samples[tangent]; kt++ {
			jt, rt, dt := locate(fine, coarse, tangent, kt)
			s[tangent] = kt + fine.Pad
			grid.Set(s[0], s[1], s[2], interpolate(sample, jt, jz, rt, dt, rz, dz))
			written++
		}
	}
	return written
}

// locate finds the coarse cell holding fine sample k along axis. The
// position inside the cell is the exact fraction r/d.
func locate(fine, coarse terrain.Lattice, axis, k int) (j int, r, d int64) {
	nf := int64(fine.Samples[axis] - 1)
	nc := int64(coarse.Samples[axis] - 1)
	num := ((fine.Origin[axis]-coarse.Origin[axis])*nf + int64(k)*fine.Size[axis]) * nc
	d = coarse.Size[axis] * nf
	cell := world.FloorDiv(num, d)
	r = num - cell*d
	switch {
	case cell < 0:
		cell, r = 0, 0
	case cell >= nc:
		cell, r = nc-1, d
	}
	return int(cell), r, d
}

// interpolate evaluates the linear interpolant on the coarse face triangle
// containing (a, b) = (rt/dt, rz/dz). The cell is split along the diagonal
// from (0,0) to (1,1).
func interpolate(sample func(jt, jz int) float64, jt, jz int, rt, dt, rz, dz int64) float32 {
	a := float64(rt) / float64(dt)
	b := float64(rz) / float64(dz)
	v00 := sample(jt, jz)
	if rt == 0 && rz == 0 {
		return float32(v00)
	}
	v11 := sample(jt+1, jz+1)
	if rt*dz >= rz*dt {
		v10 := sample(jt+1, jz)
		return float32(v00 + a*(v10-v00) + b*(v11-v10))
	}
	v01 := sample(jt, jz+1)
	return float32(v00 + b*(v01-v00) + a*(v11-v01))
}
