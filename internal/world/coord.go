package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// Coord is a world position split into an integer cell and a fractional
// offset inside that cell. Z is the vertical axis.
type Coord struct {
	Cell [3]int64
	Frac mgl32.Vec3
}

// NewCoord splits absolute float coordinates into cell and fraction.
func NewCoord(x, y, z float64) Coord {
	var c Coord
	for axis, v := range [3]float64{x, y, z} {
		whole := math.Floor(v)
		c.Cell[axis] = int64(whole)
		c.Frac[axis] = float32(v - whole)
	}
	return c.Normalize()
}

// CellCoord returns the position of the min corner of an integer cell.
func CellCoord(x, y, z int64) Coord {
	return Coord{Cell: [3]int64{x, y, z}}
}

// Normalize folds any fractional overflow back into the cell so that every
// fractional component lies in [0,1).
func (c Coord) Normalize() Coord {
	for axis := 0; axis < 3; axis++ {
		f := c.Frac[axis]
		if f >= 0 && f < 1 {
			continue
		}
		whole := float32(math.Floor(float64(f)))
		c.Cell[axis] += int64(whole)
		f -= whole
		if f >= 1 {
			// float32 rounding can land exactly on 1 for tiny negative inputs.
			c.Cell[axis]++
			f = 0
		}
		c.Frac[axis] = f
	}
	return c
}

// Offset moves the coordinate by a small float displacement.
func (c Coord) Offset(d mgl32.Vec3) Coord {
	c.Frac = c.Frac.Add(d)
	return c.Normalize()
}

// Add returns c+o with the integer parts summed exactly.
func (c Coord) Add(o Coord) Coord {
	for axis := 0; axis < 3; axis++ {
		c.Cell[axis] += o.Cell[axis]
	}
	c.Frac = c.Frac.Add(o.Frac)
	return c.Normalize()
}

// Sub returns c-o with the integer parts subtracted exactly.
func (c Coord) Sub(o Coord) Coord {
	for axis := 0; axis < 3; axis++ {
		c.Cell[axis] -= o.Cell[axis]
	}
	c.Frac = c.Frac.Sub(o.Frac)
	return c.Normalize()
}

// Delta returns c-o as a float vector. The integer difference is taken before
// conversion so nearby positions far from the origin keep full precision.
func (c Coord) Delta(o Coord) mgl64.Vec3 {
	var d mgl64.Vec3
	for axis := 0; axis < 3; axis++ {
		d[axis] = float64(c.Cell[axis]-o.Cell[axis]) + float64(c.Frac[axis]) - float64(o.Frac[axis])
	}
	return d
}

// Distance is the euclidean distance between two coordinates.
func (c Coord) Distance(o Coord) float64 {
	return c.Delta(o).Len()
}

// Axis returns the absolute position along one axis as a float64. Only use it
// where precision loss at extreme distances does not matter.
func (c Coord) Axis(axis int) float64 {
	return float64(c.Cell[axis]) + float64(c.Frac[axis])
}

// Vec returns the approximate absolute position.
func (c Coord) Vec() mgl64.Vec3 {
	return mgl64.Vec3{c.Axis(0), c.Axis(1), c.Axis(2)}
}

// Lerp interpolates between a and b. Whole steps are carried in the cell so
// paths spanning huge distances stay exact at their endpoints.
func Lerp(a, b Coord, t float64) Coord {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	d := b.Delta(a)
	out := a
	for axis := 0; axis < 3; axis++ {
		step := d[axis] * t
		whole := math.Floor(step)
		out.Cell[axis] += int64(whole)
		out.Frac[axis] += float32(step - whole)
	}
	return out.Normalize()
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d%+.3f, %d%+.3f, %d%+.3f)",
		c.Cell[0], c.Frac[0], c.Cell[1], c.Frac[1], c.Cell[2], c.Frac[2])
}

func floorDiv(value, size int64) int64 {
	if size <= 0 {
		return 0
	}
	if value >= 0 {
		return value / size
	}
	return -((-value - 1) / size) - 1
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(value, size int64) int64 {
	return floorDiv(value, size)
}

// FloorMod is the non-negative remainder matching FloorDiv.
func FloorMod(value, size int64) int64 {
	if size <= 0 {
		return 0
	}
	return value - floorDiv(value, size)*size
}
