package terrain

import (
	"fmt"

	"terrainstream/internal/world"
)

// Lattice describes the sample points of one chunk. Sample k along an axis
// sits at Origin + k*Size/(Samples-1) world units, kept as an exact rational
// so that chunks sharing a world position evaluate exactly the same input.
// Pad extra samples are added outside both ends of every axis.
type Lattice struct {
	Origin  [3]int64
	Size    [3]int64
	Samples [3]int
	Pad     int
}

func (l Lattice) Validate() error {
	for axis := 0; axis < 3; axis++ {
		if l.Samples[axis] < 2 {
			return fmt.Errorf("lattice axis %d needs at least 2 samples, got %d", axis, l.Samples[axis])
		}
		if l.Size[axis] <= 0 {
			return fmt.Errorf("lattice axis %d has non positive size %d", axis, l.Size[axis])
		}
	}
	if l.Pad < 0 {
		return fmt.Errorf("lattice pad cannot be negative")
	}
	return nil
}

// Dims returns the number of stored samples per axis, apron included.
func (l Lattice) Dims() [3]int {
	return [3]int{l.Samples[0] + 2*l.Pad, l.Samples[1] + 2*l.Pad, l.Samples[2] + 2*l.Pad}
}

// Len is the number of stored samples.
func (l Lattice) Len() int {
	d := l.Dims()
	return d[0] * d[1] * d[2]
}

// Index maps stored sample indices to the flat buffer offset x + w*(y + h*z).
func (l Lattice) Index(x, y, z int) int {
	d := l.Dims()
	return x + d[0]*(y+d[1]*z)
}

// Point is the inverse of Index.
func (l Lattice) Point(i int) (x, y, z int) {
	d := l.Dims()
	x = i % d[0]
	i /= d[0]
	y = i % d[1]
	z = i / d[1]
	return x, y, z
}

// AxisCoord returns the world cell and fraction of sample k along axis, where
// k counts from the first non-apron sample and may be negative.
func (l Lattice) AxisCoord(axis, k int) (int64, float32) {
	num := int64(k) * l.Size[axis]
	den := int64(l.Samples[axis] - 1)
	cell := l.Origin[axis] + world.FloorDiv(num, den)
	frac := float32(float64(world.FloorMod(num, den)) / float64(den))
	return cell, frac
}

// Coord returns the world position of a stored sample.
func (l Lattice) Coord(x, y, z int) world.Coord {
	var c world.Coord
	for axis, idx := range [3]int{x, y, z} {
		c.Cell[axis], c.Frac[axis] = l.AxisCoord(axis, idx-l.Pad)
	}
	return c.Normalize()
}

// Local returns the offset of sample k from Origin along axis.
func (l Lattice) Local(axis, k int) float32 {
	return float32(float64(int64(k)*l.Size[axis]) / float64(l.Samples[axis]-1))
}

// Step is the spacing between samples along axis.
func (l Lattice) Step(axis int) float64 {
	return float64(l.Size[axis]) / float64(l.Samples[axis]-1)
}
