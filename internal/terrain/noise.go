package terrain

import (
	"math"

	"terrainstream/internal/world"
)

// Fractal sums octaves of hashed gradient noise. Positions are carried as an
// integer cell plus a fraction through every octave; the feature size and the
// lacunarity are applied as exact rational scalings of the integer part, so
// the result does not degrade with distance from the origin.
type Fractal struct {
	seed        uint64
	octaves     int
	persistence float64
	featureSize int64
	lacP        int64
	lacQ        int64
}

func NewFractal(seed int64, octaves int, lacunarity, persistence float64, featureSize int64) *Fractal {
	if octaves <= 0 {
		octaves = 1
	}
	if featureSize <= 0 {
		featureSize = 1
	}
	p, q := rational(lacunarity)
	return &Fractal{
		seed:        mix64(uint64(seed)),
		octaves:     octaves,
		persistence: persistence,
		featureSize: featureSize,
		lacP:        p,
		lacQ:        q,
	}
}

// Eval samples the 3D fractal, roughly in [-1,1].
func (f *Fractal) Eval(p world.Coord) float64 {
	return f.sample(p, 3)
}

// Eval2 samples the fractal on the horizontal plane, ignoring Z.
func (f *Fractal) Eval2(p world.Coord) float64 {
	return f.sample(p, 2)
}

func (f *Fractal) sample(p world.Coord, dims int) float64 {
	var cell [3]int64
	var frac [3]float64
	for axis := 0; axis < dims; axis++ {
		cell[axis], frac[axis] = scale(p.Cell[axis], float64(p.Frac[axis]), 1, f.featureSize)
	}

	sum := 0.0
	norm := 0.0
	amplitude := 1.0
	for octave := 0; octave < f.octaves; octave++ {
		sum += amplitude * gradientNoise(f.seed+uint64(octave)*0x9e3779b97f4a7c15, cell, frac)
		norm += amplitude
		amplitude *= f.persistence
		for axis := 0; axis < dims; axis++ {
			cell[axis], frac[axis] = scale(cell[axis], frac[axis], f.lacP, f.lacQ)
		}
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// scale returns (cell+frac)*p/q split back into cell and fraction.
func scale(cell int64, frac float64, p, q int64) (int64, float64) {
	n := cell * p
	whole := world.FloorDiv(n, q)
	s := (float64(world.FloorMod(n, q)) + frac*float64(p)) / float64(q)
	fl := math.Floor(s)
	return whole + int64(fl), s - fl
}

// rational approximates v as p/q with q a power of two no larger than 256.
func rational(v float64) (int64, int64) {
	q := int64(256)
	p := int64(math.Round(v * float64(q)))
	if p <= 0 {
		p = 1
	}
	for q > 1 && p%2 == 0 {
		p /= 2
		q /= 2
	}
	return p, q
}

var gradients = [12][3]float64{
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, 1}, {1, 0, -1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
}

func gradientNoise(seed uint64, cell [3]int64, f [3]float64) float64 {
	var corners [8]float64
	for i := 0; i < 8; i++ {
		dx, dy, dz := i&1, i>>1&1, i>>2&1
		h := hash3(cell[0]+int64(dx), cell[1]+int64(dy), cell[2]+int64(dz), seed)
		g := gradients[h%12]
		corners[i] = g[0]*(f[0]-float64(dx)) + g[1]*(f[1]-float64(dy)) + g[2]*(f[2]-float64(dz))
	}
	u := smooth(f[0])
	v := smooth(f[1])
	w := smooth(f[2])
	x00 := lerp(corners[0], corners[1], u)
	x10 := lerp(corners[2], corners[3], u)
	x01 := lerp(corners[4], corners[5], u)
	x11 := lerp(corners[6], corners[7], u)
	return lerp(lerp(x00, x10, v), lerp(x01, x11, v), w)
}

// smooth is the quintic fade curve; its first and second derivatives vanish
// at the lattice.
func smooth(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func smoothstep(edge0, edge1, x float64) float64 {
	if edge1 == edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := (x - edge0) / (edge1 - edge0)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return t * t * (3 - 2*t)
}

func hash3(x, y, z int64, seed uint64) uint64 {
	h := seed
	h = mix64(h ^ uint64(x)*0x9e3779b97f4a7c15)
	h = mix64(h ^ uint64(y)*0xc2b2ae3d27d4eb4f)
	h = mix64(h ^ uint64(z)*0x165667b19e3779f9)
	return h
}

func mix64(h uint64) uint64 {
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return h
}
