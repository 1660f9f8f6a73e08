package terrain

import (
	"math"

	"github.com/ojrac/opensimplex-go"

	"terrainstream/internal/config"
	"terrainstream/internal/world"
)

// islandMask decides where land exists. The horizontal plane is wrapped onto
// a torus of circumference period, so the mask tiles exactly every period
// world units and the 4D simplex input stays small at any distance.
type islandMask struct {
	noise  opensimplex.Noise
	period int64
	radius float64
	low    float64
	high   float64
}

const coastBlend = 0.08

func newIslandMask(seed int64, shape config.ShapeConfig) islandMask {
	threshold := 1 - shape.IslandCoverage
	return islandMask{
		noise:  opensimplex.NewNormalized(seed),
		period: shape.IslandPeriod,
		radius: float64(shape.IslandPeriod) / (2 * math.Pi * shape.IslandScale),
		low:    threshold - coastBlend,
		high:   threshold + coastBlend,
	}
}

func (m islandMask) at(p world.Coord) float64 {
	ax := m.angle(p.Cell[0], p.Frac[0])
	ay := m.angle(p.Cell[1], p.Frac[1])
	v := m.noise.Eval4(
		m.radius*math.Cos(ax), m.radius*math.Sin(ax),
		m.radius*math.Cos(ay), m.radius*math.Sin(ay),
	)
	return smoothstep(m.low, m.high, v)
}

func (m islandMask) angle(cell int64, frac float32) float64 {
	return 2 * math.Pi * (float64(world.FloorMod(cell, m.period)) + float64(frac)) / float64(m.period)
}

// fill returns the solid share of a sample in [0,1] before caves. Islands
// taper below sea level and rise into ridged peaks above it.
func (f *NoiseField) fill(p world.Coord) float64 {
	island := f.island.at(p)
	if island <= 0 {
		return 0
	}
	rel := (float64(p.Cell[2]-f.shape.SeaLevel) + float64(p.Frac[2])) / f.shape.HeightScale
	if rel < 0 {
		base := 1 + rel
		if base <= 0 {
			return 0
		}
		return island * math.Pow(base, f.shape.FalloffPower)
	}

	relief := f.relief.Eval2(p)
	ridge := 1 - math.Abs(f.ridges.Eval2(p))
	peak := f.shape.MinPeak*(1+0.5*relief) + f.shape.MountainScale*ridge*ridge
	return island * (1 - smoothstep(0, 1, rel/peak))
}

func (f *NoiseField) carve(p world.Coord, fill float64) float64 {
	if f.caves == nil || fill <= 0 {
		return fill
	}
	c := f.caves.Eval(p)
	if c <= f.caveThreshold {
		return fill
	}
	fill -= f.caveStrength * (c - f.caveThreshold) / (1 - f.caveThreshold)
	if fill < 0 {
		return 0
	}
	return fill
}
