package terrain

import (
	"terrainstream/internal/config"
	"terrainstream/internal/world"
)

// Field is a scalar density function over world space. Values below the
// isolevel are solid. Implementations must be pure and safe for concurrent
// use.
type Field interface {
	Evaluate(p world.Coord) float32
}

// FieldFunc adapts a plain function to Field.
type FieldFunc func(p world.Coord) float32

func (f FieldFunc) Evaluate(p world.Coord) float32 { return f(p) }

// NoiseField is the procedural island terrain.
type NoiseField struct {
	shape         config.ShapeConfig
	island        islandMask
	relief        *Fractal
	ridges        *Fractal
	caves         *Fractal
	caveStrength  float64
	caveThreshold float64
}

func NewNoiseField(noise config.NoiseConfig, shape config.ShapeConfig) *NoiseField {
	f := &NoiseField{
		shape:         shape,
		island:        newIslandMask(noise.Seed, shape),
		relief:        NewFractal(noise.Seed+1, noise.Octaves, noise.Lacunarity, noise.Persistence, noise.FeatureSize),
		ridges:        NewFractal(noise.Seed+2, noise.Octaves, noise.Lacunarity, noise.Persistence, shape.MountainFeatureSize),
		caveStrength:  noise.CaveStrength,
		caveThreshold: noise.CaveThreshold,
	}
	if noise.CaveOctaves > 0 && noise.CaveStrength > 0 && noise.CaveThreshold < 1 {
		f.caves = NewFractal(noise.Seed+3, noise.CaveOctaves, noise.Lacunarity, noise.Persistence, noise.CaveFeatureSize)
	}
	return f
}

// Evaluate returns 1 in open air and 0 deep inside rock.
func (f *NoiseField) Evaluate(p world.Coord) float32 {
	p = p.Normalize()
	return float32(1 - f.carve(p, f.fill(p)))
}
