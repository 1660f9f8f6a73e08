package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"terrainstream/internal/compute"
	"terrainstream/internal/config"
	"terrainstream/internal/mesh"
	"terrainstream/internal/terrain"
	"terrainstream/internal/world"
)

// ErrOverBudget is returned for chunks whose lattice exceeds the per chunk
// sample budget.
var ErrOverBudget = errors.New("pipeline: chunk exceeds sample budget")

// Builder runs one generation job: density on the compute backend, seam
// stitching against coarser neighbours, then extraction.
type Builder struct {
	lod      config.LODConfig
	field    terrain.Field
	backend  compute.Backend
	isolevel atomic.Uint32
}

func NewBuilder(cfg *config.Config, field terrain.Field, backend compute.Backend) *Builder {
	b := &Builder{lod: cfg.LOD, field: field, backend: backend}
	b.SetIsolevel(float32(cfg.Mesh.Isolevel))
	return b
}

// SetIsolevel changes the surface threshold for jobs started afterwards.
func (b *Builder) SetIsolevel(v float32) {
	b.isolevel.Store(math.Float32bits(v))
}

func (b *Builder) Isolevel() float32 {
	return math.Float32frombits(b.isolevel.Load())
}

// Lattice returns the sample lattice of key, apron included.
func (b *Builder) Lattice(key world.ChunkKey) (terrain.Lattice, error) {
	bounds := world.KeyBounds(key, b.lod.RootSize, b.lod.MinZ, b.lod.MaxZ)
	lat := terrain.Lattice{
		Origin:  bounds.Min,
		Size:    bounds.Size(),
		Samples: b.lod.Tier(key.Level).Samples,
		Pad:     config.Apron,
	}
	if err := lat.Validate(); err != nil {
		return lat, fmt.Errorf("pipeline: %v: %w", key, err)
	}
	if lat.Len() > b.lod.MaxSamplesPerChunk {
		return lat, fmt.Errorf("%w: %v needs %d samples", ErrOverBudget, key, lat.Len())
	}
	return lat, nil
}

// Seams lists the faces of leaf that border a coarser leaf. Neighbour levels
// outside [0, own level) are treated as matching and leave the face alone.
func (b *Builder) Seams(leaf world.Leaf) ([]mesh.Seam, error) {
	var seams []mesh.Seam
	for _, face := range world.Faces {
		level := leaf.Neighbors[face]
		if level < 0 || level >= leaf.Key.Level {
			continue
		}
		coarse, err := b.Lattice(leaf.Key.Neighbor(face).Ancestor(level))
		if err != nil {
			return nil, err
		}
		seams = append(seams, mesh.Seam{Face: face, Coarse: coarse})
	}
	return seams, nil
}

// Build runs on a chunk worker and blocks in Wait until the density job is
// done; the frame loop only ever sees the finished mesh. Backends driven by a
// poll loop can use Poll instead.
func (b *Builder) Build(ctx context.Context, leaf world.Leaf) (*world.ChunkMesh, error) {
	lat, err := b.Lattice(leaf.Key)
	if err != nil {
		return nil, err
	}
	seams, err := b.Seams(leaf)
	if err != nil {
		return nil, err
	}
	iso := b.Isolevel()

	h, err := b.backend.Submit(ctx, compute.NewParams(lat, leaf.Key.Level))
	if err != nil {
		return nil, fmt.Errorf("submit %v: %w", leaf.Key, err)
	}
	defer b.backend.Release(h)

	grid, err := b.backend.Wait(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("density %v: %w", leaf.Key, err)
	}
	mesh.Stitch(grid, b.field, seams)

	out := mesh.Extract(grid, iso)
	out.Key = leaf.Key
	out.Neighbors = leaf.Neighbors
	return out, nil
}
