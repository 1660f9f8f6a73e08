package terrain

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DensityGrid holds field samples for a lattice, apron included, in
// Lattice.Index order.
type DensityGrid struct {
	Lattice Lattice
	Values  []float32
}

func NewDensityGrid(lat Lattice) *DensityGrid {
	return &DensityGrid{Lattice: lat, Values: make([]float32, lat.Len())}
}

// At reads a stored sample by stored indices.
func (g *DensityGrid) At(x, y, z int) float32 {
	return g.Values[g.Lattice.Index(x, y, z)]
}

func (g *DensityGrid) Set(x, y, z int, v float32) {
	g.Values[g.Lattice.Index(x, y, z)] = v
}

// Generate samples field at every lattice point. Slabs of constant Z are
// evaluated in parallel; the output depends only on the field and lattice.
func Generate(ctx context.Context, field Field, lat Lattice) (*DensityGrid, error) {
	if err := lat.Validate(); err != nil {
		return nil, err
	}
	grid := NewDensityGrid(lat)
	dims := lat.Dims()

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workerCount(dims[2]))
	for z := 0; z < dims[2]; z++ {
		z := z
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for y := 0; y < dims[1]; y++ {
				for x := 0; x < dims[0]; x++ {
					grid.Values[lat.Index(x, y, z)] = field.Evaluate(lat.Coord(x, y, z))
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("generate density: %w", err)
	}
	return grid, nil
}

func workerCount(slabs int) int {
	workers := runtime.GOMAXPROCS(0)
	if workers > slabs {
		workers = slabs
	}
	if workers <= 0 {
		workers = 1
	}
	return workers
}
