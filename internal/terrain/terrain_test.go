package terrain

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
	"terrainstream/internal/world"
)

func TestLatticeSharedPointsMatchAcrossChunks(t *testing.T) {
	a := Lattice{Origin: [3]int64{0, 0, 0}, Size: [3]int64{16, 16, 16}, Samples: [3]int{17, 17, 9}, Pad: 1}
	b := Lattice{Origin: [3]int64{16, 0, 0}, Size: [3]int64{16, 16, 16}, Samples: [3]int{17, 17, 9}, Pad: 1}
	coarse := Lattice{Origin: [3]int64{0, 0, 0}, Size: [3]int64{32, 32, 16}, Samples: [3]int{17, 17, 9}, Pad: 1}

	fromA := a.Coord(1+16, 1+4, 1+2)
	fromB := b.Coord(1+0, 1+4, 1+2)
	fromCoarse := coarse.Coord(1+8, 1+2, 1+2)
	if fromA != fromB || fromA != fromCoarse {
		t.Fatalf("shared sample differs: %v %v %v", fromA, fromB, fromCoarse)
	}
	if fromA != world.CellCoord(16, 4, 4) {
		t.Fatalf("unexpected world position %v", fromA)
	}
}

func TestLatticeAxisCoordIsExactRational(t *testing.T) {
	lat := Lattice{Origin: [3]int64{100, 0, 0}, Size: [3]int64{10, 1, 1}, Samples: [3]int{4, 2, 2}}
	cell, frac := lat.AxisCoord(0, 1)
	if cell != 103 || math.Abs(float64(frac)-1.0/3) > 1e-7 {
		t.Fatalf("sample 1: got %d+%f", cell, frac)
	}
	cell, frac = lat.AxisCoord(0, -1)
	if cell != 96 || math.Abs(float64(frac)-2.0/3) > 1e-7 {
		t.Fatalf("apron sample: got %d+%f", cell, frac)
	}
	if got := lat.Local(0, 3); got != 10 {
		t.Fatalf("last sample should sit on the far face, got %f", got)
	}
}

func TestLatticeIndexRoundTrip(t *testing.T) {
	lat := Lattice{Size: [3]int64{8, 8, 8}, Samples: [3]int{5, 4, 3}, Pad: 1}
	seen := make(map[int]bool)
	dims := lat.Dims()
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				i := lat.Index(x, y, z)
				if seen[i] {
					t.Fatalf("index %d used twice", i)
				}
				seen[i] = true
				if px, py, pz := lat.Point(i); px != x || py != y || pz != z {
					t.Fatalf("point(%d) = %d,%d,%d want %d,%d,%d", i, px, py, pz, x, y, z)
				}
			}
		}
	}
	if len(seen) != lat.Len() || lat.Len() != 7*6*5 {
		t.Fatalf("unexpected sample count %d", len(seen))
	}
}

func TestFractalDeterministicAtFarLocations(t *testing.T) {
	a := NewFractal(42, 5, 2, 0.5, 64)
	b := NewFractal(42, 5, 2, 0.5, 64)
	other := NewFractal(43, 5, 2, 0.5, 64)

	rng := rand.New(rand.NewSource(7))
	differs := false
	for i := 0; i < 64; i++ {
		p := world.Coord{
			Cell: [3]int64{rng.Int63n(1<<40) - 1<<39, rng.Int63n(1<<40) - 1<<39, rng.Int63n(4096)},
			Frac: mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()},
		}
		va, vb := a.Eval(p), b.Eval(p)
		if va != vb {
			t.Fatalf("same seed differs at %v: %f vs %f", p, va, vb)
		}
		if math.Abs(va) > 1.5 {
			t.Fatalf("value %f out of range at %v", va, p)
		}
		if other.Eval(p) != va {
			differs = true
		}
	}
	if !differs {
		t.Fatalf("different seeds produced identical noise")
	}
}

func TestFractalContinuousAcrossCellBoundary(t *testing.T) {
	f := NewFractal(9, 5, 2, 0.5, 64)
	base := int64(1) << 40
	for i := int64(0); i < 32; i++ {
		cell := base + i*37
		before := world.Coord{Cell: [3]int64{cell, -cell, 11}, Frac: mgl32.Vec3{0.9999, 0.5, 0.5}}
		after := world.Coord{Cell: [3]int64{cell + 1, -cell, 11}, Frac: mgl32.Vec3{0, 0.5, 0.5}}
		if d := math.Abs(f.Eval(before) - f.Eval(after)); d > 1e-2 {
			t.Fatalf("discontinuity %f at cell %d", d, cell)
		}
	}
}

func TestFractalResolvesFractionsFarFromOrigin(t *testing.T) {
	f := NewFractal(5, 3, 2, 0.5, 4)
	far := int64(1) << 45
	values := make(map[float64]struct{})
	for i := 0; i < 8; i++ {
		p := world.Coord{Cell: [3]int64{far, far, 3}, Frac: mgl32.Vec3{float32(i) / 8, 0.3, 0.6}}
		values[f.Eval(p)] = struct{}{}
	}
	if len(values) < 6 {
		t.Fatalf("expected sub-unit variation far from origin, got %d distinct values", len(values))
	}
}

func TestRationalLacunarity(t *testing.T) {
	tests := []struct {
		in   float64
		p, q int64
	}{
		{in: 2, p: 2, q: 1},
		{in: 1.5, p: 3, q: 2},
		{in: 1.9, p: 243, q: 128},
	}
	for _, tt := range tests {
		if p, q := rational(tt.in); p != tt.p || q != tt.q {
			t.Fatalf("rational(%f) = %d/%d want %d/%d", tt.in, p, q, tt.p, tt.q)
		}
	}
}

func TestNoiseFieldShape(t *testing.T) {
	cfg := config.Default()
	field := NewNoiseField(cfg.Noise, cfg.Shape)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 32; i++ {
		x := rng.Int63n(1<<36) - 1<<35
		y := rng.Int63n(1<<36) - 1<<35
		deep := world.CellCoord(x, y, cfg.Shape.SeaLevel-2*int64(cfg.Shape.HeightScale))
		if got := field.Evaluate(deep); got != 1 {
			t.Fatalf("below island undersides should be air, got %f", got)
		}
		high := world.CellCoord(x, y, cfg.Shape.SeaLevel+3*int64(cfg.Shape.HeightScale))
		if got := field.Evaluate(high); got != 1 {
			t.Fatalf("above the highest peak should be air, got %f", got)
		}
		mid := world.Coord{Cell: [3]int64{x, y, cfg.Shape.SeaLevel}, Frac: mgl32.Vec3{0.25, 0.75, 0.5}}
		v := field.Evaluate(mid)
		if v < 0 || v > 1 {
			t.Fatalf("density %f out of range", v)
		}
		if again := field.Evaluate(mid); again != v {
			t.Fatalf("field not deterministic: %f vs %f", v, again)
		}
	}
}

func TestIslandMaskRepeatsWithPeriod(t *testing.T) {
	cfg := config.Default()
	field := NewNoiseField(cfg.Noise, cfg.Shape)
	period := cfg.Shape.IslandPeriod
	for i := int64(0); i < 16; i++ {
		p := world.Coord{Cell: [3]int64{i * 997, -i * 331, 0}, Frac: mgl32.Vec3{0.5, 0.25, 0}}
		q := p
		q.Cell[0] += 5 * period
		q.Cell[1] -= 3 * period
		if field.island.at(p) != field.island.at(q) {
			t.Fatalf("island mask does not tile at %v", p)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := config.Default()
	cfg.Noise.FeatureSize = 8
	cfg.Shape.IslandCoverage = 1
	field := NewNoiseField(cfg.Noise, cfg.Shape)
	lat := Lattice{
		Origin:  [3]int64{1 << 33, -(1 << 33), -16},
		Size:    [3]int64{32, 32, 64},
		Samples: [3]int{9, 9, 17},
		Pad:     1,
	}

	first, err := Generate(context.Background(), field, lat)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := Generate(context.Background(), field, lat)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(first.Values) != lat.Len() {
		t.Fatalf("unexpected grid size %d", len(first.Values))
	}
	for i := range first.Values {
		if math.Float32bits(first.Values[i]) != math.Float32bits(second.Values[i]) {
			x, y, z := lat.Point(i)
			t.Fatalf("sample %d,%d,%d differs between runs", x, y, z)
		}
	}
}

func TestGenerateUsesLatticeLayout(t *testing.T) {
	lat := Lattice{Origin: [3]int64{-4, 10, 0}, Size: [3]int64{4, 4, 4}, Samples: [3]int{5, 3, 2}, Pad: 1}
	field := FieldFunc(func(p world.Coord) float32 {
		return float32(p.Axis(0) + 100*p.Axis(1) + 10000*p.Axis(2))
	})
	grid, err := Generate(context.Background(), field, lat)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// x=2 stored is sample 1, y=1 stored is sample 0, z=2 stored is sample 1.
	want := float32(-3 + 100*10 + 10000*4)
	if got := grid.At(2, 1, 2); got != want {
		t.Fatalf("got %f want %f", got, want)
	}
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lat := Lattice{Size: [3]int64{8, 8, 8}, Samples: [3]int{9, 9, 9}}
	_, err := Generate(ctx, FieldFunc(func(world.Coord) float32 { return 0 }), lat)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestGenerateRejectsInvalidLattice(t *testing.T) {
	_, err := Generate(context.Background(), FieldFunc(func(world.Coord) float32 { return 0 }), Lattice{Samples: [3]int{1, 2, 2}, Size: [3]int64{1, 1, 1}})
	if err == nil {
		t.Fatalf("expected invalid lattice to be rejected")
	}
}
