package world

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestSavePreviewColoursLeaves(t *testing.T) {
	leaves := []Leaf{
		Uniform(ChunkKey{Level: 0, X: -1, Y: 0}),
		Uniform(ChunkKey{Level: 1, X: 0, Y: 0}),
		Uniform(ChunkKey{Level: 1, X: 1, Y: 0}),
		Uniform(ChunkKey{Level: 1, X: 0, Y: 1}),
		Uniform(ChunkKey{Level: 1, X: 1, Y: 1}),
	}
	states := map[ChunkKey]RecordState{
		{Level: 0, X: -1, Y: 0}: StateReady,
		{Level: 1, X: 0, Y: 0}:  StateReady,
		{Level: 1, X: 1, Y: 0}:  StatePending,
		{Level: 1, X: 0, Y: 1}:  StateReady,
	}
	path := filepath.Join(t.TempDir(), "nested", "lod.png")
	if err := SavePreview(path, leaves, states, CellCoord(16, 16, 40), 64); err != nil {
		t.Fatalf("save preview: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1024 || b.Dy() != 512 {
		t.Fatalf("unexpected size %v", b)
	}

	cases := []struct {
		name string
		x, y int
		want color.Color
	}{
		{"coarse ready", 256, 256, levelColor(0)},
		{"fine ready", 640, 128, levelColor(1)},
		{"fine pending", 896, 384, dim(levelColor(1))},
		{"viewer", 640, 384, previewViewer},
	}
	for _, tc := range cases {
		r, g, b, a := img.At(tc.x, tc.y).RGBA()
		wr, wg, wb, wa := tc.want.RGBA()
		if r != wr || g != wg || b != wb || a != wa {
			t.Fatalf("%s: pixel (%d,%d) = %v %v %v %v", tc.name, tc.x, tc.y, r, g, b, a)
		}
	}
}

func TestSavePreviewRejectsBadRoot(t *testing.T) {
	if err := SavePreview(filepath.Join(t.TempDir(), "x.png"), nil, nil, Coord{}, 0); err == nil {
		t.Fatalf("expected error for zero root size")
	}
}
