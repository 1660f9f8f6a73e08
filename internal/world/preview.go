package world

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
)

const (
	previewMaxPixels = 1024
	previewMarker    = 3
)

var (
	previewBackground = color.NRGBA{R: 10, G: 10, B: 18, A: 255}
	previewBorder     = color.NRGBA{R: 20, G: 20, B: 28, A: 255}
	previewViewer     = color.NRGBA{R: 255, G: 60, B: 60, A: 255}
	previewLevels     = []color.NRGBA{
		{R: 40, G: 70, B: 160, A: 255},
		{R: 40, G: 130, B: 170, A: 255},
		{R: 50, G: 160, B: 120, A: 255},
		{R: 110, G: 180, B: 70, A: 255},
		{R: 190, G: 180, B: 60, A: 255},
		{R: 220, G: 130, B: 50, A: 255},
		{R: 230, G: 80, B: 80, A: 255},
	}
)

// SavePreview renders a top-down PNG of the leaf set: one rectangle per
// leaf, coloured by level and dimmed while the leaf has no current mesh. The
// viewer is marked in red.
func SavePreview(path string, leaves []Leaf, states map[ChunkKey]RecordState, viewer Coord, rootSize int64) error {
	if rootSize <= 0 {
		return fmt.Errorf("invalid root size %d", rootSize)
	}
	img := renderPreview(leaves, states, viewer, rootSize)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preview dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

func renderPreview(leaves []Leaf, states map[ChunkKey]RecordState, viewer Coord, rootSize int64) *image.NRGBA {
	if len(leaves) == 0 {
		img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
		draw.Draw(img, img.Bounds(), &image.Uniform{previewBackground}, image.Point{}, draw.Src)
		return img
	}

	minX, minY := int64(math.MaxInt64), int64(math.MaxInt64)
	maxX, maxY := int64(math.MinInt64), int64(math.MinInt64)
	for _, leaf := range leaves {
		b := KeyBounds(leaf.Key, rootSize, 0, 0)
		minX, minY = min(minX, b.Min[0]), min(minY, b.Min[1])
		maxX, maxY = max(maxX, b.Max[0]), max(maxY, b.Max[1])
	}
	extent := max(maxX-minX, maxY-minY)
	scale := float64(previewMaxPixels) / float64(extent)
	width := int(math.Ceil(float64(maxX-minX) * scale))
	height := int(math.Ceil(float64(maxY-minY) * scale))

	img := image.NewNRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	draw.Draw(img, img.Bounds(), &image.Uniform{previewBackground}, image.Point{}, draw.Src)

	// Image rows grow downwards, world y grows upwards.
	toPixel := func(x, y int64) (int, int) {
		return int(float64(x-minX) * scale), height - int(float64(y-minY)*scale)
	}
	for _, leaf := range leaves {
		b := KeyBounds(leaf.Key, rootSize, 0, 0)
		x0, y1 := toPixel(b.Min[0], b.Min[1])
		x1, y0 := toPixel(b.Max[0], b.Max[1])
		rect := image.Rect(x0, y0, x1, y1)
		fill := levelColor(leaf.Key.Level)
		if state, ok := states[leaf.Key]; !ok || state != StateReady {
			fill = dim(fill)
		}
		draw.Draw(img, rect, &image.Uniform{fill}, image.Point{}, draw.Src)
		outline(img, rect, previewBorder)
	}

	vx, vy := toPixel(viewer.Cell[0], viewer.Cell[1])
	marker := image.Rect(vx-previewMarker, vy-previewMarker, vx+previewMarker+1, vy+previewMarker+1)
	draw.Draw(img, marker.Intersect(img.Bounds()), &image.Uniform{previewViewer}, image.Point{}, draw.Src)
	return img
}

func levelColor(level int) color.NRGBA {
	if level < 0 {
		level = 0
	}
	if level >= len(previewLevels) {
		level = len(previewLevels) - 1
	}
	return previewLevels[level]
}

func dim(c color.NRGBA) color.NRGBA {
	return color.NRGBA{R: c.R / 3, G: c.G / 3, B: c.B / 3, A: c.A}
}

func outline(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetNRGBA(x, r.Min.Y, c)
		img.SetNRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetNRGBA(r.Min.X, y, c)
		img.SetNRGBA(r.Max.X-1, y, c)
	}
}
