package server

import (
	"math"
	"testing"
	"time"

	"terrainstream/internal/config"
	"terrainstream/internal/world"
)

func square() config.ViewerConfig {
	return config.ViewerConfig{
		Waypoints: []config.Waypoint{{X: 0, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 0}, {X: 10, Y: 10, Z: 0}},
		Speed:     2,
	}
}

func near(a world.Coord, x, y, z float64) bool {
	return a.Distance(world.NewCoord(x, y, z)) < 1e-4
}

func TestFlightPathWalksLegs(t *testing.T) {
	fp := NewFlightPath(square(), nil)
	total := 20 + 10*math.Sqrt2

	cases := []struct {
		name    string
		dist    float64
		x, y, z float64
	}{
		{"start", 0, 0, 0, 0},
		{"first leg", 5, 5, 0, 0},
		{"second leg", 15, 10, 5, 0},
		{"closing leg", 20 + 5*math.Sqrt2, 5, 5, 0},
		{"wraps", total + 5, 5, 0, 0},
		{"negative", -5 * math.Sqrt2, 5, 5, 0},
	}
	for _, tc := range cases {
		if got := fp.At(tc.dist); !near(got, tc.x, tc.y, tc.z) {
			t.Fatalf("%s: got %v", tc.name, got)
		}
	}
}

func TestFlightPathFollowsClock(t *testing.T) {
	now := time.Unix(1000, 0)
	fp := NewFlightPath(square(), func() time.Time { return now })
	if got := fp.Position(); !near(got, 0, 0, 0) {
		t.Fatalf("expected start, got %v", got)
	}
	now = now.Add(3 * time.Second)
	if got := fp.Position(); !near(got, 6, 0, 0) {
		t.Fatalf("expected 6 units along, got %v", got)
	}
}

func TestFlightPathWithoutWaypointsStaysPut(t *testing.T) {
	fp := NewFlightPath(config.ViewerConfig{Speed: 10}, nil)
	if got := fp.At(123); got != (world.Coord{}) {
		t.Fatalf("expected origin, got %v", got)
	}
}
