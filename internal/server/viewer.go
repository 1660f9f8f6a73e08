package server

import (
	"math"
	"time"

	"terrainstream/internal/config"
	"terrainstream/internal/world"
)

// Viewer supplies the position the spatial tree refines around. It is polled
// once per frame.
type Viewer interface {
	Position() world.Coord
}

// Fixed is a viewer that never moves.
type Fixed world.Coord

func (f Fixed) Position() world.Coord { return world.Coord(f) }

// FlightPath flies a closed loop through its waypoints at constant speed.
type FlightPath struct {
	points []world.Coord
	legs   []float64
	total  float64
	speed  float64

	now   func() time.Time
	start time.Time
}

func NewFlightPath(cfg config.ViewerConfig, now func() time.Time) *FlightPath {
	if now == nil {
		now = time.Now
	}
	fp := &FlightPath{speed: cfg.Speed, now: now}
	for _, w := range cfg.Waypoints {
		fp.points = append(fp.points, world.NewCoord(w.X, w.Y, w.Z))
	}
	if len(fp.points) == 0 {
		fp.points = append(fp.points, world.Coord{})
	}
	for i, p := range fp.points {
		next := fp.points[(i+1)%len(fp.points)]
		d := p.Distance(next)
		fp.legs = append(fp.legs, d)
		fp.total += d
	}
	fp.start = now()
	return fp
}

// Position returns where the viewer is at the current time.
func (fp *FlightPath) Position() world.Coord {
	return fp.At(fp.now().Sub(fp.start).Seconds() * fp.speed)
}

// At returns the point travelled along the loop after covering distance.
func (fp *FlightPath) At(distance float64) world.Coord {
	if fp.total <= 0 || len(fp.points) == 1 {
		return fp.points[0]
	}
	d := math.Mod(distance, fp.total)
	if d < 0 {
		d += fp.total
	}
	for i, leg := range fp.legs {
		if d <= leg && leg > 0 {
			next := fp.points[(i+1)%len(fp.points)]
			return world.Lerp(fp.points[i], next, d/leg)
		}
		d -= leg
	}
	return fp.points[0]
}
