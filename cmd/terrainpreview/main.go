package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"terrainstream/internal/config"
	"terrainstream/internal/server"
	"terrainstream/internal/world"
)

func main() {
	cfgPath := flag.String("config", "", "path to terrain stream configuration file")
	x := flag.Float64("x", 0, "viewer X")
	y := flag.Float64("y", 0, "viewer Y")
	z := flag.Float64("z", 64, "viewer Z")
	out := flag.String("out", "lod.png", "output PNG")
	timeout := flag.Duration("timeout", time.Minute, "give up waiting for chunks after this long")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Stream.ListenAddr = ""

	viewer := world.NewCoord(*x, *y, *z)
	srv, err := server.New(cfg, server.Fixed(viewer))
	if err != nil {
		log.Fatalf("initialise terrain stream: %v", err)
	}
	defer srv.Close()

	start := time.Now()
	deadline := start.Add(*timeout)
	var frames int
	for {
		stats := srv.Frame()
		frames++
		if stats.Pending == 0 && stats.Stale == 0 && stats.Ready == stats.Leaves {
			break
		}
		if time.Now().After(deadline) {
			fmt.Fprintf(os.Stderr, "timed out with %d of %d chunks ready\n", stats.Ready, stats.Leaves)
			break
		}
		time.Sleep(cfg.Stream.FrameRate.Duration())
	}

	snap := srv.Snapshot()
	perLevel := make([]int, cfg.LOD.MaxLevel+1)
	triangles := 0
	for _, m := range snap.Meshes {
		if m.Key.Level < len(perLevel) {
			perLevel[m.Key.Level]++
		}
		triangles += m.Triangles()
	}

	if err := srv.SavePreview(*out); err != nil {
		log.Fatalf("save preview: %v", err)
	}

	fmt.Println("== Terrain LOD Preview ==")
	fmt.Printf("Viewer: %v\n", viewer)
	fmt.Printf("Frames: %d in %s\n", frames, time.Since(start).Round(time.Millisecond))
	fmt.Printf("Chunks: %d, triangles: %d\n", len(snap.Meshes), triangles)
	for level, n := range perLevel {
		if n > 0 {
			fmt.Printf("  level %d: %d chunks (%d units)\n", level, n, cfg.LOD.ChunkSize(level))
		}
	}
	fmt.Printf("Preview written to %s\n", *out)
}
