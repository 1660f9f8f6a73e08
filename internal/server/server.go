package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"terrainstream/internal/compute"
	"terrainstream/internal/config"
	"terrainstream/internal/lod"
	"terrainstream/internal/network"
	"terrainstream/internal/pipeline"
	"terrainstream/internal/terrain"
	"terrainstream/internal/world"
)

const (
	statsInterval   = time.Second
	shutdownTimeout = 5 * time.Second
)

// Server drives the streaming loop: each frame it refines the spatial tree
// around the viewer, reconciles chunk records and publishes the mesh delta.
type Server struct {
	cfg     *config.Config
	logger  *log.Logger
	viewer  Viewer
	builder *pipeline.Builder
	world   *world.Manager
	tree    *lod.Tree
	hub     *network.Hub

	frame  uint64
	leaves []world.Leaf
	last   network.FrameStats
}

func New(cfg *config.Config, viewer Viewer) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return NewWithField(cfg, viewer, terrain.NewNoiseField(cfg.Noise, cfg.Shape)), nil
}

// NewWithField builds a server around an arbitrary density field.
func NewWithField(cfg *config.Config, viewer Viewer, field terrain.Field) *Server {
	logger := log.New(log.Writer(), "terrainstream ", log.LstdFlags|log.Lmicroseconds)
	if viewer == nil {
		viewer = NewFlightPath(cfg.Viewer, nil)
	}
	backend := compute.NewCPUBackend(field)
	builder := pipeline.NewBuilder(cfg, field, backend)
	manager := world.NewManager(builder, world.Options{
		Workers:   cfg.Workers.PoolSize,
		QueueSize: cfg.Workers.QueueSize,
		CacheSize: cfg.Cache.MaxMeshes,
		Logger:    logger,
	})

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		viewer:  viewer,
		builder: builder,
		world:   manager,
		tree:    lod.New(cfg.LOD),
	}
	srv.hub = network.NewHub(srv.hello, func() network.Snapshot {
		return network.NewSnapshot(manager.Snapshot())
	}, logger)
	return srv
}

func (s *Server) hello() network.Hello {
	return network.Hello{
		ServerID: s.cfg.Stream.ServerID,
		RootSize: s.cfg.LOD.RootSize,
		MaxLevel: s.cfg.LOD.MaxLevel,
		MinZ:     s.cfg.LOD.MinZ,
		MaxZ:     s.cfg.LOD.MaxZ,
		Isolevel: float64(s.builder.Isolevel()),
	}
}

// Handler serves the mesh feed, the isolevel control and a health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/stream", s.hub)
	mux.HandleFunc("/isolevel", s.handleIsolevel)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var httpSrv *http.Server
	if addr := s.cfg.Stream.ListenAddr; addr != "" {
		httpSrv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			s.logger.Printf("serving mesh feed on %s", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Printf("mesh feed stopped: %v", err)
				cancel()
			}
		}()
	}
	defer s.shutdown(httpSrv)

	frameTicker := time.NewTicker(s.cfg.Stream.FrameRate.Duration())
	defer frameTicker.Stop()

	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-frameTicker.C:
			s.Frame()
		case <-statsTicker.C:
			s.publishStats()
		}
	}
}

func (s *Server) shutdown(httpSrv *http.Server) {
	s.hub.Close()
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.logger.Printf("mesh feed shutdown: %v", err)
		}
		cancel()
	}
	if path := s.cfg.Stream.PreviewPath; path != "" {
		if err := s.SavePreview(path); err != nil {
			s.logger.Printf("preview: %v", err)
		} else {
			s.logger.Printf("wrote LOD preview to %s", path)
		}
	}
	s.world.Close()
}

// Frame runs one iteration of the streaming loop and returns its statistics.
// It never waits for chunk builds.
func (s *Server) Frame() network.FrameStats {
	start := time.Now()
	s.frame++

	viewer := s.viewer.Position()
	transitions := s.tree.Update(viewer)
	s.leaves = s.tree.Leaves()

	deferred := 0
	for _, change := range s.world.Reconcile(s.leaves) {
		if change.Deferred {
			deferred++
		}
	}

	delta := s.world.Drain()
	if !delta.Empty() {
		if err := s.hub.Broadcast(network.MessageMeshDelta, network.NewMeshDelta(delta)); err != nil {
			s.logger.Printf("broadcast delta %d: %v", delta.Version, err)
		}
	}

	stats := s.world.Stats()
	s.last = network.FrameStats{
		ServerID:    s.cfg.Stream.ServerID,
		Frame:       s.frame,
		Viewer:      viewer.Vec(),
		Leaves:      len(s.leaves),
		Transitions: transitions,
		Pending:     stats.Pending,
		Ready:       stats.Ready,
		Stale:       stats.Stale,
		Retiring:    stats.Retiring,
		Deferred:    deferred,
		Cached:      stats.Cached,
		CacheHits:   stats.CacheHits,
		CacheMisses: stats.CacheMisses,
		Visible:     stats.Visible,
		Triangles:   stats.Triangles,
		Clients:     s.hub.Clients(),
		Duration:    time.Since(start).String(),
	}
	return s.last
}

func (s *Server) publishStats() {
	if s.frame == 0 {
		return
	}
	if err := s.hub.Broadcast(network.MessageFrameStats, s.last); err != nil {
		s.logger.Printf("broadcast stats: %v", err)
	}
}

// SetIsolevel changes the surface threshold. Every chunk is rebuilt; the old
// meshes stay visible until their replacements are ready.
func (s *Server) SetIsolevel(v float32) {
	s.builder.SetIsolevel(v)
	s.world.Invalidate()
	s.logger.Printf("isolevel set to %.3f", v)
}

type isolevelBody struct {
	Isolevel *float64 `json:"isolevel"`
}

// handleIsolevel reports the surface threshold on GET and replaces it on POST
// with a JSON body such as {"isolevel": 0.25}.
func (s *Server) handleIsolevel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var body isolevelBody
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("decode isolevel: %v", err), http.StatusBadRequest)
			return
		}
		if body.Isolevel == nil || math.IsNaN(*body.Isolevel) || math.IsInf(*body.Isolevel, 0) ||
			math.Abs(*body.Isolevel) > math.MaxFloat32 {
			http.Error(w, "isolevel must be a finite number", http.StatusBadRequest)
			return
		}
		s.SetIsolevel(float32(*body.Isolevel))
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	v := float64(s.builder.Isolevel())
	_ = json.NewEncoder(w).Encode(isolevelBody{Isolevel: &v})
}

// SavePreview writes a PNG of the current leaf set.
func (s *Server) SavePreview(path string) error {
	return world.SavePreview(path, s.leaves, s.world.States(), s.tree.Viewer(), s.cfg.LOD.RootSize)
}

// Snapshot returns the meshes currently visible.
func (s *Server) Snapshot() world.Snapshot {
	return s.world.Snapshot()
}

// Close stops the chunk workers. Run does this on its own.
func (s *Server) Close() {
	s.hub.Close()
	s.world.Close()
}
