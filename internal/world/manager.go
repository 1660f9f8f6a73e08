package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"github.com/alitto/pond/v2"
)

var (
	// ErrSaturated is returned when no job slot is available. The record is
	// left Stale and retried on the next reconcile.
	ErrSaturated = errors.New("world: generation queue saturated")
	// ErrClosed is returned for requests made after Close.
	ErrClosed = errors.New("world: manager closed")
)

// Builder produces the mesh for one desired leaf. It is called from worker
// goroutines and must be safe for concurrent use.
type Builder interface {
	Build(ctx context.Context, leaf Leaf) (*ChunkMesh, error)
}

// RecordState tracks where a chunk is in its lifecycle.
type RecordState int

const (
	StatePending RecordState = iota
	StateReady
	StateStale
)

func (s RecordState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Record is the manager's view of one desired chunk. Mesh is the last
// published mesh and survives regeneration.
type Record struct {
	Leaf  Leaf
	State RecordState
	Mesh  *ChunkMesh
}

type Action int

const (
	ActionSpawn Action = iota
	ActionKeep
	ActionRetire
)

func (a Action) String() string {
	switch a {
	case ActionSpawn:
		return "spawn"
	case ActionKeep:
		return "keep"
	case ActionRetire:
		return "retire"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Change reports what Reconcile decided for one key. Deferred is set when a
// job was needed but could not be queued.
type Change struct {
	Key      ChunkKey
	Action   Action
	Deferred bool
}

// Delta is the set of renderer updates produced since the previous Drain.
// Consumers apply Removed before Upserted.
type Delta struct {
	Version  uint64
	Upserted []*ChunkMesh
	Removed  []ChunkKey
}

func (d Delta) Empty() bool {
	return len(d.Upserted) == 0 && len(d.Removed) == 0
}

// Snapshot lists the meshes visible as of Version: applying every delta up to
// and including Version to an empty set yields exactly Meshes.
type Snapshot struct {
	Version uint64
	Meshes  []*ChunkMesh
}

type Stats struct {
	Version     uint64
	Records     int
	Pending     int
	Ready       int
	Stale       int
	Retiring    int
	Outstanding int
	Cached      int
	CacheHits   uint64
	CacheMisses uint64
	Visible     int
	Triangles   int
}

type Options struct {
	Workers   int // zero selects GOMAXPROCS
	QueueSize int // maximum jobs queued or running
	CacheSize int // retired meshes kept for reuse
	Logger    *log.Logger
}

type job struct {
	leaf       Leaf
	generation uint64
}

type completion struct {
	job  *job
	mesh *ChunkMesh
	err  error
}

// Manager owns the chunk records for the desired leaf set. Builds run on a
// bounded worker pool; their results are applied on the caller's goroutine by
// Drain so that record state only changes under one lock.
type Manager struct {
	builder Builder
	pool    pond.Pool
	logger  *log.Logger
	cache   *meshCache

	ctx    context.Context
	cancel context.CancelFunc

	completions chan completion

	mu          sync.Mutex
	records     map[ChunkKey]*Record
	retiring    map[ChunkKey]*ChunkMesh
	visible     map[ChunkKey]*ChunkMesh // as of the last delta
	inflight    map[ChunkKey]*job
	outstanding int
	generation  uint64
	version     uint64
	closed      bool
}

func NewManager(builder Builder, opts Options) *Manager {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = workers * 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "world ", log.LstdFlags|log.Lmicroseconds)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		builder:     builder,
		pool:        pond.NewPool(workers, pond.WithQueueSize(queue), pond.WithNonBlocking(true)),
		logger:      logger,
		cache:       newMeshCache(opts.CacheSize),
		ctx:         ctx,
		cancel:      cancel,
		completions: make(chan completion, queue),
		records:     make(map[ChunkKey]*Record),
		retiring:    make(map[ChunkKey]*ChunkMesh),
		visible:     make(map[ChunkKey]*ChunkMesh),
		inflight:    make(map[ChunkKey]*job),
	}
}

// Reconcile makes the desired leaf set current. Leaves are handled in the
// given order, so callers pass them nearest first. Records that are no longer
// desired are retired; their meshes stay visible until the leaves replacing
// them are ready, and the replacements stay hidden until then.
func (m *Manager) Reconcile(leaves []Leaf) []Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	desired := make(map[ChunkKey]struct{}, len(leaves))
	changes := make([]Change, 0, len(leaves))
	deferred := 0
	for _, leaf := range leaves {
		if _, dup := desired[leaf.Key]; dup {
			continue
		}
		desired[leaf.Key] = struct{}{}
		change, _ := m.requestLocked(leaf)
		if change.Deferred {
			deferred++
		}
		changes = append(changes, change)
	}

	retired := make([]ChunkKey, 0)
	for key := range m.records {
		if _, ok := desired[key]; !ok {
			retired = append(retired, key)
		}
	}
	sortKeys(retired)
	for _, key := range retired {
		m.retireLocked(key)
		changes = append(changes, Change{Key: key, Action: ActionRetire})
	}

	m.sweepLocked()
	if deferred > 0 {
		m.logger.Printf("deferred %d chunk builds: %d jobs outstanding", deferred, m.outstanding)
	}
	return changes
}

// Request makes sure leaf has a record and, if its mesh is missing or out of
// date, a build in flight. Concurrent requests for the same key share one
// job. It returns ErrSaturated when the build had to be deferred.
func (m *Manager) Request(leaf Leaf) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.requestLocked(leaf)
	return err
}

func (m *Manager) requestLocked(leaf Leaf) (Change, error) {
	key := leaf.Key
	rec, ok := m.records[key]
	if !ok {
		rec = &Record{Leaf: leaf, State: StateStale}
		m.records[key] = rec
		if mesh, ok := m.retiring[key]; ok {
			delete(m.retiring, key)
			rec.Mesh = mesh
			if mesh.Neighbors == leaf.Neighbors && mesh.generation == m.generation {
				rec.State = StateReady
				return Change{Key: key, Action: ActionKeep}, nil
			}
		} else if mesh, ok := m.cache.Get(key, leaf.Neighbors); ok && mesh.generation == m.generation {
			m.cache.Remove(key)
			m.publishLocked(rec, mesh, m.generation)
			rec.State = StateReady
			return Change{Key: key, Action: ActionSpawn}, nil
		}
		return m.spawnLocked(rec, ActionSpawn)
	}

	if rec.Leaf.Neighbors != leaf.Neighbors && rec.State == StateReady {
		rec.State = StateStale
	}
	rec.Leaf = leaf
	if rec.State == StateStale {
		return m.spawnLocked(rec, ActionKeep)
	}
	return Change{Key: key, Action: ActionKeep}, nil
}

func (m *Manager) spawnLocked(rec *Record, action Action) (Change, error) {
	key := rec.Leaf.Key
	change := Change{Key: key, Action: action}
	if _, ok := m.inflight[key]; ok {
		// A job for this key is already running, possibly started before the
		// key was last retired. Adopt it; a stale result is rebuilt later.
		rec.State = StatePending
		return change, nil
	}
	if m.closed {
		rec.State = StateStale
		change.Deferred = true
		return change, ErrClosed
	}
	if m.outstanding >= cap(m.completions) {
		rec.State = StateStale
		change.Deferred = true
		return change, ErrSaturated
	}
	j := &job{leaf: rec.Leaf, generation: m.generation}
	if err := m.pool.Go(func() { m.run(j) }); err != nil {
		rec.State = StateStale
		change.Deferred = true
		return change, fmt.Errorf("%w: %v", ErrSaturated, err)
	}
	m.inflight[key] = j
	m.outstanding++
	rec.State = StatePending
	return change, nil
}

func (m *Manager) run(j *job) {
	defer func() {
		if r := recover(); r != nil {
			m.completions <- completion{job: j, err: fmt.Errorf("build %v panicked: %v", j.leaf.Key, r)}
		}
	}()
	mesh, err := m.builder.Build(m.ctx, j.leaf)
	m.completions <- completion{job: j, mesh: mesh, err: err}
}

// Drain applies every finished build and returns the renderer delta
// accumulated since the previous call. It never blocks on running jobs and is
// meant to be called once per frame from a single goroutine.
func (m *Manager) Drain() Delta {
	for {
		select {
		case c := <-m.completions:
			m.complete(c)
		default:
			return m.flush()
		}
	}
}

func (m *Manager) complete(c completion) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outstanding--
	key := c.job.leaf.Key
	if m.inflight[key] == c.job {
		delete(m.inflight, key)
	}
	rec, ok := m.records[key]
	if !ok || rec.State != StatePending {
		return
	}
	if c.err == nil && c.mesh == nil {
		c.err = errors.New("builder returned no mesh")
	}
	if c.err != nil {
		if !errors.Is(c.err, context.Canceled) {
			m.logger.Printf("chunk %v build failed: %v", key, c.err)
		}
		rec.State = StateStale
		return
	}

	m.publishLocked(rec, c.mesh, c.job.generation)
	if c.job.leaf.Neighbors != rec.Leaf.Neighbors || c.job.generation != m.generation {
		rec.State = StateStale
		return
	}
	rec.State = StateReady
}

// publishLocked makes mesh the current mesh of rec. It reaches the renderer
// with the next delta that finds it unobstructed by a retiring mesh.
func (m *Manager) publishLocked(rec *Record, mesh *ChunkMesh, generation uint64) {
	published := *mesh
	published.Key = rec.Leaf.Key
	published.generation = generation
	rec.Mesh = &published
}

func (m *Manager) retireLocked(key ChunkKey) {
	rec := m.records[key]
	delete(m.records, key)
	if rec == nil || rec.Mesh == nil {
		return
	}
	m.retiring[key] = rec.Mesh
}

// sweepLocked drops retiring meshes once every desired record overlapping
// them has a mesh of its own, or nothing desired overlaps them at all.
func (m *Manager) sweepLocked() {
	for key, mesh := range m.retiring {
		covered := true
		for other, rec := range m.records {
			if other.Overlaps(key) && rec.Mesh == nil {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}
		delete(m.retiring, key)
		m.cache.Put(mesh)
	}
}

// visibleLocked computes what the renderer should show. A retiring mesh stays
// only if it is already shown, and a record mesh is held back while a shown
// retiring mesh overlaps it. Parents and their children therefore swap in a
// single delta.
func (m *Manager) visibleLocked() map[ChunkKey]*ChunkMesh {
	next := make(map[ChunkKey]*ChunkMesh, len(m.records)+len(m.retiring))
	shown := make([]ChunkKey, 0, len(m.retiring))
	for key, mesh := range m.retiring {
		if m.visible[key] == mesh {
			next[key] = mesh
			shown = append(shown, key)
		}
	}
	for key, rec := range m.records {
		if rec.Mesh == nil {
			continue
		}
		blocked := false
		for _, old := range shown {
			if old.Overlaps(key) {
				blocked = true
				break
			}
		}
		if !blocked {
			next[key] = rec.Mesh
		}
	}
	return next
}

func (m *Manager) flush() Delta {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()

	next := m.visibleLocked()
	var delta Delta
	for key := range m.visible {
		if _, ok := next[key]; !ok {
			delta.Removed = append(delta.Removed, key)
		}
	}
	for key, mesh := range next {
		if m.visible[key] != mesh {
			delta.Upserted = append(delta.Upserted, mesh)
		}
	}
	if delta.Empty() {
		return Delta{Version: m.version}
	}

	m.version++
	delta.Version = m.version
	for i, mesh := range delta.Upserted {
		stamped := *mesh
		stamped.Version = m.version
		delta.Upserted[i] = &stamped
		next[stamped.Key] = &stamped
		if rec, ok := m.records[stamped.Key]; ok && rec.Mesh == mesh {
			rec.Mesh = &stamped
		}
	}
	m.visible = next
	sortKeys(delta.Removed)
	sort.Slice(delta.Upserted, func(i, j int) bool {
		return keyLess(delta.Upserted[i].Key, delta.Upserted[j].Key)
	})
	return delta
}

// Invalidate marks every mesh out of date, for instance after the isolevel
// changed. Visible meshes stay published until their rebuilds land.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	for _, rec := range m.records {
		if rec.State == StateReady {
			rec.State = StateStale
		}
	}
	m.cache.Clear()
}

// Snapshot returns the meshes sent so far, sorted by key. Meshes that are
// built but held back behind a retiring mesh are not included.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	meshes := make([]*ChunkMesh, 0, len(m.visible))
	for _, mesh := range m.visible {
		meshes = append(meshes, mesh)
	}
	sort.Slice(meshes, func(i, j int) bool {
		return keyLess(meshes[i].Key, meshes[j].Key)
	})
	return Snapshot{Version: m.version, Meshes: meshes}
}

// Record returns a copy of the record for key.
func (m *Manager) Record(key ChunkKey) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// States returns the state of every desired record.
func (m *Manager) States() map[ChunkKey]RecordState {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make(map[ChunkKey]RecordState, len(m.records))
	for key, rec := range m.records {
		states[key] = rec.State
	}
	return states
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		Version:     m.version,
		Records:     len(m.records),
		Retiring:    len(m.retiring),
		Outstanding: m.outstanding,
		Cached:      m.cache.Len(),
		Visible:     len(m.visible),
	}
	stats.CacheHits, stats.CacheMisses = m.cache.Counters()
	for _, rec := range m.records {
		switch rec.State {
		case StatePending:
			stats.Pending++
		case StateReady:
			stats.Ready++
		case StateStale:
			stats.Stale++
		}
	}
	for _, mesh := range m.visible {
		stats.Triangles += mesh.Triangles()
	}
	return stats
}

// Close cancels running builds and waits for the worker pool to stop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.pool.StopAndWait()
}

func keyLess(a, b ChunkKey) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
}
