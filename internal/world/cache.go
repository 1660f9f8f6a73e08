package world

import (
	"container/list"
	"sync"
)

// meshCache keeps recently retired meshes so that a chunk coming back into
// view can be republished without regenerating it. Least recently used
// entries are evicted first.
type meshCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[ChunkKey]*list.Element
	hits    uint64
	misses  uint64
}

func newMeshCache(max int) *meshCache {
	return &meshCache{
		max:     max,
		order:   list.New(),
		entries: make(map[ChunkKey]*list.Element),
	}
}

// Get returns the cached mesh for key if it was built with the same stitch
// signature.
func (c *meshCache) Get(key ChunkKey, neighbors [4]int) (*ChunkMesh, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	mesh := elem.Value.(*ChunkMesh)
	if mesh.Neighbors != neighbors {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return mesh, true
}

func (c *meshCache) Put(mesh *ChunkMesh) {
	if mesh == nil || c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[mesh.Key]; ok {
		elem.Value = mesh
		c.order.MoveToFront(elem)
		return
	}
	c.entries[mesh.Key] = c.order.PushFront(mesh)
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*ChunkMesh).Key)
	}
}

func (c *meshCache) Remove(key ChunkKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

func (c *meshCache) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.entries = make(map[ChunkKey]*list.Element)
	c.mu.Unlock()
}

func (c *meshCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Counters returns how many lookups hit and missed since the cache was made.
func (c *meshCache) Counters() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
