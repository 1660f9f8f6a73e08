package network

import (
	"encoding/json"
	"time"

	"terrainstream/internal/world"
)

type MessageType string

const (
	MessageHello      MessageType = "hello"
	MessageSnapshot   MessageType = "snapshot"
	MessageMeshDelta  MessageType = "meshDelta"
	MessageFrameStats MessageType = "frameStats"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

type Hello struct {
	ServerID string  `json:"serverId"`
	RootSize int64   `json:"rootSize"`
	MaxLevel int     `json:"maxLevel"`
	MinZ     int64   `json:"minZ"`
	MaxZ     int64   `json:"maxZ"`
	Isolevel float64 `json:"isolevel"`
}

type ChunkRef struct {
	Level int   `json:"level"`
	X     int64 `json:"x"`
	Y     int64 `json:"y"`
}

// MeshPayload carries one chunk mesh as flat arrays: three floats per
// position and normal, three indices per triangle. Positions are relative to
// Origin.
type MeshPayload struct {
	Chunk     ChunkRef  `json:"chunk"`
	Origin    [3]int64  `json:"origin"`
	Version   uint64    `json:"version"`
	Neighbors [4]int    `json:"neighbors"`
	Positions []float32 `json:"positions"`
	Normals   []float32 `json:"normals"`
	Indices   []uint32  `json:"indices"`
}

// Snapshot is sent once on connect. Clients skip deltas whose version is not
// newer than the snapshot.
type Snapshot struct {
	Version uint64        `json:"version"`
	Meshes  []MeshPayload `json:"meshes"`
}

// MeshDelta must be applied removals first.
type MeshDelta struct {
	Version  uint64        `json:"version"`
	Removed  []ChunkRef    `json:"removed"`
	Upserted []MeshPayload `json:"upserted"`
}

type FrameStats struct {
	ServerID    string     `json:"serverId"`
	Frame       uint64     `json:"frame"`
	Viewer      [3]float64 `json:"viewer"`
	Leaves      int        `json:"leaves"`
	Transitions int        `json:"transitions"`
	Pending     int        `json:"pending"`
	Ready       int        `json:"ready"`
	Stale       int        `json:"stale"`
	Retiring    int        `json:"retiring"`
	Deferred    int        `json:"deferred"`
	Cached      int        `json:"cached"`
	CacheHits   uint64     `json:"cacheHits"`
	CacheMisses uint64     `json:"cacheMisses"`
	Visible     int        `json:"visible"`
	Triangles   int        `json:"triangles"`
	Clients     int        `json:"clients"`
	Duration    string     `json:"duration"`
}

func NewChunkRef(key world.ChunkKey) ChunkRef {
	return ChunkRef{Level: key.Level, X: key.X, Y: key.Y}
}

func (r ChunkRef) Key() world.ChunkKey {
	return world.ChunkKey{Level: r.Level, X: r.X, Y: r.Y}
}

func NewMeshPayload(m *world.ChunkMesh) MeshPayload {
	p := MeshPayload{
		Chunk:     NewChunkRef(m.Key),
		Origin:    m.Origin,
		Version:   m.Version,
		Neighbors: m.Neighbors,
		Positions: make([]float32, 0, 3*len(m.Positions)),
		Normals:   make([]float32, 0, 3*len(m.Normals)),
		Indices:   append([]uint32(nil), m.Indices...),
	}
	for _, v := range m.Positions {
		p.Positions = append(p.Positions, v[0], v[1], v[2])
	}
	for _, n := range m.Normals {
		p.Normals = append(p.Normals, n[0], n[1], n[2])
	}
	return p
}

func NewSnapshot(s world.Snapshot) Snapshot {
	out := Snapshot{Version: s.Version, Meshes: make([]MeshPayload, 0, len(s.Meshes))}
	for _, m := range s.Meshes {
		out.Meshes = append(out.Meshes, NewMeshPayload(m))
	}
	return out
}

func NewMeshDelta(d world.Delta) MeshDelta {
	out := MeshDelta{
		Version:  d.Version,
		Removed:  make([]ChunkRef, 0, len(d.Removed)),
		Upserted: make([]MeshPayload, 0, len(d.Upserted)),
	}
	for _, key := range d.Removed {
		out.Removed = append(out.Removed, NewChunkRef(key))
	}
	for _, m := range d.Upserted {
		out.Upserted = append(out.Upserted, NewMeshPayload(m))
	}
	return out
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
