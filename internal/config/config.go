package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Apron is the number of extra samples generated outside each chunk face so
// that surface normals can use central differences right up to the border.
const Apron = 1

// Duration is a JSON and YAML friendly wrapper around time.Duration that
// accepts human readable strings such as "33ms" while still allowing numeric
// nanosecond values.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar at line %d", node.Line)
	}
	if node.ShortTag() == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures the tunable parameters of the terrain streamer.
type Config struct {
	Noise   NoiseConfig  `json:"noise" yaml:"noise"`
	Shape   ShapeConfig  `json:"shape" yaml:"shape"`
	Mesh    MeshConfig   `json:"mesh" yaml:"mesh"`
	LOD     LODConfig    `json:"lod" yaml:"lod"`
	Workers WorkerConfig `json:"workers" yaml:"workers"`
	Cache   CacheConfig  `json:"cache" yaml:"cache"`
	Stream  StreamConfig `json:"stream" yaml:"stream"`
	Viewer  ViewerConfig `json:"viewer" yaml:"viewer"`
}

type NoiseConfig struct {
	Seed            int64   `json:"seed" yaml:"seed"`
	Octaves         int     `json:"octaves" yaml:"octaves"`
	Lacunarity      float64 `json:"lacunarity" yaml:"lacunarity"`           // frequency multiplier per octave
	Persistence     float64 `json:"persistence" yaml:"persistence"`         // amplitude multiplier per octave
	FeatureSize     int64   `json:"featureSize" yaml:"featureSize"`         // world units per base octave cell
	CaveFeatureSize int64   `json:"caveFeatureSize" yaml:"caveFeatureSize"` // world units per cave octave cell
	CaveOctaves     int     `json:"caveOctaves" yaml:"caveOctaves"`         // zero disables caves
	CaveStrength    float64 `json:"caveStrength" yaml:"caveStrength"`
	CaveThreshold   float64 `json:"caveThreshold" yaml:"caveThreshold"`
}

type ShapeConfig struct {
	SeaLevel            int64   `json:"seaLevel" yaml:"seaLevel"`
	HeightScale         float64 `json:"heightScale" yaml:"heightScale"`   // world units per unit of relative height
	FalloffPower        float64 `json:"falloffPower" yaml:"falloffPower"` // taper of island undersides
	MountainScale       float64 `json:"mountainScale" yaml:"mountainScale"`
	MinPeak             float64 `json:"minPeak" yaml:"minPeak"`
	MountainFeatureSize int64   `json:"mountainFeatureSize" yaml:"mountainFeatureSize"`
	IslandPeriod        int64   `json:"islandPeriod" yaml:"islandPeriod"` // island layout repeats every period world units
	IslandScale         float64 `json:"islandScale" yaml:"islandScale"`
	IslandCoverage      float64 `json:"islandCoverage" yaml:"islandCoverage"` // 0..1 share of the map that is land
}

type MeshConfig struct {
	Isolevel float64 `json:"isolevel" yaml:"isolevel"`
}

// Tier is the sample resolution used by one level of the spatial tree.
type Tier struct {
	Samples [3]int `json:"samples" yaml:"samples"`
}

type LODConfig struct {
	RootSize           int64   `json:"rootSize" yaml:"rootSize"` // power of two, world units
	MaxLevel           int     `json:"maxLevel" yaml:"maxLevel"`
	MinZ               int64   `json:"minZ" yaml:"minZ"`
	MaxZ               int64   `json:"maxZ" yaml:"maxZ"`
	SubdivideFactor    float64 `json:"subdivideFactor" yaml:"subdivideFactor"` // subdivide below factor*size
	CollapseFactor     float64 `json:"collapseFactor" yaml:"collapseFactor"`   // collapse above factor*size
	ViewDistance       float64 `json:"viewDistance" yaml:"viewDistance"`
	ViewHysteresis     float64 `json:"viewHysteresis" yaml:"viewHysteresis"`
	Tiers              []Tier  `json:"tiers" yaml:"tiers"`
	MaxSamplesPerChunk int     `json:"maxSamplesPerChunk" yaml:"maxSamplesPerChunk"`
}

// Tier returns the sample resolution for level, clamped to the configured tiers.
func (c LODConfig) Tier(level int) Tier {
	if len(c.Tiers) == 0 {
		return Tier{}
	}
	if level < 0 {
		level = 0
	}
	if level >= len(c.Tiers) {
		level = len(c.Tiers) - 1
	}
	return c.Tiers[level]
}

// ChunkSize returns the horizontal edge length of a chunk at level.
func (c LODConfig) ChunkSize(level int) int64 {
	if level < 0 {
		level = 0
	}
	return c.RootSize >> uint(level)
}

type WorkerConfig struct {
	PoolSize  int `json:"poolSize" yaml:"poolSize"`   // zero selects GOMAXPROCS
	QueueSize int `json:"queueSize" yaml:"queueSize"` // pending jobs before requests are deferred
}

type CacheConfig struct {
	MaxMeshes int `json:"maxMeshes" yaml:"maxMeshes"`
}

type StreamConfig struct {
	ServerID    string   `json:"serverId" yaml:"serverId"`
	FrameRate   Duration `json:"frameRate" yaml:"frameRate"`   // e.g. "33ms"
	ListenAddr  string   `json:"listenAddr" yaml:"listenAddr"` // empty disables the mesh feed
	PreviewPath string   `json:"previewPath" yaml:"previewPath"`
}

type Waypoint struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

type ViewerConfig struct {
	Waypoints []Waypoint `json:"waypoints" yaml:"waypoints"`
	Speed     float64    `json:"speed" yaml:"speed"` // world units per second
}

// Load reads configuration from a JSON or YAML file if provided. An empty path
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Noise: NoiseConfig{
			Seed:            1337,
			Octaves:         5,
			Lacunarity:      2.0,
			Persistence:     0.5,
			FeatureSize:     256,
			CaveFeatureSize: 64,
			CaveOctaves:     3,
			CaveStrength:    0.6,
			CaveThreshold:   0.35,
		},
		Shape: ShapeConfig{
			SeaLevel:            0,
			HeightScale:         96,
			FalloffPower:        2.0,
			MountainScale:       1.6,
			MinPeak:             0.25,
			MountainFeatureSize: 512,
			IslandPeriod:        65536,
			IslandScale:         1024,
			IslandCoverage:      0.55,
		},
		Mesh: MeshConfig{
			Isolevel: 0.5,
		},
		LOD: LODConfig{
			RootSize:        1024,
			MaxLevel:        6,
			MinZ:            -192,
			MaxZ:            320,
			SubdivideFactor: 1.5,
			CollapseFactor:  2.0,
			ViewDistance:    4096,
			ViewHysteresis:  256,
			Tiers: []Tier{
				{Samples: [3]int{17, 17, 9}},
				{Samples: [3]int{17, 17, 17}},
				{Samples: [3]int{17, 17, 33}},
				{Samples: [3]int{17, 17, 65}},
				{Samples: [3]int{17, 17, 129}},
				{Samples: [3]int{17, 17, 257}},
				{Samples: [3]int{17, 17, 513}},
			},
			MaxSamplesPerChunk: 1 << 18,
		},
		Workers: WorkerConfig{
			PoolSize:  0,
			QueueSize: 256,
		},
		Cache: CacheConfig{
			MaxMeshes: 256,
		},
		Stream: StreamConfig{
			ServerID:   "terrain-0",
			FrameRate:  Duration(33 * time.Millisecond),
			ListenAddr: ":8080",
		},
		Viewer: ViewerConfig{
			Waypoints: []Waypoint{
				{X: 0, Y: 0, Z: 64},
				{X: 4096, Y: 0, Z: 96},
				{X: 4096, Y: 4096, Z: 64},
			},
			Speed: 48,
		},
	}
}

func (c *Config) Validate() error {
	if c.Noise.Octaves <= 0 {
		return errors.New("noise.octaves must be positive")
	}
	if c.Noise.Lacunarity < 1 {
		return errors.New("noise.lacunarity must be >= 1")
	}
	if c.Noise.Persistence <= 0 || c.Noise.Persistence > 1 {
		return errors.New("noise.persistence must be in (0,1]")
	}
	if c.Noise.FeatureSize <= 0 {
		return errors.New("noise.featureSize must be positive")
	}
	if c.Noise.CaveOctaves < 0 {
		return errors.New("noise.caveOctaves cannot be negative")
	}
	if c.Noise.CaveOctaves > 0 && c.Noise.CaveFeatureSize <= 0 {
		return errors.New("noise.caveFeatureSize must be positive")
	}
	if c.Shape.HeightScale <= 0 {
		return errors.New("shape.heightScale must be positive")
	}
	if c.Shape.FalloffPower <= 0 {
		return errors.New("shape.falloffPower must be positive")
	}
	if c.Shape.MinPeak <= 0 {
		return errors.New("shape.minPeak must be positive")
	}
	if c.Shape.MountainFeatureSize <= 0 {
		return errors.New("shape.mountainFeatureSize must be positive")
	}
	if c.Shape.IslandPeriod <= 0 {
		return errors.New("shape.islandPeriod must be positive")
	}
	if c.Shape.IslandScale <= 0 {
		return errors.New("shape.islandScale must be positive")
	}
	if c.Shape.IslandCoverage < 0 || c.Shape.IslandCoverage > 1 {
		return errors.New("shape.islandCoverage must be in [0,1]")
	}
	if math.IsNaN(c.Mesh.Isolevel) || math.IsInf(c.Mesh.Isolevel, 0) {
		return errors.New("mesh.isolevel must be finite")
	}
	if err := c.LOD.validate(); err != nil {
		return err
	}
	if c.Workers.PoolSize < 0 {
		return errors.New("workers.poolSize cannot be negative")
	}
	if c.Workers.QueueSize <= 0 {
		return errors.New("workers.queueSize must be positive")
	}
	if c.Cache.MaxMeshes < 0 {
		return errors.New("cache.maxMeshes cannot be negative")
	}
	if c.Stream.ServerID == "" {
		return errors.New("stream.serverId must be set")
	}
	if c.Stream.FrameRate <= 0 {
		return errors.New("stream.frameRate must be positive")
	}
	if c.Viewer.Speed < 0 {
		return errors.New("viewer.speed cannot be negative")
	}
	return nil
}

func (c LODConfig) validate() error {
	if c.RootSize <= 0 || c.RootSize&(c.RootSize-1) != 0 {
		return errors.New("lod.rootSize must be a positive power of two")
	}
	if c.MaxLevel < 0 {
		return errors.New("lod.maxLevel cannot be negative")
	}
	if c.MaxLevel > 62 || c.RootSize>>uint(c.MaxLevel) == 0 {
		return errors.New("lod.maxLevel leaves chunks smaller than one world unit")
	}
	if c.MaxZ <= c.MinZ {
		return errors.New("lod.maxZ must be greater than lod.minZ")
	}
	if c.SubdivideFactor <= 0 {
		return errors.New("lod.subdivideFactor must be positive")
	}
	if c.CollapseFactor <= c.SubdivideFactor {
		return errors.New("lod.collapseFactor must be greater than lod.subdivideFactor")
	}
	if c.ViewDistance <= 0 {
		return errors.New("lod.viewDistance must be positive")
	}
	if c.ViewHysteresis < 0 {
		return errors.New("lod.viewHysteresis cannot be negative")
	}
	if c.MaxSamplesPerChunk <= 0 {
		return errors.New("lod.maxSamplesPerChunk must be positive")
	}
	if len(c.Tiers) == 0 {
		return errors.New("lod.tiers must not be empty")
	}
	for i, tier := range c.Tiers {
		s := tier.Samples
		if s[0] < 2 || s[1] < 2 || s[2] < 2 {
			return fmt.Errorf("lod.tiers[%d] samples must be at least 2 on every axis", i)
		}
		if s[0] != s[1] {
			return fmt.Errorf("lod.tiers[%d] must use equal x and y samples", i)
		}
		if !powerOfTwo(s[0]-1) || !powerOfTwo(s[2]-1) {
			return fmt.Errorf("lod.tiers[%d] sample spacing must be a power of two", i)
		}
		padded := (s[0] + 2*Apron) * (s[1] + 2*Apron) * (s[2] + 2*Apron)
		if padded > c.MaxSamplesPerChunk {
			return fmt.Errorf("lod.tiers[%d] needs %d samples, above lod.maxSamplesPerChunk", i, padded)
		}
	}
	// A level's lattice must refine its parent's by the same factor on the
	// horizontal and vertical axes for seams to line up.
	for level := 0; level < c.MaxLevel; level++ {
		coarse := c.Tier(level).Samples
		fine := c.Tier(level + 1).Samples
		if 2*(fine[0]-1)*(coarse[2]-1) != (fine[2]-1)*(coarse[0]-1) || fine[2] < coarse[2] {
			return fmt.Errorf("lod level %d samples do not nest inside level %d", level+1, level)
		}
	}
	return nil
}

func powerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
