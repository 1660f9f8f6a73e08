package main

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"terrainstream/internal/config"
)

func TestConfigFromEnvJSON(t *testing.T) {
	t.Setenv(envConfigYAML, "")
	t.Setenv(envConfigJSON, `{"stream":{"serverId":"json-config","frameRate":"50ms"},"noise":{"seed":7}}`)

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, ok, err := configFromEnv(path)
	if err != nil || !ok {
		t.Fatalf("configFromEnv: %v %v", ok, err)
	}
	if cfg.Stream.ServerID != "json-config" || cfg.Noise.Seed != 7 {
		t.Fatalf("payload not applied: %+v %+v", cfg.Stream, cfg.Noise)
	}
	if cfg.LOD.RootSize != config.Default().LOD.RootSize {
		t.Fatalf("defaults lost for fields the payload omits")
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var decoded config.Config
	if err := json.Unmarshal(contents, &decoded); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if decoded.Stream.ServerID != "json-config" || decoded.Stream.FrameRate.Duration().Milliseconds() != 50 {
		t.Fatalf("unexpected stream section %+v", decoded.Stream)
	}
}

func TestConfigFromEnvYAML(t *testing.T) {
	cfg := config.Default()
	cfg.Stream.ServerID = "yaml-config"
	cfg.Mesh.Isolevel = 0.4
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	t.Setenv(envConfigJSON, "")
	t.Setenv(envConfigYAML, base64.StdEncoding.EncodeToString(data))

	got, ok, err := configFromEnv("")
	if err != nil || !ok {
		t.Fatalf("configFromEnv: %v %v", ok, err)
	}
	if got.Stream.ServerID != "yaml-config" || got.Mesh.Isolevel != 0.4 {
		t.Fatalf("unexpected config %+v %+v", got.Stream, got.Mesh)
	}
}

func TestConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv(envConfigYAML, "")
	t.Setenv(envConfigJSON, `{"lod":{"subdivideFactor":3,"collapseFactor":2}}`)
	path := filepath.Join(t.TempDir(), "config.json")
	if _, _, err := configFromEnv(path); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid config should not be written")
	}
}

func TestConfigFromEnvNoPayload(t *testing.T) {
	t.Setenv(envConfigJSON, "")
	t.Setenv(envConfigYAML, "")

	_, ok, err := configFromEnv(filepath.Join(t.TempDir(), "unused.json"))
	if err != nil {
		t.Fatalf("configFromEnv: %v", err)
	}
	if ok {
		t.Fatalf("expected no config without a payload")
	}
}
