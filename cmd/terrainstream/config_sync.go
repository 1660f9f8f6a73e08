package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"terrainstream/internal/config"
)

const (
	envConfigJSON = "TERRAIN_CONFIG_JSON"
	envConfigYAML = "TERRAIN_CONFIG_YAML_B64"
)

// configFromEnv decodes a configuration pushed through the environment.
// Fields the payload leaves out keep their defaults. When cfgPath is set the
// result is also written there as JSON so a restart without the environment
// sees the same settings. It reports false when no payload is present.
func configFromEnv(cfgPath string) (*config.Config, bool, error) {
	jsonPayload := os.Getenv(envConfigJSON)
	yamlPayload := os.Getenv(envConfigYAML)
	if jsonPayload == "" && yamlPayload == "" {
		return nil, false, nil
	}

	cfg := config.Default()
	if jsonPayload != "" {
		if err := json.Unmarshal([]byte(jsonPayload), cfg); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", envConfigJSON, err)
		}
	} else {
		data, err := base64.StdEncoding.DecodeString(yamlPayload)
		if err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", envConfigYAML, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, false, fmt.Errorf("parse %s: %w", envConfigYAML, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("validate environment config: %w", err)
	}

	if cfgPath != "" {
		if dir := filepath.Dir(cfgPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, false, fmt.Errorf("create config directory: %w", err)
			}
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, false, fmt.Errorf("marshal config json: %w", err)
		}
		if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
			return nil, false, fmt.Errorf("write config file: %w", err)
		}
	}
	return cfg, true, nil
}
