package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MarshalYAML writes durations in their string form ("30m0s").
func (s Supervisor) MarshalYAML() (any, error) {
	return struct {
		LogCapacity int    `yaml:"log_capacity"`
		Cooldown    string `yaml:"cooldown"`
		StopGrace   string `yaml:"stop_grace"`
		MaxImports  int    `yaml:"max_imports"`
	}{
		LogCapacity: s.LogCapacity,
		Cooldown:    s.Cooldown.String(),
		StopGrace:   s.StopGrace.String(),
		MaxImports:  s.MaxImports,
	}, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Save writes cfg to path as YAML, creating the parent directory.
func Save(cfg *Config, path string) error {
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
