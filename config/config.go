// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package config loads the small amount of deployment configuration
// the persistent process core needs: which Store backend to use and
// where it lives. The hash algorithm is not configurable (spec.md
// §4.1: it must be fixed for the life of a deployment), so it is not
// part of this struct — changing it is a deliberate code change, not
// a config edit.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backend selects a store.Store implementation.
type Backend string

const (
	BackendBolt Backend = "bolt"
	BackendFile Backend = "file"
)

// Config is the on-disk shape, loaded from YAML.
type Config struct {
	// Backend selects which store.Store implementation to construct.
	Backend Backend `yaml:"backend"`
	// DataDir is the bbolt file path (BackendBolt) or the root
	// directory (BackendFile).
	DataDir string `yaml:"data_dir"`
	// MetricsNamespace prefixes every prometheus metric name; empty
	// disables the namespace prefix, it never disables metrics.
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Default returns the configuration the demo CLI falls back to when
// no config file is given.
func Default() Config {
	return Config{
		Backend:          BackendBolt,
		DataDir:          "persistentprocess-data",
		MetricsNamespace: "persistentprocess",
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a config with an unknown backend or empty data dir.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBolt, BackendFile:
	default:
		return fmt.Errorf("config: unknown backend %q (want %q or %q)", c.Backend, BackendBolt, BackendFile)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	return nil
}
