// SNAP - Schnorr-Native Agent Protocol
// Copyright (C) 2026 snap-protocol
//
// This file is part of SNAP.
//
// SNAP is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SNAP is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SNAP. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoaderOptions configures Load.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default ./config).
	ConfigDir string
	// Environment overrides SNAP_ENV detection.
	Environment string
	// SkipEnvSubstitution disables ${VAR:default} expansion.
	SkipEnvSubstitution bool
}

// DefaultLoaderOptions returns the loader defaults.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{ConfigDir: "config"}
}

// GetEnvironment resolves the running environment from SNAP_ENV, falling
// back to "development".
func GetEnvironment() string {
	if env := os.Getenv("SNAP_ENV"); env != "" {
		return env
	}
	return "development"
}

// Load reads the configuration for the current environment. It tries
// <dir>/<env>.yaml, then <dir>/default.yaml, then <dir>/config.yaml, and
// finally falls back to built-in defaults. A .env file in the working
// directory is loaded into the process environment first.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	// Missing .env files are fine.
	_ = godotenv.Load()

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	var cfg *Config
	for _, name := range []string{env + ".yaml", "default.yaml", "config.yaml"} {
		loaded, err := loadConfigFile(filepath.Join(options.ConfigDir, name))
		if err == nil {
			cfg = loaded
			break
		}
	}
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}
	setDefaults(cfg)
	if !options.SkipEnvSubstitution {
		substituteEnvVars(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile reads and parses one YAML config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects configurations the runtime cannot start with.
func Validate(cfg *Config) error {
	switch cfg.Agent.Network {
	case "mainnet", "testnet":
	default:
		return fmt.Errorf("agent.network must be mainnet or testnet, got %q", cfg.Agent.Network)
	}
	if cfg.Relay.Enabled && len(cfg.Relay.URLs) == 0 {
		return fmt.Errorf("relay.enabled requires at least one relay URL")
	}
	if cfg.Replay.WindowSeconds > 0 && cfg.Replay.WindowSeconds < 120 {
		return fmt.Errorf("replay.window_seconds must be at least 120 (or 0 to disable expiry)")
	}
	return nil
}
