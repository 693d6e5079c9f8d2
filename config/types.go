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

// Package config loads the agent's YAML configuration with environment
// variable substitution and .env support.
package config

// Config is the root configuration document.
type Config struct {
	Environment string          `yaml:"environment"`
	Agent       AgentConfig     `yaml:"agent"`
	HTTP        HTTPConfig      `yaml:"http"`
	Socket      SocketConfig    `yaml:"socket"`
	Relay       RelayConfig     `yaml:"relay"`
	Validator   ValidatorConfig `yaml:"validator"`
	Replay      ReplayConfig    `yaml:"replay"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}

// AgentConfig describes the agent identity and card basics.
type AgentConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	// Network is "mainnet" or "testnet".
	Network string `yaml:"network"`
	// SecretHex is the 32-byte identity secret in hex. SecretFile names a
	// file holding it instead; the file wins when both are set.
	SecretHex  string `yaml:"secret_hex"`
	SecretFile string `yaml:"secret_file"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// SocketConfig configures the socket transport.
type SocketConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Addr         string `yaml:"addr"`
	Path         string `yaml:"path"`
	PingInterval int    `yaml:"ping_interval_seconds"`
}

// RelayConfig configures the pub/sub relay transport.
type RelayConfig struct {
	Enabled bool     `yaml:"enabled"`
	URLs    []string `yaml:"urls"`
	// Kind overrides; zero keeps the protocol defaults.
	EphemeralKind int `yaml:"ephemeral_kind"`
	StorableKind  int `yaml:"storable_kind"`
	CardKind      int `yaml:"card_kind"`
}

// ValidatorConfig configures inbound validation.
type ValidatorConfig struct {
	SkipTimestampCheck   bool `yaml:"skip_timestamp_check"`
	MaxClockDriftSeconds int  `yaml:"max_clock_drift_seconds"`
	SkipReplayCheck      bool `yaml:"skip_replay_check"`
}

// ReplayConfig configures the replay store.
type ReplayConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// setDefaults fills unset fields with working defaults.
func setDefaults(cfg *Config) {
	if cfg.Agent.Version == "" {
		cfg.Agent.Version = "0.1.0"
	}
	if cfg.Agent.Network == "" {
		cfg.Agent.Network = "mainnet"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.Path == "" {
		cfg.HTTP.Path = "/snap"
	}
	if cfg.Socket.Addr == "" {
		cfg.Socket.Addr = ":8081"
	}
	if cfg.Socket.Path == "" {
		cfg.Socket.Path = "/"
	}
	if cfg.Socket.PingInterval == 0 {
		cfg.Socket.PingInterval = 30
	}
	if cfg.Validator.MaxClockDriftSeconds == 0 {
		cfg.Validator.MaxClockDriftSeconds = 60
	}
	if cfg.Replay.WindowSeconds == 0 {
		cfg.Replay.WindowSeconds = 3600
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}
