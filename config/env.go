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
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// substituteEnvVars expands variables in the string fields that commonly
// carry secrets or deployment-specific values.
func substituteEnvVars(cfg *Config) {
	cfg.Agent.SecretHex = SubstituteEnvVars(cfg.Agent.SecretHex)
	cfg.Agent.SecretFile = SubstituteEnvVars(cfg.Agent.SecretFile)
	cfg.HTTP.Addr = SubstituteEnvVars(cfg.HTTP.Addr)
	cfg.Socket.Addr = SubstituteEnvVars(cfg.Socket.Addr)
	cfg.Metrics.Addr = SubstituteEnvVars(cfg.Metrics.Addr)
	for i, url := range cfg.Relay.URLs {
		cfg.Relay.URLs[i] = SubstituteEnvVars(url)
	}
}
