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

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snap-protocol/snap-go/agent"
	"github.com/snap-protocol/snap-go/config"
	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/keys"
	"github.com/snap-protocol/snap-go/core/replay"
	"github.com/snap-protocol/snap-go/core/validator"
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/internal/metrics"
	snaphttp "github.com/snap-protocol/snap-go/transport/http"
	"github.com/snap-protocol/snap-go/transport/relay"
	"github.com/snap-protocol/snap-go/transport/websocket"
)

var serveConfigDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a reference agent over the configured transports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.LoaderOptions{ConfigDir: serveConfigDir})
		if err != nil {
			return err
		}
		kp, err := loadKeyPair(cfg)
		if err != nil {
			return err
		}
		log := logger.GetDefaultLogger()

		c := card.AgentCard{
			Name:        cfg.Agent.Name,
			Description: cfg.Agent.Description,
			Version:     cfg.Agent.Version,
			Identity:    kp.Address(),
			Skills:      []card.Skill{{ID: "echo", Name: "Echo", Description: "echoes message text"}},
		}

		a, err := agent.New(kp, c,
			agent.WithValidatorConfig(validator.Config{
				SkipTimestampCheck: cfg.Validator.SkipTimestampCheck,
				MaxClockDrift:      time.Duration(cfg.Validator.MaxClockDriftSeconds) * time.Second,
				SkipReplayCheck:    cfg.Validator.SkipReplayCheck,
			}),
		)
		if err != nil {
			return err
		}
		a.ReplayStore(replay.NewMemoryStore(time.Duration(cfg.Replay.WindowSeconds) * time.Second))

		// Reference handler: echo back the text of message/send payloads.
		a.Handle(envelope.MethodMessageSend, func(ctx context.Context, env *envelope.Envelope) (any, error) {
			var payload struct {
				Message struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"message"`
			}
			_ = json.Unmarshal(env.Payload, &payload)
			var texts []string
			for _, p := range payload.Message.Parts {
				texts = append(texts, p.Text)
			}
			return map[string]string{"echo": "Echo: " + strings.Join(texts, " ")}, nil
		})

		if cfg.HTTP.Enabled {
			a.Server(snaphttp.NewServer(cfg.HTTP.Addr, cfg.HTTP.Path))
		}
		if cfg.Socket.Enabled {
			ws := websocket.NewServer(cfg.Socket.Addr, cfg.Socket.Path)
			ws.SetPingInterval(time.Duration(cfg.Socket.PingInterval) * time.Second)
			a.Server(ws)
		}
		if cfg.Relay.Enabled {
			kinds := relay.DefaultKinds()
			if cfg.Relay.EphemeralKind != 0 {
				kinds.Ephemeral = cfg.Relay.EphemeralKind
			}
			if cfg.Relay.StorableKind != 0 {
				kinds.Storable = cfg.Relay.StorableKind
			}
			if cfg.Relay.CardKind != 0 {
				kinds.Card = cfg.Relay.CardKind
			}
			a.Server(relay.New(kp, cfg.Relay.URLs, relay.WithKinds(kinds)))
		}
		if cfg.Metrics.Enabled {
			go func() {
				if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
					log.Error("metrics server terminated", logger.Error(err))
				}
			}()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Start(ctx); err != nil {
			return err
		}
		log.Info("agent running", logger.String("address", kp.Address()))
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Stop(shutdownCtx)
	},
}

// loadKeyPair resolves the identity secret from the configuration.
func loadKeyPair(cfg *config.Config) (*keys.KeyPair, error) {
	secretHex := cfg.Agent.SecretHex
	if cfg.Agent.SecretFile != "" {
		data, err := os.ReadFile(cfg.Agent.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("read secret file: %w", err)
		}
		secretHex = strings.TrimSpace(string(data))
	}
	if secretHex == "" {
		return nil, fmt.Errorf("agent.secret_hex or agent.secret_file is required")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	network := keys.NetworkMainnet
	if cfg.Agent.Network == "testnet" {
		network = keys.NetworkTestnet
	}
	return keys.DeriveKeyPair(secret, network)
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigDir, "config-dir", "config", "directory holding the YAML config")
	rootCmd.AddCommand(serveCmd)
}
