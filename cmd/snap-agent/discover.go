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
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/snap-protocol/snap-go/core/keys"
	snaphttp "github.com/snap-protocol/snap-go/transport/http"
	"github.com/snap-protocol/snap-go/transport/relay"
)

var (
	discoverURL    string
	discoverRelays []string
	discoverName   string
	discoverSkills []string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Fetch and verify agent cards over HTTP or the relay network",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if discoverURL != "" {
			sc, err := snaphttp.DiscoverViaHTTP(ctx, discoverURL)
			if err != nil {
				return err
			}
			return enc.Encode(sc)
		}
		if len(discoverRelays) == 0 {
			return fmt.Errorf("either --url or --relay is required")
		}

		// Discovery only reads; an ephemeral identity is enough.
		secret := make([]byte, keys.SecretSize)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		kp, err := keys.DeriveKeyPair(secret, keys.NetworkMainnet)
		if err != nil {
			return err
		}
		t := relay.New(kp, discoverRelays)
		defer t.Close()

		cards, err := t.DiscoverAgents(ctx, relay.Query{Name: discoverName, Skills: discoverSkills})
		if err != nil {
			return err
		}
		return enc.Encode(cards)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverURL, "url", "", "base URL of the agent's HTTP endpoint")
	discoverCmd.Flags().StringSliceVar(&discoverRelays, "relay", nil, "relay URL (repeatable)")
	discoverCmd.Flags().StringVar(&discoverName, "name", "", "filter by agent name")
	discoverCmd.Flags().StringSliceVar(&discoverSkills, "skill", nil, "filter by skill id (repeatable)")
	rootCmd.AddCommand(discoverCmd)
}
