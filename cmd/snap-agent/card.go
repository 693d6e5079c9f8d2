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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/keys"
)

var (
	cardSecret  string
	cardNetwork string
	cardName    string
	cardDesc    string
	cardSkills  []string
)

var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Build and sign an agent card",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := hex.DecodeString(cardSecret)
		if err != nil {
			return fmt.Errorf("decode secret: %w", err)
		}
		network := keys.NetworkMainnet
		if cardNetwork == "testnet" {
			network = keys.NetworkTestnet
		}
		kp, err := keys.DeriveKeyPair(secret, network)
		if err != nil {
			return err
		}

		c := card.AgentCard{
			Name:        cardName,
			Description: cardDesc,
			Version:     "0.1.0",
			Identity:    kp.Address(),
		}
		for _, spec := range cardSkills {
			parts := strings.SplitN(spec, ":", 2)
			s := card.Skill{ID: parts[0], Name: parts[0]}
			if len(parts) == 2 {
				s.Name = parts[1]
			}
			c.Skills = append(c.Skills, s)
		}

		sc, err := card.Sign(&c, kp)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sc)
	},
}

func init() {
	cardCmd.Flags().StringVar(&cardSecret, "secret", "", "identity secret in hex (required)")
	cardCmd.Flags().StringVar(&cardNetwork, "network", "mainnet", "mainnet or testnet")
	cardCmd.Flags().StringVar(&cardName, "name", "snap-agent", "agent name")
	cardCmd.Flags().StringVar(&cardDesc, "description", "", "agent description")
	cardCmd.Flags().StringSliceVar(&cardSkills, "skill", []string{"echo:Echo"}, "skill as id or id:name (repeatable)")
	_ = cardCmd.MarkFlagRequired("secret")
	rootCmd.AddCommand(cardCmd)
}
