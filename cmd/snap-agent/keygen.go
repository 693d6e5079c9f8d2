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
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snap-protocol/snap-go/core/keys"
)

var keygenNetwork string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Derive a fresh identity secret and its P2TR address",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := make([]byte, keys.SecretSize)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		network := keys.NetworkMainnet
		if keygenNetwork == "testnet" {
			network = keys.NetworkTestnet
		}
		kp, err := keys.DeriveKeyPair(secret, network)
		if err != nil {
			return err
		}
		fmt.Printf("secret:  %s\n", hex.EncodeToString(secret))
		fmt.Printf("pubkey:  %s\n", kp.InternalPubKeyHex())
		fmt.Printf("address: %s\n", kp.Address())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenNetwork, "network", "mainnet", "mainnet or testnet")
	rootCmd.AddCommand(keygenCmd)
}
