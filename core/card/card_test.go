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

package card

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/core/keys"
)

func testKeyPair(t *testing.T, last byte) *keys.KeyPair {
	t.Helper()
	secret := make([]byte, keys.SecretSize)
	secret[keys.SecretSize-1] = last
	kp, err := keys.DeriveKeyPair(secret, keys.NetworkMainnet)
	require.NoError(t, err)
	return kp
}

func testCard(kp *keys.KeyPair) AgentCard {
	return AgentCard{
		Name:        "echo-agent",
		Description: "echoes messages",
		Version:     "0.1.0",
		Identity:    kp.Address(),
		Skills: []Skill{
			{ID: "echo", Name: "Echo", Description: "echoes text", Tags: []string{"demo"}},
		},
	}
}

func TestValidate(t *testing.T) {
	kp := testKeyPair(t, 1)

	t.Run("valid card", func(t *testing.T) {
		c := testCard(kp)
		assert.NoError(t, Validate(&c))
	})

	t.Run("missing name", func(t *testing.T) {
		c := testCard(kp)
		c.Name = ""
		assert.Error(t, Validate(&c))
	})

	t.Run("bad identity", func(t *testing.T) {
		c := testCard(kp)
		c.Identity = "not-an-address"
		assert.Error(t, Validate(&c))
	})

	t.Run("no skills", func(t *testing.T) {
		c := testCard(kp)
		c.Skills = nil
		assert.Error(t, Validate(&c))
	})

	t.Run("bad skill id", func(t *testing.T) {
		c := testCard(kp)
		c.Skills[0].ID = "Not_Valid"
		assert.Error(t, Validate(&c))
	})

	t.Run("too many skills", func(t *testing.T) {
		c := testCard(kp)
		for i := 0; i <= MaxSkills; i++ {
			c.Skills = append(c.Skills, Skill{ID: "s", Name: "s"})
		}
		assert.Error(t, Validate(&c))
	})
}

func TestSignVerify(t *testing.T) {
	kp := testKeyPair(t, 1)

	t.Run("round trip", func(t *testing.T) {
		c := testCard(kp)
		sc, err := Sign(&c, kp)
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(kp.OutputKey()), sc.PublicKey)
		assert.NoError(t, VerifySigned(sc))
	})

	t.Run("identity mismatch at signing", func(t *testing.T) {
		other := testKeyPair(t, 2)
		c := testCard(kp)
		_, err := Sign(&c, other)
		var e *errcode.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, errcode.CodeIdentityMismatch, e.Code)
	})

	t.Run("tampered card fails", func(t *testing.T) {
		c := testCard(kp)
		sc, err := Sign(&c, kp)
		require.NoError(t, err)
		sc.Card.Description = "something else"
		assert.Error(t, VerifySigned(sc))
	})

	t.Run("tampered timestamp fails", func(t *testing.T) {
		c := testCard(kp)
		sc, err := Sign(&c, kp)
		require.NoError(t, err)
		sc.Timestamp++
		assert.Error(t, VerifySigned(sc))
	})

	t.Run("foreign public key is rejected", func(t *testing.T) {
		other := testKeyPair(t, 2)
		c := testCard(kp)
		sc, err := Sign(&c, kp)
		require.NoError(t, err)
		sc.PublicKey = hex.EncodeToString(other.OutputKey())
		err = VerifySigned(sc)
		var e *errcode.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, errcode.CodeIdentityMismatch, e.Code)
	})
}
