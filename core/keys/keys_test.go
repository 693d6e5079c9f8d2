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

package keys

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSecret returns a 32-byte secret ending in the given byte.
func testSecret(last byte) []byte {
	s := make([]byte, SecretSize)
	s[SecretSize-1] = last
	return s
}

func TestPublicKey(t *testing.T) {
	t.Run("secret 1 yields the generator x coordinate", func(t *testing.T) {
		p, err := PublicKey(testSecret(1))
		require.NoError(t, err)
		assert.Equal(t,
			"79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
			hex.EncodeToString(p))
	})

	t.Run("rejects zero secret", func(t *testing.T) {
		_, err := PublicKey(make([]byte, SecretSize))
		assert.ErrorIs(t, err, ErrInvalidSecret)
	})

	t.Run("rejects overflowing secret", func(t *testing.T) {
		over := make([]byte, SecretSize)
		for i := range over {
			over[i] = 0xff
		}
		_, err := PublicKey(over)
		assert.ErrorIs(t, err, ErrInvalidSecret)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := PublicKey([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidSecret)
	})
}

func TestDeriveKeyPair(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a, err := DeriveKeyPair(testSecret(1), NetworkMainnet)
		require.NoError(t, err)
		b, err := DeriveKeyPair(testSecret(1), NetworkMainnet)
		require.NoError(t, err)
		assert.Equal(t, a.Address(), b.Address())
		assert.Equal(t, a.InternalPubKeyHex(), b.InternalPubKeyHex())
	})

	t.Run("distinct secrets yield distinct identities", func(t *testing.T) {
		a, err := DeriveKeyPair(testSecret(1), NetworkMainnet)
		require.NoError(t, err)
		b, err := DeriveKeyPair(testSecret(2), NetworkMainnet)
		require.NoError(t, err)
		assert.NotEqual(t, a.Address(), b.Address())
	})

	t.Run("network prefixes", func(t *testing.T) {
		main, err := DeriveKeyPair(testSecret(1), NetworkMainnet)
		require.NoError(t, err)
		test, err := DeriveKeyPair(testSecret(1), NetworkTestnet)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(main.Address(), "bc1p"))
		assert.True(t, strings.HasPrefix(test.Address(), "tb1p"))
		assert.Len(t, main.Address(), 62)
		assert.Len(t, test.Address(), 62)
	})

	t.Run("address decodes to the output key", func(t *testing.T) {
		kp, err := DeriveKeyPair(testSecret(7), NetworkMainnet)
		require.NoError(t, err)
		decoded, network, err := DecodeP2TR(kp.Address())
		require.NoError(t, err)
		assert.Equal(t, NetworkMainnet, network)
		assert.Equal(t, kp.OutputKey(), decoded)
	})
}

func TestTaprootTweak(t *testing.T) {
	t.Run("depends only on the internal key", func(t *testing.T) {
		p, err := PublicKey(testSecret(3))
		require.NoError(t, err)
		q1, err := TaprootTweak(p)
		require.NoError(t, err)
		q2, err := TaprootTweak(p)
		require.NoError(t, err)
		assert.Equal(t, q1, q2)
		assert.NotEqual(t, p, q1)
	})

	t.Run("is not an involution", func(t *testing.T) {
		kp, err := DeriveKeyPair(testSecret(5), NetworkMainnet)
		require.NoError(t, err)

		// Re-tweaking the output key must move to a different address.
		again, err := AddressFromInternalKey(kp.OutputKey(), NetworkMainnet)
		require.NoError(t, err)
		assert.NotEqual(t, kp.Address(), again)
	})
}

func TestDecodeP2TR(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		kp, err := DeriveKeyPair(testSecret(9), NetworkTestnet)
		require.NoError(t, err)
		program, network, err := DecodeP2TR(kp.Address())
		require.NoError(t, err)
		assert.Equal(t, NetworkTestnet, network)
		assert.Equal(t, kp.OutputKey(), program)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, _, err := DecodeP2TR("bc1ptooshort")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("rejects bad checksum", func(t *testing.T) {
		kp, err := DeriveKeyPair(testSecret(9), NetworkMainnet)
		require.NoError(t, err)
		addr := kp.Address()
		// Flip the final character to break the checksum.
		flipped := addr[:61] + string(flip(addr[61]))
		_, _, err = DecodeP2TR(flipped)
		assert.Error(t, err)
	})

	t.Run("rejects unknown prefix", func(t *testing.T) {
		kp, err := DeriveKeyPair(testSecret(9), NetworkMainnet)
		require.NoError(t, err)
		q := kp.OutputKey()
		// Encode under an hrp that is not bc or tb.
		other, err := encodeUnderHRP(q, "bcrt")
		require.NoError(t, err)
		_, _, err = DecodeP2TR(other)
		assert.Error(t, err)
	})
}

// flip returns a different valid bech32 character.
func flip(c byte) byte {
	if c == 'q' {
		return 'p'
	}
	return 'q'
}

// encodeUnderHRP encodes a witness v1 program under an arbitrary prefix.
func encodeUnderHRP(program []byte, hrp string) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(hrp, append([]byte{0x01}, converted...))
}

func TestDecodeP2TRWitnessVersion(t *testing.T) {
	kp, err := DeriveKeyPair(testSecret(11), NetworkMainnet)
	require.NoError(t, err)

	// A v0 program under bech32 is a valid address of another kind, but
	// not a P2TR identity.
	converted, err := bech32.ConvertBits(kp.OutputKey(), 8, 5, true)
	require.NoError(t, err)
	v0, err := bech32.Encode("bc", append([]byte{0x00}, converted...))
	require.NoError(t, err)
	if len(v0) == 62 {
		_, _, err = DecodeP2TR(v0)
		assert.ErrorIs(t, err, ErrInvalidWitnessVersion)
	}
}
