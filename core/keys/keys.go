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

// Package keys derives SNAP agent identities from a 32-byte secret.
//
// The derivation follows BIP-340/341 key-path semantics: the secret s
// yields the internal x-only key P, the TapTweak produces the output key
// Q = P + H_TapTweak(P)*G, and the P2TR address is the bech32m encoding
// of (witness v1, xonly(Q)). SNAP envelope signatures are made with the
// tweaked scalar and verify against Q decoded from the address; the
// untweaked internal key is used only by the relay layer.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SecretSize is the required secret length in bytes.
const SecretSize = 32

// addressLength is the exact length of a P2TR address for a 32-byte
// witness program.
const addressLength = 62

var (
	ErrInvalidSecret         = errors.New("secret is not a valid scalar")
	ErrInvalidAddress        = errors.New("malformed P2TR address")
	ErrInvalidWitnessVersion = errors.New("address witness version is not 1")
	ErrUnknownNetwork        = errors.New("unknown network prefix")
)

// Network selects the address prefix an identity is encoded with.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// HRP returns the bech32m human-readable prefix for the network.
func (n Network) HRP() string {
	if n == NetworkTestnet {
		return "tb"
	}
	return "bc"
}

// networkFromHRP resolves a bech32m prefix back to a Network.
func networkFromHRP(hrp string) (Network, error) {
	switch hrp {
	case "bc":
		return NetworkMainnet, nil
	case "tb":
		return NetworkTestnet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, hrp)
	}
}

// taggedHash computes the BIP-340 tagged hash SHA256(SHA256(tag) ||
// SHA256(tag) || msg).
func taggedHash(tag string, msg []byte) [32]byte {
	tagHash := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	h.Write(msg)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// parseSecret validates the secret and returns it as a private key. Zero
// and out-of-range scalars are rejected.
func parseSecret(secret []byte) (*secp256k1.PrivateKey, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidSecret, SecretSize, len(secret))
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(secret); overflow {
		return nil, fmt.Errorf("%w: value exceeds curve order", ErrInvalidSecret)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("%w: value is zero", ErrInvalidSecret)
	}
	return secp256k1.NewPrivateKey(&s), nil
}

// PublicKey returns the x-only internal key P for the secret, with the
// even-y normalization of BIP-340.
func PublicKey(secret []byte) ([]byte, error) {
	priv, err := parseSecret(secret)
	if err != nil {
		return nil, err
	}
	return schnorr.SerializePubKey(priv.PubKey()), nil
}

// TaprootTweak computes the x-only output key Q = lift_x(P) +
// H_TapTweak(P)*G for the key-path-only case (no script tree). The result
// depends only on P.
func TaprootTweak(internal []byte) ([]byte, error) {
	if len(internal) != 32 {
		return nil, fmt.Errorf("%w: internal key must be 32 bytes", ErrInvalidSecret)
	}
	pub, err := schnorr.ParsePubKey(internal)
	if err != nil {
		return nil, fmt.Errorf("lift_x failed: %w", err)
	}

	tweak := taggedHash("TapTweak", internal)
	var t secp256k1.ModNScalar
	if t.SetBytes(&tweak) != 0 {
		return nil, errors.New("tap tweak exceeds curve order")
	}

	var p, tG, q secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	secp256k1.ScalarBaseMultNonConst(&t, &tG)
	secp256k1.AddNonConst(&p, &tG, &q)
	if (q.X.IsZero() && q.Y.IsZero()) || q.Z.IsZero() {
		return nil, errors.New("tweaked key is the point at infinity")
	}
	q.ToAffine()
	return schnorr.SerializePubKey(secp256k1.NewPublicKey(&q.X, &q.Y)), nil
}

// TweakSecret adjusts the secret so that the resulting key signs for the
// output key Q, matching BIP-341 key-path spending. If P has odd y the
// scalar is negated before the tweak is added.
func TweakSecret(secret []byte) (*secp256k1.PrivateKey, error) {
	priv, err := parseSecret(secret)
	if err != nil {
		return nil, err
	}

	s := priv.Key
	if priv.PubKey().SerializeCompressed()[0] == secp256k1.PubKeyFormatCompressedOdd {
		s.Negate()
	}

	internal := schnorr.SerializePubKey(priv.PubKey())
	tweak := taggedHash("TapTweak", internal)
	var t secp256k1.ModNScalar
	if t.SetBytes(&tweak) != 0 {
		return nil, errors.New("tap tweak exceeds curve order")
	}

	s.Add(&t)
	if s.IsZero() {
		return nil, errors.New("tweaked scalar is zero")
	}
	return secp256k1.NewPrivateKey(&s), nil
}

// EncodeP2TR encodes an x-only output key as a witness v1 bech32m address.
func EncodeP2TR(outputKey []byte, network Network) (string, error) {
	if len(outputKey) != 32 {
		return "", fmt.Errorf("%w: output key must be 32 bytes", ErrInvalidAddress)
	}
	converted, err := bech32.ConvertBits(outputKey, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert witness program: %w", err)
	}
	addr, err := bech32.EncodeM(network.HRP(), append([]byte{0x01}, converted...))
	if err != nil {
		return "", fmt.Errorf("bech32m encode: %w", err)
	}
	return addr, nil
}

// DecodeP2TR decodes a P2TR address back to its x-only output key and
// network. The address must be exactly 62 characters, carry witness
// version 1, use a bech32m checksum and hold a 32-byte program.
func DecodeP2TR(address string) ([]byte, Network, error) {
	if len(address) != addressLength {
		return nil, "", fmt.Errorf("%w: length %d", ErrInvalidAddress, len(address))
	}
	hrp, data, version, err := bech32.DecodeGeneric(address)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	network, err := networkFromHRP(hrp)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 || data[0] != 0x01 {
		return nil, "", ErrInvalidWitnessVersion
	}
	if version != bech32.VersionM {
		return nil, "", fmt.Errorf("%w: witness v1 requires bech32m checksum", ErrInvalidAddress)
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(program) != 32 {
		return nil, "", fmt.Errorf("%w: witness program is %d bytes", ErrInvalidAddress, len(program))
	}
	return program, network, nil
}

// AddressFromInternalKey tweaks an x-only internal key and encodes the
// result as a P2TR address. This is the mapping the relay transport uses
// to check that an event author's key matches an envelope's from address.
func AddressFromInternalKey(internal []byte, network Network) (string, error) {
	q, err := TaprootTweak(internal)
	if err != nil {
		return "", err
	}
	return EncodeP2TR(q, network)
}

// KeyPair holds the derived identity material for one agent. The secret
// and derived scalars never leave this package except through the signing
// methods and the relay-layer accessors below.
type KeyPair struct {
	secret   *secp256k1.PrivateKey
	tweaked  *secp256k1.PrivateKey
	internal []byte
	output   []byte
	address  string
	network  Network
}

// DeriveKeyPair derives the full identity for a 32-byte secret on the
// given network. Derivation is deterministic.
func DeriveKeyPair(secret []byte, network Network) (*KeyPair, error) {
	priv, err := parseSecret(secret)
	if err != nil {
		return nil, err
	}
	internal := schnorr.SerializePubKey(priv.PubKey())
	output, err := TaprootTweak(internal)
	if err != nil {
		return nil, err
	}
	tweaked, err := TweakSecret(secret)
	if err != nil {
		return nil, err
	}
	address, err := EncodeP2TR(output, network)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		secret:   priv,
		tweaked:  tweaked,
		internal: internal,
		output:   output,
		address:  address,
		network:  network,
	}, nil
}

// Address returns the agent's P2TR address.
func (kp *KeyPair) Address() string { return kp.address }

// Network returns the network the address is encoded for.
func (kp *KeyPair) Network() Network { return kp.network }

// InternalPubKey returns the 32-byte x-only internal key P.
func (kp *KeyPair) InternalPubKey() []byte {
	out := make([]byte, 32)
	copy(out, kp.internal)
	return out
}

// InternalPubKeyHex returns P as lowercase hex, the form relay events and
// tags carry.
func (kp *KeyPair) InternalPubKeyHex() string {
	return hex.EncodeToString(kp.internal)
}

// OutputKey returns the 32-byte x-only output key Q the address encodes.
func (kp *KeyPair) OutputKey() []byte {
	out := make([]byte, 32)
	copy(out, kp.output)
	return out
}

// SignHash signs a 32-byte digest with the tweaked scalar and returns the
// 64-byte BIP-340 signature.
func (kp *KeyPair) SignHash(digest [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(kp.tweaked, digest[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// InternalSecretHex exposes the untweaked scalar s as lowercase hex for
// the relay layer, which signs relay events and derives conversation keys
// with the internal key. Callers outside transport code must not use it.
func (kp *KeyPair) InternalSecretHex() string {
	return hex.EncodeToString(kp.secret.Serialize())
}
