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

// Package card models agent self-description documents and their signed
// form. A signed card binds the card bytes to the identity it names: the
// signature is over SHA-256(JCS(card) || "|" || timestamp) and the
// embedded public key must equal the output key the identity address
// encodes.
package card

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/core/jcs"
	"github.com/snap-protocol/snap-go/core/keys"
)

// MaxCardSize bounds the serialized card.
const MaxCardSize = 64 * 1024

// MaxSkills bounds the skills list.
const MaxSkills = 100

var skillIDPattern = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// Skill describes one capability an agent advertises.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// Endpoint names a transport an agent is reachable over.
type Endpoint struct {
	Transport string `json:"transport"`
	URL       string `json:"url"`
}

// Capabilities are the optional feature flags a card may declare.
type Capabilities struct {
	Streaming         bool `json:"streaming,omitempty"`
	PushNotifications bool `json:"pushNotifications,omitempty"`
}

// RateLimit is an advisory request budget declared by the agent.
type RateLimit struct {
	Requests      int `json:"requests"`
	WindowSeconds int `json:"windowSeconds"`
}

// AgentCard is the self-description document an agent publishes.
type AgentCard struct {
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	Version            string        `json:"version"`
	Identity           string        `json:"identity"`
	Skills             []Skill       `json:"skills"`
	DefaultInputModes  []string      `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string      `json:"defaultOutputModes,omitempty"`
	Endpoints          []Endpoint    `json:"endpoints,omitempty"`
	Relays             []string      `json:"relays,omitempty"`
	Capabilities       *Capabilities `json:"capabilities,omitempty"`
	RateLimit          *RateLimit    `json:"rateLimit,omitempty"`
	DomainAnchor       string        `json:"domainAnchor,omitempty"`
}

// SignedCard wraps a card with its proof of origin.
type SignedCard struct {
	Card      AgentCard `json:"card"`
	Sig       string    `json:"sig"`
	PublicKey string    `json:"publicKey"`
	Timestamp int64     `json:"timestamp"`
}

// Validate checks the card's structural constraints.
func Validate(c *AgentCard) error {
	if c.Name == "" {
		return errcode.New(errcode.CodeCardInvalid, "card name is required")
	}
	if _, _, err := keys.DecodeP2TR(c.Identity); err != nil {
		return errcode.Newf(errcode.CodeCardInvalid, "card identity: %v", err)
	}
	if len(c.Skills) < 1 || len(c.Skills) > MaxSkills {
		return errcode.Newf(errcode.CodeCardInvalid, "card must declare 1-%d skills, has %d", MaxSkills, len(c.Skills))
	}
	for _, s := range c.Skills {
		if !skillIDPattern.MatchString(s.ID) {
			return errcode.Newf(errcode.CodeCardInvalid, "skill id %q is invalid", s.ID)
		}
		if s.Name == "" {
			return errcode.Newf(errcode.CodeCardInvalid, "skill %s has no name", s.ID)
		}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return errcode.Newf(errcode.CodeCardInvalid, "card does not serialize: %v", err)
	}
	if len(raw) > MaxCardSize {
		return errcode.Newf(errcode.CodeCardInvalid, "card is %d bytes, limit %d", len(raw), MaxCardSize)
	}
	return nil
}

// digest computes SHA-256(JCS(card) || "|" || timestamp).
func digest(c *AgentCard, timestamp int64) ([32]byte, error) {
	canonical, err := jcs.Canonicalize(c)
	if err != nil {
		return [32]byte{}, errcode.Newf(errcode.CodeCardInvalid, "canonicalize card: %v", err)
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Sign wraps the card as a SignedCard under the keypair's identity. The
// card's identity must be the keypair's address.
func Sign(c *AgentCard, kp *keys.KeyPair) (*SignedCard, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	if c.Identity != kp.Address() {
		return nil, errcode.Newf(errcode.CodeIdentityMismatch,
			"card identity %s does not match signing identity %s", c.Identity, kp.Address())
	}
	ts := time.Now().Unix()
	d, err := digest(c, ts)
	if err != nil {
		return nil, err
	}
	sig, err := kp.SignHash(d)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeInternal, "sign card: %v", err)
	}
	return &SignedCard{
		Card:      *c,
		Sig:       hex.EncodeToString(sig),
		PublicKey: hex.EncodeToString(kp.OutputKey()),
		Timestamp: ts,
	}, nil
}

// VerifySigned checks (i) the signature over JCS(card)|timestamp against
// the embedded public key and (ii) that the public key equals the output
// key decoded from the card's identity address.
func VerifySigned(sc *SignedCard) error {
	if err := Validate(&sc.Card); err != nil {
		return err
	}

	outputKey, _, err := keys.DecodeP2TR(sc.Card.Identity)
	if err != nil {
		return errcode.Newf(errcode.CodeIdentityInvalid, "card identity: %v", err)
	}
	claimed, err := hex.DecodeString(sc.PublicKey)
	if err != nil || len(claimed) != 32 {
		return errcode.New(errcode.CodeIdentityInvalid, "publicKey is not 32 bytes of hex")
	}
	if !bytes.Equal(outputKey, claimed) {
		return errcode.New(errcode.CodeIdentityMismatch, "publicKey does not match card identity")
	}

	sigBytes, err := hex.DecodeString(sc.Sig)
	if err != nil || len(sigBytes) != 64 {
		return errcode.New(errcode.CodeSignatureInvalid, "card signature is not 64 bytes of hex")
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return errcode.Newf(errcode.CodeSignatureInvalid, "parse card signature: %v", err)
	}
	pub, err := schnorr.ParsePubKey(claimed)
	if err != nil {
		return errcode.Newf(errcode.CodeIdentityInvalid, "parse publicKey: %v", err)
	}

	d, err := digest(&sc.Card, sc.Timestamp)
	if err != nil {
		return err
	}
	if !sig.Verify(d[:], pub) {
		return errcode.New(errcode.CodeSignatureInvalid, "card signature verification failed")
	}
	return nil
}
