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

// Package validator performs the ordered inbound checks on a wire
// envelope: structure, field constraints, sizes, network consistency,
// timestamp freshness, replay and signature. Checks fail fast, each with
// its own error kind, and a rejected envelope never marks the replay
// store.
package validator

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/core/keys"
	"github.com/snap-protocol/snap-go/core/replay"
)

// Protocol size limits.
const (
	MaxEnvelopeSize = 10 * 1024 * 1024
	MaxPayloadSize  = 1024 * 1024
	MaxPayloadDepth = 10
	MaxMethodLength = 64
)

// DefaultMaxClockDrift is the freshness window when none is configured.
const DefaultMaxClockDrift = 60 * time.Second

var (
	idPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+$`)
	methodPattern  = regexp.MustCompile(`^[a-z]+/[a-z_]+$`)
	sigPattern     = regexp.MustCompile(`^[0-9a-f]{128}$`)
)

// Config is the validator's configuration surface.
type Config struct {
	// SkipTimestampCheck disables the freshness check.
	SkipTimestampCheck bool
	// MaxClockDrift is the accepted |now - timestamp| (default 60s).
	MaxClockDrift time.Duration
	// SkipReplayCheck disables the duplicate guard.
	SkipReplayCheck bool
}

// DefaultConfig returns the validator defaults.
func DefaultConfig() Config {
	return Config{MaxClockDrift: DefaultMaxClockDrift}
}

// Validator runs the inbound check sequence against a replay store.
type Validator struct {
	config Config
	store  replay.Store
	now    func() time.Time
}

// New creates a validator. store may be nil when SkipReplayCheck is set.
func New(config Config, store replay.Store) *Validator {
	if config.MaxClockDrift <= 0 {
		config.MaxClockDrift = DefaultMaxClockDrift
	}
	return &Validator{config: config, store: store, now: time.Now}
}

// Validate runs every check in order and, on success, records the
// envelope in the replay store. The first failure is returned as a typed
// error.
func (v *Validator) Validate(ctx context.Context, env *envelope.Envelope) error {
	if err := CheckStructure(env); err != nil {
		return err
	}
	if err := CheckConstraints(env); err != nil {
		return err
	}
	if err := CheckSizes(env); err != nil {
		return err
	}
	if err := CheckNetworks(env); err != nil {
		return err
	}
	if !v.config.SkipTimestampCheck {
		if err := v.checkFreshness(env); err != nil {
			return err
		}
	}
	if !v.config.SkipReplayCheck {
		seen, err := v.store.HasSeen(ctx, env.From, env.ID)
		if err != nil {
			return errcode.Newf(errcode.CodeInternal, "replay store: %v", err)
		}
		if seen {
			return errcode.Newf(errcode.CodeDuplicateMessage,
				"message %s from %s was already processed", env.ID, env.From)
		}
	}
	if err := checkSignature(env); err != nil {
		return err
	}

	if !v.config.SkipReplayCheck {
		if err := v.store.MarkSeen(ctx, env.From, env.ID, v.now()); err != nil {
			return errcode.Newf(errcode.CodeInternal, "replay store: %v", err)
		}
	}
	return nil
}

// CheckStructure verifies required fields are present and well-typed.
func CheckStructure(env *envelope.Envelope) error {
	if env == nil {
		return errcode.New(errcode.CodeInvalidMessage, "envelope is nil")
	}
	switch {
	case env.ID == "":
		return errcode.New(errcode.CodeInvalidMessage, "id is required")
	case env.Version == "":
		return errcode.New(errcode.CodeInvalidMessage, "version is required")
	case env.From == "":
		return errcode.New(errcode.CodeInvalidMessage, "from is required")
	case env.Method == "":
		return errcode.New(errcode.CodeInvalidMessage, "method is required")
	case len(env.Payload) == 0:
		return errcode.New(errcode.CodeInvalidMessage, "payload is required")
	case env.Timestamp < 0:
		return errcode.New(errcode.CodeInvalidMessage, "timestamp must be non-negative")
	}
	switch env.Type {
	case envelope.TypeRequest, envelope.TypeResponse, envelope.TypeEvent:
	default:
		return errcode.Newf(errcode.CodeInvalidMessage, "unknown envelope type %q", env.Type)
	}
	return nil
}

// CheckConstraints verifies field formats.
func CheckConstraints(env *envelope.Envelope) error {
	if !idPattern.MatchString(env.ID) {
		return errcode.New(errcode.CodeInvalidMessage, "id must be 1-128 chars of [A-Za-z0-9_-]")
	}
	if !versionPattern.MatchString(env.Version) {
		return errcode.Newf(errcode.CodeInvalidMessage, "version %q is malformed", env.Version)
	}
	if len(env.Method) > MaxMethodLength || !methodPattern.MatchString(env.Method) {
		return errcode.Newf(errcode.CodeInvalidMessage, "method %q is malformed", env.Method)
	}
	if env.Sig != "" && !sigPattern.MatchString(env.Sig) {
		return errcode.New(errcode.CodeSignatureInvalid, "sig must be 128 lowercase hex chars")
	}
	if _, _, err := keys.DecodeP2TR(env.From); err != nil {
		return errcode.Newf(errcode.CodeIdentityInvalid, "from: %v", err)
	}
	if env.To != "" {
		if _, _, err := keys.DecodeP2TR(env.To); err != nil {
			return errcode.Newf(errcode.CodeIdentityInvalid, "to: %v", err)
		}
	}
	if !json.Valid(env.Payload) || env.Payload[0] != '{' {
		return errcode.New(errcode.CodeInvalidPayload, "payload must be a JSON object")
	}
	return nil
}

// CheckSizes enforces the serialized envelope, payload and nesting limits.
func CheckSizes(env *envelope.Envelope) error {
	if len(env.Payload) > MaxPayloadSize {
		return errcode.Newf(errcode.CodeMessageTooLarge,
			"payload is %d bytes, limit %d", len(env.Payload), MaxPayloadSize)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return errcode.Newf(errcode.CodeInvalidMessage, "envelope does not serialize: %v", err)
	}
	if len(raw) > MaxEnvelopeSize {
		return errcode.Newf(errcode.CodeMessageTooLarge,
			"envelope is %d bytes, limit %d", len(raw), MaxEnvelopeSize)
	}
	if depth := payloadDepth(env.Payload); depth > MaxPayloadDepth {
		return errcode.Newf(errcode.CodeInvalidPayload,
			"payload nesting depth %d exceeds %d", depth, MaxPayloadDepth)
	}
	return nil
}

// CheckNetworks rejects a mixed bc/tb from-to pair. The rule is enforced
// as mandatory here; see DESIGN.md.
func CheckNetworks(env *envelope.Envelope) error {
	if env.To == "" {
		return nil
	}
	_, fromNet, err := keys.DecodeP2TR(env.From)
	if err != nil {
		return errcode.Newf(errcode.CodeIdentityInvalid, "from: %v", err)
	}
	_, toNet, err := keys.DecodeP2TR(env.To)
	if err != nil {
		return errcode.Newf(errcode.CodeIdentityInvalid, "to: %v", err)
	}
	if fromNet != toNet {
		return errcode.Newf(errcode.CodeIdentityMismatch,
			"from is on %s but to is on %s", fromNet, toNet)
	}
	return nil
}

// checkFreshness enforces |now - timestamp| <= MaxClockDrift.
func (v *Validator) checkFreshness(env *envelope.Envelope) error {
	drift := v.now().Unix() - env.Timestamp
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > v.config.MaxClockDrift {
		return errcode.Newf(errcode.CodeTimestampExpired,
			"timestamp is %ds away from local clock, limit %s", drift, v.config.MaxClockDrift)
	}
	return nil
}

// checkSignature requires a signature on requests and verifies any
// signature that is present, regardless of type.
func checkSignature(env *envelope.Envelope) error {
	if env.Sig == "" {
		if env.Type == envelope.TypeRequest {
			return errcode.New(errcode.CodeSignatureMissing, "requests must be signed")
		}
		return nil
	}
	return envelope.Verify(env)
}

// payloadDepth measures the maximum bracket nesting of raw JSON without
// decoding it into memory.
func payloadDepth(raw json.RawMessage) int {
	depth, deepest := 0, 0
	inString, escaped := false, false
	for _, b := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > deepest {
				deepest = depth
			}
		case '}', ']':
			depth--
		}
	}
	return deepest
}
