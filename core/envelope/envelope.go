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

// Package envelope defines the SNAP wire envelope and its signature
// scheme. Every message is a self-contained envelope whose signature
// covers id, from, to, type, method, the canonicalized payload and the
// timestamp, joined by NUL separators, hashed with SHA-256 and signed
// with BIP-340 Schnorr using the sender's tweaked scalar.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/google/uuid"

	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/core/jcs"
	"github.com/snap-protocol/snap-go/core/keys"
)

// Version is the protocol version stamped on every envelope.
const Version = "0.1"

// Type is the role of an envelope in an exchange.
type Type string

const (
	TypeRequest  Type = "request"
	TypeResponse Type = "response"
	TypeEvent    Type = "event"
)

// Standard method names.
const (
	MethodMessageSend      = "message/send"
	MethodMessageStream    = "message/stream"
	MethodTasksGet         = "tasks/get"
	MethodTasksCancel      = "tasks/cancel"
	MethodTasksResubscribe = "tasks/resubscribe"
	MethodServiceCall      = "service/call"
)

// IsStreamMethod reports whether a method routes to stream handlers.
// message/stream and tasks/resubscribe are streaming; everything else is
// unary.
func IsStreamMethod(method string) bool {
	return method == MethodMessageStream || method == MethodTasksResubscribe
}

// Envelope is one SNAP wire message. From and To are P2TR addresses; To
// is absent in agent-to-service mode. Payload stays raw so the signature
// covers the application's own JSON, not a re-encoding of it.
type Envelope struct {
	ID        string          `json:"id"`
	Version   string          `json:"version"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	Type      Type            `json:"type"`
	Method    string          `json:"method"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Sig       string          `json:"sig,omitempty"`
}

// Clone returns a shallow copy with its own payload buffer.
func (e *Envelope) Clone() *Envelope {
	cp := *e
	if e.Payload != nil {
		cp.Payload = make(json.RawMessage, len(e.Payload))
		copy(cp.Payload, e.Payload)
	}
	return &cp
}

// SignatureInput builds the byte string the signature covers: the seven
// fields joined by single NUL bytes. An absent to contributes an empty
// slot; the six separators always remain.
func SignatureInput(e *Envelope) ([]byte, error) {
	payload, err := jcs.CanonicalizeRaw(e.Payload)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeInvalidPayload, "payload is not valid JSON: %v", err)
	}

	parts := [][]byte{
		[]byte(e.ID),
		[]byte(e.From),
		[]byte(e.To),
		[]byte(e.Type),
		[]byte(e.Method),
		payload,
		[]byte(strconv.FormatInt(e.Timestamp, 10)),
	}

	size := len(parts) - 1
	for _, p := range parts {
		size += len(p)
	}
	input := make([]byte, 0, size)
	for i, p := range parts {
		if i > 0 {
			input = append(input, 0x00)
		}
		input = append(input, p...)
	}
	return input, nil
}

// Hash returns the SHA-256 digest of the signature input.
func Hash(e *Envelope) ([32]byte, error) {
	input, err := SignatureInput(e)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(input), nil
}

// Sign returns a copy of the envelope with Sig set to the 128-hex BIP-340
// signature made with the keypair's tweaked scalar. The keypair must own
// the envelope's from address.
func Sign(e *Envelope, kp *keys.KeyPair) (*Envelope, error) {
	if e.From != kp.Address() {
		return nil, errcode.Newf(errcode.CodeIdentityMismatch,
			"envelope from %s does not match signing identity %s", e.From, kp.Address())
	}
	digest, err := Hash(e)
	if err != nil {
		return nil, err
	}
	sig, err := kp.SignHash(digest)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeInternal, "sign envelope: %v", err)
	}
	signed := e.Clone()
	signed.Sig = hex.EncodeToString(sig)
	return signed, nil
}

// Verify checks the envelope's signature against the output key decoded
// from its from address. Any mutation of a signed field, a wrong signer
// or corrupted signature hex yields a SignatureInvalid error.
func Verify(e *Envelope) error {
	if e.Sig == "" {
		return errcode.New(errcode.CodeSignatureMissing, "envelope carries no signature")
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigBytes) != 64 {
		return errcode.New(errcode.CodeSignatureInvalid, "signature is not 64 bytes of hex")
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return errcode.Newf(errcode.CodeSignatureInvalid, "parse signature: %v", err)
	}

	outputKey, _, err := keys.DecodeP2TR(e.From)
	if err != nil {
		return errcode.Newf(errcode.CodeIdentityInvalid, "decode from address: %v", err)
	}
	pub, err := schnorr.ParsePubKey(outputKey)
	if err != nil {
		return errcode.Newf(errcode.CodeIdentityInvalid, "parse output key: %v", err)
	}

	digest, err := Hash(e)
	if err != nil {
		return err
	}
	if !sig.Verify(digest[:], pub) {
		return errcode.New(errcode.CodeSignatureInvalid, "signature verification failed")
	}
	return nil
}

// now is swappable in tests.
var now = time.Now

// NewRequest builds an unsigned request envelope with a fresh UUID id and
// the current timestamp. to may be empty for agent-to-service calls.
func NewRequest(from, to, method string, payload any) (*Envelope, error) {
	return build(TypeRequest, from, to, method, payload)
}

// NewResponse builds an unsigned response envelope answering req: from and
// to flipped, fresh id, current timestamp.
func NewResponse(req *Envelope, self string, payload any) (*Envelope, error) {
	return build(TypeResponse, self, req.From, req.Method, payload)
}

// NewEvent builds an unsigned event envelope for a streaming exchange.
func NewEvent(req *Envelope, self string, payload any) (*Envelope, error) {
	return build(TypeEvent, self, req.From, req.Method, payload)
}

func build(t Type, from, to, method string, payload any) (*Envelope, error) {
	raw, err := toRaw(payload)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeInvalidPayload, "encode payload: %v", err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Version:   Version,
		From:      from,
		To:        to,
		Type:      t,
		Method:    method,
		Payload:   raw,
		Timestamp: now().Unix(),
	}, nil
}

func toRaw(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}

// ErrorPayload renders a typed failure as the standard error-bearing
// response payload {"error":{code,message,data?}}.
func ErrorPayload(err error) json.RawMessage {
	e := errcode.FromError(err)
	raw, mErr := json.Marshal(map[string]any{"error": e})
	if mErr != nil {
		return json.RawMessage(`{"error":{"code":5001,"message":"internal error"}}`)
	}
	return raw
}
