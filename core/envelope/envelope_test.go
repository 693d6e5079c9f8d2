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

package envelope

import (
	"bytes"
	"encoding/json"
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

func testEnvelope(kp *keys.KeyPair) *Envelope {
	return &Envelope{
		ID:        "msg-001",
		Version:   Version,
		From:      kp.Address(),
		To:        kp.Address(),
		Type:      TypeRequest,
		Method:    MethodMessageSend,
		Payload:   json.RawMessage(`{"message":{"messageId":"im-1","role":"user","parts":[{"text":"hi"}]}}`),
		Timestamp: 1770163200,
	}
}

func TestSignatureInput(t *testing.T) {
	kp := testKeyPair(t, 1)

	t.Run("seven NUL separated slots", func(t *testing.T) {
		env := testEnvelope(kp)
		input, err := SignatureInput(env)
		require.NoError(t, err)
		assert.Equal(t, 6, bytes.Count(input, []byte{0x00}))
		assert.True(t, bytes.HasPrefix(input, []byte("msg-001\x00")))
	})

	t.Run("absent to keeps its separator", func(t *testing.T) {
		env := testEnvelope(kp)
		env.To = ""
		input, err := SignatureInput(env)
		require.NoError(t, err)
		assert.Equal(t, 6, bytes.Count(input, []byte{0x00}))
		assert.Contains(t, string(input), env.From+"\x00\x00"+string(TypeRequest))
	})

	t.Run("payload is canonicalized", func(t *testing.T) {
		a := testEnvelope(kp)
		a.Payload = json.RawMessage(`{"b":1,"a":2}`)
		b := testEnvelope(kp)
		b.Payload = json.RawMessage(`{"a":2,"b":1}`)
		ia, err := SignatureInput(a)
		require.NoError(t, err)
		ib, err := SignatureInput(b)
		require.NoError(t, err)
		assert.Equal(t, ia, ib)
	})
}

func TestSignVerify(t *testing.T) {
	kp := testKeyPair(t, 1)

	t.Run("round trip", func(t *testing.T) {
		signed, err := Sign(testEnvelope(kp), kp)
		require.NoError(t, err)
		assert.Len(t, signed.Sig, 128)
		assert.NoError(t, Verify(signed))
	})

	t.Run("original is untouched", func(t *testing.T) {
		env := testEnvelope(kp)
		_, err := Sign(env, kp)
		require.NoError(t, err)
		assert.Empty(t, env.Sig)
	})

	t.Run("wrong identity cannot sign", func(t *testing.T) {
		other := testKeyPair(t, 2)
		_, err := Sign(testEnvelope(kp), other)
		var e *errcode.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, errcode.CodeIdentityMismatch, e.Code)
	})

	t.Run("tampered fields fail verification", func(t *testing.T) {
		signed, err := Sign(testEnvelope(kp), kp)
		require.NoError(t, err)

		mutations := map[string]func(*Envelope){
			"id":        func(e *Envelope) { e.ID = "msg-002" },
			"type":      func(e *Envelope) { e.Type = TypeEvent },
			"method":    func(e *Envelope) { e.Method = "tasks/get" },
			"payload":   func(e *Envelope) { e.Payload = json.RawMessage(`{"message":"hj"}`) },
			"timestamp": func(e *Envelope) { e.Timestamp++ },
			"to":        func(e *Envelope) { e.To = "" },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				tampered := signed.Clone()
				mutate(tampered)
				assert.Error(t, Verify(tampered))
			})
		}
	})

	t.Run("wrong signer fails against from", func(t *testing.T) {
		other := testKeyPair(t, 2)
		env := testEnvelope(kp)
		env.From = other.Address() // claims to be other
		signed, err := Sign(env, other)
		require.NoError(t, err)
		// Repoint from at kp's address: signature no longer matches.
		tampered := signed.Clone()
		tampered.From = kp.Address()
		assert.Error(t, Verify(tampered))
	})

	t.Run("corrupted signature hex", func(t *testing.T) {
		signed, err := Sign(testEnvelope(kp), kp)
		require.NoError(t, err)
		signed.Sig = "zz" + signed.Sig[2:]
		err = Verify(signed)
		var e *errcode.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, errcode.CodeSignatureInvalid, e.Code)
	})

	t.Run("flipped signature byte", func(t *testing.T) {
		signed, err := Sign(testEnvelope(kp), kp)
		require.NoError(t, err)
		flipped := []byte(signed.Sig)
		if flipped[10] == 'a' {
			flipped[10] = 'b'
		} else {
			flipped[10] = 'a'
		}
		signed.Sig = string(flipped)
		assert.Error(t, Verify(signed))
	})

	t.Run("missing signature", func(t *testing.T) {
		err := Verify(testEnvelope(kp))
		var e *errcode.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, errcode.CodeSignatureMissing, e.Code)
	})
}

func TestBuilders(t *testing.T) {
	kp := testKeyPair(t, 1)
	peer := testKeyPair(t, 2)

	t.Run("request", func(t *testing.T) {
		env, err := NewRequest(kp.Address(), peer.Address(), MethodMessageSend, map[string]string{"k": "v"})
		require.NoError(t, err)
		assert.Equal(t, TypeRequest, env.Type)
		assert.Equal(t, Version, env.Version)
		assert.NotEmpty(t, env.ID)
		assert.Empty(t, env.Sig)
	})

	t.Run("response flips from and to", func(t *testing.T) {
		req, err := NewRequest(kp.Address(), peer.Address(), MethodMessageSend, nil)
		require.NoError(t, err)
		resp, err := NewResponse(req, peer.Address(), map[string]string{"ok": "1"})
		require.NoError(t, err)
		assert.Equal(t, TypeResponse, resp.Type)
		assert.Equal(t, peer.Address(), resp.From)
		assert.Equal(t, kp.Address(), resp.To)
		assert.NotEqual(t, req.ID, resp.ID)
	})

	t.Run("nil payload becomes empty object", func(t *testing.T) {
		env, err := NewRequest(kp.Address(), "", MethodServiceCall, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(env.Payload))
	})
}

func TestIsStreamMethod(t *testing.T) {
	assert.True(t, IsStreamMethod(MethodMessageStream))
	assert.True(t, IsStreamMethod(MethodTasksResubscribe))
	assert.False(t, IsStreamMethod(MethodMessageSend))
	assert.False(t, IsStreamMethod(MethodTasksGet))
}

func TestErrorPayload(t *testing.T) {
	raw := ErrorPayload(errcode.New(errcode.CodeMethodNotFound, "nope"))
	var decoded struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, errcode.CodeMethodNotFound, decoded.Error.Code)
	assert.Equal(t, "nope", decoded.Error.Message)
}
