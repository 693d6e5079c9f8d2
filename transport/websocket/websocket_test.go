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

package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snap-protocol/snap-go/agent"
	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/keys"
	"github.com/snap-protocol/snap-go/transport"
)

func testKeyPair(t *testing.T, last byte) *keys.KeyPair {
	t.Helper()
	secret := make([]byte, keys.SecretSize)
	secret[keys.SecretSize-1] = last
	kp, err := keys.DeriveKeyPair(secret, keys.NetworkMainnet)
	require.NoError(t, err)
	return kp
}

// startAgent runs an agent behind a websocket server on a random port.
func startAgent(t *testing.T, last byte) (*agent.Agent, string) {
	t.Helper()
	a, err := agent.New(testKeyPair(t, last), card.AgentCard{
		Name: "socket-agent", Version: "0.1.0",
		Skills: []card.Skill{{ID: "echo", Name: "Echo"}},
	})
	require.NoError(t, err)

	a.Handle(envelope.MethodMessageSend, func(ctx context.Context, env *envelope.Envelope) (any, error) {
		var p struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(env.Payload, &p)
		return map[string]string{"text": "Echo: " + p.Text}, nil
	})
	a.HandleStream(envelope.MethodMessageStream, func(ctx context.Context, env *envelope.Envelope, stream *agent.Stream) (any, error) {
		for i := 0; i < 2; i++ {
			if err := stream.Send(map[string]int{"seq": i}); err != nil {
				return nil, err
			}
		}
		return map[string]string{"state": "completed"}, nil
	})

	srv := NewServer("127.0.0.1:0", "/")
	srv.SetPingInterval(200 * time.Millisecond)
	a.Server(srv)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	return a, "ws://" + srv.Addr() + "/"
}

func TestUnary(t *testing.T) {
	receiver, endpoint := startAgent(t, 1)
	sender := testKeyPair(t, 2)

	env, err := envelope.NewRequest(sender.Address(), receiver.Address(),
		envelope.MethodMessageSend, map[string]string{"text": "hi"})
	require.NoError(t, err)
	signed, err := envelope.Sign(env, sender)
	require.NoError(t, err)

	resp, err := NewClient().Send(context.Background(), signed, endpoint, nil)
	require.NoError(t, err)
	assert.Equal(t, envelope.TypeResponse, resp.Type)
	assert.NoError(t, envelope.Verify(resp))
	assert.JSONEq(t, `{"text":"Echo: hi"}`, string(resp.Payload))
}

func TestStreamDelivery(t *testing.T) {
	receiver, endpoint := startAgent(t, 1)
	sender := testKeyPair(t, 2)

	env, err := envelope.NewRequest(sender.Address(), receiver.Address(),
		envelope.MethodMessageStream, map[string]string{})
	require.NoError(t, err)
	signed, err := envelope.Sign(env, sender)
	require.NoError(t, err)

	stream, err := NewClient().SendStream(context.Background(), signed, endpoint, nil)
	require.NoError(t, err)

	var got []*envelope.Envelope
	for frame := range stream {
		got = append(got, frame)
	}
	require.Len(t, got, 3)
	assert.Equal(t, envelope.TypeEvent, got[0].Type)
	assert.Equal(t, envelope.TypeEvent, got[1].Type)
	assert.Equal(t, envelope.TypeResponse, got[2].Type)
	assert.JSONEq(t, `{"seq":0}`, string(got[0].Payload))
	assert.JSONEq(t, `{"seq":1}`, string(got[1].Payload))
}

func TestRejectedRequestTimesOut(t *testing.T) {
	receiver, endpoint := startAgent(t, 1)
	sender := testKeyPair(t, 2)

	// A stale timestamp is rejected server side; the socket protocol
	// answers with silence, so the caller times out.
	env, err := envelope.NewRequest(sender.Address(), receiver.Address(),
		envelope.MethodMessageSend, map[string]string{"text": "late"})
	require.NoError(t, err)
	env.Timestamp -= 3600
	signed, err := envelope.Sign(env, sender)
	require.NoError(t, err)

	_, err = NewClient().Send(context.Background(), signed, endpoint,
		&transport.Options{Timeout: 300 * time.Millisecond})
	assert.Error(t, err)
}

func TestClientSupports(t *testing.T) {
	c := NewClient()
	assert.True(t, c.Supports("ws://host/"))
	assert.True(t, c.Supports("wss://host/"))
	assert.False(t, c.Supports("http://host/"))
}
