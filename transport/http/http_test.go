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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	gohttp "net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snap-protocol/snap-go/agent"
	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/envelope"
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

// startEchoAgent runs an agent with an echo handler behind an HTTP server
// on a random port and returns it with its message endpoint.
func startEchoAgent(t *testing.T, last byte) (*agent.Agent, string) {
	t.Helper()
	a, err := agent.New(testKeyPair(t, last), card.AgentCard{
		Name:    "agent-a",
		Version: "0.1.0",
		Skills:  []card.Skill{{ID: "echo", Name: "Echo"}},
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

	srv := NewServer("127.0.0.1:0", "/snap")
	a.Server(srv)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	return a, "http://" + srv.Addr() + "/snap"
}

func TestUnaryRoundTrip(t *testing.T) {
	receiver, endpoint := startEchoAgent(t, 1)

	caller, err := agent.New(testKeyPair(t, 2), card.AgentCard{
		Name: "agent-b", Version: "0.1.0",
		Skills: []card.Skill{{ID: "echo", Name: "Echo"}},
	})
	require.NoError(t, err)
	caller.Client(NewClient())

	resp, err := caller.SendMessage(context.Background(), receiver.Address(), endpoint,
		map[string]string{"text": "Hello, Agent A!"})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, envelope.TypeResponse, resp.Type)
	assert.Equal(t, receiver.Address(), resp.From)
	assert.NoError(t, envelope.Verify(resp))
	assert.JSONEq(t, `{"text":"Echo: Hello, Agent A!"}`, string(resp.Payload))
}

func TestDuplicateRejected(t *testing.T) {
	receiver, endpoint := startEchoAgent(t, 1)
	sender := testKeyPair(t, 2)

	env, err := envelope.NewRequest(sender.Address(), receiver.Address(),
		envelope.MethodMessageSend, map[string]string{"text": "once"})
	require.NoError(t, err)
	signed, err := envelope.Sign(env, sender)
	require.NoError(t, err)
	body, err := json.Marshal(signed)
	require.NoError(t, err)

	post := func() *gohttp.Response {
		resp, err := gohttp.Post(endpoint, "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	first := post()
	defer first.Body.Close()
	assert.Equal(t, gohttp.StatusOK, first.StatusCode)

	second := post()
	defer second.Body.Close()
	assert.GreaterOrEqual(t, second.StatusCode, 400)
	payload, _ := io.ReadAll(second.Body)
	assert.Contains(t, string(payload), "2006")
}

func TestMalformedJSON(t *testing.T) {
	_, endpoint := startEchoAgent(t, 1)
	resp, err := gohttp.Post(endpoint, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, gohttp.StatusBadRequest, resp.StatusCode)
}

func TestUnknownPath(t *testing.T) {
	_, endpoint := startEchoAgent(t, 1)
	base := strings.TrimSuffix(endpoint, "/snap")
	resp, err := gohttp.Get(base + "/nowhere")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, gohttp.StatusNotFound, resp.StatusCode)
}

func TestStream(t *testing.T) {
	receiver, endpoint := startEchoAgent(t, 1)
	sender := testKeyPair(t, 2)

	env, err := envelope.NewRequest(sender.Address(), receiver.Address(),
		envelope.MethodMessageStream, map[string]string{})
	require.NoError(t, err)
	signed, err := envelope.Sign(env, sender)
	require.NoError(t, err)

	client := NewClient()
	stream, err := client.SendStream(context.Background(), signed, endpoint, nil)
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

func TestWellKnownCard(t *testing.T) {
	receiver, endpoint := startEchoAgent(t, 1)
	base := strings.TrimSuffix(endpoint, "/snap")

	t.Run("serves the signed card with CORS", func(t *testing.T) {
		resp, err := gohttp.Get(base + WellKnownPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, gohttp.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

		var sc card.SignedCard
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sc))
		assert.NoError(t, card.VerifySigned(&sc))
		assert.Equal(t, receiver.Address(), sc.Card.Identity)
	})

	t.Run("discoverViaHttp verifies", func(t *testing.T) {
		sc, err := DiscoverViaHTTP(context.Background(), base)
		require.NoError(t, err)
		assert.Equal(t, receiver.Address(), sc.Card.Identity)
	})
}

func TestClientSupports(t *testing.T) {
	c := NewClient()
	assert.True(t, c.Supports("http://host/snap"))
	assert.True(t, c.Supports("https://host/snap"))
	assert.False(t, c.Supports("ws://host/"))
	assert.False(t, c.Supports(""))
}
