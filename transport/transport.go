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

// Package transport defines the abstraction between the agent runtime and
// the wire. The runtime stays independent of specific protocols; HTTP,
// socket and relay implementations live in the subpackages and plug into
// these interfaces.
package transport

import (
	"context"
	"time"

	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/envelope"
)

// Handler is the inbound surface a Server binds to. The agent runtime
// implements it; transports decode one envelope from the wire and hand it
// over.
type Handler interface {
	// ProcessMessage runs the full inbound pipeline for a unary exchange
	// and returns the signed response envelope.
	ProcessMessage(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)

	// ProcessStream runs the inbound pipeline for a streaming exchange.
	// The channel yields signed envelopes in order; all but the last are
	// events, the last is a response, and the channel closes when the
	// stream ends.
	ProcessStream(ctx context.Context, env *envelope.Envelope) (<-chan *envelope.Envelope, error)

	// SignedCard returns the agent's current signed card for transports
	// that serve or publish it.
	SignedCard() (*card.SignedCard, error)
}

// Server is a listening transport bound to an agent.
type Server interface {
	// Name identifies the transport in logs and cards.
	Name() string

	// Start begins listening and routes inbound envelopes to h. It does
	// not block.
	Start(ctx context.Context, h Handler) error

	// Stop closes the listener and all live connections.
	Stop(ctx context.Context) error
}

// Options tune one outbound call.
type Options struct {
	// Timeout bounds the whole unary call, or the inter-event idle time
	// for streams on connection-oriented transports.
	Timeout time.Duration

	// Persist asks the relay transport to use the storable event kind so
	// an offline recipient can fetch the message later. Other transports
	// ignore it.
	Persist bool
}

// Client is an outbound transport.
type Client interface {
	// Name identifies the transport.
	Name() string

	// Supports reports whether this client can deliver to the endpoint.
	Supports(endpoint string) bool

	// Send delivers one envelope and returns the single response.
	Send(ctx context.Context, env *envelope.Envelope, endpoint string, opts *Options) (*envelope.Envelope, error)

	// SendStream delivers one envelope and returns the lazy sequence of
	// reply envelopes, terminated by a response-type envelope.
	SendStream(ctx context.Context, env *envelope.Envelope, endpoint string, opts *Options) (<-chan *envelope.Envelope, error)
}
