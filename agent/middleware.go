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

package agent

import (
	"context"

	"github.com/snap-protocol/snap-go/core/envelope"
)

// Direction tells a middleware which way the envelope is traveling.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MiddlewareContext is the per-invocation state handed to interceptors.
// Middleware may mutate Metadata, the envelope's fields, or reassign
// Envelope entirely; the runtime reads it back after the chain. Metadata
// is scoped to one request; for streams the chain wraps the whole
// exchange, not each event.
type MiddlewareContext struct {
	Context   context.Context
	Direction Direction
	Envelope  *envelope.Envelope
	Metadata  map[string]any
}

// MiddlewareFunc is one interceptor. It must call next unless it
// intentionally short-circuits the exchange.
type MiddlewareFunc func(mc *MiddlewareContext, next func() error) error

// Middleware is a named interceptor. Registration order is invocation
// order: the first registered runs outermost on both directions, and the
// innermost next runs the agent's built-in step (validate+dispatch
// inbound, sign+send outbound).
type Middleware struct {
	Name string
	Fn   MiddlewareFunc
}

// runChain composes the onion and executes it around core.
func runChain(mws []Middleware, mc *MiddlewareContext, core func() error) error {
	next := core
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := next
		next = func() error {
			return mw.Fn(mc, inner)
		}
	}
	return next()
}
