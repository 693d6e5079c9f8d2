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
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/transport"
)

// Send builds, signs and delivers a request envelope to the endpoint and
// returns the response envelope. The outbound middleware chain wraps the
// sign+send step.
func (a *Agent) Send(ctx context.Context, to, endpoint, method string, payload any, opts *transport.Options) (*envelope.Envelope, error) {
	client, err := a.clientFor(endpoint)
	if err != nil {
		return nil, err
	}
	unsigned, err := envelope.NewRequest(a.kp.Address(), to, method, payload)
	if err != nil {
		return nil, err
	}

	var resp *envelope.Envelope
	mc := &MiddlewareContext{
		Context:   ctx,
		Direction: DirectionOutbound,
		Envelope:  unsigned,
		Metadata:  make(map[string]any),
	}
	err = runChain(a.middlewareSnapshot(), mc, func() error {
		signed, err := envelope.Sign(mc.Envelope, a.kp)
		if err != nil {
			return err
		}
		resp, err = client.Send(ctx, signed, endpoint, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SendStream builds, signs and delivers a streaming request and returns
// the transport's lazy sequence of reply envelopes.
func (a *Agent) SendStream(ctx context.Context, to, endpoint, method string, payload any, opts *transport.Options) (<-chan *envelope.Envelope, error) {
	client, err := a.clientFor(endpoint)
	if err != nil {
		return nil, err
	}
	unsigned, err := envelope.NewRequest(a.kp.Address(), to, method, payload)
	if err != nil {
		return nil, err
	}

	var stream <-chan *envelope.Envelope
	mc := &MiddlewareContext{
		Context:   ctx,
		Direction: DirectionOutbound,
		Envelope:  unsigned,
		Metadata:  make(map[string]any),
	}
	err = runChain(a.middlewareSnapshot(), mc, func() error {
		signed, err := envelope.Sign(mc.Envelope, a.kp)
		if err != nil {
			return err
		}
		stream, err = client.SendStream(ctx, signed, endpoint, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// clientFor picks the first wired client that supports the endpoint.
func (a *Agent) clientFor(endpoint string) (transport.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.clients {
		if c.Supports(endpoint) {
			return c, nil
		}
	}
	return nil, errcode.Newf(errcode.CodeConnectionFailed, "no transport supports endpoint %q", endpoint)
}

// SendMessage sends a message/send request.
func (a *Agent) SendMessage(ctx context.Context, to, endpoint string, payload any) (*envelope.Envelope, error) {
	return a.Send(ctx, to, endpoint, envelope.MethodMessageSend, payload, nil)
}

// StreamMessage opens a message/stream exchange.
func (a *Agent) StreamMessage(ctx context.Context, to, endpoint string, payload any) (<-chan *envelope.Envelope, error) {
	return a.SendStream(ctx, to, endpoint, envelope.MethodMessageStream, payload, nil)
}

// GetTask sends a tasks/get request.
func (a *Agent) GetTask(ctx context.Context, to, endpoint, taskID string) (*envelope.Envelope, error) {
	return a.Send(ctx, to, endpoint, envelope.MethodTasksGet, map[string]string{"id": taskID}, nil)
}

// CancelTask sends a tasks/cancel request.
func (a *Agent) CancelTask(ctx context.Context, to, endpoint, taskID string) (*envelope.Envelope, error) {
	return a.Send(ctx, to, endpoint, envelope.MethodTasksCancel, map[string]string{"id": taskID}, nil)
}

// Resubscribe reopens the event stream of an existing task.
func (a *Agent) Resubscribe(ctx context.Context, to, endpoint, taskID string) (<-chan *envelope.Envelope, error) {
	return a.SendStream(ctx, to, endpoint, envelope.MethodTasksResubscribe, map[string]string{"id": taskID}, nil)
}

// CallService sends a service/call request. to is omitted: the recipient
// is a service, not an addressed agent.
func (a *Agent) CallService(ctx context.Context, endpoint string, payload any) (*envelope.Envelope, error) {
	return a.Send(ctx, "", endpoint, envelope.MethodServiceCall, payload, nil)
}
