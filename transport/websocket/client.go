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

// Package websocket implements the full-duplex framed SNAP transport.
// Each outbound call opens one connection; the server routes by method
// family and answers with a single response frame or a sequence of event
// frames terminated by a response frame.
package websocket

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/transport"
)

// DefaultTimeout bounds a unary call; it also serves as the inter-frame
// idle limit for streams.
const DefaultTimeout = 30 * time.Second

// Client sends SNAP envelopes over websocket connections.
type Client struct {
	dialer  *websocket.Dialer
	timeout time.Duration
}

// NewClient creates a client with the default dialer.
func NewClient() *Client {
	return &Client{dialer: websocket.DefaultDialer, timeout: DefaultTimeout}
}

// Name implements transport.Client.
func (c *Client) Name() string { return "websocket" }

// Supports implements transport.Client.
func (c *Client) Supports(endpoint string) bool {
	return strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://")
}

// Send opens a connection, writes the envelope, waits for one text frame
// and closes.
func (c *Client) Send(ctx context.Context, env *envelope.Envelope, endpoint string, opts *transport.Options) (*envelope.Envelope, error) {
	timeout := c.timeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "dial %s: %v", endpoint, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "set deadline: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "write envelope: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "set deadline: %v", err)
	}
	var resp envelope.Envelope
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, errcode.Newf(errcode.CodeTimeout, "read response: %v", err)
	}
	return &resp, nil
}

// SendStream opens a connection, writes the envelope and yields frames
// until one carries type=response, then closes. The read deadline resets
// on each frame.
func (c *Client) SendStream(ctx context.Context, env *envelope.Envelope, endpoint string, opts *transport.Options) (<-chan *envelope.Envelope, error) {
	idle := c.timeout
	if opts != nil && opts.Timeout > 0 {
		idle = opts.Timeout
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "dial %s: %v", endpoint, err)
	}
	if err := conn.WriteJSON(env); err != nil {
		conn.Close()
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "write envelope: %v", err)
	}

	out := make(chan *envelope.Envelope)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
				return
			}
			var frame envelope.Envelope
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			select {
			case out <- &frame:
			case <-ctx.Done():
				return
			}
			if frame.Type == envelope.TypeResponse {
				return
			}
		}
	}()
	return out, nil
}
