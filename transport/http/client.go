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

// Package http implements the connection-oriented SNAP transport:
// request/response over POST, streaming over server-sent events, and the
// signed well-known card endpoint.
package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/transport"
)

// Default client timeouts.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultIdleTimeout = 60 * time.Second
)

// Client sends SNAP envelopes over HTTP.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	idle       time.Duration
}

// NewClient creates a client with default timeouts.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		idle:       DefaultIdleTimeout,
	}
}

// NewClientWith creates a client around a custom http.Client, for custom
// TLS or proxy settings.
func NewClientWith(hc *http.Client) *Client {
	c := NewClient()
	c.httpClient = hc
	return c
}

// Name implements transport.Client.
func (c *Client) Name() string { return "http" }

// Supports implements transport.Client.
func (c *Client) Supports(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

// Send posts one envelope and returns the parsed response envelope. The
// whole call is bounded by the per-call timeout.
func (c *Client) Send(ctx context.Context, env *envelope.Envelope, endpoint string, opts *transport.Options) (*envelope.Envelope, error) {
	timeout := c.timeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(env)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeInvalidMessage, "encode envelope: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errcode.Newf(errcode.CodeTimeout, "request to %s timed out", endpoint)
		}
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "request to %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "read response: %v", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errcode.Newf(errcode.CodeConnectionFailed,
			"HTTP %d from %s: %s", resp.StatusCode, endpoint, truncate(respBody, 256))
	}

	var out envelope.Envelope
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errcode.Newf(errcode.CodeInvalidMessage, "parse response envelope: %v", err)
	}
	return &out, nil
}

// SendStream posts one envelope with Accept: text/event-stream and yields
// each data: frame as an envelope. The idle timeout resets on every
// frame; the channel closes when the server ends the stream.
func (c *Client) SendStream(ctx context.Context, env *envelope.Envelope, endpoint string, opts *transport.Options) (<-chan *envelope.Envelope, error) {
	idle := c.idle
	if opts != nil && opts.Timeout > 0 {
		idle = opts.Timeout
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeInvalidMessage, "encode envelope: %v", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "request to %s: %v", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "HTTP %d from %s", resp.StatusCode, endpoint)
	}

	out := make(chan *envelope.Envelope)
	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close()

		// Idle watchdog: cancel the request when no frame arrives in time.
		watchdog := time.AfterFunc(idle, cancel)
		defer watchdog.Stop()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 2*1024*1024)
		var data bytes.Buffer
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") {
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
				continue
			}
			if line != "" || data.Len() == 0 {
				continue
			}
			watchdog.Reset(idle)
			var frame envelope.Envelope
			if err := json.Unmarshal(data.Bytes(), &frame); err == nil {
				select {
				case out <- &frame:
				case <-ctx.Done():
					return
				}
			}
			data.Reset()
		}
	}()
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return fmt.Sprintf("%s...", b[:n])
	}
	return string(b)
}
