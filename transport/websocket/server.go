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
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/internal/metrics"
	"github.com/snap-protocol/snap-go/transport"
)

// DefaultPingInterval is how often the server pings each peer. A peer
// that fails to answer before the next ping is terminated.
const DefaultPingInterval = 30 * time.Second

// Server is the listening side of the socket transport.
type Server struct {
	addr         string
	path         string
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	handler      transport.Handler
	srv          *http.Server
	ln           net.Listener
	log          logger.Logger

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

// NewServer creates a server listening on addr at path.
func NewServer(addr, path string) *Server {
	if path == "" {
		path = "/"
	}
	return &Server{
		addr:         addr,
		path:         path,
		pingInterval: DefaultPingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
		log:   logger.GetDefaultLogger().WithFields(logger.String("transport", "websocket")),
	}
}

// SetPingInterval overrides the liveness ping interval.
func (s *Server) SetPingInterval(d time.Duration) { s.pingInterval = d }

// Name implements transport.Server.
func (s *Server) Name() string { return "websocket" }

// Addr returns the bound listen address, available after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Start implements transport.Server.
func (s *Server) Start(ctx context.Context, h transport.Handler) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.handler = h

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.upgrade)
	s.srv = &http.Server{Handler: mux}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("socket server terminated", logger.Error(err))
		}
	}()
	return nil
}

// Stop implements transport.Server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	return s.srv.Shutdown(ctx)
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.track(conn)
	metrics.SocketConnections.Inc()
	// Run on the handler goroutine: the request context must stay live
	// for as long as the connection is served.
	s.handleConn(r.Context(), conn)
}

func (s *Server) track(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// handleConn reads envelopes off one connection and answers them. Pings
// run on their own ticker; a pong extends the read deadline, so a silent
// peer times out before the following ping.
func (s *Server) handleConn(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		s.untrack(conn)
		metrics.SocketConnections.Dec()
		_ = conn.Close()
	}()

	deadline := 2 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					_ = conn.Close()
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	writeMu := sync.Mutex{}
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var env envelope.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("socket read ended", logger.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		if envelope.IsStreamMethod(env.Method) {
			stream, err := s.handler.ProcessStream(ctx, &env)
			if err != nil {
				// No response frame; the caller times out per protocol.
				s.log.Warn("stream rejected", logger.String("method", env.Method), logger.Error(err))
				continue
			}
			for frame := range stream {
				if err := writeJSON(frame); err != nil {
					return
				}
			}
			continue
		}

		resp, err := s.handler.ProcessMessage(ctx, &env)
		if resp == nil {
			if err != nil {
				s.log.Warn("message rejected", logger.String("method", env.Method), logger.Error(err))
			}
			continue
		}
		if err := writeJSON(resp); err != nil {
			return
		}
	}
}
