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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/transport"
)

// WellKnownPath is where the signed agent card is served.
const WellKnownPath = "/.well-known/snap-agent.json"

// DefaultPath is the message endpoint when none is configured.
const DefaultPath = "/snap"

// maxBodySize bounds an inbound request body; the validator enforces the
// protocol limit, this just stops unbounded reads.
const maxBodySize = 11 * 1024 * 1024

// Server is the listening side of the HTTP transport.
type Server struct {
	addr    string
	path    string
	handler transport.Handler
	srv     *http.Server
	ln      net.Listener
	log     logger.Logger
}

// NewServer creates a server listening on addr. path defaults to /snap.
func NewServer(addr, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	return &Server{
		addr: addr,
		path: path,
		log:  logger.GetDefaultLogger().WithFields(logger.String("transport", "http")),
	}
}

// Name implements transport.Server.
func (s *Server) Name() string { return "http" }

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
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server terminated", logger.Error(err))
		}
	}()
	return nil
}

// Stop implements transport.Server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ServeHTTP routes the message path and the well-known card endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == WellKnownPath:
		s.serveCard(w, r)
	case r.URL.Path == s.path && r.Method == http.MethodPost:
		s.serveMessage(w, r)
	case r.URL.Path == s.path && r.Method == http.MethodOptions:
		writeCORS(w.Header())
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

// serveCard returns the current signed card with permissive CORS.
func (s *Server) serveCard(w http.ResponseWriter, r *http.Request) {
	writeCORS(w.Header())
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		sc, err := s.handler.SignedCard()
		if err != nil {
			s.log.Error("signed card unavailable", logger.Error(err))
			http.Error(w, "card unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sc)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// serveMessage handles one inbound envelope: SSE when the caller accepts
// an event stream and the method is a streaming one, single JSON
// otherwise.
func (s *Server) serveMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var env envelope.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// Malformed JSON is a client mistake, not worth logging.
		http.Error(w, "malformed JSON", http.StatusBadRequest)
		return
	}

	wantsStream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if wantsStream && envelope.IsStreamMethod(env.Method) {
		s.serveStream(w, r, &env)
		return
	}

	resp, err := s.handler.ProcessMessage(r.Context(), &env)
	if err != nil {
		code := errcode.FromError(err).Code
		status := errcode.HTTPStatus(code)
		if status >= 500 {
			s.log.Error("handler failed",
				logger.String("method", env.Method), logger.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp != nil {
			_ = json.NewEncoder(w).Encode(resp)
		} else {
			_ = json.NewEncoder(w).Encode(map[string]any{"error": errcode.FromError(err)})
		}
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// serveStream writes the handler's envelopes as SSE data frames.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, env *envelope.Envelope) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream, err := s.handler.ProcessStream(r.Context(), env)
	if err != nil {
		status := errcode.HTTPStatus(errcode.FromError(err).Code)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": errcode.FromError(err)})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range stream {
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
}
