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

// Package agent is the SNAP runtime: it owns the identity keypair, routes
// inbound envelopes to registered handlers through the middleware chain
// and the validator, and builds, signs and sends outbound envelopes over
// pluggable transports.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/core/keys"
	"github.com/snap-protocol/snap-go/core/replay"
	"github.com/snap-protocol/snap-go/core/task"
	"github.com/snap-protocol/snap-go/core/validator"
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/internal/metrics"
	"github.com/snap-protocol/snap-go/transport"
)

// Handler processes one unary request and returns the response payload.
type Handler func(ctx context.Context, env *envelope.Envelope) (any, error)

// StreamHandler processes one streaming request. Each stream.Send emits a
// signed event envelope; the returned payload becomes the final signed
// response envelope that terminates the stream.
type StreamHandler func(ctx context.Context, env *envelope.Envelope, stream *Stream) (any, error)

// Agent is an instantiable SNAP runtime. There is no process-wide state;
// stores and transports are injected and their lifetimes are bounded by
// Start and Stop.
type Agent struct {
	kp   *keys.KeyPair
	card card.AgentCard

	mu             sync.RWMutex
	handlers       map[string]Handler
	streamHandlers map[string]StreamHandler
	middleware     []Middleware
	servers        []transport.Server
	clients        []transport.Client
	replayStore    replay.Store
	taskStore      task.Store
	validatorCfg   validator.Config
	val            *validator.Validator
	signedCard     *card.SignedCard
	started        bool

	log logger.Logger
}

// Option customizes an Agent at construction.
type Option func(*Agent)

// WithValidatorConfig overrides the inbound validation settings.
func WithValidatorConfig(cfg validator.Config) Option {
	return func(a *Agent) { a.validatorCfg = cfg }
}

// WithLogger overrides the agent's logger.
func WithLogger(log logger.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// New creates an agent for the keypair. The card's identity is forced to
// the keypair's address.
func New(kp *keys.KeyPair, c card.AgentCard, opts ...Option) (*Agent, error) {
	if kp == nil {
		return nil, fmt.Errorf("keypair is required")
	}
	c.Identity = kp.Address()
	a := &Agent{
		kp:             kp,
		card:           c,
		handlers:       make(map[string]Handler),
		streamHandlers: make(map[string]StreamHandler),
		validatorCfg:   validator.DefaultConfig(),
		replayStore:    replay.NewDefaultMemoryStore(),
		taskStore:      task.NewMemoryStore(),
		log:            logger.GetDefaultLogger().WithFields(logger.String("component", "agent")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Address returns the agent's P2TR identity address.
func (a *Agent) Address() string { return a.kp.Address() }

// KeyPair returns the agent's identity keypair.
func (a *Agent) KeyPair() *keys.KeyPair { return a.kp }

// Card returns the agent's card.
func (a *Agent) Card() card.AgentCard { return a.card }

// Tasks returns the wired task store.
func (a *Agent) Tasks() task.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.taskStore
}

// Handle registers a unary handler for a method. Last registration wins.
func (a *Agent) Handle(method string, h Handler) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[method] = h
	return a
}

// HandleStream registers a stream handler for a method. Last registration
// wins.
func (a *Agent) HandleStream(method string, h StreamHandler) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streamHandlers[method] = h
	return a
}

// Use appends a middleware to the chain.
func (a *Agent) Use(mw Middleware) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middleware = append(a.middleware, mw)
	return a
}

// Server wires a listening transport.
func (a *Agent) Server(s transport.Server) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, s)
	return a
}

// Client wires an outbound transport.
func (a *Agent) Client(c transport.Client) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clients = append(a.clients, c)
	return a
}

// ReplayStore replaces the replay store.
func (a *Agent) ReplayStore(s replay.Store) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replayStore = s
	return a
}

// TaskStore replaces the task store.
func (a *Agent) TaskStore(s task.Store) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.taskStore = s
	return a
}

// Start begins listening on every wired server transport, binding their
// inbound hooks to this agent. Calling Start on a started agent is a
// no-op.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	a.val = validator.New(a.validatorCfg, a.replayStore)

	for i, s := range a.servers {
		if err := s.Start(ctx, a); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = a.servers[j].Stop(ctx)
			}
			return fmt.Errorf("start %s transport: %w", s.Name(), err)
		}
		a.log.Info("transport started", logger.String("transport", s.Name()))
	}
	a.started = true
	return nil
}

// Stop closes every server transport. Safe to call on a stopped agent.
// The lock is released before waiting so in-flight handlers can drain.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	servers := make([]transport.Server, len(a.servers))
	copy(servers, a.servers)
	a.started = false
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error { return s.Stop(ctx) })
	}
	return g.Wait()
}

// SignedCard returns the agent's signed card, producing and caching it on
// first use.
func (a *Agent) SignedCard() (*card.SignedCard, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signedCard != nil {
		return a.signedCard, nil
	}
	sc, err := card.Sign(&a.card, a.kp)
	if err != nil {
		return nil, err
	}
	a.signedCard = sc
	return sc, nil
}

// validateInbound runs the validator plus the recipient check. The
// recipient check is skipped for service/call (agent-to-service mode).
func (a *Agent) validateInbound(ctx context.Context, env *envelope.Envelope) error {
	v := a.currentValidator()
	if err := v.Validate(ctx, env); err != nil {
		switch errcode.FromError(err).Code {
		case errcode.CodeDuplicateMessage:
			metrics.ReplayRejections.Inc()
		case errcode.CodeTimestampExpired:
			metrics.FreshnessRejections.Inc()
		case errcode.CodeSignatureInvalid:
			metrics.SignatureVerifications.WithLabelValues("invalid").Inc()
		}
		return err
	}
	if env.Sig != "" {
		metrics.SignatureVerifications.WithLabelValues("valid").Inc()
	}
	if env.To != "" && env.Method != envelope.MethodServiceCall && env.To != a.kp.Address() {
		return errcode.Newf(errcode.CodeIdentityMismatch,
			"envelope is addressed to %s, this agent is %s", env.To, a.kp.Address())
	}
	return nil
}

func (a *Agent) currentValidator() *validator.Validator {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.val == nil {
		a.val = validator.New(a.validatorCfg, a.replayStore)
	}
	return a.val
}

// ProcessMessage runs the full inbound pipeline for a unary request:
// inbound middleware, validation, dispatch, response build+sign, outbound
// middleware. On dispatch or handler failure the returned envelope is a
// signed error response and the error carries the typed code; transports
// that propagate failures natively may use either.
func (a *Agent) ProcessMessage(ctx context.Context, inbound *envelope.Envelope) (*envelope.Envelope, error) {
	start := time.Now()
	defer func() {
		metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	var resp *envelope.Envelope
	var dispatchErr error

	mc := &MiddlewareContext{
		Context:   ctx,
		Direction: DirectionInbound,
		Envelope:  inbound,
		Metadata:  make(map[string]any),
	}
	err := runChain(a.middlewareSnapshot(), mc, func() error {
		env := mc.Envelope
		if err := a.validateInbound(ctx, env); err != nil {
			metrics.MessagesProcessed.WithLabelValues(string(env.Type), "failure").Inc()
			return err
		}

		payload, err := a.dispatch(ctx, env)
		if err != nil {
			dispatchErr = err
			resp, _ = a.buildResponse(mc, env, envelope.ErrorPayload(err))
			metrics.MessagesProcessed.WithLabelValues(string(env.Type), "failure").Inc()
			return nil
		}
		resp, err = a.buildResponse(mc, env, payload)
		if err != nil {
			return err
		}
		metrics.MessagesProcessed.WithLabelValues(string(env.Type), "success").Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, dispatchErr
}

// dispatch routes by method to the unary handler family.
func (a *Agent) dispatch(ctx context.Context, env *envelope.Envelope) (any, error) {
	if envelope.IsStreamMethod(env.Method) {
		return nil, errcode.Newf(errcode.CodeInvalidMessage,
			"method %s requires a streaming transport call", env.Method)
	}
	a.mu.RLock()
	h, ok := a.handlers[env.Method]
	a.mu.RUnlock()
	if !ok {
		return nil, errcode.Newf(errcode.CodeMethodNotFound, "no handler for method %s", env.Method)
	}
	return h(ctx, env)
}

// buildResponse constructs and signs the response envelope, running the
// outbound middleware around the signing step.
func (a *Agent) buildResponse(inboundMC *MiddlewareContext, req *envelope.Envelope, payload any) (*envelope.Envelope, error) {
	unsigned, err := envelope.NewResponse(req, a.kp.Address(), payload)
	if err != nil {
		return nil, err
	}
	var signed *envelope.Envelope
	mc := &MiddlewareContext{
		Context:   inboundMC.Context,
		Direction: DirectionOutbound,
		Envelope:  unsigned,
		Metadata:  inboundMC.Metadata,
	}
	err = runChain(a.middlewareSnapshot(), mc, func() error {
		s, err := envelope.Sign(mc.Envelope, a.kp)
		if err != nil {
			return err
		}
		signed = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signed, nil
}

func (a *Agent) middlewareSnapshot() []Middleware {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Middleware, len(a.middleware))
	copy(out, a.middleware)
	return out
}
