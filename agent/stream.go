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
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/internal/metrics"
)

// Stream is handed to a StreamHandler so it can emit intermediate event
// envelopes. The channel behind it is unbuffered: Send blocks until the
// event it was given has been taken from the channel, which is the
// backpressure the protocol asks for.
type Stream struct {
	ctx context.Context
	a   *Agent
	req *envelope.Envelope
	out chan<- *envelope.Envelope
}

// Send signs and emits one event envelope carrying the payload. It fails
// once the consumer has gone away.
func (s *Stream) Send(payload any) error {
	env, err := envelope.NewEvent(s.req, s.a.kp.Address(), payload)
	if err != nil {
		return err
	}
	signed, err := envelope.Sign(env, s.a.kp)
	if err != nil {
		return err
	}
	select {
	case s.out <- signed:
		return nil
	case <-s.ctx.Done():
		return errcode.Newf(errcode.CodeTimeout, "stream consumer gone: %v", s.ctx.Err())
	}
}

// ProcessStream runs the inbound pipeline for a streaming request and
// returns the lazy sequence of signed envelopes. All but the last are
// events; the last is the response that terminates the stream. The
// middleware chain wraps the whole exchange once, around validation and
// dispatch, not around each event.
func (a *Agent) ProcessStream(ctx context.Context, inbound *envelope.Envelope) (<-chan *envelope.Envelope, error) {
	mc := &MiddlewareContext{
		Context:   ctx,
		Direction: DirectionInbound,
		Envelope:  inbound,
		Metadata:  make(map[string]any),
	}

	var handler StreamHandler
	err := runChain(a.middlewareSnapshot(), mc, func() error {
		env := mc.Envelope
		if err := a.validateInbound(ctx, env); err != nil {
			metrics.MessagesProcessed.WithLabelValues(string(env.Type), "failure").Inc()
			return err
		}
		if !envelope.IsStreamMethod(env.Method) {
			return errcode.Newf(errcode.CodeInvalidMessage,
				"method %s is not a streaming method", env.Method)
		}
		a.mu.RLock()
		h, ok := a.streamHandlers[env.Method]
		a.mu.RUnlock()
		if !ok {
			return errcode.Newf(errcode.CodeMethodNotFound, "no stream handler for method %s", env.Method)
		}
		handler = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	req := mc.Envelope
	out := make(chan *envelope.Envelope)
	go func() {
		defer close(out)

		stream := &Stream{ctx: ctx, a: a, req: req, out: out}
		payload, err := handler(ctx, req, stream)
		if err != nil {
			a.log.Warn("stream handler failed",
				logger.String("method", req.Method), logger.Error(err))
			payload = envelope.ErrorPayload(err)
			metrics.MessagesProcessed.WithLabelValues(string(req.Type), "failure").Inc()
		} else {
			metrics.MessagesProcessed.WithLabelValues(string(req.Type), "success").Inc()
		}

		final, buildErr := envelope.NewResponse(req, a.kp.Address(), payload)
		if buildErr != nil {
			return
		}
		signed, signErr := envelope.Sign(final, a.kp)
		if signErr != nil {
			return
		}
		select {
		case out <- signed:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
