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

package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/transport"
)

// Name implements transport.Client.
func (t *Transport) Name() string { return "relay" }

// Supports implements transport.Client. The relay transport addresses
// peers by identity, not endpoint; an empty endpoint or a relay://
// marker selects it.
func (t *Transport) Supports(endpoint string) bool {
	return endpoint == "" || strings.HasPrefix(endpoint, "relay://")
}

// Send publishes a request and waits for the correlated response.
//
// The response subscription is created before the request is published,
// and filters on the request's own event id, so the answer cannot be
// missed and cannot be confused with another exchange.
func (t *Transport) Send(ctx context.Context, env *envelope.Envelope, endpoint string, opts *transport.Options) (*envelope.Envelope, error) {
	timeout := DefaultTimeout
	persist := false
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		persist = opts.Persist
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	frames, reqID, err := t.open(ctx, env, persist)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case got, ok := <-frames:
			if !ok {
				return nil, errcode.Newf(errcode.CodeTimeout, "no response to event %s", reqID)
			}
			if got.Type == envelope.TypeResponse {
				return got, nil
			}
			// Events and other types are not what a unary send waits for.
		case <-ctx.Done():
			return nil, errcode.Newf(errcode.CodeTimeout, "no response to event %s within %s", reqID, timeout)
		}
	}
}

// SendStream publishes a request and yields every correlated envelope
// until the terminating response arrives.
func (t *Transport) SendStream(ctx context.Context, env *envelope.Envelope, endpoint string, opts *transport.Options) (<-chan *envelope.Envelope, error) {
	timeout := DefaultTimeout
	persist := false
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		persist = opts.Persist
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	frames, _, err := t.open(ctx, env, persist)
	if err != nil {
		cancel()
		return nil, err
	}
	out := make(chan *envelope.Envelope)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case got, ok := <-frames:
				if !ok {
					return
				}
				select {
				case out <- got:
				case <-ctx.Done():
					return
				}
				if got.Type == envelope.TypeResponse {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// open encrypts and publishes the request, returning a channel of
// decrypted, identity-verified envelopes whose events reference the
// request's event id.
func (t *Transport) open(ctx context.Context, env *envelope.Envelope, persist bool) (<-chan *envelope.Envelope, string, error) {
	peerPub, err := t.lookupPubKey(env.To)
	if err != nil {
		return nil, "", err
	}
	convKey, err := t.conversationKey(peerPub)
	if err != nil {
		return nil, "", err
	}
	content, err := encryptEnvelope(env, convKey)
	if err != nil {
		return nil, "", err
	}

	evt := nostr.Event{
		Kind:      t.messageKind(persist),
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags:      nostr.Tags{{"p", peerPub}},
	}
	if err := evt.Sign(t.kp.InternalSecretHex()); err != nil {
		return nil, "", errcode.Newf(errcode.CodeInternal, "sign relay event: %v", err)
	}

	relays, err := t.connected(ctx)
	if err != nil {
		return nil, "", err
	}

	// Subscribe before publishing so the response cannot race the
	// subscription. The #e filter pins correlation to this request.
	filter := nostr.Filter{
		Kinds: []int{t.kinds.Ephemeral, t.kinds.Storable},
		Tags: nostr.TagMap{
			"p": []string{t.kp.InternalPubKeyHex()},
			"e": []string{evt.ID},
		},
	}
	frames := make(chan *envelope.Envelope)
	var wg sync.WaitGroup
	for _, r := range relays {
		sub, err := r.Subscribe(ctx, nostr.Filters{filter})
		if err != nil {
			t.log.Warn("subscribe failed", logger.String("relay", r.URL), logger.Error(err))
			continue
		}
		wg.Add(1)
		go func(sub *nostr.Subscription) {
			defer wg.Done()
			defer sub.Unsub()
			for {
				select {
				case got, ok := <-sub.Events:
					if !ok {
						return
					}
					dec := t.decryptVerified(got)
					if dec == nil {
						continue
					}
					select {
					case frames <- dec:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}
	go func() {
		wg.Wait()
		close(frames)
	}()

	if err := t.publishAll(ctx, relays, &evt); err != nil {
		return nil, "", err
	}
	return frames, evt.ID, nil
}

// decryptVerified decrypts an inbound event and enforces the identity
// check. Spoofed or undecipherable events are dropped with a warning.
func (t *Transport) decryptVerified(evt *nostr.Event) *envelope.Envelope {
	convKey, err := t.conversationKey(evt.PubKey)
	if err != nil {
		t.log.Warn("conversation key derivation failed", logger.String("event", evt.ID), logger.Error(err))
		return nil
	}
	env, err := decryptEnvelope(evt.Content, convKey)
	if err != nil {
		t.log.Warn("undecipherable relay event dropped", logger.String("event", evt.ID), logger.Error(err))
		return nil
	}
	if !verifyIdentity(evt.PubKey, env) {
		t.log.Warn("identity mismatch, envelope dropped",
			logger.String("event", evt.ID),
			logger.String("claimed_from", env.From))
		return nil
	}
	return env
}
