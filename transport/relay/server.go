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

	"github.com/nbd-wtf/go-nostr"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/transport"
)

// Start implements transport.Server: it publishes the agent's card and
// begins listening for inbound encrypted envelopes addressed to this
// agent's internal pubkey.
func (t *Transport) Start(ctx context.Context, h transport.Handler) error {
	listenCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.listenCancel = cancel
	t.mu.Unlock()

	if sc, err := h.SignedCard(); err == nil {
		if err := t.PublishAgentCard(ctx, &sc.Card); err != nil {
			t.log.Warn("card publish failed", logger.Error(err))
		}
	}

	return t.listen(listenCtx, h)
}

// Stop implements transport.Server.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel := t.listenCancel
	t.listenCancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.Close()
	return nil
}

// listen subscribes to message events for this agent and dispatches each
// one. Responses mirror the request's kind and are correlated back with
// an e tag referencing the inbound event.
func (t *Transport) listen(ctx context.Context, h transport.Handler) error {
	relays, err := t.connected(ctx)
	if err != nil {
		return err
	}
	since := nostr.Now()
	filter := nostr.Filter{
		Kinds: []int{t.kinds.Ephemeral, t.kinds.Storable},
		Tags:  nostr.TagMap{"p": []string{t.kp.InternalPubKeyHex()}},
		Since: &since,
	}
	for _, r := range relays {
		sub, err := r.Subscribe(ctx, nostr.Filters{filter})
		if err != nil {
			t.log.Warn("listen subscribe failed", logger.String("relay", r.URL), logger.Error(err))
			continue
		}
		go func(sub *nostr.Subscription) {
			defer sub.Unsub()
			for {
				select {
				case evt, ok := <-sub.Events:
					if !ok {
						return
					}
					go t.handleInbound(ctx, h, evt)
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}
	return nil
}

// handleInbound decrypts, verifies and dispatches one inbound event.
// Responses are handled by the send path's correlation subscription, so
// only requests reach the handler here. Publish failures on the way back
// are swallowed with a warning; the caller's send then times out.
func (t *Transport) handleInbound(ctx context.Context, h transport.Handler, evt *nostr.Event) {
	env := t.decryptVerified(evt)
	if env == nil {
		return
	}
	if env.Type != envelope.TypeRequest {
		return
	}

	resp, err := h.ProcessMessage(ctx, env)
	if resp == nil {
		if err != nil {
			t.log.Warn("inbound envelope rejected",
				logger.String("method", env.Method), logger.Error(err))
		}
		return
	}

	convKey, err := t.conversationKey(evt.PubKey)
	if err != nil {
		t.log.Warn("response key derivation failed", logger.Error(err))
		return
	}
	content, err := encryptEnvelope(resp, convKey)
	if err != nil {
		t.log.Warn("response encryption failed", logger.Error(err))
		return
	}
	reply := nostr.Event{
		Kind:      evt.Kind, // mirror ephemeral vs storable
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags: nostr.Tags{
			{"p", evt.PubKey},
			{"e", evt.ID},
		},
	}
	if err := reply.Sign(t.kp.InternalSecretHex()); err != nil {
		t.log.Warn("response signing failed", logger.Error(err))
		return
	}
	relays, err := t.connected(ctx)
	if err != nil {
		t.log.Warn("response publish failed", logger.Error(err))
		return
	}
	if err := t.publishAll(ctx, relays, &reply); err != nil {
		t.log.Warn("response publish failed", logger.Error(err))
	}
}
