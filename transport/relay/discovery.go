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
	"encoding/json"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/internal/logger"
)

// PublishAgentCard publishes the card as a replaceable event whose
// identifier tag is the agent's address, so a republish replaces the
// previous card. Name, version, skills, endpoints and relays are exposed
// as searchable tags.
func (t *Transport) PublishAgentCard(ctx context.Context, c *card.AgentCard) error {
	if err := card.Validate(c); err != nil {
		return err
	}
	content, err := json.Marshal(c)
	if err != nil {
		return errcode.Newf(errcode.CodeCardInvalid, "encode card: %v", err)
	}

	tags := nostr.Tags{
		{"d", c.Identity},
		{"name", c.Name},
		{"version", c.Version},
	}
	for _, s := range c.Skills {
		tags = append(tags, nostr.Tag{"skill", s.ID, s.Name})
	}
	for _, e := range c.Endpoints {
		tags = append(tags, nostr.Tag{"endpoint", e.Transport, e.URL})
	}
	for _, r := range c.Relays {
		tags = append(tags, nostr.Tag{"relay", r})
	}

	evt := nostr.Event{
		Kind:      t.kinds.Card,
		CreatedAt: nostr.Now(),
		Content:   string(content),
		Tags:      tags,
	}
	if err := evt.Sign(t.kp.InternalSecretHex()); err != nil {
		return errcode.Newf(errcode.CodeInternal, "sign card event: %v", err)
	}
	relays, err := t.connected(ctx)
	if err != nil {
		return err
	}
	return t.publishAll(ctx, relays, &evt)
}

// Query selects agents to discover. Empty fields are not filtered on.
type Query struct {
	Identity string
	Name     string
	Skills   []string
}

// DiscoverAgents queries the relays for published cards matching the
// query and feeds the address-to-pubkey cache from the results.
func (t *Transport) DiscoverAgents(ctx context.Context, q Query) ([]*card.AgentCard, error) {
	filter := nostr.Filter{
		Kinds: []int{t.kinds.Card},
		Tags:  nostr.TagMap{},
	}
	if q.Identity != "" {
		filter.Tags["d"] = []string{q.Identity}
	}
	if q.Name != "" {
		filter.Tags["name"] = []string{q.Name}
	}
	if len(q.Skills) > 0 {
		filter.Tags["skill"] = q.Skills
	}

	relays, err := t.connected(ctx)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*nostr.Event) // identity -> newest card event
	for _, r := range relays {
		events, err := r.QuerySync(ctx, filter)
		if err != nil {
			t.log.Warn("card query failed", logger.String("relay", r.URL), logger.Error(err))
			continue
		}
		for _, evt := range events {
			d := evt.Tags.GetD()
			if d == "" {
				continue
			}
			if prev, ok := latest[d]; !ok || evt.CreatedAt > prev.CreatedAt {
				latest[d] = evt
			}
		}
	}

	var cards []*card.AgentCard
	for _, evt := range latest {
		var c card.AgentCard
		if err := json.Unmarshal([]byte(evt.Content), &c); err != nil {
			t.log.Warn("unparseable card dropped", logger.String("event", evt.ID), logger.Error(err))
			continue
		}
		t.CachePubKey(c.Identity, evt.PubKey)
		cards = append(cards, &c)
	}
	return cards, nil
}

// FetchOfflineMessages retrieves storable envelopes addressed to this
// agent since the given time. Spoofed events are dropped.
func (t *Transport) FetchOfflineMessages(ctx context.Context, since time.Time) ([]*envelope.Envelope, error) {
	ts := nostr.Timestamp(since.Unix())
	filter := nostr.Filter{
		Kinds: []int{t.kinds.Storable},
		Tags:  nostr.TagMap{"p": []string{t.kp.InternalPubKeyHex()}},
		Since: &ts,
	}
	relays, err := t.connected(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []*envelope.Envelope
	for _, r := range relays {
		events, err := r.QuerySync(ctx, filter)
		if err != nil {
			t.log.Warn("offline query failed", logger.String("relay", r.URL), logger.Error(err))
			continue
		}
		for _, evt := range events {
			if _, dup := seen[evt.ID]; dup {
				continue
			}
			seen[evt.ID] = struct{}{}
			if env := t.decryptVerified(evt); env != nil {
				out = append(out, env)
			}
		}
	}
	return out, nil
}
