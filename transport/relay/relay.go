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

// Package relay implements the encrypted pub/sub SNAP transport.
//
// Envelopes travel as relay events encrypted to a NIP-44 conversation
// key derived from the sender's internal scalar and the recipient's
// internal pubkey, tagged to the recipient's internal pubkey for routing.
// Ephemeral events are forwarded but not stored; storable events serve
// persist=true sends and offline recipients. Agent cards are replaceable
// events keyed by the agent's address. P2TR addresses do not reveal the
// internal key, so the transport keeps an address-to-pubkey cache fed by
// discovery.
package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/snap-protocol/snap-go/core/envelope"
	"github.com/snap-protocol/snap-go/core/errcode"
	"github.com/snap-protocol/snap-go/core/keys"
	"github.com/snap-protocol/snap-go/internal/logger"
	"github.com/snap-protocol/snap-go/internal/metrics"
)

// Kinds are the relay event kind numbers. The defaults follow the
// protocol registry; deployments may override them.
type Kinds struct {
	Ephemeral int
	Storable  int
	Card      int
}

// DefaultKinds returns the standard kind numbers.
func DefaultKinds() Kinds {
	return Kinds{Ephemeral: 21339, Storable: 4339, Card: 31337}
}

// DefaultTimeout bounds a unary send over the relay network.
const DefaultTimeout = 30 * time.Second

// Transport is the pub/sub relay transport for one agent identity.
type Transport struct {
	kp    *keys.KeyPair
	urls  []string
	kinds Kinds
	log   logger.Logger

	mu     sync.Mutex
	relays map[string]*nostr.Relay

	cacheMu sync.RWMutex
	cache   map[string]string // P2TR address -> internal pubkey hex

	listenCancel context.CancelFunc
}

// Option customizes a Transport.
type Option func(*Transport)

// WithKinds overrides the event kind numbers.
func WithKinds(k Kinds) Option {
	return func(t *Transport) { t.kinds = k }
}

// New creates a relay transport publishing through the given relay URLs.
func New(kp *keys.KeyPair, urls []string, opts ...Option) *Transport {
	t := &Transport{
		kp:     kp,
		urls:   urls,
		kinds:  DefaultKinds(),
		relays: make(map[string]*nostr.Relay),
		cache:  make(map[string]string),
		log:    logger.GetDefaultLogger().WithFields(logger.String("transport", "relay")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CachePubKey records the internal pubkey behind an address. Discovery
// populates this automatically; peers learned out-of-band are added here.
func (t *Transport) CachePubKey(address, pubkeyHex string) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	t.cache[address] = pubkeyHex
}

// lookupPubKey resolves an address to the peer's internal pubkey hex.
func (t *Transport) lookupPubKey(address string) (string, error) {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	if p, ok := t.cache[address]; ok {
		return p, nil
	}
	return "", errcode.Newf(errcode.CodeAgentNotFound,
		"no known pubkey for %s; discover the agent first", address)
}

// connected returns live relay connections, dialing missing ones. At
// least one connection is required.
func (t *Transport) connected(ctx context.Context) ([]*nostr.Relay, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var live []*nostr.Relay
	for _, url := range t.urls {
		if r, ok := t.relays[url]; ok {
			live = append(live, r)
			continue
		}
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			t.log.Warn("relay connect failed", logger.String("relay", url), logger.Error(err))
			continue
		}
		t.relays[url] = r
		live = append(live, r)
	}
	if len(live) == 0 {
		return nil, errcode.New(errcode.CodeAllRelaysFailed, "no relay connection available")
	}
	return live, nil
}

// publishAll publishes the event to every relay in parallel. The publish
// succeeds iff at least one relay accepts it.
func (t *Transport) publishAll(ctx context.Context, relays []*nostr.Relay, evt *nostr.Event) error {
	var wg sync.WaitGroup
	results := make(chan error, len(relays))
	for _, r := range relays {
		wg.Add(1)
		go func(r *nostr.Relay) {
			defer wg.Done()
			results <- r.Publish(ctx, *evt)
		}(r)
	}
	wg.Wait()
	close(results)

	var firstErr error
	for err := range results {
		if err == nil {
			metrics.RelayPublishes.WithLabelValues("accepted").Inc()
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	metrics.RelayPublishes.WithLabelValues("failed").Inc()
	return errcode.Newf(errcode.CodeAllRelaysFailed, "all relays rejected event: %v", firstErr)
}

// conversationKey derives the NIP-44 key between this agent's internal
// scalar and the peer's internal pubkey.
func (t *Transport) conversationKey(peerPubHex string) ([32]byte, error) {
	key, err := nip44.GenerateConversationKey(peerPubHex, t.kp.InternalSecretHex())
	if err != nil {
		return [32]byte{}, errcode.Newf(errcode.CodeInternal, "derive conversation key: %v", err)
	}
	return key, nil
}

// encryptEnvelope encrypts the envelope JSON to the conversation key.
func encryptEnvelope(env *envelope.Envelope, key [32]byte) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", errcode.Newf(errcode.CodeInvalidMessage, "encode envelope: %v", err)
	}
	ct, err := nip44.Encrypt(string(raw), key)
	if err != nil {
		return "", errcode.Newf(errcode.CodeInternal, "encrypt envelope: %v", err)
	}
	return ct, nil
}

// decryptEnvelope reverses encryptEnvelope.
func decryptEnvelope(content string, key [32]byte) (*envelope.Envelope, error) {
	pt, err := nip44.Decrypt(content, key)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeInvalidMessage, "decrypt envelope: %v", err)
	}
	var env envelope.Envelope
	if err := json.Unmarshal([]byte(pt), &env); err != nil {
		return nil, errcode.Newf(errcode.CodeInvalidMessage, "parse decrypted envelope: %v", err)
	}
	return &env, nil
}

// verifyIdentity enforces the pubkey identity-mismatch defense: the
// envelope's from address must equal the address derived by tweaking the
// relay event's author key. Anything else is a spoof attempt.
func verifyIdentity(eventPubKey string, env *envelope.Envelope) bool {
	p, err := hex.DecodeString(eventPubKey)
	if err != nil || len(p) != 32 {
		return false
	}
	_, network, err := keys.DecodeP2TR(env.From)
	if err != nil {
		return false
	}
	derived, err := keys.AddressFromInternalKey(p, network)
	if err != nil {
		return false
	}
	return derived == env.From
}

// messageKind picks the event kind for a message send.
func (t *Transport) messageKind(persist bool) int {
	if persist {
		return t.kinds.Storable
	}
	return t.kinds.Ephemeral
}

// Close drops every relay connection.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for url, r := range t.relays {
		r.Close()
		delete(t.relays, url)
	}
}
