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
	"net/http"
	"strings"

	"github.com/snap-protocol/snap-go/core/card"
	"github.com/snap-protocol/snap-go/core/errcode"
)

// DiscoverViaHTTP fetches an agent's signed card from its well-known
// endpoint and verifies both the signature and the binding between the
// embedded public key and the card's identity address.
func DiscoverViaHTTP(ctx context.Context, baseURL string) (*card.SignedCard, error) {
	url := strings.TrimSuffix(baseURL, "/") + WellKnownPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errcode.Newf(errcode.CodeConnectionFailed, "fetch %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errcode.Newf(errcode.CodeAgentNotFound, "HTTP %d from %s", resp.StatusCode, url)
	}

	var sc card.SignedCard
	if err := json.NewDecoder(resp.Body).Decode(&sc); err != nil {
		return nil, errcode.Newf(errcode.CodeCardInvalid, "parse signed card: %v", err)
	}
	if err := card.VerifySigned(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
