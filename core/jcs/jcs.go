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

// Package jcs produces RFC 8785 canonical JSON. Canonical form is what
// signature inputs and signed-card digests are computed over, so two
// semantically equal JSON values must always canonicalize to identical
// bytes regardless of key order or formatting.
package jcs

import (
	"encoding/json"
	"fmt"

	gjcs "github.com/gowebpki/jcs"
)

// Canonicalize serializes v to RFC 8785 canonical form: object keys sorted
// by UTF-16 code units, no insignificant whitespace, shortest round-trip
// number rendering. Canonicalize(parse(Canonicalize(x))) == Canonicalize(x).
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}
	return CanonicalizeRaw(raw)
}

// CanonicalizeRaw transforms already-encoded JSON into canonical form.
func CanonicalizeRaw(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("cannot canonicalize empty input")
	}
	out, err := gjcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}
