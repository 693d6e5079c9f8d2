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

package jcs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	t.Run("sorts object keys", func(t *testing.T) {
		out, err := CanonicalizeRaw(json.RawMessage(`{"b":1,"a":2}`))
		require.NoError(t, err)
		assert.Equal(t, `{"a":2,"b":1}`, string(out))
	})

	t.Run("strips whitespace", func(t *testing.T) {
		out, err := CanonicalizeRaw(json.RawMessage(`{ "a" : [ 1 , 2 ] }`))
		require.NoError(t, err)
		assert.Equal(t, `{"a":[1,2]}`, string(out))
	})

	t.Run("permutation invariance", func(t *testing.T) {
		a, err := CanonicalizeRaw(json.RawMessage(`{"x":{"n":1,"m":2},"y":3}`))
		require.NoError(t, err)
		b, err := CanonicalizeRaw(json.RawMessage(`{"y":3,"x":{"m":2,"n":1}}`))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	})

	t.Run("idempotence", func(t *testing.T) {
		inputs := []string{
			`{"z":1,"a":{"q":[3,2,1],"p":null},"m":"text"}`,
			`[1.5,2,"x",true,false,null]`,
			`{"unicode":"héllo ☃","nested":{"deep":{"deeper":1}}}`,
		}
		for _, in := range inputs {
			once, err := CanonicalizeRaw(json.RawMessage(in))
			require.NoError(t, err)

			var parsed any
			require.NoError(t, json.Unmarshal(once, &parsed))
			twice, err := Canonicalize(parsed)
			require.NoError(t, err)
			assert.Equal(t, string(once), string(twice))
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := CanonicalizeRaw(nil)
		assert.Error(t, err)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		_, err := CanonicalizeRaw(json.RawMessage(`{"a":`))
		assert.Error(t, err)
	})
}
