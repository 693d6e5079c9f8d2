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

package health

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("passing checks are healthy", func(t *testing.T) {
		c := NewChecker(time.Second)
		c.Register("store", func(ctx context.Context) error { return nil })
		results := c.RunAll(ctx)
		require.Len(t, results, 1)
		assert.Equal(t, StatusHealthy, results["store"].Status)
		assert.True(t, c.Healthy(ctx))
	})

	t.Run("failing check is unhealthy", func(t *testing.T) {
		c := NewChecker(time.Second)
		c.Register("store", func(ctx context.Context) error { return errors.New("down") })
		results := c.RunAll(ctx)
		assert.Equal(t, StatusUnhealthy, results["store"].Status)
		assert.Equal(t, "down", results["store"].Message)
		assert.False(t, c.Healthy(ctx))
	})

	t.Run("timeout fails the check", func(t *testing.T) {
		c := NewChecker(50 * time.Millisecond)
		c.Register("slow", func(ctx context.Context) error {
			select {
			case <-time.After(time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		assert.False(t, c.Healthy(ctx))
	})
}

func TestHandler(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("ok", func(ctx context.Context) error { return nil })
	h := Handler(c)

	t.Run("live", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/health/live", nil))
		assert.Equal(t, 200, rec.Code)
	})

	t.Run("ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
		assert.Equal(t, 200, rec.Code)
	})

	t.Run("full report", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, 200, rec.Code)
		assert.Contains(t, rec.Body.String(), "healthy")
	})
}
