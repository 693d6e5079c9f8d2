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

// Package health runs named component checks and serves the results.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/snap-protocol/snap-go/internal/logger"
)

// Status is the health of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one health check.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Check is a single health check function.
type Check func(ctx context.Context) error

// Checker runs registered checks with a shared timeout.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	log     logger.Logger
}

// NewChecker creates a checker; a zero timeout defaults to 5s.
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:  make(map[string]Check),
		timeout: timeout,
		log:     logger.GetDefaultLogger().WithFields(logger.String("component", "health")),
	}
}

// Register adds a named check. Registering an existing name replaces it.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RunAll executes every check and returns the results keyed by name.
func (c *Checker) RunAll(ctx context.Context) map[string]*CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	c.mu.RUnlock()

	results := make(map[string]*CheckResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res := c.run(ctx, name)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// Healthy reports whether every check passes.
func (c *Checker) Healthy(ctx context.Context) bool {
	for _, res := range c.RunAll(ctx) {
		if res.Status != StatusHealthy {
			return false
		}
	}
	return true
}

func (c *Checker) run(ctx context.Context, name string) *CheckResult {
	c.mu.RLock()
	check := c.checks[name]
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	res := &CheckResult{
		Name:      name,
		Status:    StatusHealthy,
		Timestamp: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
		c.log.Warn("health check failed", logger.String("check", name), logger.Error(err))
	}
	return res
}
