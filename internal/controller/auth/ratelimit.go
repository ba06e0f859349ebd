// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ParseRateLimit parses "N/period" where period is second, minute, hour or
// day (or s, m, h, d). It returns the refill rate in requests per second
// and a burst of N.
func ParseRateLimit(s string) (float64, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("rate limit is empty")
	}
	countStr, period, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rate limit format %q, want N/period", s)
	}

	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid count in rate limit %q: %w", s, err)
	}
	if count <= 0 {
		return 0, 0, fmt.Errorf("rate limit count must be positive, got %d", count)
	}

	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "second", "s":
		window = time.Second
	case "minute", "m":
		window = time.Minute
	case "hour", "h":
		window = time.Hour
	case "day", "d":
		window = 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid period %q in rate limit", period)
	}

	return float64(count) / window.Seconds(), count, nil
}

// ClientLimiter keeps one token bucket per client key.
type ClientLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientEntry
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter refilling at rps with the given burst.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientEntry),
	}
}

// Allow consumes one token for key.
func (c *ClientLimiter) Allow(key string) bool {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = entry
	}
	entry.lastSeen = now
	c.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// RetryAfter estimates how long key must wait for the next token.
func (c *ClientLimiter) RetryAfter() time.Duration {
	if c.limit <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / float64(c.limit))
}

// Cleanup drops clients idle for longer than maxIdle and returns how many
// were removed.
func (c *ClientLimiter) Cleanup(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(c.clients, key)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients.
func (c *ClientLimiter) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
