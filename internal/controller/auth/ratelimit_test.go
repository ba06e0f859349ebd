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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiter_Allow(t *testing.T) {
	rl := NewClientLimiter(10, 20)

	// Should allow initial burst
	for i := 0; i < 20; i++ {
		assert.True(t, rl.Allow("client1"), "request %d should be allowed", i)
	}

	// Next request should be denied (burst exhausted)
	assert.False(t, rl.Allow("client1"))
}

func TestClientLimiter_Refill(t *testing.T) {
	rl := NewClientLimiter(10, 10)

	for i := 0; i < 10; i++ {
		rl.Allow("client1")
	}
	assert.False(t, rl.Allow("client1"))

	// 150ms gives at least one token at 10/sec
	time.Sleep(150 * time.Millisecond)
	assert.True(t, rl.Allow("client1"))
}

func TestClientLimiter_PerClient(t *testing.T) {
	rl := NewClientLimiter(1, 1)

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 2, rl.Clients())
}

func TestClientLimiter_Cleanup(t *testing.T) {
	rl := NewClientLimiter(1, 1)
	rl.Allow("a")
	rl.Allow("b")

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, rl.Cleanup(time.Millisecond))
	assert.Equal(t, 0, rl.Clients())
}

func TestClientLimiter_RetryAfter(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, NewClientLimiter(2, 1).RetryAfter())
}

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantRPS     float64
		wantBurst   int
		wantErr     bool
		errContains string
	}{
		{
			name:      "per second",
			input:     "10/second",
			wantRPS:   10.0,
			wantBurst: 10,
		},
		{
			name:      "per minute",
			input:     "60/minute",
			wantRPS:   1.0,
			wantBurst: 60,
		},
		{
			name:      "per hour",
			input:     "3600/hour",
			wantRPS:   1.0,
			wantBurst: 3600,
		},
		{
			name:      "per day",
			input:     "86400/day",
			wantRPS:   1.0,
			wantBurst: 86400,
		},
		{
			name:      "short form second",
			input:     "5/s",
			wantRPS:   5.0,
			wantBurst: 5,
		},
		{
			name:      "short form minute",
			input:     "100/m",
			wantRPS:   100.0 / 60.0,
			wantBurst: 100,
		},
		{
			name:      "short form hour",
			input:     "1000/h",
			wantRPS:   1000.0 / 3600.0,
			wantBurst: 1000,
		},
		{
			name:      "with whitespace",
			input:     " 50 / minute ",
			wantRPS:   50.0 / 60.0,
			wantBurst: 50,
		},
		{
			name:        "empty string",
			input:       "",
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "invalid format",
			input:       "100",
			wantErr:     true,
			errContains: "invalid rate limit format",
		},
		{
			name:        "invalid count",
			input:       "abc/hour",
			wantErr:     true,
			errContains: "invalid count",
		},
		{
			name:        "negative count",
			input:       "-10/hour",
			wantErr:     true,
			errContains: "must be positive",
		},
		{
			name:        "zero count",
			input:       "0/hour",
			wantErr:     true,
			errContains: "must be positive",
		},
		{
			name:        "invalid period",
			input:       "100/year",
			wantErr:     true,
			errContains: "invalid period",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rps, burst, err := ParseRateLimit(tt.input)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}

			assert.NoError(t, err)
			assert.InDelta(t, tt.wantRPS, rps, 0.0001, "requests per second mismatch")
			assert.Equal(t, tt.wantBurst, burst, "burst size mismatch")
		})
	}
}
