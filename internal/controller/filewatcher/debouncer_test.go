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

package filewatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []*Event
}

func (c *collector) add(e *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

func TestDebouncer_SingleEvent(t *testing.T) {
	var c collector
	debouncer := NewDebouncer(50*time.Millisecond, c.add)
	defer debouncer.Stop()

	debouncer.Add(NewEvent("/addons/a/api.yaml", OpModified, false))
	assert.Equal(t, 1, debouncer.Pending())

	assert.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	got := c.snapshot()
	assert.Equal(t, "/addons/a/api.yaml", got[0].Path)
	assert.Equal(t, OpModified, got[0].Op)
	assert.Equal(t, 0, debouncer.Pending())
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var c collector
	debouncer := NewDebouncer(50*time.Millisecond, c.add)
	defer debouncer.Stop()

	debouncer.Add(NewEvent("/addons/a/api.yaml", OpCreated, false))
	time.Sleep(10 * time.Millisecond)
	debouncer.Add(NewEvent("/addons/a/api.yaml", OpModified, false))
	time.Sleep(10 * time.Millisecond)
	debouncer.Add(NewEvent("/addons/a/api.yaml", OpDeleted, false))

	time.Sleep(150 * time.Millisecond)

	got := c.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, OpDeleted, got[0].Op)
}

func TestDebouncer_MultiplePaths(t *testing.T) {
	var c collector
	debouncer := NewDebouncer(50*time.Millisecond, c.add)
	defer debouncer.Stop()

	debouncer.Add(NewEvent("/addons/a/one.yaml", OpModified, false))
	debouncer.Add(NewEvent("/addons/a/two.yaml", OpModified, false))
	assert.Equal(t, 2, debouncer.Pending())

	assert.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestDebouncer_ZeroWindow(t *testing.T) {
	var c collector
	debouncer := NewDebouncer(0, c.add)

	debouncer.Add(NewEvent("/addons/a/api.yaml", OpModified, false))
	debouncer.Add(NewEvent("/addons/a/api.yaml", OpModified, false))

	assert.Len(t, c.snapshot(), 2)
	assert.Equal(t, 0, debouncer.Pending())
}

func TestDebouncer_StopFlushesPending(t *testing.T) {
	var c collector
	debouncer := NewDebouncer(time.Hour, c.add)

	debouncer.Add(NewEvent("/addons/a/api.yaml", OpModified, false))
	debouncer.Stop()

	assert.Len(t, c.snapshot(), 1)

	// stopped debouncers ignore new events
	debouncer.Add(NewEvent("/addons/a/api.yaml", OpModified, false))
	debouncer.Stop()
	assert.Len(t, c.snapshot(), 1)
}
