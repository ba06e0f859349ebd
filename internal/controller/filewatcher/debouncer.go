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
	"time"
)

// Debouncer delays delivery of per-path events until no new event for
// that path arrives within the window. Only the latest event per path is
// delivered, so an editor's write-rename-chmod burst becomes one reload
// and a create followed by a delete becomes a delete.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timers  map[string]*debounceTimer
	onFlush func(*Event)
	stopped bool
	wg      sync.WaitGroup
}

type debounceTimer struct {
	timer *time.Timer
	event *Event
}

// NewDebouncer creates a debouncer calling onFlush once per settled path.
// A zero window delivers every event immediately.
func NewDebouncer(window time.Duration, onFlush func(*Event)) *Debouncer {
	return &Debouncer{
		window:  window,
		timers:  make(map[string]*debounceTimer),
		onFlush: onFlush,
	}
}

// Add records an event, restarting the path's timer.
func (d *Debouncer) Add(e *Event) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.window <= 0 {
		d.mu.Unlock()
		d.onFlush(e)
		return
	}

	path := e.Path
	if dt, exists := d.timers[path]; exists {
		if dt.timer.Stop() {
			d.wg.Done()
		}
		dt.event = e
	} else {
		d.timers[path] = &debounceTimer{event: e}
	}

	d.wg.Add(1)
	d.timers[path].timer = time.AfterFunc(d.window, func() {
		defer d.wg.Done()
		d.flush(path)
	})
	d.mu.Unlock()
}

func (d *Debouncer) flush(path string) {
	d.mu.Lock()
	dt, exists := d.timers[path]
	if !exists {
		d.mu.Unlock()
		return
	}
	delete(d.timers, path)
	d.mu.Unlock()

	// Call onFlush outside of lock to prevent deadlocks
	d.onFlush(dt.event)
}

// Stop delivers every pending event immediately and waits for in-flight
// flushes. Later Adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true

	var pending []*Event
	for path, dt := range d.timers {
		if dt.timer.Stop() {
			d.wg.Done()
		}
		pending = append(pending, dt.event)
		delete(d.timers, path)
	}
	d.mu.Unlock()

	for _, e := range pending {
		d.onFlush(e)
	}
	d.wg.Wait()
}

// Pending returns the number of paths with pending timers.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
