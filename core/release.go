// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import "sync"

// PerFrameResourceManager defers release of resources whose underlying
// GPU objects may still be referenced by in-flight work. A release
// registered while frame slot k is current runs on the next entry to
// slot k, at which point the pipeline has proven that all GPU work of
// the previous visit has completed.
//
// Registration is safe from any thread. Execution is serialized on the
// render thread that drives the frame pipeline.
type PerFrameResourceManager struct {
	mu    sync.Mutex
	slot  int
	lists [][]func()
}

// NewPerFrameResourceManager creates a manager with one release list
// per frame slot. Panics when frames is not positive; the frame count
// is validated by PipelineConfiguration well before this point.
func NewPerFrameResourceManager(frames int) *PerFrameResourceManager {
	if frames < 1 {
		panic("core: PerFrameResourceManager needs at least one frame slot")
	}
	return &PerFrameResourceManager{
		lists: make([][]func(), frames),
	}
}

// RegisterDeferredRelease appends release to the current slot's list.
// The callback must not panic; capturing the resource in the closure is
// the idiomatic way to keep it alive until release. A callback
// registered from inside another release callback is attributed to the
// slot being entered and therefore runs one full cycle later, never
// re-entrantly.
func (m *PerFrameResourceManager) RegisterDeferredRelease(release func()) {
	m.mu.Lock()
	m.lists[m.slot] = append(m.lists[m.slot], release)
	m.mu.Unlock()
}

// OnBeginFrame makes slot current, then runs and clears its release
// list in registration order. Render thread only.
func (m *PerFrameResourceManager) OnBeginFrame(slot int) {
	m.mu.Lock()
	m.slot = slot
	pending := m.lists[slot]
	m.lists[slot] = nil
	m.mu.Unlock()

	for _, release := range pending {
		release()
	}
}

// ReleaseAll runs every slot's remaining callbacks in registration
// order, including callbacks registered while draining. It returns the
// number of releases forced to run, for the shutdown summary. Calling
// it again with nothing pending is a no-op.
func (m *PerFrameResourceManager) ReleaseAll() int {
	forced := 0
	for {
		m.mu.Lock()
		var pending []func()
		for slot, list := range m.lists {
			pending = append(pending, list...)
			m.lists[slot] = nil
		}
		m.mu.Unlock()

		if len(pending) == 0 {
			return forced
		}
		for _, release := range pending {
			release()
		}
		forced += len(pending)
	}
}

// Frames returns the number of frame slots the manager tracks.
func (m *PerFrameResourceManager) Frames() int {
	return len(m.lists)
}
