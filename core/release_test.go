// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"sync"
	"testing"

	"github.com/devblok/cadence/core"
)

func TestDeferredReleaseRunsOnSlotRevisit(t *testing.T) {
	manager := core.NewPerFrameResourceManager(2)

	released := 0
	manager.OnBeginFrame(0)
	manager.RegisterDeferredRelease(func() { released++ })

	manager.OnBeginFrame(1)
	if released != 0 {
		t.Error("release ran on the wrong slot")
	}

	manager.OnBeginFrame(0)
	if released != 1 {
		t.Errorf("expected exactly one release, got %d", released)
	}

	manager.OnBeginFrame(1)
	manager.OnBeginFrame(0)
	if released != 1 {
		t.Errorf("release ran again, count %d", released)
	}
}

func TestDeferredReleaseOrder(t *testing.T) {
	manager := core.NewPerFrameResourceManager(2)

	var order []int
	for idx := 0; idx < 5; idx++ {
		idx := idx
		manager.RegisterDeferredRelease(func() { order = append(order, idx) })
	}

	manager.OnBeginFrame(0)
	if len(order) != 5 {
		t.Fatalf("expected 5 releases, got %d", len(order))
	}
	for idx, got := range order {
		if got != idx {
			t.Errorf("release %d ran at position %d", got, idx)
		}
	}
}

func TestReleaseDuringReleaseRunsNextCycle(t *testing.T) {
	manager := core.NewPerFrameResourceManager(2)

	nested := 0
	manager.OnBeginFrame(0)
	manager.RegisterDeferredRelease(func() {
		manager.RegisterDeferredRelease(func() { nested++ })
	})

	manager.OnBeginFrame(1)
	manager.OnBeginFrame(0)
	if nested != 0 {
		t.Error("nested release ran re-entrantly in the same cycle")
	}

	manager.OnBeginFrame(1)
	manager.OnBeginFrame(0)
	if nested != 1 {
		t.Errorf("expected nested release one full cycle later, got %d runs", nested)
	}
}

func TestReleaseAllDrainsEverySlot(t *testing.T) {
	manager := core.NewPerFrameResourceManager(3)

	released := 0
	for slot := 0; slot < 3; slot++ {
		manager.OnBeginFrame(slot)
		manager.RegisterDeferredRelease(func() { released++ })
		manager.RegisterDeferredRelease(func() { released++ })
	}

	if forced := manager.ReleaseAll(); forced != 6 {
		t.Errorf("expected 6 forced releases, got %d", forced)
	}
	if released != 6 {
		t.Errorf("expected 6 releases, got %d", released)
	}

	if forced := manager.ReleaseAll(); forced != 0 {
		t.Errorf("second ReleaseAll was not a no-op, forced %d", forced)
	}
}

func TestReleaseAllRunsReleasesRegisteredWhileDraining(t *testing.T) {
	manager := core.NewPerFrameResourceManager(2)

	var tail bool
	manager.RegisterDeferredRelease(func() {
		manager.RegisterDeferredRelease(func() { tail = true })
	})

	manager.ReleaseAll()
	if !tail {
		t.Error("release registered during drain never ran")
	}
}

func TestRegisterDeferredReleaseConcurrent(t *testing.T) {
	manager := core.NewPerFrameResourceManager(2)

	var mu sync.Mutex
	released := 0

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := 0; idx < 100; idx++ {
				manager.RegisterDeferredRelease(func() {
					mu.Lock()
					released++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()

	if forced := manager.ReleaseAll(); forced != 800 {
		t.Errorf("expected 800 forced releases, got %d", forced)
	}
	if released != 800 {
		t.Errorf("expected 800 releases, got %d", released)
	}
}
