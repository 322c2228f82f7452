// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"errors"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/cadence/core"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func newPipeline(t *testing.T, queue *fakeQueue, frames int) (*core.FramePipeline, *core.TimelineCounter, *core.PerFrameResourceManager) {
	t.Helper()
	timeline := core.NewTimelineCounter(queue)
	resources := core.NewPerFrameResourceManager(frames)
	pipeline, err := core.NewFramePipeline(queue, timeline, resources, newAllocators(frames), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return pipeline, timeline, resources
}

// Registers a release on frame 0 (slot 0) and checks it runs exactly
// at the begin of frame 2, once slot 0's fence has been reached.
func TestTwoFrameRelease(t *testing.T) {
	queue := &fakeQueue{auto: true}
	pipeline, _, resources := newPipeline(t, queue, 2)

	counter := 0

	// frame 0, slot 0
	if err := pipeline.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	resources.RegisterDeferredRelease(func() { counter = 1 })
	if err := pipeline.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if counter != 0 {
		t.Error("release ran before its slot came around")
	}

	// frame 1, slot 1
	if err := pipeline.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if counter != 0 {
		t.Error("release ran on the wrong slot")
	}
	if err := pipeline.EndFrame(); err != nil {
		t.Fatal(err)
	}

	// frame 2, slot 0 again
	if err := pipeline.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if counter != 1 {
		t.Error("release did not run at the return to its slot")
	}
}

func TestBeginFrameWaitsForSlotFence(t *testing.T) {
	queue := &fakeQueue{}
	pipeline, timeline, _ := newPipeline(t, queue, 1)

	if err := pipeline.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := pipeline.EndFrame(); err != nil {
		t.Fatal(err)
	}

	began := make(chan error)
	go func() {
		began <- pipeline.BeginFrame()
	}()

	select {
	case <-began:
		t.Fatal("BeginFrame did not wait for the previous frame's fence")
	case <-time.After(10 * time.Millisecond):
	}

	queue.finish(1)
	select {
	case err := <-began:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("BeginFrame never woke up")
	}

	if timeline.LastCompleted() < pipeline.PendingFence(0) {
		t.Error("slot entered before its fence was reached")
	}
}

func TestEndFrameAdvancesSlotAndFence(t *testing.T) {
	queue := &fakeQueue{auto: true}
	pipeline, _, _ := newPipeline(t, queue, 3)

	for frame := 0; frame < 6; frame++ {
		expectSlot := frame % 3
		if pipeline.Slot() != expectSlot {
			t.Fatalf("frame %d: expected slot %d, got %d", frame, expectSlot, pipeline.Slot())
		}
		if err := pipeline.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if err := pipeline.EndFrame(); err != nil {
			t.Fatal(err)
		}
		if got := pipeline.PendingFence(expectSlot); got != uint64(frame+1) {
			t.Errorf("frame %d: expected fence %d on slot %d, got %d", frame, frame+1, expectSlot, got)
		}
	}
}

func TestEndFrameSubmitFailureKeepsSlot(t *testing.T) {
	queue := &fakeQueue{auto: true}
	pipeline, _, _ := newPipeline(t, queue, 2)

	if err := pipeline.BeginFrame(); err != nil {
		t.Fatal(err)
	}

	queue.submitErr = errors.New("transient submit failure")
	err := pipeline.EndFrame(&fakeList{})
	if err == nil {
		t.Fatal("expected submission failure")
	}
	if !core.IsTransient(err) {
		t.Errorf("expected a retryable error, got %v", err)
	}
	if pipeline.Slot() != 0 {
		t.Error("slot advanced after a failed submission")
	}
	if pipeline.PendingFence(0) != 0 {
		t.Error("fence recorded for a failed submission")
	}

	queue.submitErr = nil
	if err := pipeline.EndFrame(&fakeList{}); err != nil {
		t.Fatal(err)
	}
	if pipeline.Slot() != 1 {
		t.Error("slot did not advance after the retry")
	}
}

func TestEndFrameSignalFailureIsFatal(t *testing.T) {
	queue := &fakeQueue{auto: true}
	pipeline, _, _ := newPipeline(t, queue, 2)

	if err := pipeline.BeginFrame(); err != nil {
		t.Fatal(err)
	}

	queue.signalErr = errors.New("queue gone")
	err := pipeline.EndFrame()
	if err == nil {
		t.Fatal("expected signal failure")
	}
	if !core.IsFatal(err) {
		t.Errorf("expected a fatal error, got %v", err)
	}
}

func TestSingleFrameInFlight(t *testing.T) {
	queue := &fakeQueue{auto: true}
	pipeline, _, _ := newPipeline(t, queue, 1)

	for frame := 0; frame < 4; frame++ {
		if err := pipeline.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if err := pipeline.EndFrame(); err != nil {
			t.Fatal(err)
		}
		if pipeline.Slot() != 0 {
			t.Error("single slot pipeline moved off slot 0")
		}
	}
}

func TestDrainReachesEverySlot(t *testing.T) {
	queue := &fakeQueue{}
	pipeline, timeline, _ := newPipeline(t, queue, 2)

	for frame := 0; frame < 2; frame++ {
		queue.finish(len(queue.pending))
		if err := pipeline.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if err := pipeline.EndFrame(); err != nil {
			t.Fatal(err)
		}
	}

	drained := make(chan struct{})
	go func() {
		pipeline.Drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("drain returned with fences outstanding")
	case <-time.After(10 * time.Millisecond):
	}

	queue.finish(1)
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain never completed")
	}

	if timeline.LastCompleted() != 2 {
		t.Errorf("expected both fences reached, LastCompleted %d", timeline.LastCompleted())
	}
}

func TestAllocatorResetOnBegin(t *testing.T) {
	queue := &fakeQueue{auto: true}
	timeline := core.NewTimelineCounter(queue)
	resources := core.NewPerFrameResourceManager(2)
	allocators := newAllocators(2)
	pipeline, err := core.NewFramePipeline(queue, timeline, resources, allocators, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for frame := 0; frame < 4; frame++ {
		if err := pipeline.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if err := pipeline.EndFrame(); err != nil {
			t.Fatal(err)
		}
	}

	for idx, allocator := range allocators {
		if allocator.(*fakeAllocator).resets != 2 {
			t.Errorf("allocator %d reset %d times, expected 2", idx, allocator.(*fakeAllocator).resets)
		}
	}
}
