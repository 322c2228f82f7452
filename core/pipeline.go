// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

type frameSlot struct {
	allocator    CommandAllocator
	pendingFence uint64
}

// FramePipeline bounds in-flight CPU work to a fixed number of frames
// ahead of the GPU. Each frame slot holds one command allocator and the
// fence value at which that slot's GPU work will complete. All methods
// are render-thread only.
type FramePipeline struct {
	queue     Queue
	timeline  *TimelineCounter
	resources *PerFrameResourceManager
	logger    *log.Entry

	slots []frameSlot
	slot  int
}

// NewFramePipeline creates a pipeline with one slot per allocator. The
// timeline counter must be bound to queue and must not have any other
// submitter.
func NewFramePipeline(queue Queue, timeline *TimelineCounter, resources *PerFrameResourceManager, allocators []CommandAllocator, logger *log.Entry) (*FramePipeline, error) {
	if len(allocators) == 0 {
		return nil, fmt.Errorf("core.NewFramePipeline(): no command allocators: %w", ErrInvalidArgument)
	}
	if len(allocators) != resources.Frames() {
		return nil, fmt.Errorf("core.NewFramePipeline(): %d allocators for %d frame slots: %w",
			len(allocators), resources.Frames(), ErrInvalidArgument)
	}

	slots := make([]frameSlot, len(allocators))
	for idx := range slots {
		slots[idx].allocator = allocators[idx]
	}

	return &FramePipeline{
		queue:     queue,
		timeline:  timeline,
		resources: resources,
		logger:    logger.WithField("component", "pipeline"),
		slots:     slots,
	}, nil
}

// Slot returns the current frame slot index.
func (p *FramePipeline) Slot() int {
	return p.slot
}

// Frames returns the number of frames in flight.
func (p *FramePipeline) Frames() int {
	return len(p.slots)
}

// Allocator returns the current slot's command allocator. It is only
// valid between BeginFrame and EndFrame.
func (p *FramePipeline) Allocator() CommandAllocator {
	return p.slots[p.slot].allocator
}

// PendingFence returns the fence value at which the given slot's GPU
// work will complete, zero when nothing was submitted yet.
func (p *FramePipeline) PendingFence(slot int) uint64 {
	return p.slots[slot].pendingFence
}

// BeginFrame blocks until the GPU has finished the previous visit to
// the current slot, recycles the slot's allocator and runs the slot's
// deferred releases. This is the only blocking call expected on the
// render thread; it is bounded by the depth of the pipeline.
func (p *FramePipeline) BeginFrame() error {
	k := p.slot
	p.timeline.Wait(p.slots[k].pendingFence, -1)

	if err := p.slots[k].allocator.Reset(); err != nil {
		return fmt.Errorf("allocator.Reset() slot %d: %w", k, err)
	}
	p.resources.OnBeginFrame(k)
	return nil
}

// EndFrame submits the recorded lists, enqueues the signal that closes
// the slot's timeline span and advances to the next slot. On a
// transient submission failure the slot does not advance and the
// returned error matches ErrFrameSkipped, so the caller may retry with
// the next frame. A failed signal enqueue leaves the slot in an
// indeterminate state and is reported as ErrDeviceLost.
func (p *FramePipeline) EndFrame(lists ...CommandList) error {
	k := p.slot

	if len(lists) > 0 {
		if err := p.queue.Submit(lists...); err != nil {
			if IsFatal(err) {
				return err
			}
			p.logger.WithField("slot", k).WithError(err).Warn("submission failed, skipping frame")
			return fmt.Errorf("queue.Submit() slot %d: %v: %w", k, err, ErrFrameSkipped)
		}
	}

	fence, err := p.timeline.EnqueueSignalNext()
	if err != nil {
		return fmt.Errorf("timeline.EnqueueSignalNext() slot %d: %v: %w", k, err, ErrDeviceLost)
	}

	p.slots[k].pendingFence = fence
	p.slot = (k + 1) % len(p.slots)
	return nil
}

// Drain blocks until every slot's pending fence has been reached. Used
// on shutdown before forcing the remaining deferred releases.
func (p *FramePipeline) Drain() {
	for idx := range p.slots {
		p.timeline.Wait(p.slots[idx].pendingFence, -1)
	}
}

// Destroy drains the pipeline and destroys the command allocators.
func (p *FramePipeline) Destroy() {
	p.Drain()
	for idx := range p.slots {
		p.slots[idx].allocator.Destroy()
	}
	p.slots = nil
}
