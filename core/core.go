// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core implements the frame-phased engine core: a timeline
// counter bound to one command queue, a frames-in-flight pipeline with
// per-slot command allocators, deferred release of GPU resources, the
// surface/framebuffer lifecycle and the phase orchestrator that drives
// engine modules through one frame. Graphics API specific
// implementations of the contracts declared here live in core/renderer.
package core

// CommandList is one recorded, submittable stretch of GPU work. Lists
// are created by a CommandRecorder against a CommandAllocator and must
// be closed before submission.
type CommandList interface {
	// Close seals the list. A closed list records no further work.
	Close() error
}

// CommandAllocator owns the backing memory of every command list
// recorded from it during one frame slot. Reset recycles that memory;
// it is only safe once the slot's pending fence has been reached, which
// the FramePipeline guarantees before calling it.
type CommandAllocator interface {
	Reset() error
	Destroy()
}

// CommandRecorder creates command allocators and command lists.
type CommandRecorder interface {
	CreateAllocator() (CommandAllocator, error)
	CreateList(CommandAllocator) (CommandList, error)
}

// Queue accepts recorded command lists for execution and timeline
// commands that order CPU-visible points along the queue's work. A
// queue must be the sole submitter against its bound TimelineCounter.
//
// Submit and the Enqueue methods are render-thread only.
type Queue interface {
	// Submit hands the lists to the GPU for execution in order.
	Submit(...CommandList) error

	// EnqueueSignal appends a signal command so that the counter
	// reaches value once all previously submitted work completes. The
	// queue reports completion through TimelineCounter.Complete.
	EnqueueSignal(counter *TimelineCounter, value uint64) error

	// EnqueueWait appends a wait command; the queue stalls until
	// another signaller brings the counter to value.
	EnqueueWait(counter *TimelineCounter, value uint64) error
}

// BackBuffer is one presentable image of a swapchain.
type BackBuffer interface {
	Release()
}

// Texture is an engine-owned GPU texture. Release must only run once
// the GPU can no longer reference the texture, which is what the
// deferred release discipline guarantees.
type Texture interface {
	Release()
}

// TextureAllocator creates engine-side textures. The surface lifecycle
// uses it for framebuffer depth attachments.
type TextureAllocator interface {
	CreateDepthTexture(width, height uint32) (Texture, error)
}

// Swapchain is the contract with a window-bound presentation engine
// holding a surface's back buffers. All methods are render-thread only.
type Swapchain interface {
	// Present shows the current back buffer.
	Present() error

	// CurrentBackBufferIndex is the swapchain's idea of which back
	// buffer to render to this frame.
	CurrentBackBufferIndex() int

	// Resize recreates the back buffers at the given size. Previously
	// acquired BackBuffers become invalid once released.
	Resize(width, height uint32) error

	// AcquireBackBuffers returns handles for every back buffer.
	AcquireBackBuffers() ([]BackBuffer, error)

	Destroy()
}
