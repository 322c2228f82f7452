// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Framebuffer aggregates one swapchain back buffer with a depth
// texture, forming the target of a render pass. Framebuffers are owned
// by their Surface; module-held handles are non-owning observers that
// become invalid when the surface is resized.
type Framebuffer struct {
	color BackBuffer
	depth Texture
}

// Color returns the back buffer attachment.
func (f *Framebuffer) Color() BackBuffer {
	return f.color
}

// Depth returns the depth attachment.
func (f *Framebuffer) Depth() Texture {
	return f.depth
}

// Surface is a window-bound swapchain together with one engine-side
// framebuffer per back buffer. A resize request is latched on any
// thread and serviced only at a frame-begin boundary, after modules
// have dropped their framebuffer references; the framebuffers it
// replaces are retired through the deferred release list so GPU use
// from the frame drains first.
type Surface struct {
	swapchain Swapchain
	depth     TextureAllocator
	resources *PerFrameResourceManager
	logger    *log.Entry

	width  uint32
	height uint32

	resizeMu      sync.Mutex
	pendingWidth  uint32
	pendingHeight uint32
	shouldResize  atomic.Bool

	pins             atomic.Int32
	resizedThisFrame bool

	framebuffers []*Framebuffer
}

// NewSurface wraps the swapchain and builds the initial framebuffers.
func NewSurface(swapchain Swapchain, depth TextureAllocator, resources *PerFrameResourceManager, width, height uint32, logger *log.Entry) (*Surface, error) {
	s := &Surface{
		swapchain: swapchain,
		depth:     depth,
		resources: resources,
		logger:    logger.WithField("component", "surface"),
		width:     width,
		height:    height,
	}
	if err := s.buildFramebuffers(); err != nil {
		return nil, err
	}
	return s, nil
}

// Size returns the current surface size.
func (s *Surface) Size() (width, height uint32) {
	return s.width, s.height
}

// MarkShouldResize latches a resize request to the given size. Safe
// from platform event threads; the resize itself is applied only at
// the next frame-begin boundary.
func (s *Surface) MarkShouldResize(width, height uint32) {
	s.resizeMu.Lock()
	s.pendingWidth = width
	s.pendingHeight = height
	s.resizeMu.Unlock()
	s.shouldResize.Store(true)
}

// ShouldResize reports whether a resize request is latched.
func (s *Surface) ShouldResize() bool {
	return s.shouldResize.Load()
}

// AcquireFramebuffer returns the framebuffer for the current back
// buffer and pins the surface against resizing. Callers release the
// pin with ReleaseFramebuffer, typically from their
// ClearBackbufferReferences hook. Returns nil, without taking a pin,
// while the surface has no framebuffers after a failed rebuild.
func (s *Surface) AcquireFramebuffer() *Framebuffer {
	if len(s.framebuffers) == 0 {
		return nil
	}
	s.pins.Add(1)
	return s.framebuffers[s.swapchain.CurrentBackBufferIndex()]
}

// ReleaseFramebuffer drops one framebuffer pin.
func (s *Surface) ReleaseFramebuffer() {
	if s.pins.Add(-1) < 0 {
		panic("core: Surface.ReleaseFramebuffer without matching acquire")
	}
}

// InUse reports whether any framebuffer of the surface is pinned.
func (s *Surface) InUse() bool {
	return s.pins.Load() > 0
}

// CurrentBackBufferIndex is the swapchain's idea of which back buffer
// to render to this frame.
func (s *Surface) CurrentBackBufferIndex() int {
	return s.swapchain.CurrentBackBufferIndex()
}

// Framebuffers returns the per-back-buffer framebuffers.
func (s *Surface) Framebuffers() []*Framebuffer {
	return s.framebuffers
}

// Present shows the current back buffer.
func (s *Surface) Present() error {
	if err := s.swapchain.Present(); err != nil {
		return fmt.Errorf("swapchain.Present(): %w", err)
	}
	return nil
}

// beginFrame opens a new frame-begin boundary for the surface: the
// next ApplyPendingResize call may act again.
func (s *Surface) beginFrame() {
	s.resizedThisFrame = false
}

// ApplyPendingResize services a latched resize request. Render thread
// only, at frame-begin boundaries. When any framebuffer is still
// pinned the resize stays latched for the next frame. The old
// framebuffers are retired through the deferred release list, the
// swapchain is resized and fresh framebuffers are built. The call is
// idempotent within one frame; a transient swapchain failure keeps the
// request latched and matches ErrFrameSkipped.
func (s *Surface) ApplyPendingResize() error {
	if !s.shouldResize.Load() || s.resizedThisFrame {
		return nil
	}
	if s.InUse() {
		s.logger.Debug("resize deferred, framebuffers still referenced")
		return nil
	}

	s.resizeMu.Lock()
	width, height := s.pendingWidth, s.pendingHeight
	s.resizeMu.Unlock()

	s.retireFramebuffers()

	if err := s.swapchain.Resize(width, height); err != nil {
		if IsFatal(err) {
			return fmt.Errorf("swapchain.Resize(%dx%d): %w", width, height, err)
		}
		s.logger.WithError(err).Warn("swapchain resize failed, retrying next frame")
		return fmt.Errorf("swapchain.Resize(%dx%d): %v: %w", width, height, err, ErrFrameSkipped)
	}

	s.width, s.height = width, height
	if err := s.buildFramebuffers(); err != nil {
		return err
	}

	s.shouldResize.Store(false)
	s.resizedThisFrame = true
	s.logger.WithFields(log.Fields{"width": width, "height": height}).Info("surface resized")
	return nil
}

// Destroy retires the framebuffers through the deferred release list
// and destroys the swapchain at the same boundary.
func (s *Surface) Destroy() {
	s.retireFramebuffers()
	swapchain := s.swapchain
	s.resources.RegisterDeferredRelease(func() {
		swapchain.Destroy()
	})
}

func (s *Surface) buildFramebuffers() error {
	backBuffers, err := s.swapchain.AcquireBackBuffers()
	if err != nil {
		return fmt.Errorf("swapchain.AcquireBackBuffers(): %w", err)
	}

	framebuffers := make([]*Framebuffer, len(backBuffers))
	for idx, color := range backBuffers {
		depthTexture, err := s.depth.CreateDepthTexture(s.width, s.height)
		if err != nil {
			// The partial set was never visible to a frame, so the
			// acquired back buffers and earlier depth textures can be
			// released immediately.
			for _, buffer := range backBuffers {
				buffer.Release()
			}
			for _, framebuffer := range framebuffers[:idx] {
				framebuffer.depth.Release()
			}
			return fmt.Errorf("depth.CreateDepthTexture(%dx%d): %w", s.width, s.height, err)
		}
		framebuffers[idx] = &Framebuffer{color: color, depth: depthTexture}
	}
	s.framebuffers = framebuffers
	return nil
}

func (s *Surface) retireFramebuffers() {
	for _, framebuffer := range s.framebuffers {
		fb := framebuffer
		s.resources.RegisterDeferredRelease(func() {
			fb.color.Release()
			fb.depth.Release()
		})
	}
	s.framebuffers = nil
}
