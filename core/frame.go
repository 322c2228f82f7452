// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
)

// Scene is the engine's handle to an application scene graph. The core
// never inspects it; modules mutate it during SceneMutation and read it
// afterwards.
type Scene interface {
	Name() string
}

// View is materialized camera data bound to an optional render target.
type View struct {
	Name       string
	View       glm.Mat4
	Projection glm.Mat4
	Target     *Surface
}

// FrameContext is the per-frame scratchpad handed to every phase
// handler. Each mutator is gated on the phases that grant the right to
// call it; out-of-phase calls are rejected as no-ops with a diagnostic.
// The orchestrator hands the context to one module call at a time, so
// handlers never observe concurrent mutation.
type FrameContext struct {
	logger *log.Entry

	phase Phase
	frame uint64

	scene Scene
	views map[string]View

	surfaces    []*Surface
	presentable []bool

	lists []CommandList

	recorder  CommandRecorder
	allocator CommandAllocator

	gameDelta  time.Duration
	frameStart time.Time
}

func newFrameContext(recorder CommandRecorder, logger *log.Entry) *FrameContext {
	return &FrameContext{
		logger:   logger.WithField("component", "frame"),
		recorder: recorder,
		views:    make(map[string]View),
	}
}

// beginFrame resets the per-frame state. Views and surfaces persist
// across frames; command lists and presentable flags do not.
func (c *FrameContext) beginFrame(frame uint64, allocator CommandAllocator, gameDelta time.Duration) {
	c.phase = PhaseFrameStart
	c.frame = frame
	c.allocator = allocator
	c.gameDelta = gameDelta
	c.frameStart = time.Now()
	c.lists = c.lists[:0]
	for idx := range c.presentable {
		c.presentable[idx] = false
	}
}

func (c *FrameContext) setPhase(p Phase) {
	c.phase = p
}

func (c *FrameContext) allowed(mask PhaseMask, op string) bool {
	if mask.Has(c.phase) {
		return true
	}
	c.logger.WithFields(log.Fields{
		"op":    op,
		"phase": c.phase.String(),
	}).Warn("mutation outside of granted phase ignored")
	return false
}

// Phase returns the phase currently executing.
func (c *FrameContext) Phase() Phase {
	return c.phase
}

// Frame returns the running frame number.
func (c *FrameContext) Frame() uint64 {
	return c.frame
}

// GameDeltaTime returns the simulation time elapsed since the previous
// frame.
func (c *FrameContext) GameDeltaTime() time.Duration {
	return c.gameDelta
}

// FrameStartTime returns the timestamp taken when the frame began.
func (c *FrameContext) FrameStartTime() time.Time {
	return c.frameStart
}

// Scene returns the active scene, nil when none is set.
func (c *FrameContext) Scene() Scene {
	return c.scene
}

// SetScene installs the active scene. SceneMutation only.
func (c *FrameContext) SetScene(scene Scene) {
	if !c.allowed(MaskOf(PhaseSceneMutation), "SetScene") {
		return
	}
	c.scene = scene
}

// RegisterView adds a view under its name. SceneMutation only.
func (c *FrameContext) RegisterView(view View) {
	if !c.allowed(MaskOf(PhaseSceneMutation), "RegisterView") {
		return
	}
	c.views[view.Name] = view
}

// UpdateView replaces the named view's data. Allowed during
// SceneMutation and PublishViews.
func (c *FrameContext) UpdateView(view View) {
	if !c.allowed(MaskOf(PhaseSceneMutation, PhasePublishViews), "UpdateView") {
		return
	}
	if _, ok := c.views[view.Name]; !ok {
		c.logger.WithField("view", view.Name).Warn("update of unregistered view ignored")
		return
	}
	c.views[view.Name] = view
}

// RemoveView removes the named view. SceneMutation only.
func (c *FrameContext) RemoveView(name string) {
	if !c.allowed(MaskOf(PhaseSceneMutation), "RemoveView") {
		return
	}
	delete(c.views, name)
}

// Views returns the registered views.
func (c *FrameContext) Views() []View {
	views := make([]View, 0, len(c.views))
	for _, view := range c.views {
		views = append(views, view)
	}
	return views
}

// AddSurface appends a surface to the frame's surface list. FrameStart
// only.
func (c *FrameContext) AddSurface(surface *Surface) {
	if !c.allowed(MaskOf(PhaseFrameStart), "AddSurface") {
		return
	}
	c.surfaces = append(c.surfaces, surface)
	c.presentable = append(c.presentable, false)
}

// RemoveSurfaceAt removes the surface at the given position. FrameStart
// only.
func (c *FrameContext) RemoveSurfaceAt(index int) {
	if !c.allowed(MaskOf(PhaseFrameStart), "RemoveSurfaceAt") {
		return
	}
	if index < 0 || index >= len(c.surfaces) {
		c.logger.WithField("index", index).Warn("surface removal out of range ignored")
		return
	}
	c.surfaces = append(c.surfaces[:index], c.surfaces[index+1:]...)
	c.presentable = append(c.presentable[:index], c.presentable[index+1:]...)
}

// Surfaces returns the ordered surface list.
func (c *FrameContext) Surfaces() []*Surface {
	return c.surfaces
}

// SetSurfacePresentable marks the surface at index for presentation at
// the end of this frame. Allowed during Compositing and FrameEnd.
func (c *FrameContext) SetSurfacePresentable(index int, presentable bool) {
	if !c.allowed(MaskOf(PhaseCompositing, PhaseFrameEnd), "SetSurfacePresentable") {
		return
	}
	if index < 0 || index >= len(c.presentable) {
		c.logger.WithField("index", index).Warn("presentable flag out of range ignored")
		return
	}
	c.presentable[index] = presentable
}

// SurfacePresentable reports the presentable flag for the surface at
// index.
func (c *FrameContext) SurfacePresentable(index int) bool {
	if index < 0 || index >= len(c.presentable) {
		return false
	}
	return c.presentable[index]
}

// Recorder returns the command recorder for the frame.
func (c *FrameContext) Recorder() CommandRecorder {
	return c.recorder
}

// Allocator returns the current frame slot's command allocator.
func (c *FrameContext) Allocator() CommandAllocator {
	return c.allocator
}

// SubmitCommandList stages a closed command list for hand-off at frame
// end. Allowed during PreRender and Compositing.
func (c *FrameContext) SubmitCommandList(list CommandList) {
	if !c.allowed(MaskOf(PhasePreRender, PhaseCompositing), "SubmitCommandList") {
		return
	}
	c.lists = append(c.lists, list)
}

// CommandLists returns the lists staged so far this frame.
func (c *FrameContext) CommandLists() []CommandList {
	return c.lists
}
