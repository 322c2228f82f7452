// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Engine is the frame orchestrator. One render thread drives it: every
// frame it executes the phases in order, invoking the attached modules
// by ascending priority within each phase, then hands the recorded
// command lists to the frame pipeline and presents the surfaces marked
// presentable. Cooperative phase handlers may suspend by returning an
// Await; the engine polls all pending handles before crossing the
// phase boundary.
type Engine struct {
	cfg    Configuration
	logger *log.Entry

	queue     Queue
	recorder  CommandRecorder
	timeline  *TimelineCounter
	resources *PerFrameResourceManager
	pipeline  *FramePipeline
	clock     Time

	events       *EventStream
	windowEvents *EventSubscription

	modules []Module
	started bool

	frameCtx *FrameContext
	frame    uint64

	surfaceMu       sync.Mutex
	pendingSurfaces []*Surface

	stopping atomic.Bool
	stopOnce sync.Once
	stopC    chan struct{}
}

// NewEngine assembles an engine around the given queue and recorder.
// The queue gets a fresh timeline counter; frames in flight come from
// the pipeline configuration.
func NewEngine(cfg Configuration, queue Queue, recorder CommandRecorder, logger *log.Logger) (*Engine, error) {
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}

	entry := logger.WithField("component", "engine")
	timeline := NewTimelineCounter(queue)
	resources := NewPerFrameResourceManager(cfg.Pipeline.FramesInFlight)

	allocators := make([]CommandAllocator, cfg.Pipeline.FramesInFlight)
	for idx := range allocators {
		allocator, err := recorder.CreateAllocator()
		if err != nil {
			for _, created := range allocators[:idx] {
				created.Destroy()
			}
			return nil, fmt.Errorf("recorder.CreateAllocator() slot %d: %w", idx, err)
		}
		allocators[idx] = allocator
	}

	pipeline, err := NewFramePipeline(queue, timeline, resources, allocators, entry)
	if err != nil {
		return nil, err
	}

	events := NewEventStream()
	return &Engine{
		cfg:          cfg,
		logger:       entry,
		queue:        queue,
		recorder:     recorder,
		timeline:     timeline,
		resources:    resources,
		pipeline:     pipeline,
		clock:        NewTime(cfg.Time),
		events:       events,
		windowEvents: events.Subscribe(),
		frameCtx:     newFrameContext(recorder, entry),
		stopC:        make(chan struct{}),
	}, nil
}

// Events returns the engine's event stream. Platform threads post
// window events here; they are consumed only at FrameStart.
func (e *Engine) Events() *EventStream {
	return e.events
}

// Resources returns the per-frame resource manager, the single place
// to schedule release of GPU-referenced objects.
func (e *Engine) Resources() *PerFrameResourceManager {
	return e.resources
}

// Timeline returns the queue's timeline counter.
func (e *Engine) Timeline() *TimelineCounter {
	return e.timeline
}

// Pipeline returns the frame pipeline.
func (e *Engine) Pipeline() *FramePipeline {
	return e.pipeline
}

// AttachModule registers a module. Modules attach when the engine
// starts, in ascending priority order.
func (e *Engine) AttachModule(module Module) error {
	if e.started {
		return fmt.Errorf("core.AttachModule(%s): engine already started: %w", module.Name(), ErrInvalidArgument)
	}
	e.modules = append(e.modules, module)
	return nil
}

// DetachModule removes a module by name before the engine starts.
func (e *Engine) DetachModule(name string) error {
	if e.started {
		return fmt.Errorf("core.DetachModule(%s): engine already started: %w", name, ErrInvalidArgument)
	}
	for idx, module := range e.modules {
		if module.Name() == name {
			e.modules = append(e.modules[:idx], e.modules[idx+1:]...)
			return nil
		}
	}
	return fmt.Errorf("core.DetachModule(%s): no such module: %w", name, ErrInvalidArgument)
}

// AdoptSurface hands a surface to the engine. It joins the frame
// context at the next FrameStart.
func (e *Engine) AdoptSurface(surface *Surface) {
	e.surfaceMu.Lock()
	e.pendingSurfaces = append(e.pendingSurfaces, surface)
	e.surfaceMu.Unlock()
}

// Start attaches the modules in priority order. A failing critical
// module aborts the start and detaches everything attached so far, in
// reverse order; a failing best-effort module is dropped with a
// warning.
func (e *Engine) Start() error {
	if e.started {
		return fmt.Errorf("core.Start(): engine already started: %w", ErrInvalidArgument)
	}

	sort.SliceStable(e.modules, func(i, j int) bool {
		return e.modules[i].Priority() < e.modules[j].Priority()
	})

	attached := e.modules[:0]
	for _, module := range e.modules {
		if err := module.OnAttached(e); err != nil {
			if module.Critical() {
				for idx := len(attached) - 1; idx >= 0; idx-- {
					attached[idx].OnShutdown()
				}
				return fmt.Errorf("module %s failed to attach: %w", module.Name(), err)
			}
			e.logger.WithField("module", module.Name()).WithError(err).Warn("module failed to attach, dropped")
			continue
		}
		attached = append(attached, module)
	}
	e.modules = attached
	e.started = true
	return nil
}

// Stop requests shutdown: the frame in progress (or the next one)
// becomes the last.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		close(e.stopC)
	})
}

// Run starts the engine and drives frames off the fps ticker until the
// context is cancelled, Stop is called or a fatal device error occurs.
// It must run on the thread that owns the GPU queue; it returns the
// fatal error, if any, after the shutdown drain has completed.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started {
		if err := e.Start(); err != nil {
			return err
		}
	}

	var fatal error
loop:
	for {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-e.stopC:
		case <-e.clock.FpsTicker().C:
			if e.stopping.Load() {
				break
			}
			if err := e.RenderFrame(); err != nil {
				if IsTransient(err) {
					continue
				}
				fatal = err
				e.Stop()
			}
		}
		if e.stopping.Load() {
			break loop
		}
	}

	e.shutdown()
	return fatal
}

// RenderFrame executes exactly one frame: BeginFrame, the eight phases
// in order, EndFrame and presentation. A transient error means the
// frame was skipped and may be retried; a fatal error requires
// shutdown.
func (e *Engine) RenderFrame() error {
	if !e.started {
		return fmt.Errorf("core.RenderFrame(): engine not started: %w", ErrInvalidArgument)
	}
	if e.stopping.Load() {
		return fmt.Errorf("core.RenderFrame(): %w", ErrEngineShutdown)
	}

	if err := e.pipeline.BeginFrame(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrDeviceLost)
	}

	e.frame++
	e.frameCtx.beginFrame(e.frame, e.pipeline.Allocator(), e.clock.Tick())

	if err := e.frameStart(); err != nil {
		return err
	}

	for _, phase := range []Phase{
		PhaseSceneMutation,
		PhaseGameplay,
		PhasePublishViews,
		PhaseGuiUpdate,
		PhasePreRender,
		PhaseCompositing,
	} {
		if err := e.runPhase(phase); err != nil {
			return e.abortFrame(phase, err)
		}
	}

	if err := e.runPhase(PhaseFrameEnd); err != nil {
		return e.abortFrame(PhaseFrameEnd, err)
	}

	if err := e.pipeline.EndFrame(e.frameCtx.CommandLists()...); err != nil {
		return err
	}

	return e.present()
}

// frameStart runs the FrameStart boundary work: surface adoption,
// window events, the backbuffer reference clear hook, pending
// resizes, then the modules' FrameStart handlers. Adoption goes first
// so a resize event posted alongside AdoptSurface reaches the new
// surface in the same frame.
func (e *Engine) frameStart() error {
	e.surfaceMu.Lock()
	adopted := e.pendingSurfaces
	e.pendingSurfaces = nil
	e.surfaceMu.Unlock()
	for _, surface := range adopted {
		e.frameCtx.AddSurface(surface)
	}

	for _, event := range e.windowEvents.Get() {
		switch ev := event.(type) {
		case WindowCloseRequested:
			e.logger.Info("window close requested")
			e.Stop()
		case WindowAboutToBeDestroyed:
			e.logger.Info("window about to be destroyed")
			e.Stop()
		case WindowResized:
			for _, surface := range e.frameCtx.Surfaces() {
				surface.MarkShouldResize(ev.Width, ev.Height)
			}
		}
	}

	for _, module := range e.modules {
		if holder, ok := module.(BackbufferReferenceHolder); ok {
			holder.ClearBackbufferReferences()
		}
	}

	for _, surface := range e.frameCtx.Surfaces() {
		surface.beginFrame()
		if !surface.ShouldResize() {
			continue
		}
		if err := surface.ApplyPendingResize(); err != nil {
			if IsFatal(err) {
				return err
			}
			return fmt.Errorf("%v: %w", err, ErrFrameSkipped)
		}
	}

	return e.runPhase(PhaseFrameStart)
}

// abortFrame closes the books on a frame whose phases failed: the
// pipeline still signals an empty submission so slot accounting stays
// consistent, nothing is presented and the engine transitions to
// shutdown.
func (e *Engine) abortFrame(phase Phase, cause error) error {
	e.logger.WithField("phase", phase.String()).WithError(cause).Error("frame aborted")
	if err := e.pipeline.EndFrame(); err != nil && IsFatal(err) {
		cause = err
	}
	e.Stop()
	return cause
}

func (e *Engine) present() error {
	for idx, surface := range e.frameCtx.Surfaces() {
		if !e.frameCtx.SurfacePresentable(idx) {
			continue
		}
		if err := surface.Present(); err != nil {
			if IsFatal(err) {
				return err
			}
			e.logger.WithField("surface", idx).WithError(err).Warn("present failed")
		}
	}
	return nil
}

type pendingStep struct {
	module Module
	await  *Await
}

// runPhase invokes every participating module's handler for the phase
// in priority order, then polls the suspended handlers until all have
// completed. A critical module failure still lets the rest of the
// phase run and its suspended handlers finish; the failure is reported
// only at the phase boundary, where the frame aborts. The boundary is
// only crossed when the set of pending steps is empty.
func (e *Engine) runPhase(phase Phase) error {
	e.frameCtx.setPhase(phase)

	var failed error
	var pending []pendingStep
	for _, module := range e.modules {
		if !module.SupportedPhases().Has(phase) {
			continue
		}
		await, err := e.invokePhase(module, phase)
		if err != nil {
			if failure := e.moduleFailed(module, phase, err); failure != nil && failed == nil {
				failed = failure
			}
			continue
		}
		if !await.Ready() {
			pending = append(pending, pendingStep{module: module, await: await})
		}
	}

	for len(pending) > 0 {
		remaining := pending[:0]
		for _, step := range pending {
			if !step.await.Ready() {
				remaining = append(remaining, step)
			}
		}
		pending = remaining
		if len(pending) > 0 {
			// A handler that never completes stalls the frame; a
			// watchdog outside the engine owns that failure mode.
			runtime.Gosched()
		}
	}
	return failed
}

// invokePhase dispatches one module's handler for one phase. A panic
// inside the handler is downgraded to a module failure.
func (e *Engine) invokePhase(module Module, phase Phase) (await *Await, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			await = nil
			err = fmt.Errorf("panic in %s handler: %v", phase, recovered)
		}
	}()

	ctx := e.frameCtx
	switch phase {
	case PhaseFrameStart:
		if handler, ok := module.(FrameStarter); ok {
			return nil, handler.OnFrameStart(ctx)
		}
	case PhaseSceneMutation:
		if handler, ok := module.(SceneMutator); ok {
			return handler.OnSceneMutation(ctx)
		}
	case PhaseGameplay:
		if handler, ok := module.(GameplayRunner); ok {
			return handler.OnGameplay(ctx)
		}
	case PhasePublishViews:
		if handler, ok := module.(ViewPublisher); ok {
			return handler.OnPublishViews(ctx)
		}
	case PhaseGuiUpdate:
		if handler, ok := module.(GuiUpdater); ok {
			return nil, handler.OnGuiUpdate(ctx)
		}
	case PhasePreRender:
		if handler, ok := module.(PreRenderer); ok {
			return handler.OnPreRender(ctx)
		}
	case PhaseCompositing:
		if handler, ok := module.(Compositor); ok {
			return handler.OnCompositing(ctx)
		}
	case PhaseFrameEnd:
		if handler, ok := module.(FrameEnder); ok {
			return nil, handler.OnFrameEnd(ctx)
		}
	}
	return nil, nil
}

func (e *Engine) moduleFailed(module Module, phase Phase, err error) error {
	if module.Critical() {
		return fmt.Errorf("critical module %s failed in %s: %w", module.Name(), phase, err)
	}
	e.logger.WithFields(log.Fields{
		"module": module.Name(),
		"phase":  phase.String(),
	}).WithError(err).Warn("module failed, continuing")
	return nil
}

// shutdown stops accepting frames, detaches the modules in reverse
// order, drains the pipeline so every slot's fence is reached, retires
// the surfaces and forces the remaining deferred releases.
func (e *Engine) shutdown() {
	e.Stop()

	for idx := len(e.modules) - 1; idx >= 0; idx-- {
		e.modules[idx].OnShutdown()
	}
	e.modules = nil

	e.pipeline.Drain()

	for _, surface := range e.frameCtx.Surfaces() {
		surface.Destroy()
	}
	e.surfaceMu.Lock()
	for _, surface := range e.pendingSurfaces {
		surface.Destroy()
	}
	e.pendingSurfaces = nil
	e.surfaceMu.Unlock()

	if forced := e.resources.ReleaseAll(); forced > 0 {
		e.logger.WithField("releases", forced).Info("forced pending deferred releases at shutdown")
	}

	e.pipeline.Destroy()
	e.clock.Stop()
	e.windowEvents.Unsubscribe()
	e.started = false
}
