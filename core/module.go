// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

// Phase names one point in a frame at which a specific capability is
// granted to modules. Phases execute in declaration order; a phase
// boundary is a strict happens-before fence.
type Phase int

// The frame phases, in execution order.
const (
	PhaseFrameStart Phase = iota
	PhaseSceneMutation
	PhaseGameplay
	PhasePublishViews
	PhaseGuiUpdate
	PhasePreRender
	PhaseCompositing
	PhaseFrameEnd

	phaseCount
)

var phaseNames = [phaseCount]string{
	"FrameStart",
	"SceneMutation",
	"Gameplay",
	"PublishViews",
	"GuiUpdate",
	"PreRender",
	"Compositing",
	"FrameEnd",
}

func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return "Unknown"
	}
	return phaseNames[p]
}

// PhaseMask declares the set of phases a module participates in.
type PhaseMask uint32

// AllPhases participates in every phase.
const AllPhases PhaseMask = 1<<phaseCount - 1

// MaskOf builds a mask from individual phases.
func MaskOf(phases ...Phase) PhaseMask {
	var mask PhaseMask
	for _, p := range phases {
		mask |= 1 << p
	}
	return mask
}

// Has reports whether the mask contains the phase.
func (m PhaseMask) Has(p Phase) bool {
	return m&(1<<p) != 0
}

// Module is a pluggable unit driven by the engine through the frame
// phases. Modules are attached in ascending priority order and detached
// in reverse. Per-phase behavior is declared via the optional phase
// interfaces below; the engine only calls a handler when the module
// both implements it and includes the phase in SupportedPhases.
type Module interface {
	// Name identifies the module in logs and for detaching.
	Name() string

	// Priority orders modules within every phase, ascending.
	Priority() int

	// SupportedPhases is the set of phases the module takes part in.
	SupportedPhases() PhaseMask

	// Critical modules abort the frame and shut the engine down when
	// they fail; best-effort modules only log.
	Critical() bool

	// OnAttached runs when the engine adopts the module. An error from
	// a critical module aborts engine start.
	OnAttached(*Engine) error

	// OnShutdown runs during engine shutdown, in reverse attach order.
	OnShutdown()
}

// Await is a cooperative suspension handle returned by a phase handler
// that could not finish synchronously. The orchestrator polls every
// pending handle and completes the phase only when all report ready. A
// nil *Await means the handler completed synchronously.
type Await struct {
	ready func() bool
}

// NewAwait wraps a readiness probe into a suspension handle.
func NewAwait(ready func() bool) *Await {
	return &Await{ready: ready}
}

// Ready polls the handle. Nil handles are always ready.
func (a *Await) Ready() bool {
	if a == nil {
		return true
	}
	return a.ready()
}

// FrameStarter takes part in FrameStart: surface registration and
// resize application. Synchronous.
type FrameStarter interface {
	OnFrameStart(*FrameContext) error
}

// SceneMutator takes part in SceneMutation: scene graph and view set
// changes. Cooperative.
type SceneMutator interface {
	OnSceneMutation(*FrameContext) (*Await, error)
}

// GameplayRunner takes part in Gameplay: logic over a read-only scene.
// Cooperative.
type GameplayRunner interface {
	OnGameplay(*FrameContext) (*Await, error)
}

// ViewPublisher takes part in PublishViews: materializing camera and
// view data. Cooperative.
type ViewPublisher interface {
	OnPublishViews(*FrameContext) (*Await, error)
}

// GuiUpdater takes part in GuiUpdate: issuing UI commands into the UI
// backend. Synchronous.
type GuiUpdater interface {
	OnGuiUpdate(*FrameContext) error
}

// PreRenderer takes part in PreRender: render pass and pipeline state
// setup on the frame's command recorder. Cooperative.
type PreRenderer interface {
	OnPreRender(*FrameContext) (*Await, error)
}

// Compositor takes part in Compositing: emitting composite submissions
// and marking surfaces presentable. Cooperative.
type Compositor interface {
	OnCompositing(*FrameContext) (*Await, error)
}

// FrameEnder takes part in FrameEnd: finalization before command list
// hand-off. Synchronous.
type FrameEnder interface {
	OnFrameEnd(*FrameContext) error
}

// BackbufferReferenceHolder is implemented by modules that hold
// framebuffer references across phases. The engine invokes the hook at
// FrameStart, before resize requests are read, so swapchain recreation
// never observes a torn reference.
type BackbufferReferenceHolder interface {
	ClearBackbufferReferences()
}
