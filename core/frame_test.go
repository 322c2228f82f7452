// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	"github.com/devblok/cadence/core"
)

type testScene struct {
	name string
}

func (s *testScene) Name() string { return s.name }

// Drives an engine with a probe module that calls the given context
// mutators in chosen phases, so the phase gates can be observed
// through public API only.
type phaseProbe struct {
	name     string
	priority int
	mask     core.PhaseMask
	critical bool

	onFrameStart func(*core.FrameContext) error
	onMutate     func(*core.FrameContext) error
	onGameplay   func(*core.FrameContext) error
	onPublish    func(*core.FrameContext) error
	onGui        func(*core.FrameContext) error
	onPreRender  func(*core.FrameContext) error
	onComposite  func(*core.FrameContext) error
	onFrameEnd   func(*core.FrameContext) error
	onShutdown   func()
}

func (p *phaseProbe) Name() string                    { return p.name }
func (p *phaseProbe) Priority() int                   { return p.priority }
func (p *phaseProbe) SupportedPhases() core.PhaseMask { return p.mask }
func (p *phaseProbe) Critical() bool                  { return p.critical }
func (p *phaseProbe) OnAttached(*core.Engine) error   { return nil }

func (p *phaseProbe) OnShutdown() {
	if p.onShutdown != nil {
		p.onShutdown()
	}
}

func (p *phaseProbe) OnFrameStart(ctx *core.FrameContext) error {
	if p.onFrameStart != nil {
		return p.onFrameStart(ctx)
	}
	return nil
}

func (p *phaseProbe) OnSceneMutation(ctx *core.FrameContext) (*core.Await, error) {
	if p.onMutate != nil {
		return nil, p.onMutate(ctx)
	}
	return nil, nil
}

func (p *phaseProbe) OnGameplay(ctx *core.FrameContext) (*core.Await, error) {
	if p.onGameplay != nil {
		return nil, p.onGameplay(ctx)
	}
	return nil, nil
}

func (p *phaseProbe) OnPublishViews(ctx *core.FrameContext) (*core.Await, error) {
	if p.onPublish != nil {
		return nil, p.onPublish(ctx)
	}
	return nil, nil
}

func (p *phaseProbe) OnGuiUpdate(ctx *core.FrameContext) error {
	if p.onGui != nil {
		return p.onGui(ctx)
	}
	return nil
}

func (p *phaseProbe) OnPreRender(ctx *core.FrameContext) (*core.Await, error) {
	if p.onPreRender != nil {
		return nil, p.onPreRender(ctx)
	}
	return nil, nil
}

func (p *phaseProbe) OnCompositing(ctx *core.FrameContext) (*core.Await, error) {
	if p.onComposite != nil {
		return nil, p.onComposite(ctx)
	}
	return nil, nil
}

func (p *phaseProbe) OnFrameEnd(ctx *core.FrameContext) error {
	if p.onFrameEnd != nil {
		return p.onFrameEnd(ctx)
	}
	return nil
}

func TestSceneMutationGate(t *testing.T) {
	scene := &testScene{name: "main"}

	probe := &phaseProbe{
		name: "probe",
		mask: core.AllPhases,
		onMutate: func(ctx *core.FrameContext) error {
			ctx.SetScene(scene)
			return nil
		},
		onPreRender: func(ctx *core.FrameContext) error {
			// Not a granted phase, must be ignored.
			ctx.SetScene(&testScene{name: "rogue"})
			return nil
		},
	}

	engine := startEngine(t, probe)
	if err := engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}

	probe.onGameplay = func(ctx *core.FrameContext) error {
		if ctx.Scene() != scene {
			t.Error("scene differs from the one set during SceneMutation")
		}
		return nil
	}
	if err := engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestAddSurfaceOutsideFrameStartIgnored(t *testing.T) {
	resources := core.NewPerFrameResourceManager(2)
	rogue, _ := newSurface(t, &fakeSwapchain{buffers: 2}, resources)

	var surfaces int
	probe := &phaseProbe{
		name: "probe",
		mask: core.AllPhases,
		onPreRender: func(ctx *core.FrameContext) error {
			ctx.AddSurface(rogue)
			return nil
		},
		onFrameEnd: func(ctx *core.FrameContext) error {
			surfaces = len(ctx.Surfaces())
			return nil
		},
	}

	engine := startEngine(t, probe)
	if err := engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if surfaces != 0 {
		t.Errorf("out-of-phase AddSurface took effect, %d surfaces", surfaces)
	}
}

func TestViewRegistrationAndPublish(t *testing.T) {
	probe := &phaseProbe{
		name: "probe",
		mask: core.AllPhases,
		onMutate: func(ctx *core.FrameContext) error {
			ctx.RegisterView(core.View{Name: "main"})
			return nil
		},
		onPublish: func(ctx *core.FrameContext) error {
			ctx.UpdateView(core.View{Name: "main"})
			ctx.RegisterView(core.View{Name: "rogue"}) // not granted here
			return nil
		},
	}

	engine := startEngine(t, probe)
	if err := engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}

	probe.onFrameEnd = func(ctx *core.FrameContext) error {
		views := ctx.Views()
		if len(views) != 1 {
			t.Errorf("expected 1 view, got %d", len(views))
		} else if views[0].Name != "main" {
			t.Errorf("unexpected view %q", views[0].Name)
		}
		return nil
	}
	if err := engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestPresentableGate(t *testing.T) {
	resources := core.NewPerFrameResourceManager(2)

	probe := &phaseProbe{
		name: "probe",
		mask: core.AllPhases,
		onGameplay: func(ctx *core.FrameContext) error {
			// Not granted during Gameplay.
			ctx.SetSurfacePresentable(0, true)
			return nil
		},
		onFrameEnd: func(ctx *core.FrameContext) error {
			if ctx.SurfacePresentable(0) {
				t.Error("presentable flag set outside of a granted phase")
			}
			return nil
		},
	}

	engine := startEngine(t, probe)
	surface, _ := newSurface(t, &fakeSwapchain{buffers: 2}, resources)
	engine.AdoptSurface(surface)

	if err := engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
}
