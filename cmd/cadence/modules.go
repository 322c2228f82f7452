// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/cadence/core"
)

// platformModule pumps SDL events into the engine's event stream. It
// runs first so close and resize reach the engine at the next frame
// boundary.
type platformModule struct {
	window *sdl.Window
	events *core.EventStream
}

func (m *platformModule) Name() string                    { return "platform" }
func (m *platformModule) Priority() int                   { return 0 }
func (m *platformModule) SupportedPhases() core.PhaseMask { return core.MaskOf(core.PhaseFrameStart) }
func (m *platformModule) Critical() bool                  { return true }
func (m *platformModule) OnAttached(*core.Engine) error   { return nil }
func (m *platformModule) OnShutdown()                     {}

func (m *platformModule) OnFrameStart(*core.FrameContext) error {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.KeyboardEvent:
			if et.Keysym.Sym == sdl.K_ESCAPE {
				m.events.Post(core.WindowCloseRequested{})
			}
		case *sdl.QuitEvent:
			m.events.Post(core.WindowCloseRequested{})
		case *sdl.WindowEvent:
			if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				m.events.Post(core.WindowResized{
					Width:  uint32(et.Data1),
					Height: uint32(et.Data2),
				})
			}
		}
	}
	return nil
}

type demoScene struct{}

func (demoScene) Name() string { return "demo" }

// sceneModule owns the demo scene and its single camera view.
type sceneModule struct {
	angle float32
}

func (m *sceneModule) Name() string  { return "scene" }
func (m *sceneModule) Priority() int { return 100 }
func (m *sceneModule) SupportedPhases() core.PhaseMask {
	return core.MaskOf(core.PhaseSceneMutation, core.PhasePublishViews)
}
func (m *sceneModule) Critical() bool                { return false }
func (m *sceneModule) OnAttached(*core.Engine) error { return nil }
func (m *sceneModule) OnShutdown()                   {}

func (m *sceneModule) OnSceneMutation(ctx *core.FrameContext) (*core.Await, error) {
	if ctx.Scene() == nil {
		ctx.SetScene(demoScene{})
		ctx.RegisterView(core.View{Name: "camera"})
	}
	m.angle += float32(ctx.GameDeltaTime().Seconds())
	return nil, nil
}

func (m *sceneModule) OnPublishViews(ctx *core.FrameContext) (*core.Await, error) {
	eye := glm.Rotate3DY(m.angle).Mul3x1(glm.Vec3{0, 1.5, 4})
	ctx.UpdateView(core.View{
		Name:       "camera",
		View:       glm.LookAtV(eye, glm.Vec3{0, 0, 0}, glm.Vec3{0, 1, 0}),
		Projection: glm.Perspective(glm.DegToRad(60), 4.0/3.0, 0.1, 100),
	})
	return nil, nil
}

// compositorModule records one command list per frame and marks the
// main surface presentable.
type compositorModule struct{}

func (m *compositorModule) Name() string  { return "compositor" }
func (m *compositorModule) Priority() int { return 1000 }
func (m *compositorModule) SupportedPhases() core.PhaseMask {
	return core.MaskOf(core.PhasePreRender, core.PhaseCompositing)
}
func (m *compositorModule) Critical() bool                { return true }
func (m *compositorModule) OnAttached(*core.Engine) error { return nil }
func (m *compositorModule) OnShutdown()                   {}

func (m *compositorModule) OnPreRender(ctx *core.FrameContext) (*core.Await, error) {
	list, err := ctx.Recorder().CreateList(ctx.Allocator())
	if err != nil {
		return nil, err
	}
	if err := list.Close(); err != nil {
		return nil, err
	}
	ctx.SubmitCommandList(list)
	return nil, nil
}

func (m *compositorModule) OnCompositing(ctx *core.FrameContext) (*core.Await, error) {
	for idx := range ctx.Surfaces() {
		ctx.SetSurfacePresentable(idx, true)
	}
	return nil, nil
}
