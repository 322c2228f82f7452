// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"runtime"

	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/cadence/core"
	"github.com/devblok/cadence/core/renderer"
	"github.com/devblok/cadence/device"
)

func init() {
	runtime.LockOSThread()
}

var shaders = packr.NewBox("./shaders")

func newWindow(cfg core.Configuration) *sdl.Window {
	window, err := sdl.CreateWindow("Cadence",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Surface.ScreenWidth),
		int32(cfg.Surface.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		panic(err)
	}
	return window
}

func main() {
	configuration, err := core.ConfigurationFromEnv()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}

	logger := log.New()
	if level, err := log.ParseLevel(configuration.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow := newWindow(configuration)
	defer sdlWindow.Destroy()

	vkDevice, err := device.NewVulkanDevice(device.DefaultVulkanApplicationInfo, sdlWindow.VulkanGetInstanceExtensions())
	if err != nil {
		logger.WithError(err).Fatal("vulkan instance creation failed")
	}
	defer vkDevice.Destroy()

	infos := vkDevice.PhysicalDevices()
	selected, ok := device.SelectBest(infos, device.DefaultRequirements())
	if !ok {
		logger.Fatal("no suitable rendering device found")
	}
	logger.WithField("device", infos[selected].Name).Info("rendering device selected")

	surfacePtr, err := sdlWindow.VulkanCreateSurface(vkDevice.Instance())
	if err != nil {
		logger.WithError(err).Fatal("window surface creation failed")
	}
	vkSurface := vk.SurfaceFromPointer(uintptr(surfacePtr))

	backend, err := renderer.NewVulkanBackend(
		vkDevice.(*device.Vulkan).AvailableDevices()[selected],
		vkSurface,
		renderer.Configuration{
			SwapchainSize:     3,
			ScreenWidth:       configuration.Surface.ScreenWidth,
			ScreenHeight:      configuration.Surface.ScreenHeight,
			PipelineCachePath: "cadence.cache",
		},
		logger)
	if err != nil {
		logger.WithError(err).Fatal("renderer backend creation failed")
	}
	defer backend.Destroy()

	if vert, err := shaders.Find("default.vert.spv"); err != nil {
		logger.Warn("embedded vertex shader missing, rendering clear frames only")
	} else {
		logger.WithField("bytes", len(vert)).Debug("vertex shader loaded")
	}

	engine, err := core.NewEngine(configuration, backend.Queue(), backend.Recorder(), logger)
	if err != nil {
		logger.WithError(err).Fatal("engine creation failed")
	}

	swapchain, err := backend.CreateSwapchain()
	if err != nil {
		logger.WithError(err).Fatal("swapchain creation failed")
	}
	mainSurface, err := core.NewSurface(
		swapchain, backend.Textures(), engine.Resources(),
		configuration.Surface.ScreenWidth, configuration.Surface.ScreenHeight,
		log.NewEntry(logger))
	if err != nil {
		logger.WithError(err).Fatal("surface creation failed")
	}
	engine.AdoptSurface(mainSurface)

	modules := []core.Module{
		&platformModule{window: sdlWindow, events: engine.Events()},
		&sceneModule{},
		&compositorModule{},
	}
	for _, module := range modules {
		if err := engine.AttachModule(module); err != nil {
			logger.WithError(err).Fatal("module attach failed")
		}
	}

	if err := engine.Run(context.Background()); err != nil {
		logger.WithError(err).Fatal("engine stopped with an error")
	}
	logger.Info("engine stopped")
}
