// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

// Configuration describes the renderer configuration
type Configuration struct {
	// SwapchainSize is the minimum back buffer count asked of the
	// presentation engine.
	SwapchainSize uint32

	ScreenWidth  uint32
	ScreenHeight uint32

	// DeviceExtensions are enabled on the logical device in addition
	// to the swapchain extension.
	DeviceExtensions []string

	// PipelineCachePath persists the pipeline cache between runs.
	// Empty disables persistence.
	PipelineCachePath string

	// FencePollInterval is the fence pump period in milliseconds.
	// Zero picks a default.
	FencePollInterval int
}
