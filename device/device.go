// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package device discovers rendering devices and picks the one the
// engine runs on.
package device

import vk "github.com/vulkan-go/vulkan"

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int      `json:"id"`
	VendorID      int      `json:"vendorId"`
	DriverVersion int      `json:"driverVersion"`
	Name          string   `json:"name"`
	Invalid       bool     `json:"invalid"`
	Extensions    []string `json:"extensions"`
	Layers        []string `json:"layers"`
	Memory        uint64   `json:"memory"`
}

// Device describes a non-concrete rendering device
type Device interface {
	PhysicalDevices() []PhysicalDeviceInfo
	Instance() interface{}
	Destroy()
}

// Requirements is what a physical device has to offer to run the
// engine.
type Requirements struct {
	Extensions []string
	MinMemory  uint64
}

// Suitable reports whether the device satisfies the requirements and,
// when it does not, names the first missing piece.
func Suitable(info PhysicalDeviceInfo, req Requirements) (bool, string) {
	if info.Invalid {
		return false, "device enumeration failed"
	}
	if info.Memory < req.MinMemory {
		return false, "not enough device memory"
	}
	for _, required := range req.Extensions {
		found := false
		for _, ext := range info.Extensions {
			if ext == required {
				found = true
				break
			}
		}
		if !found {
			return false, "missing extension " + required
		}
	}
	return true, ""
}

// SelectBest picks the suitable device with the most memory. The
// second return value is false when no device qualifies.
func SelectBest(infos []PhysicalDeviceInfo, req Requirements) (int, bool) {
	best := -1
	for idx, info := range infos {
		if ok, _ := Suitable(info, req); !ok {
			continue
		}
		if best == -1 || info.Memory > infos[best].Memory {
			best = idx
		}
	}
	return best, best != -1
}

// DefaultRequirements is what the engine itself needs from a device.
func DefaultRequirements() Requirements {
	return Requirements{
		Extensions: []string{vk.KhrSwapchainExtensionName},
	}
}
