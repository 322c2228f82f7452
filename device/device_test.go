// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device_test

import (
	"testing"

	"github.com/devblok/cadence/device"
)

func TestSuitable(t *testing.T) {
	req := device.Requirements{
		Extensions: []string{"VK_KHR_swapchain"},
		MinMemory:  1 << 30,
	}

	tests := []struct {
		name string
		info device.PhysicalDeviceInfo
		want bool
	}{
		{
			name: "qualifies",
			info: device.PhysicalDeviceInfo{
				Name:       "discrete",
				Extensions: []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"},
				Memory:     8 << 30,
			},
			want: true,
		},
		{
			name: "missing extension",
			info: device.PhysicalDeviceInfo{
				Name:       "compute only",
				Extensions: []string{"VK_KHR_maintenance1"},
				Memory:     8 << 30,
			},
			want: false,
		},
		{
			name: "not enough memory",
			info: device.PhysicalDeviceInfo{
				Name:       "tiny",
				Extensions: []string{"VK_KHR_swapchain"},
				Memory:     256 << 20,
			},
			want: false,
		},
		{
			name: "enumeration failed",
			info: device.PhysicalDeviceInfo{
				Name:    "broken",
				Invalid: true,
				Memory:  8 << 30,
			},
			want: false,
		},
	}

	for _, test := range tests {
		ok, reason := device.Suitable(test.info, req)
		if ok != test.want {
			t.Errorf("%s: got %v (%s)", test.name, ok, reason)
		}
		if !ok && reason == "" {
			t.Errorf("%s: rejection without a reason", test.name)
		}
	}
}

func TestSelectBestPrefersMemory(t *testing.T) {
	req := device.Requirements{Extensions: []string{"VK_KHR_swapchain"}}
	infos := []device.PhysicalDeviceInfo{
		{Name: "integrated", Extensions: []string{"VK_KHR_swapchain"}, Memory: 2 << 30},
		{Name: "discrete", Extensions: []string{"VK_KHR_swapchain"}, Memory: 12 << 30},
		{Name: "broken", Invalid: true, Memory: 24 << 30},
	}

	idx, ok := device.SelectBest(infos, req)
	if !ok {
		t.Fatal("expected a selection")
	}
	if infos[idx].Name != "discrete" {
		t.Errorf("selected %s", infos[idx].Name)
	}
}

func TestSelectBestNoneSuitable(t *testing.T) {
	req := device.Requirements{MinMemory: 1 << 40}
	if _, ok := device.SelectBest([]device.PhysicalDeviceInfo{{Memory: 1 << 30}}, req); ok {
		t.Error("selected a device below the memory requirement")
	}
}
