// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/devblok/cadence/device"
)

func main() {
	vkDevice, err := device.NewVulkanDevice(device.DefaultVulkanApplicationInfo, nil)
	if err != nil {
		panic(err)
	}
	defer vkDevice.Destroy()

	infos := vkDevice.PhysicalDevices()
	bytes, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s\n", bytes)

	if _, ok := device.SelectBest(infos, device.DefaultRequirements()); !ok {
		fmt.Fprintln(os.Stderr, "no device satisfies the engine requirements")
		os.Exit(1)
	}
}
