// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command prismcli prints the Vulkan capable devices as JSON.
package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/devblok/prism/backend/vulkan"
	log "github.com/sirupsen/logrus"
)

var (
	debug  = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	indent = flag.Bool("indent", false, "Indent the output")
)

func main() {
	flag.Parse()

	instance, err := vulkan.NewInstance(nil, vulkan.InstanceConfiguration{
		Debug: *debug,
	}, log.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("no Vulkan instance")
	}
	defer instance.Destroy()

	encoder := json.NewEncoder(os.Stdout)
	if *indent {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(instance.PhysicalDevicesInfo()); err != nil {
		log.WithError(err).Error("encode device info")
	}
}
