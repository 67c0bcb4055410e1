// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vulkan implements the native device of the explicit backend
// over the Vulkan API.
package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// ValidationLayer is enabled in debug mode when the loader has it.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// applicationInfo describes the application to the driver
var applicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   "Prism\x00",
	PEngineName:        "Prism\x00",
}

// InstanceConfiguration configures instance creation.
type InstanceConfiguration struct {
	Extensions []string
	Layers     []string
	Debug      bool
}

// Instance is a Vulkan instance with the physical devices it sees.
type Instance struct {
	logger log.FieldLogger

	instance         vk.Instance
	debugCallback    vk.DebugReportCallback
	availableDevices []vk.PhysicalDevice
}

// debugLogger receives validation messages, the callback cannot carry context.
var debugLogger log.FieldLogger = log.StandardLogger()

// NewInstance creates a Vulkan instance. procAddr is
// vkGetInstanceProcAddr from the window system, nil loads the default.
// Missing validation layers in debug mode are reported as a warning.
func NewInstance(procAddr unsafe.Pointer, cfg InstanceConfiguration, logger log.FieldLogger) (*Instance, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	extensions := append([]string(nil), cfg.Extensions...)
	layers := append([]string(nil), cfg.Layers...)
	debug := false
	if cfg.Debug {
		if hasInstanceLayer(ValidationLayer) {
			layers = append(layers, ValidationLayer)
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
			debug = true
		} else {
			logger.WithField("layer", ValidationLayer).Warn("validation layer not available, continuing without it")
		}
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        applicationInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateInstance()")
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "vk.InitInstance()")
	}

	inst := &Instance{
		logger:   logger,
		instance: instance,
	}

	if debug {
		debugLogger = logger.WithField("layer", ValidationLayer)
		dci := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport,
		}
		if err := vk.Error(vk.CreateDebugReportCallback(instance, &dci, nil, &inst.debugCallback)); err != nil {
			logger.WithError(err).Warn("vk.CreateDebugReportCallback() failed, continuing without validation output")
		}
	}

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		inst.Destroy()
		return nil, errors.Wrap(err, "vulkan.enumerateDevices()")
	}
	inst.availableDevices = physicalDevices
	return inst, nil
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint,
	messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	entry := debugLogger.WithFields(log.Fields{"prefix": pLayerPrefix, "code": messageCode})
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		entry.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		entry.Warn(pMessage)
	default:
		entry.Debug(pMessage)
	}
	return vk.Bool32(vk.False)
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for _, layer := range layers {
		layer.Deref()
		if vk.ToString(layer.LayerName[:]) == name {
			return true
		}
	}
	return false
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumeratePhysicalDevices()")
	}
	if deviceCount == 0 {
		return nil, errors.New("no Vulkan capable device")
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumeratePhysicalDevices()")
	}
	return availableDevices, nil
}

// PhysicalDeviceInfo describes a physical device for diagnostics.
type PhysicalDeviceInfo struct {
	ID            int      `json:"id"`
	VendorID      int      `json:"vendorId"`
	DriverVersion int      `json:"driverVersion"`
	Name          string   `json:"name"`
	Discrete      bool     `json:"discrete"`
	Memory        uint64   `json:"memory"`
	Extensions    []string `json:"extensions"`
	Layers        []string `json:"layers"`
	Invalid       bool     `json:"invalid,omitempty"`
}

// PhysicalDevicesInfo returns a struct for each physical device
func (i *Instance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(i.availableDevices))
	for idx, device := range i.availableDevices {
		var numDeviceExtensions uint32
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &numDeviceExtensions, nil)); err != nil {
			pdi[idx].Invalid = true
		}
		deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &numDeviceExtensions, deviceExt)); err != nil {
			pdi[idx].Invalid = true
		}
		for _, ext := range deviceExt {
			ext.Deref()
			pdi[idx].Extensions = append(pdi[idx].Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		var numDeviceLayers uint32
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &numDeviceLayers, nil)); err != nil {
			pdi[idx].Invalid = true
		}
		deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &numDeviceLayers, deviceLayers)); err != nil {
			pdi[idx].Invalid = true
		}
		for _, layer := range deviceLayers {
			layer.Deref()
			pdi[idx].Layers = append(pdi[idx].Layers, vk.ToString(layer.LayerName[:]))
		}

		var memoryProperties vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(device, &memoryProperties)
		memoryProperties.Deref()
		for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
			memoryProperties.MemoryHeaps[iMem].Deref()
			pdi[idx].Memory += uint64(memoryProperties.MemoryHeaps[iMem].Size)
		}

		properties := deviceProperties(device)
		pdi[idx].ID = int(properties.DeviceID)
		pdi[idx].VendorID = int(properties.VendorID)
		pdi[idx].Name = vk.ToString(properties.DeviceName[:])
		pdi[idx].DriverVersion = int(properties.DriverVersion)
		pdi[idx].Discrete = properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
	}
	return pdi
}

func deviceProperties(device vk.PhysicalDevice) vk.PhysicalDeviceProperties {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()
	return properties
}

// Destroy destroys the instance. Devices and surfaces created from it
// have to be destroyed first.
func (i *Instance) Destroy() {
	if i.debugCallback != nil {
		vk.DestroyDebugReportCallback(i.instance, i.debugCallback, nil)
	}
	i.availableDevices = nil
	vk.DestroyInstance(i.instance, nil)
}

func safeString(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}
