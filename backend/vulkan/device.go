// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// Config configures the Vulkan device.
type Config struct {
	// Debug enables the validation layer when it is installed
	Debug bool

	// DeviceExtensions are enabled on top of the swapchain extension
	DeviceExtensions []string
}

// Device is a hal.Device over a Vulkan logical device with a single
// queue that supports both graphics and presentation.
type Device struct {
	logger log.FieldLogger

	instance       *Instance
	surfaceHandle  vk.Surface
	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device
	queueFamily    uint32

	queue     *Queue
	surface   *Surface
	allocator *memoryAllocator
	info      gfx.DeviceInfo

	renderPassMutex sync.Mutex
	renderPasses    map[renderPassKey]vk.RenderPass
}

// Open creates an instance for window, a surface on it and a logical
// device on the most suitable physical device.
func Open(window gfx.VulkanWindow, cfg Config, logger log.FieldLogger) (*Device, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	instance, err := NewInstance(window.VulkanProcAddr(), InstanceConfiguration{
		Extensions: window.VulkanInstanceExtensions(),
		Debug:      cfg.Debug,
	}, logger)
	if err != nil {
		return nil, err
	}

	pSurface, err := window.CreateVulkanSurface(instance.instance)
	if err != nil {
		instance.Destroy()
		return nil, errors.Wrap(err, "window.CreateVulkanSurface()")
	}

	d := &Device{
		logger:        logger,
		instance:      instance,
		surfaceHandle: vk.SurfaceFromPointer(uintptr(pSurface)),
		renderPasses:  make(map[renderPassKey]vk.RenderPass),
	}
	if err := d.initialise(cfg); err != nil {
		vk.DestroySurface(instance.instance, d.surfaceHandle, nil)
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

func (d *Device) initialise(cfg Config) error {
	physicalDevice, family, err := d.pickDevice()
	if err != nil {
		return err
	}
	d.physicalDevice = physicalDevice
	d.queueFamily = family

	extensions := append([]string{vk.KhrSwapchainExtensionName}, cfg.DeviceExtensions...)
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var logicalDevice vk.Device
	if err := vk.Error(vk.CreateDevice(physicalDevice, &dci, nil, &logicalDevice)); err != nil {
		return errors.Wrap(err, "vk.CreateDevice()")
	}
	d.logicalDevice = logicalDevice

	var queue vk.Queue
	vk.GetDeviceQueue(logicalDevice, family, 0, &queue)
	d.queue = &Queue{device: d, queue: queue}
	d.surface = &Surface{device: d}
	d.allocator = newMemoryAllocator(logicalDevice, physicalDevice)

	properties := deviceProperties(physicalDevice)
	d.info = gfx.DeviceInfo{
		Kind:          gfx.Vulkan,
		ID:            int(properties.DeviceID),
		VendorID:      int(properties.VendorID),
		DriverVersion: int(properties.DriverVersion),
		Name:          vk.ToString(properties.DeviceName[:]),
	}
	return nil
}

// pickDevice returns the first suitable discrete device, or the first
// suitable one of any type, together with its queue family.
func (d *Device) pickDevice() (vk.PhysicalDevice, uint32, error) {
	var (
		chosen      vk.PhysicalDevice
		chosenQueue uint32
		found       bool
	)
	for _, device := range d.instance.availableDevices {
		family, ok, reason := d.deviceIsSuitable(device)
		if !ok {
			d.logger.WithField("reason", reason).Debug("physical device skipped")
			continue
		}
		if deviceProperties(device).DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			return device, family, nil
		}
		if !found {
			chosen, chosenQueue, found = device, family, true
		}
	}
	if !found {
		return nil, 0, errors.New("no physical device supports graphics and presentation on the surface")
	}
	return chosen, chosenQueue, nil
}

// deviceIsSuitable checks if the device can render into the surface with
// one queue. If not suitable the string contains the reason.
func (d *Device) deviceIsSuitable(device vk.PhysicalDevice) (uint32, bool, string) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return 0, false, "no queue families"
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for idx := uint32(0); idx < queueFamilyCount; idx++ {
		queueFamilies[idx].Deref()
		if queueFamilies[idx].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, idx, d.surfaceHandle, &supportsPresent)
		if supportsPresent.B() {
			return idx, true, ""
		}
	}
	return 0, false, "no queue family with graphics and present support"
}

// Info implements hal.Device.
func (d *Device) Info() gfx.DeviceInfo {
	return d.info
}

// Instance returns the instance the device was created from.
func (d *Device) Instance() *Instance {
	return d.instance
}

// Queue implements hal.Device.
func (d *Device) Queue() hal.Queue {
	return d.queue
}

// Surface implements hal.Device.
func (d *Device) Surface() hal.Surface {
	return d.surface
}

// NewFence implements hal.Device.
func (d *Device) NewFence() (hal.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(d.logicalDevice, &fci, nil, &fence)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateFence()")
	}
	return &Fence{device: d, fence: fence}, nil
}

// NewCommandList implements hal.Device. Every list has its own pool,
// so resetting it reclaims exactly that list's memory.
func (d *Device) NewCommandList() (hal.CommandList, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
	}
	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(d.logicalDevice, &cpci, nil, &commandPool)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateCommandPool()")
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(d.logicalDevice, &cbai, commandBuffers)); err != nil {
		vk.DestroyCommandPool(d.logicalDevice, commandPool, nil)
		return nil, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}

	return &CommandList{
		device: d,
		pool:   commandPool,
		buffer: commandBuffers[0],
	}, nil
}

// NewMemory implements hal.Device.
func (d *Device) NewMemory(size int, usage gfx.BufferUsage, kind hal.MemoryKind) (hal.Memory, error) {
	return d.allocator.newMemory(size, usage, kind)
}

// NewImage implements hal.Device.
func (d *Device) NewImage(desc gfx.TextureDesc) (hal.Image, error) {
	return d.newTextureImage(desc)
}

// NewPipeline implements hal.Device.
func (d *Device) NewPipeline(desc hal.PipelineDesc) (hal.Pipeline, error) {
	return d.newPipeline(desc)
}

// WaitIdle implements hal.Device.
func (d *Device) WaitIdle() error {
	return resultError(vk.DeviceWaitIdle(d.logicalDevice), "vk.DeviceWaitIdle()")
}

// Destroy implements hal.Device.
func (d *Device) Destroy() {
	vk.DeviceWaitIdle(d.logicalDevice)

	d.renderPassMutex.Lock()
	for key, renderPass := range d.renderPasses {
		vk.DestroyRenderPass(d.logicalDevice, renderPass, nil)
		delete(d.renderPasses, key)
	}
	d.renderPassMutex.Unlock()

	d.queue.destroy()
	vk.DestroyDevice(d.logicalDevice, nil)
	vk.DestroySurface(d.instance.instance, d.surfaceHandle, nil)
	d.instance.Destroy()
}

// resultError wraps a failed result with the call name and marks a
// lost device so the caller can tell it apart.
func resultError(res vk.Result, op string) error {
	err := vk.Error(res)
	if err == nil {
		return nil
	}
	err = errors.Wrap(err, op)
	if res == vk.ErrorDeviceLost {
		err = errors.Mark(err, gfx.ErrDeviceLost)
	}
	return err
}
