// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	vk "github.com/vulkan-go/vulkan"
)

// memoryAllocator hands out dedicated device memory allocations.
// It reads the memory properties of the physical device once.
type memoryAllocator struct {
	device        vk.Device
	memProperties vk.PhysicalDeviceMemoryProperties
}

func newMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) *memoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()

	return &memoryAllocator{
		device:        device,
		memProperties: memProperties,
	}
}

func memoryProperties(kind hal.MemoryKind) vk.MemoryPropertyFlagBits {
	if kind == hal.HostVisible {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}

// malloc allocates memory that satisfies req with the properties of kind.
func (ma *memoryAllocator) malloc(req vk.MemoryRequirements, kind hal.MemoryKind) (vk.DeviceMemory, error) {
	memTypeIdx, err := ma.findMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(memoryProperties(kind)))
	if err != nil {
		return nil, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return nil, errors.Wrap(errors.Mark(err, gfx.ErrOutOfMemory), "vk.AllocateMemory()")
	}
	return memory, nil
}

func (ma *memoryAllocator) findMemoryType(filter uint32, prop vk.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < ma.memProperties.MemoryTypeCount; idx++ {
		ma.memProperties.MemoryTypes[idx].Deref()
		if filter&(1<<idx) != 0 && (ma.memProperties.MemoryTypes[idx].PropertyFlags&prop) == prop {
			return idx, nil
		}
	}
	return 0, errors.Wrap(gfx.ErrOutOfMemory, "suitable memory type not found")
}

// newMemory creates a buffer with its own allocation. Host-visible
// memory stays mapped for the lifetime of the buffer.
func (ma *memoryAllocator) newMemory(size int, usage gfx.BufferUsage, kind hal.MemoryKind) (*Memory, error) {
	if size <= 0 {
		return nil, errors.Newf("buffer size %d", size)
	}

	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       toVkBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(ma.device, &bci, nil, &buffer)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateBuffer()")
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ma.device, buffer, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := ma.malloc(memoryRequirements, kind)
	if err != nil {
		vk.DestroyBuffer(ma.device, buffer, nil)
		return nil, err
	}
	if err := vk.Error(vk.BindBufferMemory(ma.device, buffer, memory, 0)); err != nil {
		vk.FreeMemory(ma.device, memory, nil)
		vk.DestroyBuffer(ma.device, buffer, nil)
		return nil, errors.Wrap(err, "vk.BindBufferMemory()")
	}

	m := &Memory{
		device: ma.device,
		buffer: buffer,
		memory: memory,
		size:   size,
		kind:   kind,
	}
	if kind == hal.HostVisible {
		var mapped unsafe.Pointer
		if err := vk.Error(vk.MapMemory(ma.device, memory, 0, vk.DeviceSize(size), 0, &mapped)); err != nil {
			m.Destroy()
			return nil, errors.Wrap(err, "vk.MapMemory()")
		}
		m.mapped = mapped
	}
	return m, nil
}

// Memory is a buffer with a dedicated allocation.
type Memory struct {
	device vk.Device
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   int
	kind   hal.MemoryKind
	mapped unsafe.Pointer
}

// Size implements hal.Memory.
func (m *Memory) Size() int {
	return m.size
}

// Kind implements hal.Memory.
func (m *Memory) Kind() hal.MemoryKind {
	return m.kind
}

func (m *Memory) bytes(offset, length int) ([]byte, error) {
	if m.mapped == nil {
		return nil, errors.Newf("%s memory is not mapped", m.kind)
	}
	if offset < 0 || length < 0 || offset+length > m.size {
		return nil, errors.Wrapf(gfx.ErrOutOfRange, "%d bytes at %d of %d", length, offset, m.size)
	}
	return unsafe.Slice((*byte)(m.mapped), m.size)[offset : offset+length], nil
}

// Write implements hal.Memory.
func (m *Memory) Write(offset int, data []byte) error {
	dst, err := m.bytes(offset, len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// Read implements hal.Memory.
func (m *Memory) Read(offset int, p []byte) error {
	src, err := m.bytes(offset, len(p))
	if err != nil {
		return err
	}
	copy(p, src)
	return nil
}

// Destroy implements hal.Memory.
func (m *Memory) Destroy() {
	if m.mapped != nil {
		vk.UnmapMemory(m.device, m.memory)
		m.mapped = nil
	}
	vk.DestroyBuffer(m.device, m.buffer, nil)
	vk.FreeMemory(m.device, m.memory, nil)
}
