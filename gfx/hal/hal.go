// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package hal is the native device seam of explicit backends.
// The frame synchronization, swapchain rotation and render pass
// logic is written once against these interfaces; a backend only
// has to translate them into native calls.
package hal

import (
	"github.com/devblok/prism/gfx"
)

// Device is an opened native device with a single submission queue.
type Device interface {
	// Info returns the device capabilities.
	Info() gfx.DeviceInfo

	// Queue returns the one queue all submissions go through.
	Queue() Queue

	// Surface returns the presentation surface.
	Surface() Surface

	// NewFence creates a fence with a completed value of zero.
	NewFence() (Fence, error)

	// NewCommandList creates a command list together with its allocator.
	NewCommandList() (CommandList, error)

	// NewMemory creates a buffer bound to memory of the given kind.
	NewMemory(size int, usage gfx.BufferUsage, kind MemoryKind) (Memory, error)

	// NewImage creates a sampled device-local image.
	NewImage(desc gfx.TextureDesc) (Image, error)

	// NewPipeline creates a graphics pipeline.
	NewPipeline(desc PipelineDesc) (Pipeline, error)

	// WaitIdle blocks until the queue has drained.
	WaitIdle() error

	// Destroy releases the device. Everything created from it has
	// to be destroyed first.
	Destroy()
}

// Fence signals completion of submitted work with a monotonically
// increasing value.
type Fence interface {
	// Completed returns the last value the device reached.
	Completed() uint64

	// Wait blocks, without timeout, until Completed() >= value.
	Wait(value uint64) error

	// Reset clears the signaled condition so the fence can be
	// armed by the next Queue.Signal.
	Reset() error

	Destroy()
}

// Queue is the device submission queue. Work executes in
// submission order.
type Queue interface {
	// Submit enqueues a closed command list.
	Submit(list CommandList) error

	// Signal enqueues raising fence to value once all previously
	// submitted work has completed.
	Signal(fence Fence, value uint64) error

	// Present queues an image for display after the last signal.
	Present(swapchain Swapchain, index int) (gfx.PresentStatus, error)

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error
}

// MemoryKind selects where buffer memory lives.
type MemoryKind int

// Memory kinds
const (
	DeviceLocal MemoryKind = iota
	HostVisible
)

func (k MemoryKind) String() string {
	if k == HostVisible {
		return "host-visible"
	}
	return "device-local"
}

// Memory is a buffer bound to device memory.
type Memory interface {
	Size() int
	Kind() MemoryKind

	// Write copies data into host-visible memory.
	Write(offset int, data []byte) error

	// Read copies host-visible memory into p.
	Read(offset int, p []byte) error

	Destroy()
}

// ImageState is the layout an image is in, as far as recorded
// commands are concerned.
type ImageState int

// Image states
const (
	StateUndefined ImageState = iota
	StatePresent
	StateRenderTarget
	StateTransferDst
	StateTransferSrc
	StateShaderRead
)

func (s ImageState) String() string {
	return [...]string{"undefined", "present", "render-target", "transfer-dst", "transfer-src", "shader-read"}[s]
}

// Image is a native image and its view.
type Image interface {
	Extent() gfx.Extent
	Format() gfx.Format

	// State returns the state left by the last recorded barrier.
	State() ImageState

	// SetState overrides the tracked state, for a recording that moved
	// it but is dropped without being submitted.
	SetState(s ImageState)

	Destroy()
}

// PipelineDesc describes a graphics pipeline.
type PipelineDesc struct {
	Shader gfx.ShaderSource
	Format gfx.Format
}

// Pipeline is a native graphics pipeline.
type Pipeline interface {
	Name() string
	Destroy()
}

// CommandList is a native command list and its allocator.
type CommandList interface {
	// Reset reclaims the allocator memory. The list must not be in flight.
	Reset() error

	// Begin opens the list for recording.
	Begin() error

	// Barrier transitions img into state, recording the change on img.
	Barrier(img Image, state ImageState)

	BeginRendering(target Image, load gfx.LoadOp, clear gfx.Color)
	EndRendering()

	SetViewport(vp gfx.Viewport)
	SetScissor(r gfx.Rect)

	// BindPipeline binds p with camera as the uniform block of binding zero.
	BindPipeline(p Pipeline, camera Memory)
	BindVertexBuffer(binding uint32, m Memory)
	BindIndexBuffer(m Memory, format gfx.IndexFormat)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	CopyMemory(src, dst Memory, size int)
	CopyMemoryToImage(src Memory, dst Image)
	CopyImageToMemory(src Image, dst Memory)

	// Close ends recording, making the list submittable.
	Close() error

	Destroy()
}

// SurfaceCaps describes what a surface supports.
type SurfaceCaps struct {
	// Current is the surface size, possibly gfx.UndefinedExtent.
	Current      gfx.Extent
	MinImages    int
	MaxImages    int // zero means no limit
	Formats      []gfx.Format
	PresentModes []gfx.PresentMode
}

// SwapchainDesc describes a swapchain to create.
type SwapchainDesc struct {
	Extent      gfx.Extent
	Format      gfx.Format
	PresentMode gfx.PresentMode
	ImageCount  int
}

// Surface is a presentation surface.
type Surface interface {
	Capabilities() (SurfaceCaps, error)

	// CreateSwapchain creates a swapchain, handing over old if set.
	// The old swapchain is destroyed by the caller afterwards.
	CreateSwapchain(desc SwapchainDesc, old Swapchain) (Swapchain, error)
}

// Swapchain is a native swapchain.
type Swapchain interface {
	// Images returns the presentable images, views included.
	Images() []Image

	// Acquire returns the index of the next presentable image.
	Acquire() (int, gfx.PresentStatus, error)

	// Destroy destroys the swapchain and the views of its images.
	Destroy()
}
