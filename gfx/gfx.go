// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the rendering contracts every backend must implement.
// Client code talks to these interfaces only; the concrete backend is chosen
// once at startup and never mixed within one run.
package gfx

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Resource describes a rendering resource that can be uniquely identified.
type Resource interface {
	Releasable

	// ID returns a resource id that uniquely identifies it.
	ID() string
}

// NewID returns a fresh resource id.
func NewID() string {
	return uuid.New().String()
}

// Kind identifies a backend implementation set.
type Kind int

// Known backends. D3D12 is part of the enumeration so configuration
// can name it, but no implementation is compiled in.
const (
	Headless Kind = iota
	OpenGL
	Vulkan
	D3D12
)

var kindNames = map[Kind]string{
	Headless: "headless",
	OpenGL:   "opengl",
	Vulkan:   "vulkan",
	D3D12:    "d3d12",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Explicit reports whether the backend records command lists and
// synchronizes with fences, as opposed to executing immediately.
func (k Kind) Explicit() bool {
	return k != OpenGL
}

// ParseKind parses a backend name as produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	if s == "gl" {
		return OpenGL, nil
	}
	return Headless, errors.Newf("unknown backend %q", s)
}

// DeviceInfo describes the capabilities of the device a backend opened.
type DeviceInfo struct {
	Kind          Kind
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
}

// Backend is one compiled-in implementation of the rendering contracts.
// It owns the device, the submission queue and the swapchain.
type Backend interface {
	// Kind returns the backend identity.
	Kind() Kind

	// Info returns the capabilities of the opened device.
	Info() DeviceInfo

	// Initialize creates the device, queue, synchronization
	// primitives and swapchain. Failures are fatal.
	Initialize() error

	// BufferCount returns the number of swapchain images in rotation.
	BufferCount() int

	// BufferIndex returns the currently acquired swapchain index.
	BufferIndex() int

	// Extent returns the current swapchain size.
	Extent() Extent

	// Format returns the swapchain color format.
	Format() Format

	// Prepare acquires the next image and blocks until the
	// prior frame that used it has completed on the device.
	Prepare() (int, error)

	// Present signals the frame's fence and presents the image.
	Present() (PresentStatus, error)

	// Resize recreates the swapchain image set.
	Resize(width, height uint32) error

	// NewBuffer creates a buffer resource.
	NewBuffer(desc BufferDesc) (Buffer, error)

	// NewTexture creates a texture resource.
	NewTexture(desc TextureDesc) (Texture, error)

	// NewRenderPass creates a render pass that still has to be built.
	NewRenderPass() RenderPass

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device and everything created from it.
	Destroy()
}
