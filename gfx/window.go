// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "unsafe"

// Window is the windowing layer as seen by a backend. It only
// provides sizes and the native handles a surface needs.
type Window interface {
	// Size returns the current client area in pixels.
	Size() (width, height uint32)
}

// VulkanWindow can host a Vulkan surface.
type VulkanWindow interface {
	Window

	// VulkanInstanceExtensions lists the instance extensions the
	// window system needs.
	VulkanInstanceExtensions() []string

	// VulkanProcAddr returns vkGetInstanceProcAddr.
	VulkanProcAddr() unsafe.Pointer

	// CreateVulkanSurface creates a VkSurfaceKHR for the instance.
	CreateVulkanSurface(instance interface{}) (unsafe.Pointer, error)
}

// GLWindow owns an OpenGL context.
type GLWindow interface {
	Window

	// MakeCurrent binds the context to the calling thread.
	MakeCurrent() error

	// SwapBuffers presents the back buffer.
	SwapBuffers()

	// SetSwapInterval sets 1 for vsync and 0 for immediate presents.
	SetSwapInterval(interval int) error
}
