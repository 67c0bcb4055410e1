// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/veandco/go-sdl2/sdl"
)

// window adapts an SDL window to gfx.VulkanWindow and gfx.GLWindow.
// Only the side matching the flags it was created with works.
type window struct {
	*sdl.Window
	context sdl.GLContext
}

func newWindow(title string, kind gfx.Kind, width, height uint32) (*window, error) {
	flags := uint32(sdl.WINDOW_RESIZABLE)
	switch kind {
	case gfx.Vulkan:
		if err := sdl.VulkanLoadLibrary(""); err != nil {
			return nil, errors.Wrap(err, "sdl.VulkanLoadLibrary()")
		}
		flags |= sdl.WINDOW_VULKAN
	case gfx.OpenGL:
		sdl.GLSetAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, 4)
		sdl.GLSetAttribute(sdl.GL_CONTEXT_MINOR_VERSION, 6)
		sdl.GLSetAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE)
		sdl.GLSetAttribute(sdl.GL_DOUBLEBUFFER, 1)
		flags |= sdl.WINDOW_OPENGL
	default:
		flags |= sdl.WINDOW_HIDDEN
	}

	sdlWindow, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(width),
		int32(height),
		flags)
	if err != nil {
		return nil, errors.Wrap(err, "sdl.CreateWindow()")
	}

	w := &window{Window: sdlWindow}
	if kind == gfx.OpenGL {
		if w.context, err = sdlWindow.GLCreateContext(); err != nil {
			sdlWindow.Destroy()
			return nil, errors.Wrap(err, "sdl.GLCreateContext()")
		}
	}
	return w, nil
}

// Size implements gfx.Window.
func (w *window) Size() (uint32, uint32) {
	width, height := w.Window.GetSize()
	return uint32(width), uint32(height)
}

// VulkanInstanceExtensions implements gfx.VulkanWindow.
func (w *window) VulkanInstanceExtensions() []string {
	return w.Window.VulkanGetInstanceExtensions()
}

// VulkanProcAddr implements gfx.VulkanWindow.
func (w *window) VulkanProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// CreateVulkanSurface implements gfx.VulkanWindow.
func (w *window) CreateVulkanSurface(instance interface{}) (unsafe.Pointer, error) {
	return w.Window.VulkanCreateSurface(instance)
}

// MakeCurrent implements gfx.GLWindow.
func (w *window) MakeCurrent() error {
	if w.context == nil {
		return errors.New("window has no OpenGL context")
	}
	return w.Window.GLMakeCurrent(w.context)
}

// SwapBuffers implements gfx.GLWindow.
func (w *window) SwapBuffers() {
	w.Window.GLSwap()
}

// SetSwapInterval implements gfx.GLWindow.
func (w *window) SetSwapInterval(interval int) error {
	return sdl.GLSetSwapInterval(interval)
}

// Destroy releases the context, the window and the Vulkan loader.
func (w *window) Destroy(kind gfx.Kind) {
	if w.context != nil {
		sdl.GLDeleteContext(w.context)
	}
	w.Window.Destroy()
	if kind == gfx.Vulkan {
		sdl.VulkanUnloadLibrary()
	}
}
