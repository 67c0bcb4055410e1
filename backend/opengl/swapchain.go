// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package opengl

import (
	"github.com/devblok/prism/gfx"
	log "github.com/sirupsen/logrus"
)

// FrameSynchronizer has nothing to do: every command has executed
// against the context by the time the next one is issued.
type FrameSynchronizer struct{}

// Wait returns immediately.
func (FrameSynchronizer) Wait(index int) error {
	return nil
}

// Signal returns immediately.
func (FrameSynchronizer) Signal(index int) error {
	return nil
}

// Swapchain rotates buffer indices over the single default
// framebuffer, so per-frame resources keep the same indexing as on
// explicit backends.
type Swapchain struct {
	window    gfx.GLWindow
	buffering gfx.Buffering
	logger    log.FieldLogger

	extent gfx.Extent
	vsync  bool
	index  int
}

// DefaultExtent is used when neither the caller nor the window know a size.
var DefaultExtent = gfx.Extent{Width: 1280, Height: 720}

// NewSwapchain creates a swapchain, Create has to be called before use.
func NewSwapchain(window gfx.GLWindow, buffering gfx.Buffering, logger log.FieldLogger) *Swapchain {
	return &Swapchain{
		window:    window,
		buffering: buffering,
		logger:    logger,
		index:     -1,
	}
}

// Create sets the swap interval and the size. An empty size falls back
// to the window size.
func (s *Swapchain) Create(width, height uint32, vsync bool) error {
	extent := gfx.Extent{Width: width, Height: height}
	if extent.Empty() || extent.Undefined() {
		w, h := s.window.Size()
		extent = gfx.Extent{Width: w, Height: h}
	}
	if extent.Empty() {
		extent = DefaultExtent
	}

	interval := 0
	if vsync {
		interval = 1
	}
	if err := s.window.SetSwapInterval(interval); err != nil {
		// drivers may force their own interval
		s.logger.WithError(err).Warn("swap interval not applied")
	}

	s.extent = extent
	s.vsync = vsync
	s.index = -1
	s.logger.WithFields(log.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"vsync":  vsync,
	}).Debug("swapchain created")
	return nil
}

// AcquireNextImage returns the next index modulo the buffer count.
func (s *Swapchain) AcquireNextImage() int {
	s.index = (s.index + 1) % s.Len()
	return s.index
}

// Present swaps the window buffers. A window that no longer matches
// the swapchain size reports suboptimal.
func (s *Swapchain) Present() gfx.PresentStatus {
	s.window.SwapBuffers()
	w, h := s.window.Size()
	if w != 0 && h != 0 && (w != s.extent.Width || h != s.extent.Height) {
		return gfx.PresentSuboptimal
	}
	return gfx.PresentOK
}

// Index returns the last acquired index.
func (s *Swapchain) Index() int {
	return s.index
}

// Len returns the buffer count.
func (s *Swapchain) Len() int {
	return int(s.buffering)
}

// Extent returns the size.
func (s *Swapchain) Extent() gfx.Extent {
	return s.extent
}

// VSync reports the swap interval in use.
func (s *Swapchain) VSync() bool {
	return s.vsync
}
