// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package opengl implements the rendering contracts on an immediate
// mode OpenGL context. Commands execute as they are recorded against
// the one context, which serializes them by construction: there are no
// fences to wait on and no command lists to submit.
package opengl

import (
	"github.com/devblok/prism/gfx"
	log "github.com/sirupsen/logrus"
)

// Config holds the presentation settings.
type Config struct {
	Buffering gfx.Buffering
	VSync     bool
	Width     uint32
	Height    uint32
}

// Backend implements gfx.Backend on an OpenGL context.
type Backend struct {
	window gfx.GLWindow
	ctx    Context
	config Config
	logger log.FieldLogger

	sync      FrameSynchronizer
	swapchain *Swapchain
	info      gfx.DeviceInfo
}

// New creates a backend for window. A nil ctx drives the native
// context of the window.
func New(window gfx.GLWindow, ctx Context, cfg Config, logger log.FieldLogger) *Backend {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if ctx == nil {
		ctx = NewNativeContext()
	}
	if !cfg.Buffering.Valid() {
		cfg.Buffering = gfx.TripleBuffering
	}
	logger = logger.WithField("backend", gfx.OpenGL.String())
	return &Backend{
		window:    window,
		ctx:       ctx,
		config:    cfg,
		logger:    logger,
		swapchain: NewSwapchain(window, cfg.Buffering, logger),
	}
}

// Kind implements gfx.Backend.
func (b *Backend) Kind() gfx.Kind {
	return gfx.OpenGL
}

// Info implements gfx.Backend.
func (b *Backend) Info() gfx.DeviceInfo {
	return b.info
}

// Context returns the context commands execute on.
func (b *Backend) Context() Context {
	return b.ctx
}

// Initialize implements gfx.Backend.
func (b *Backend) Initialize() error {
	if err := b.window.MakeCurrent(); err != nil {
		return gfx.Fatal(b.logger, "GLWindow.MakeCurrent()", err)
	}
	if err := b.ctx.Init(); err != nil {
		return gfx.Fatal(b.logger, "Context.Init()", err)
	}
	vendor, renderer := b.ctx.Info()
	b.info = gfx.DeviceInfo{Kind: gfx.OpenGL, Name: renderer}

	if err := b.swapchain.Create(b.config.Width, b.config.Height, b.config.VSync); err != nil {
		return err
	}
	b.logger.WithFields(log.Fields{
		"vendor":   vendor,
		"renderer": renderer,
		"buffers":  b.swapchain.Len(),
	}).Info("backend initialised")
	return nil
}

// BufferCount implements gfx.Backend.
func (b *Backend) BufferCount() int {
	return b.swapchain.Len()
}

// BufferIndex implements gfx.Backend.
func (b *Backend) BufferIndex() int {
	return b.swapchain.Index()
}

// Extent implements gfx.Backend.
func (b *Backend) Extent() gfx.Extent {
	return b.swapchain.Extent()
}

// Format implements gfx.Backend. The default framebuffer is treated
// as RGBA, its real format is up to the window system.
func (b *Backend) Format() gfx.Format {
	return gfx.FormatRGBA8Unorm
}

// Synchronizer returns the frame synchronizer.
func (b *Backend) Synchronizer() *FrameSynchronizer {
	return &b.sync
}

// Swapchain returns the swapchain.
func (b *Backend) Swapchain() *Swapchain {
	return b.swapchain
}

// Prepare implements gfx.Backend.
func (b *Backend) Prepare() (int, error) {
	index := b.swapchain.AcquireNextImage()
	if err := b.sync.Wait(index); err != nil {
		return -1, err
	}
	return index, nil
}

// Present implements gfx.Backend.
func (b *Backend) Present() (gfx.PresentStatus, error) {
	if err := b.sync.Signal(b.swapchain.Index()); err != nil {
		return gfx.PresentOK, err
	}
	if err := b.ctx.Err(); err != nil {
		return gfx.PresentOK, gfx.Fatal(b.logger, "Backend.Present()", err)
	}
	return b.swapchain.Present(), nil
}

// Resize implements gfx.Backend.
func (b *Backend) Resize(width, height uint32) error {
	return b.swapchain.Create(width, height, b.config.VSync)
}

// WaitIdle implements gfx.Backend.
func (b *Backend) WaitIdle() error {
	b.ctx.Finish()
	return nil
}

// Destroy implements gfx.Backend. Resources are owned by the context
// and go away with it.
func (b *Backend) Destroy() {
	b.ctx.Finish()
	b.logger.Debug("backend destroyed")
}
