// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package backend selects the one backend implementation used for a run.
package backend

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/backend/explicit"
	"github.com/devblok/prism/backend/headless"
	"github.com/devblok/prism/backend/opengl"
	"github.com/devblok/prism/backend/vulkan"
	"github.com/devblok/prism/core"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	log "github.com/sirupsen/logrus"
)

// Config holds everything any backend may need to open.
type Config struct {
	Buffering gfx.Buffering
	VSync     bool
	Debug     bool
	Width     uint32
	Height    uint32

	DeviceExtensions []string

	// Headless configures the software device
	Headless headless.Config
}

// FromConfiguration derives the backend settings from the renderer configuration.
func FromConfiguration(cfg core.RendererConfiguration) Config {
	return Config{
		Buffering:        cfg.Buffering,
		VSync:            cfg.VSync,
		Debug:            cfg.Debug,
		Width:            cfg.ScreenWidth,
		Height:           cfg.ScreenHeight,
		DeviceExtensions: cfg.DeviceExtensions,
		Headless:         headless.DefaultConfig(),
	}
}

func (c Config) explicit() explicit.Config {
	return explicit.Config{
		Buffering: c.Buffering,
		VSync:     c.VSync,
		Width:     c.Width,
		Height:    c.Height,
	}
}

// Open returns the backend of the given kind, not initialised yet.
// The window has to provide what the backend needs: a Vulkan surface
// or a GL context. The headless backend ignores it.
func Open(kind gfx.Kind, window gfx.Window, cfg Config, logger log.FieldLogger) (gfx.Backend, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	switch kind {
	case gfx.Headless:
		return explicit.New(kind, func() (hal.Device, error) {
			return headless.NewDevice(cfg.Headless, logger), nil
		}, cfg.explicit(), logger), nil

	case gfx.Vulkan:
		vkWindow, ok := window.(gfx.VulkanWindow)
		if !ok {
			return nil, errors.Newf("window %T cannot host a vulkan surface", window)
		}
		return explicit.New(kind, func() (hal.Device, error) {
			device, err := vulkan.Open(vkWindow, vulkan.Config{
				Debug:            cfg.Debug,
				DeviceExtensions: cfg.DeviceExtensions,
			}, logger)
			if err != nil {
				return nil, err
			}
			return device, nil
		}, cfg.explicit(), logger), nil

	case gfx.OpenGL:
		glWindow, ok := window.(gfx.GLWindow)
		if !ok {
			return nil, errors.Newf("window %T has no opengl context", window)
		}
		return opengl.New(glWindow, nil, opengl.Config{
			Buffering: cfg.Buffering,
			VSync:     cfg.VSync,
			Width:     cfg.Width,
			Height:    cfg.Height,
		}, logger), nil
	}
	return nil, errors.Wrapf(gfx.ErrUnsupportedBackend, "%s", kind)
}
