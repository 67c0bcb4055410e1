// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package backend_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/backend"
	"github.com/devblok/prism/core"
	"github.com/devblok/prism/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainWindow struct{}

func (plainWindow) Size() (uint32, uint32) { return 640, 480 }

func TestOpenHeadless(t *testing.T) {
	cfg := backend.FromConfiguration(core.DefaultConfiguration().Renderer)
	b, err := backend.Open(gfx.Headless, nil, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Initialize())
	defer b.Destroy()

	assert.Equal(t, gfx.Headless, b.Kind())
	assert.Equal(t, 3, b.BufferCount())
	assert.Equal(t, gfx.Extent{Width: 1280, Height: 720}, b.Extent())
}

func TestOpenD3D12IsNotCompiledIn(t *testing.T) {
	_, err := backend.Open(gfx.D3D12, plainWindow{}, backend.Config{}, nil)
	assert.True(t, errors.Is(err, gfx.ErrUnsupportedBackend))
}

func TestOpenNeedsCapableWindow(t *testing.T) {
	_, err := backend.Open(gfx.Vulkan, plainWindow{}, backend.Config{}, nil)
	assert.Error(t, err)

	_, err = backend.Open(gfx.OpenGL, plainWindow{}, backend.Config{}, nil)
	assert.Error(t, err)
}
