package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfiguration(t *testing.T) {
	cfg, err := LoadConfiguration()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfiguration(), cfg)
}

func TestLoadConfigurationFromEnvironment(t *testing.T) {
	t.Setenv("PRISM_BACKEND", "OpenGL")
	t.Setenv("PRISM_BUFFERING", "2")
	t.Setenv("PRISM_VSYNC", "false")
	t.Setenv("PRISM_WIDTH", "800")
	t.Setenv("PRISM_HEIGHT", "600")
	t.Setenv("PRISM_CLEAR_COLOR", "0.5, 0.25, 0, 1")
	t.Setenv("PRISM_DEVICE_EXTENSIONS", "VK_KHR_swapchain,VK_KHR_maintenance1")
	t.Setenv("PRISM_INDEX_FORMAT", "uint16")
	t.Setenv("PRISM_FPS", "60")

	cfg, err := LoadConfiguration()
	require.NoError(t, err)

	r := cfg.Renderer
	assert.Equal(t, gfx.OpenGL, r.Backend)
	assert.Equal(t, gfx.DoubleBuffering, r.Buffering)
	assert.False(t, r.VSync)
	assert.Equal(t, uint32(800), r.ScreenWidth)
	assert.Equal(t, uint32(600), r.ScreenHeight)
	assert.Equal(t, gfx.Color{R: 0.5, G: 0.25, B: 0, A: 1}, r.ClearColor)
	assert.Equal(t, []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"}, r.DeviceExtensions)
	assert.Equal(t, gfx.IndexUint16, r.IndexFormat)
	assert.Equal(t, 60, cfg.Time.FramesPerSecond)
}

func TestLoadConfigurationRejects(t *testing.T) {
	tests := []struct {
		key, value string
		target     error
	}{
		{"PRISM_BACKEND", "metal", nil},
		{"PRISM_BUFFERING", "4", nil},
		{"PRISM_BUFFERING", "two", nil},
		{"PRISM_WIDTH", "0", nil},
		{"PRISM_CLEAR_COLOR", "1,1,1", nil},
		{"PRISM_INDEX_FORMAT", "uint8", gfx.ErrIndexFormat},
		{"PRISM_UNIFORM_POOL", "0", gfx.ErrPoolUnbounded},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfiguration()
			require.Error(t, err)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target))
			}
		})
	}
}

func TestLoadConfigurationFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "prism.env")
	require.NoError(t, os.WriteFile(file, []byte("PRISM_HEIGHT=480\nPRISM_SHADER_DIR=assets/shaders\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("PRISM_HEIGHT")
		os.Unsetenv("PRISM_SHADER_DIR")
	})

	cfg, err := LoadConfiguration(file)
	require.NoError(t, err)
	assert.Equal(t, uint32(480), cfg.Renderer.ScreenHeight)
	assert.Equal(t, "assets/shaders", cfg.Renderer.ShaderDirectory)

	_, err = LoadConfiguration(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	c, err := parseColor("1,0,0,1")
	require.NoError(t, err)
	assert.Equal(t, gfx.Color{R: 1, A: 1}, c)

	_, err = parseColor("1,0,x,1")
	assert.Error(t, err)
}
