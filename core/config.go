package core

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the event loop period in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	Backend   gfx.Kind
	Buffering gfx.Buffering
	VSync     bool

	// Debug enables validation layers where the backend has them
	Debug bool

	ScreenWidth  uint32
	ScreenHeight uint32

	ClearColor       gfx.Color
	DeviceExtensions []string

	ShaderDirectory string
	ShaderArchive   string

	// IndexFormat is the index width used unless a binding says otherwise
	IndexFormat gfx.IndexFormat

	// UniformPoolCapacity caps the instances of a uniform pool
	UniformPoolCapacity int
}

// DefaultConfiguration returns the configuration used when nothing is set.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 0,
			EventPollDelay:  5,
		},
		Renderer: RendererConfiguration{
			Backend:             gfx.Vulkan,
			Buffering:           gfx.TripleBuffering,
			VSync:               true,
			ScreenWidth:         1280,
			ScreenHeight:        720,
			ClearColor:          gfx.Color{A: 1},
			ShaderDirectory:     "shaders",
			IndexFormat:         gfx.IndexUint32,
			UniformPoolCapacity: 256,
		},
	}
}

// LoadConfiguration loads the given .env files, without overriding
// variables already set, and reads PRISM_* variables on top of the
// defaults.
func LoadConfiguration(files ...string) (Configuration, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, errors.Wrap(err, "godotenv.Load()")
		}
	}
	envy.Reload()

	cfg := DefaultConfiguration()
	r := &cfg.Renderer
	var err error

	if r.Backend, err = gfx.ParseKind(envy.Get("PRISM_BACKEND", r.Backend.String())); err != nil {
		return cfg, errors.Wrap(err, "PRISM_BACKEND")
	}

	buffering, err := envInt("PRISM_BUFFERING", int(r.Buffering))
	if err != nil {
		return cfg, err
	}
	if r.Buffering = gfx.Buffering(buffering); !r.Buffering.Valid() {
		return cfg, errors.Newf("PRISM_BUFFERING: %d is not one of 1, 2, 3", buffering)
	}

	if r.VSync, err = envBool("PRISM_VSYNC", r.VSync); err != nil {
		return cfg, err
	}
	if r.Debug, err = envBool("PRISM_DEBUG", r.Debug); err != nil {
		return cfg, err
	}

	width, err := envInt("PRISM_WIDTH", int(r.ScreenWidth))
	if err != nil {
		return cfg, err
	}
	height, err := envInt("PRISM_HEIGHT", int(r.ScreenHeight))
	if err != nil {
		return cfg, err
	}
	if width <= 0 || height <= 0 {
		return cfg, errors.Newf("PRISM_WIDTH/PRISM_HEIGHT: %dx%d", width, height)
	}
	r.ScreenWidth, r.ScreenHeight = uint32(width), uint32(height)

	if r.ClearColor, err = parseColor(envy.Get("PRISM_CLEAR_COLOR", "0,0,0,1")); err != nil {
		return cfg, errors.Wrap(err, "PRISM_CLEAR_COLOR")
	}
	if ext := envy.Get("PRISM_DEVICE_EXTENSIONS", ""); ext != "" {
		r.DeviceExtensions = strings.Split(ext, ",")
	}
	r.ShaderDirectory = envy.Get("PRISM_SHADER_DIR", r.ShaderDirectory)
	r.ShaderArchive = envy.Get("PRISM_SHADER_ARCHIVE", r.ShaderArchive)

	if r.IndexFormat, err = gfx.ParseIndexFormat(envy.Get("PRISM_INDEX_FORMAT", r.IndexFormat.String())); err != nil {
		return cfg, errors.Wrap(err, "PRISM_INDEX_FORMAT")
	}
	if r.UniformPoolCapacity, err = envInt("PRISM_UNIFORM_POOL", r.UniformPoolCapacity); err != nil {
		return cfg, err
	}
	if r.UniformPoolCapacity <= 0 {
		return cfg, errors.Wrapf(gfx.ErrPoolUnbounded, "PRISM_UNIFORM_POOL: %d", r.UniformPoolCapacity)
	}

	if cfg.Time.FramesPerSecond, err = envInt("PRISM_FPS", cfg.Time.FramesPerSecond); err != nil {
		return cfg, err
	}
	if cfg.Time.EventPollDelay, err = envInt("PRISM_EVENT_POLL_MS", cfg.Time.EventPollDelay); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	v, err := strconv.Atoi(envy.Get(key, strconv.Itoa(def)))
	if err != nil {
		return def, errors.Wrap(err, key)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	v, err := strconv.ParseBool(envy.Get(key, strconv.FormatBool(def)))
	if err != nil {
		return def, errors.Wrap(err, key)
	}
	return v, nil
}

func parseColor(s string) (gfx.Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return gfx.Color{}, errors.Newf("%q is not r,g,b,a", s)
	}
	var c [4]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return gfx.Color{}, err
		}
		c[i] = float32(f)
	}
	return gfx.Color{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
}
