// Package core contains the Renderer facade the application drives once
// per frame, together with engine configuration and timing.
package core

import (
	"image"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/loov/hrtime"
	log "github.com/sirupsen/logrus"
)

// ErrNotInitialised is returned by frame calls made before Initialize.
var ErrNotInitialised = errors.New("renderer is not initialised")

// Stats are frame statistics of a Renderer.
type Stats struct {
	Frames  uint64
	Resizes int

	// FrameTime is the duration of the last Prepare to Display cycle
	FrameTime time.Duration

	// Average is the mean frame time since initialisation
	Average time.Duration
}

// Renderer is the top-level object the application talks to. It owns
// the backend it was given and the ordered list of render passes.
// All methods except Stats must be called from one goroutine.
type Renderer struct {
	backend gfx.Backend
	config  RendererConfiguration
	logger  log.FieldLogger

	passes      PassList
	initialised bool
	preparing   bool
	fatal       error

	width, height uint32

	frameStart  time.Duration
	statsMutex  sync.Mutex
	stats       Stats
	totalFrames time.Duration
}

// NewRenderer creates a renderer over backend, which is chosen once
// at startup and owned by the renderer from now on.
func NewRenderer(backend gfx.Backend, cfg RendererConfiguration, logger log.FieldLogger) *Renderer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Renderer{
		backend: backend,
		config:  cfg,
		logger:  logger.WithField("backend", backend.Kind().String()),
		width:   cfg.ScreenWidth,
		height:  cfg.ScreenHeight,
	}
}

// Backend returns the backend the renderer drives.
func (r *Renderer) Backend() gfx.Backend {
	return r.backend
}

// Err returns the fatal error the renderer stopped on, if any.
func (r *Renderer) Err() error {
	return r.fatal
}

// latch remembers fatal errors, after which every call fails with them.
func (r *Renderer) latch(err error) error {
	if err != nil && r.fatal == nil && gfx.IsFatal(err) {
		r.fatal = err
	}
	return err
}

func (r *Renderer) ready() error {
	if r.fatal != nil {
		return r.fatal
	}
	if !r.initialised {
		return ErrNotInitialised
	}
	return nil
}

// Initialize creates device, queue, synchronization and swapchain.
func (r *Renderer) Initialize() error {
	if r.fatal != nil {
		return r.fatal
	}
	if r.initialised {
		return nil
	}
	if err := r.backend.Initialize(); err != nil {
		return r.latch(err)
	}
	r.initialised = true

	info := r.backend.Info()
	extent := r.backend.Extent()
	r.logger.WithFields(log.Fields{
		"device": info.Name,
		"width":  extent.Width,
		"height": extent.Height,
		"images": r.backend.BufferCount(),
	}).Info("renderer initialised")
	return nil
}

// Resize recreates the swapchain image set and forwards the new size
// to every render pass. An empty size, as of a minimized window, is
// remembered but not applied.
func (r *Renderer) Resize(width, height uint32) error {
	if err := r.ready(); err != nil {
		return err
	}
	r.width, r.height = width, height
	if width == 0 || height == 0 {
		r.logger.Debug("resize to an empty surface skipped")
		return nil
	}
	if err := r.backend.Resize(width, height); err != nil {
		return r.latch(err)
	}

	extent := r.backend.Extent()
	for _, pass := range r.passes.Passes() {
		pass.Resize(extent.Width, extent.Height)
	}

	r.statsMutex.Lock()
	r.stats.Resizes++
	r.statsMutex.Unlock()
	return nil
}

// Prepare acquires the next swapchain image and blocks until the
// frame that last used it has completed. An out of date swapchain is
// recreated once before giving up.
func (r *Renderer) Prepare() (int, error) {
	if err := r.ready(); err != nil {
		return -1, err
	}
	r.frameStart = hrtime.Now()

	index, err := r.backend.Prepare()
	if errors.Is(err, gfx.ErrOutOfDate) {
		if err := r.Resize(r.width, r.height); err != nil {
			return -1, err
		}
		index, err = r.backend.Prepare()
	}
	if err != nil {
		return -1, r.latch(err)
	}
	r.preparing = true
	return index, nil
}

// Display records every pass in list order, then signals the frame's
// fence and presents. A suboptimal or out of date present recreates
// the swapchain. Errors from draw callbacks do not stop the frame,
// they are returned together once it has been presented.
func (r *Renderer) Display() error {
	if err := r.ready(); err != nil {
		return err
	}
	if !r.preparing {
		return errors.New("display without a prepared frame")
	}
	r.preparing = false

	index := r.backend.BufferIndex()
	var drawErr error
	for _, pass := range r.passes.Passes() {
		if err := pass.Record(index); err != nil {
			if gfx.IsFatal(err) {
				return r.latch(err)
			}
			drawErr = errors.CombineErrors(drawErr, err)
		}
	}

	status, err := r.backend.Present()
	if err != nil {
		return r.latch(err)
	}
	r.frameDone()

	if status.NeedsResize() {
		r.logger.WithField("status", status).Debug("swapchain needs recreation")
		if err := r.Resize(r.width, r.height); err != nil {
			return err
		}
	}
	return drawErr
}

func (r *Renderer) frameDone() {
	elapsed := hrtime.Since(r.frameStart)

	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.Frames++
	r.stats.FrameTime = elapsed
	r.totalFrames += elapsed
	r.stats.Average = r.totalFrames / time.Duration(r.stats.Frames)
}

// Stats returns frame statistics. Safe to call from any goroutine.
func (r *Renderer) Stats() Stats {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	return r.stats
}

// GetBufferIndex returns the currently acquired swapchain index.
func (r *Renderer) GetBufferIndex() int {
	return r.backend.BufferIndex()
}

// BufferCount returns the number of swapchain images, which sizes
// per-frame resource arrays.
func (r *Renderer) BufferCount() int {
	return r.backend.BufferCount()
}

// IndexFormat is the configured index width for index buffers.
func (r *Renderer) IndexFormat() gfx.IndexFormat {
	return r.config.IndexFormat
}

// CreateBuffer creates a buffer on the active backend.
func (r *Renderer) CreateBuffer(desc gfx.BufferDesc) (gfx.Buffer, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	b, err := r.backend.NewBuffer(desc)
	return b, r.latch(err)
}

// CreateTexture creates a texture on the active backend.
func (r *Renderer) CreateTexture(desc gfx.TextureDesc) (gfx.Texture, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	t, err := r.backend.NewTexture(desc)
	return t, r.latch(err)
}

// CreateTextureFromImage creates a texture holding img.
func (r *Renderer) CreateTextureFromImage(img image.Image, format gfx.Format) (gfx.Texture, error) {
	if format == gfx.FormatUndefined {
		format = gfx.FormatRGBA8Unorm
	}
	pixels, err := GetPixels(img, format)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	t, err := r.CreateTexture(gfx.TextureDesc{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Format: format,
	})
	if err != nil {
		return nil, err
	}
	if err := t.Upload(pixels); err != nil {
		t.Release()
		return nil, r.latch(err)
	}
	return t, nil
}

// CreateUniformPool creates a pool of capacity instance slots of block
// bytes. A capacity of zero takes the configured default.
func (r *Renderer) CreateUniformPool(block, capacity int) (*gfx.UniformPool, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if capacity == 0 {
		capacity = r.config.UniformPoolCapacity
	}
	return gfx.NewUniformPool(r.backend.NewBuffer, block, capacity, r.logger)
}

// CreateRenderPass builds a render pass and inserts it into the pass list.
func (r *Renderer) CreateRenderPass(spec gfx.PassSpec) (gfx.RenderPass, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if spec.DefaultClear {
		spec.ClearColor = r.config.ClearColor
	}
	pass := r.backend.NewRenderPass()
	if err := pass.Build(spec); err != nil {
		return nil, r.latch(err)
	}
	at := r.passes.Insert(pass)
	r.logger.WithFields(log.Fields{
		"pass":     spec.Name,
		"schedule": spec.Schedule,
		"layer":    spec.Layer,
		"position": at,
	}).Debug("render pass created")
	return pass, nil
}

// RemoveRenderPass takes a pass out of the list and cleans it up.
func (r *Renderer) RemoveRenderPass(pass gfx.RenderPass) error {
	if !r.passes.Remove(pass) {
		return errors.Newf("render pass %q is not owned by the renderer", pass.Name())
	}
	if err := r.backend.WaitIdle(); err != nil {
		return r.latch(err)
	}
	pass.Cleanup()
	return nil
}

// Passes returns the render passes in recording order.
func (r *Renderer) Passes() []gfx.RenderPass {
	return r.passes.Passes()
}

// WaitIdle blocks until the device has finished all submitted work.
func (r *Renderer) WaitIdle() error {
	if !r.initialised {
		return nil
	}
	return r.latch(r.backend.WaitIdle())
}

// Cleanup waits for the device, destroys all passes and the backend.
func (r *Renderer) Cleanup() {
	if r.initialised {
		if err := r.backend.WaitIdle(); err != nil {
			r.logger.WithError(err).Warn("device did not drain before cleanup")
		}
	}
	for _, pass := range r.passes.Passes() {
		r.passes.Remove(pass)
		pass.Cleanup()
	}
	r.backend.Destroy()
	r.initialised = false
}
