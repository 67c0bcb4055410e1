// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package explicit

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	"github.com/devblok/prism/model"
	log "github.com/sirupsen/logrus"
)

// Pipeline wraps a native pipeline.
type Pipeline struct {
	name   string
	native hal.Pipeline
}

// Name implements gfx.Pipeline.
func (p *Pipeline) Name() string {
	return p.name
}

// Release implements gfx.Releasable.
func (p *Pipeline) Release() {
	if p.native != nil {
		p.native.Destroy()
		p.native = nil
	}
}

// RenderPass records one logical drawing phase into a per-image
// command recorder and submits it to the device queue.
type RenderPass struct {
	id      string
	backend *Backend
	logger  log.FieldLogger

	spec      gfx.PassSpec
	recorders []*CommandRecorder
	pipeline  *Pipeline
	extent    gfx.Extent
	parent    gfx.RenderPass
	built     bool

	// cameras holds one camera block per buffer index. It only grows,
	// pipelines may keep bindings to every block.
	cameras []*Buffer
}

// NewRenderPass implements gfx.Backend.
func (b *Backend) NewRenderPass() gfx.RenderPass {
	id := gfx.NewID()
	return &RenderPass{
		id:      id,
		backend: b,
		logger:  b.logger.WithField("pass", id),
	}
}

// ID implements gfx.Resource.
func (p *RenderPass) ID() string {
	return p.id
}

// Name implements gfx.RenderPass.
func (p *RenderPass) Name() string {
	return p.spec.Name
}

// Spec implements gfx.RenderPass.
func (p *RenderPass) Spec() gfx.PassSpec {
	return p.spec
}

// Build implements gfx.RenderPass. Every failure is fatal, there is
// no such thing as a partially built pass.
func (p *RenderPass) Build(spec gfx.PassSpec) error {
	if p.built {
		return errors.Newf("render pass %q is already built", p.spec.Name)
	}
	if err := spec.Shader.Validate(); err != nil {
		return gfx.Fatal(p.logger, "RenderPass.Build()", err)
	}
	p.spec = spec
	if spec.Name != "" {
		p.logger = p.backend.logger.WithField("pass", spec.Name)
	}

	if spec.Shader != nil {
		native, err := p.backend.device.NewPipeline(hal.PipelineDesc{
			Shader: *spec.Shader,
			Format: p.backend.swapchain.Format(),
		})
		if err != nil {
			p.Cleanup()
			return gfx.Fatal(p.logger, "hal.NewPipeline()", err)
		}
		p.pipeline = &Pipeline{name: spec.Shader.Name, native: native}
	}

	if err := p.reserve(p.backend.BufferCount()); err != nil {
		p.Cleanup()
		return err
	}
	p.extent = p.backend.Extent()
	p.built = true
	return nil
}

// reserve matches the recorders to count buffer indices, destroying
// the ones past the end. The queue has to be idle.
func (p *RenderPass) reserve(count int) error {
	for len(p.recorders) > count {
		last := len(p.recorders) - 1
		p.recorders[last].destroy()
		p.recorders = p.recorders[:last]
	}
	for len(p.cameras) < count {
		camera, err := p.backend.NewBuffer(gfx.BufferDesc{
			Size:  model.CameraSize,
			Usage: gfx.UsageUniform,
		})
		if err != nil {
			return err
		}
		p.cameras = append(p.cameras, camera.(*Buffer))
		if err := camera.Write(0, model.IdentityCamera().Bytes()); err != nil {
			return gfx.Fatal(p.logger, "RenderPass.reserve()", err)
		}
	}
	for frame := len(p.recorders); frame < count; frame++ {
		rec, err := newCommandRecorder(p.backend.device, p.backend.sync, frame, p.cameras[frame].memory, p.logger)
		if err != nil {
			return err
		}
		p.recorders = append(p.recorders, rec)
	}
	return nil
}

// Resize implements gfx.RenderPass. Recordings made against the old
// image set are dropped. The swapchain waits for the queue before it is
// recreated, so no recording is still executing.
func (p *RenderPass) Resize(width, height uint32) {
	p.extent = gfx.Extent{Width: width, Height: height}
	if !p.built {
		return
	}
	if err := p.reserve(p.backend.BufferCount()); err != nil {
		p.logger.WithError(err).Error("recorder allocation after resize")
	}
	for _, rec := range p.recorders {
		rec.Invalidate()
	}
}

// Record implements gfx.RenderPass for the acquired buffer index.
func (p *RenderPass) Record(frame int) error {
	if !p.built {
		return errors.Wrapf(gfx.ErrNotBuilt, "pass %q", p.spec.Name)
	}
	if frame < 0 || frame >= len(p.recorders) {
		return errors.Newf("buffer index %d out of %d", frame, len(p.recorders))
	}
	rec := p.recorders[frame]
	queue := p.backend.device.Queue()
	generation := p.backend.swapchain.Generation()

	if p.spec.Schedule == gfx.DrawOnce && rec.generation == generation && rec.retire() && rec.State() == gfx.Closed {
		return rec.submit(queue)
	}

	image := p.backend.swapchain.Image(frame)
	initial := image.State()
	if err := rec.Begin(); err != nil {
		return err
	}
	rec.list.Barrier(image, hal.StateRenderTarget)
	rec.list.BeginRendering(image, p.spec.LoadOp(), p.spec.ClearColor)
	rec.SetViewport(gfx.FullViewport(p.extent))
	rec.SetScissor(gfx.FullScissor(p.extent))
	if p.pipeline != nil {
		rec.BindPipeline(p.pipeline)
	}

	var drawErr error
	if p.spec.Draw != nil {
		drawErr = p.spec.Draw(rec, frame)
	}

	rec.list.EndRendering()
	rec.list.Barrier(image, hal.StatePresent)
	if err := rec.End(); err != nil {
		image.SetState(initial)
		return err
	}
	rec.generation = generation
	if drawErr != nil {
		rec.Invalidate()
		image.SetState(initial)
		return errors.Wrapf(drawErr, "pass %q draw", p.spec.Name)
	}
	return rec.submit(queue)
}

// Recorder implements gfx.RenderPass.
func (p *RenderPass) Recorder(frame int) gfx.CommandRecorder {
	if frame < 0 || frame >= len(p.recorders) {
		return nil
	}
	return p.recorders[frame]
}

// Pipeline implements gfx.RenderPass.
func (p *RenderPass) Pipeline() gfx.Pipeline {
	if p.pipeline == nil {
		return nil
	}
	return p.pipeline
}

// Camera implements gfx.RenderPass.
func (p *RenderPass) Camera(frame int) gfx.Buffer {
	if frame < 0 || frame >= len(p.recorders) {
		return nil
	}
	return p.cameras[frame]
}

// Parent implements gfx.RenderPass.
func (p *RenderPass) Parent() gfx.RenderPass {
	return p.parent
}

// SetParent implements gfx.RenderPass.
func (p *RenderPass) SetParent(parent gfx.RenderPass) {
	p.parent = parent
}

// Cleanup implements gfx.RenderPass. The queue has to be idle.
func (p *RenderPass) Cleanup() {
	for _, rec := range p.recorders {
		rec.destroy()
	}
	p.recorders = nil
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	for _, camera := range p.cameras {
		camera.Release()
	}
	p.cameras = nil
	p.built = false
}

// Release implements gfx.Releasable.
func (p *RenderPass) Release() {
	p.Cleanup()
}
