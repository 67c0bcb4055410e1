// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package opengl

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/model"
	log "github.com/sirupsen/logrus"
)

// CommandRecorder executes every command on the context as it is
// recorded. Submission completes immediately.
type CommandRecorder struct {
	gfx.RecorderTracker

	ctx         Context
	indexFormat gfx.IndexFormat
}

// Begin implements gfx.CommandRecorder. There is no allocator to reset.
func (r *CommandRecorder) Begin() error {
	r.Retire()
	return r.RecorderTracker.Begin()
}

// SetViewport implements gfx.CommandRecorder.
func (r *CommandRecorder) SetViewport(vp gfx.Viewport) {
	r.Must("SetViewport")
	r.ctx.SetViewport(vp)
}

// SetScissor implements gfx.CommandRecorder.
func (r *CommandRecorder) SetScissor(rect gfx.Rect) {
	r.Must("SetScissor")
	r.ctx.SetScissor(rect)
}

// BindPipeline implements gfx.CommandRecorder. Programs are bound by
// the pass, so there is nothing to do.
func (r *CommandRecorder) BindPipeline(p gfx.Pipeline) {
	r.Must("BindPipeline")
}

// BindVertexBuffer implements gfx.CommandRecorder.
func (r *CommandRecorder) BindVertexBuffer(binding uint32, b gfx.Buffer) {
	r.Must("BindVertexBuffer")
	r.ctx.BindVertexBuffer(binding, mustBuffer(b).bind())
}

// BindIndexBuffer implements gfx.CommandRecorder.
func (r *CommandRecorder) BindIndexBuffer(b gfx.Buffer, format gfx.IndexFormat) {
	r.Must("BindIndexBuffer")
	r.indexFormat = format
	r.ctx.BindIndexBuffer(mustBuffer(b).bind())
}

// Draw implements gfx.CommandRecorder.
func (r *CommandRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.Must("Draw")
	r.ctx.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexed implements gfx.CommandRecorder.
func (r *CommandRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.Must("DrawIndexed")
	r.ctx.DrawIndexed(r.indexFormat, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func mustBuffer(b gfx.Buffer) *Buffer {
	buf, ok := b.(*Buffer)
	if !ok {
		panic(errors.Newf("buffer %T does not belong to the opengl backend", b))
	}
	return buf
}

// RenderPass executes one logical drawing phase directly on the
// context. Draw-once passes are executed every frame as well, since
// the default framebuffer does not keep its contents across swaps.
type RenderPass struct {
	id      string
	backend *Backend
	logger  log.FieldLogger

	spec      gfx.PassSpec
	recorders []*CommandRecorder
	cameras   []*Buffer
	program   uint32
	extent    gfx.Extent
	parent    gfx.RenderPass
	built     bool
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

// Build implements gfx.RenderPass.
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
		program, err := p.backend.ctx.NewProgram(*spec.Shader)
		if err != nil {
			p.Cleanup()
			return gfx.Fatal(p.logger, "Context.NewProgram()", err)
		}
		p.program = program
	}

	if err := p.reserve(p.backend.BufferCount()); err != nil {
		p.Cleanup()
		return err
	}
	p.extent = p.backend.Extent()
	p.built = true
	return nil
}

// reserve keeps one recorder and one camera block per buffer index.
func (p *RenderPass) reserve(count int) error {
	for len(p.recorders) < count {
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
		p.recorders = append(p.recorders, &CommandRecorder{ctx: p.backend.ctx})
	}
	return nil
}

// Resize implements gfx.RenderPass.
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

// Record implements gfx.RenderPass, executing the pass right away.
func (p *RenderPass) Record(frame int) error {
	if !p.built {
		return errors.Wrapf(gfx.ErrNotBuilt, "pass %q", p.spec.Name)
	}
	if frame < 0 || frame >= len(p.recorders) {
		return errors.Newf("buffer index %d out of %d", frame, len(p.recorders))
	}
	rec := p.recorders[frame]
	if err := rec.Begin(); err != nil {
		return err
	}

	rec.SetViewport(gfx.FullViewport(p.extent))
	rec.SetScissor(gfx.FullScissor(p.extent))
	if p.spec.LoadOp() == gfx.LoadClear {
		p.backend.ctx.Clear(p.spec.ClearColor)
	}
	if p.program != 0 {
		p.backend.ctx.UseProgram(p.program, p.cameras[frame].bind())
	}

	var drawErr error
	if p.spec.Draw != nil {
		drawErr = p.spec.Draw(rec, frame)
	}
	if err := rec.End(); err != nil {
		return err
	}
	if drawErr != nil {
		rec.Invalidate()
		return errors.Wrapf(drawErr, "pass %q draw", p.spec.Name)
	}
	if err := rec.Submit(); err != nil {
		return err
	}
	rec.Retire()
	return nil
}

// Recorder implements gfx.RenderPass.
func (p *RenderPass) Recorder(frame int) gfx.CommandRecorder {
	if frame < 0 || frame >= len(p.recorders) {
		return nil
	}
	return p.recorders[frame]
}

// Pipeline implements gfx.RenderPass. OpenGL has no pipeline objects.
func (p *RenderPass) Pipeline() gfx.Pipeline {
	return nil
}

// Camera implements gfx.RenderPass.
func (p *RenderPass) Camera(frame int) gfx.Buffer {
	if frame < 0 || frame >= len(p.cameras) {
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

// Cleanup implements gfx.RenderPass.
func (p *RenderPass) Cleanup() {
	p.recorders = nil
	if p.program != 0 {
		p.backend.ctx.DeleteProgram(p.program)
		p.program = 0
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
