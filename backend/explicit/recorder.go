// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package explicit

import (
	"fmt"

	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	log "github.com/sirupsen/logrus"
)

// CommandRecorder appends drawing intent to a native command list.
// It belongs to exactly one render pass and one buffer index.
type CommandRecorder struct {
	gfx.RecorderTracker

	list   hal.CommandList
	sync   *FrameSynchronizer
	frame  int
	camera hal.Memory
	logger log.FieldLogger

	// target is the fence value that retires the last submission.
	target uint64

	// generation of the swapchain the recording targets.
	generation int
}

func newCommandRecorder(device hal.Device, sync *FrameSynchronizer, frame int, camera hal.Memory, logger log.FieldLogger) (*CommandRecorder, error) {
	list, err := device.NewCommandList()
	if err != nil {
		return nil, gfx.Fatal(logger, "hal.NewCommandList()", err)
	}
	return &CommandRecorder{
		list:   list,
		sync:   sync,
		frame:  frame,
		camera: camera,
		logger: logger.WithField("frame", frame),
	}, nil
}

// retire moves a submission the device has finished back to Closed.
// It reports whether the recorder is free to be reused.
func (r *CommandRecorder) retire() bool {
	if r.State() != gfx.Submitted {
		return true
	}
	if r.sync.Completed(r.frame) < r.target {
		return false
	}
	r.Retire()
	return true
}

// Begin implements gfx.CommandRecorder. Beginning a recorder whose last
// submission has not completed is refused, as resetting its allocator
// would pull memory from under the device.
func (r *CommandRecorder) Begin() error {
	if !r.retire() {
		return gfx.Fatal(r.logger, "CommandRecorder.Begin()", gfx.ErrRecorderInFlight)
	}
	if err := r.RecorderTracker.Begin(); err != nil {
		return err
	}
	if err := r.list.Reset(); err != nil {
		return gfx.Fatal(r.logger, "CommandList.Reset()", err)
	}
	if err := r.list.Begin(); err != nil {
		return gfx.Fatal(r.logger, "CommandList.Begin()", err)
	}
	return nil
}

// SetViewport implements gfx.CommandRecorder.
func (r *CommandRecorder) SetViewport(vp gfx.Viewport) {
	r.Must("SetViewport")
	r.list.SetViewport(vp)
}

// SetScissor implements gfx.CommandRecorder.
func (r *CommandRecorder) SetScissor(rect gfx.Rect) {
	r.Must("SetScissor")
	r.list.SetScissor(rect)
}

// BindPipeline implements gfx.CommandRecorder. The pipeline reads the
// camera block of the recorder's buffer index.
func (r *CommandRecorder) BindPipeline(p gfx.Pipeline) {
	r.Must("BindPipeline")
	if p == nil {
		return
	}
	pl, ok := p.(*Pipeline)
	if !ok {
		panic(fmt.Errorf("pipeline %T does not belong to this backend", p))
	}
	r.list.BindPipeline(pl.native, r.camera)
}

// BindVertexBuffer implements gfx.CommandRecorder.
func (r *CommandRecorder) BindVertexBuffer(binding uint32, b gfx.Buffer) {
	r.Must("BindVertexBuffer")
	r.list.BindVertexBuffer(binding, memoryOf(b))
}

// BindIndexBuffer implements gfx.CommandRecorder.
func (r *CommandRecorder) BindIndexBuffer(b gfx.Buffer, format gfx.IndexFormat) {
	r.Must("BindIndexBuffer")
	r.list.BindIndexBuffer(memoryOf(b), format)
}

// Draw implements gfx.CommandRecorder.
func (r *CommandRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.Must("Draw")
	r.list.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexed implements gfx.CommandRecorder.
func (r *CommandRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.Must("DrawIndexed")
	r.list.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// End implements gfx.CommandRecorder.
func (r *CommandRecorder) End() error {
	if err := r.RecorderTracker.End(); err != nil {
		return err
	}
	if err := r.list.Close(); err != nil {
		return gfx.Fatal(r.logger, "CommandList.Close()", err)
	}
	return nil
}

// submit hands the closed list to q. The submission retires once the
// frame's next fence value is reached.
func (r *CommandRecorder) submit(q hal.Queue) error {
	if err := r.RecorderTracker.Submit(); err != nil {
		return err
	}
	if err := q.Submit(r.list); err != nil {
		return gfx.Fatal(r.logger, "Queue.Submit()", err)
	}
	r.target = r.sync.Next(r.frame)
	return nil
}

func (r *CommandRecorder) destroy() {
	r.list.Destroy()
}

func memoryOf(b gfx.Buffer) hal.Memory {
	buf, ok := b.(*Buffer)
	if !ok {
		panic(fmt.Errorf("buffer %T does not belong to this backend", b))
	}
	return buf.memory
}
