// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package headless

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
)

type listState int32

const (
	listInitial listState = iota
	listRecording
	listExecutable
)

// CommandList records operations that the queue goroutine replays.
// An executable list may be submitted again without re-recording.
type CommandList struct {
	device *Device

	state    listState
	ops      []func()
	err      error
	inFlight int32
	target   *Image
	camera   *Memory
}

// Reset implements hal.CommandList.
func (c *CommandList) Reset() error {
	if atomic.LoadInt32(&c.inFlight) > 0 {
		return errors.New("command list reset while executing")
	}
	c.ops = c.ops[:0]
	c.err = nil
	c.target = nil
	c.camera = nil
	c.state = listInitial
	return nil
}

// Begin implements hal.CommandList.
func (c *CommandList) Begin() error {
	if c.state == listRecording {
		return errors.New("command list is already recording")
	}
	if atomic.LoadInt32(&c.inFlight) > 0 {
		return errors.New("command list begin while executing")
	}
	c.ops = c.ops[:0]
	c.err = nil
	c.state = listRecording
	return nil
}

func (c *CommandList) record(op func()) {
	if c.state != listRecording {
		c.fail(errors.New("command recorded outside of Begin/Close"))
		return
	}
	c.ops = append(c.ops, op)
}

func (c *CommandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Barrier implements hal.CommandList.
func (c *CommandList) Barrier(img hal.Image, state hal.ImageState) {
	image, ok := img.(*Image)
	if !ok {
		c.fail(errors.Newf("image %T does not belong to this device", img))
		return
	}
	image.state = state
	c.record(func() {})
}

// BeginRendering implements hal.CommandList.
func (c *CommandList) BeginRendering(target hal.Image, load gfx.LoadOp, clear gfx.Color) {
	image, ok := target.(*Image)
	if !ok {
		c.fail(errors.Newf("image %T does not belong to this device", target))
		return
	}
	if image.state != hal.StateRenderTarget {
		c.fail(errors.Newf("rendering into image in %s state", image.state))
	}
	if c.target != nil {
		c.fail(errors.New("nested rendering scope"))
	}
	c.target = image
	if load == gfx.LoadClear {
		c.record(func() { image.clear(clear) })
	}
}

// EndRendering implements hal.CommandList.
func (c *CommandList) EndRendering() {
	if c.target == nil {
		c.fail(errors.New("end of rendering scope that was not begun"))
	}
	c.target = nil
}

// SetViewport implements hal.CommandList.
func (c *CommandList) SetViewport(vp gfx.Viewport) {
	c.record(func() {})
}

// SetScissor implements hal.CommandList.
func (c *CommandList) SetScissor(r gfx.Rect) {
	c.record(func() {})
}

// BindPipeline implements hal.CommandList.
func (c *CommandList) BindPipeline(p hal.Pipeline, camera hal.Memory) {
	if _, ok := p.(*Pipeline); !ok {
		c.fail(errors.Newf("pipeline %T does not belong to this device", p))
		return
	}
	m, ok := camera.(*Memory)
	if !ok {
		c.fail(errors.Newf("camera memory %T does not belong to this device", camera))
		return
	}
	c.camera = m
	c.record(func() {})
}

// BindVertexBuffer implements hal.CommandList.
func (c *CommandList) BindVertexBuffer(binding uint32, m hal.Memory) {
	c.record(func() {})
}

// BindIndexBuffer implements hal.CommandList.
func (c *CommandList) BindIndexBuffer(m hal.Memory, format gfx.IndexFormat) {
	if m.Size()%format.Size() != 0 {
		c.fail(errors.Wrapf(gfx.ErrIndexFormat, "%d byte buffer of %s indices", m.Size(), format))
	}
	c.record(func() {})
}

// Draw implements hal.CommandList.
func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.draw()
}

// DrawIndexed implements hal.CommandList.
func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.draw()
}

func (c *CommandList) draw() {
	if c.target == nil {
		c.fail(errors.New("draw outside of a rendering scope"))
	}
	d, camera := c.device, c.camera
	c.record(func() {
		atomic.AddUint64(&d.draws, 1)
		if camera != nil {
			d.readCamera(camera)
		}
	})
}

// CopyMemory implements hal.CommandList.
func (c *CommandList) CopyMemory(src, dst hal.Memory, size int) {
	s, ok1 := src.(*Memory)
	d, ok2 := dst.(*Memory)
	if !ok1 || !ok2 {
		c.fail(errors.New("memory does not belong to this device"))
		return
	}
	if size > s.Size() || size > d.Size() {
		c.fail(errors.Wrapf(gfx.ErrOutOfRange, "copy of %d bytes", size))
		return
	}
	c.record(func() { copyMemory(s, d, size) })
}

// CopyMemoryToImage implements hal.CommandList.
func (c *CommandList) CopyMemoryToImage(src hal.Memory, dst hal.Image) {
	s, ok1 := src.(*Memory)
	img, ok2 := dst.(*Image)
	if !ok1 || !ok2 {
		c.fail(errors.New("resource does not belong to this device"))
		return
	}
	if img.state != hal.StateTransferDst {
		c.fail(errors.Newf("copy into image in %s state", img.state))
	}
	c.record(func() {
		s.mutex.RLock()
		defer s.mutex.RUnlock()
		img.mutex.Lock()
		defer img.mutex.Unlock()
		copy(img.pixels, s.data)
	})
}

// CopyImageToMemory implements hal.CommandList.
func (c *CommandList) CopyImageToMemory(src hal.Image, dst hal.Memory) {
	img, ok1 := src.(*Image)
	d, ok2 := dst.(*Memory)
	if !ok1 || !ok2 {
		c.fail(errors.New("resource does not belong to this device"))
		return
	}
	if img.state != hal.StateTransferSrc {
		c.fail(errors.Newf("copy from image in %s state", img.state))
	}
	c.record(func() {
		img.mutex.RLock()
		defer img.mutex.RUnlock()
		d.mutex.Lock()
		defer d.mutex.Unlock()
		copy(d.data, img.pixels)
	})
}

// Close implements hal.CommandList. Misuse recorded into the list is
// reported here.
func (c *CommandList) Close() error {
	if c.state != listRecording {
		return errors.New("close of a command list that is not recording")
	}
	if c.target != nil {
		c.fail(errors.New("rendering scope left open"))
	}
	c.state = listExecutable
	return c.err
}

// Destroy implements hal.CommandList.
func (c *CommandList) Destroy() {
	c.device.destroy(KindCommandList)
}

func (c *CommandList) submit() ([]func(), error) {
	if c.state != listExecutable {
		return nil, errors.New("submission of a command list that is not executable")
	}
	if c.err != nil {
		return nil, c.err
	}
	atomic.AddInt32(&c.inFlight, 1)
	return append([]func(){}, c.ops...), nil
}

func (c *CommandList) retire() {
	atomic.AddInt32(&c.inFlight, -1)
}
