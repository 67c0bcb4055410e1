// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package opengl_test

import (
	"github.com/devblok/prism/gfx"
)

// fakeContext keeps GL objects in memory and counts what was executed.
type fakeContext struct {
	next     uint32
	buffers  map[uint32][]byte
	textures map[uint32][]byte
	programs map[uint32]string

	clears        []gfx.Color
	draws         int
	indexedDraws  []gfx.IndexFormat
	viewport      gfx.Viewport
	scissor       gfx.Rect
	program       uint32
	camera        uint32
	vertexBuffers map[uint32]uint32
	indexBuffer   uint32
	finished      int
	err           error
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		buffers:       make(map[uint32][]byte),
		textures:      make(map[uint32][]byte),
		programs:      make(map[uint32]string),
		vertexBuffers: make(map[uint32]uint32),
	}
}

func (c *fakeContext) id() uint32 {
	c.next++
	return c.next
}

func (c *fakeContext) Init() error { return nil }
func (c *fakeContext) Info() (string, string) { return "devblok", "fake" }
func (c *fakeContext) SetViewport(vp gfx.Viewport) { c.viewport = vp }
func (c *fakeContext) SetScissor(r gfx.Rect) { c.scissor = r }
func (c *fakeContext) Clear(color gfx.Color) { c.clears = append(c.clears, color) }
func (c *fakeContext) DeleteBuffer(id uint32) { delete(c.buffers, id) }
func (c *fakeContext) DeleteTexture(id uint32) { delete(c.textures, id) }
func (c *fakeContext) DeleteProgram(id uint32) { delete(c.programs, id) }
func (c *fakeContext) BindVertexBuffer(binding, id uint32) { c.vertexBuffers[binding] = id }
func (c *fakeContext) BindIndexBuffer(id uint32) { c.indexBuffer = id }
func (c *fakeContext) Finish() { c.finished++ }

func (c *fakeContext) NewBuffer(size int) (uint32, error) {
	id := c.id()
	c.buffers[id] = make([]byte, size)
	return id, nil
}

func (c *fakeContext) WriteBuffer(id uint32, offset int, data []byte) {
	copy(c.buffers[id][offset:], data)
}

func (c *fakeContext) ReadBuffer(id uint32, offset int, p []byte) {
	copy(p, c.buffers[id][offset:])
}

func (c *fakeContext) NewTexture(desc gfx.TextureDesc) (uint32, error) {
	id := c.id()
	c.textures[id] = make([]byte, desc.Size())
	return id, nil
}

func (c *fakeContext) UploadTexture(id uint32, desc gfx.TextureDesc, pixels []byte) {
	copy(c.textures[id], pixels)
}

func (c *fakeContext) ReadTexture(id uint32, desc gfx.TextureDesc, p []byte) {
	copy(p, c.textures[id])
}

func (c *fakeContext) NewProgram(src gfx.ShaderSource) (uint32, error) {
	id := c.id()
	c.programs[id] = src.Name
	return id, nil
}

func (c *fakeContext) UseProgram(program, camera uint32) {
	c.program = program
	c.camera = camera
}

func (c *fakeContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.draws++
}

func (c *fakeContext) DrawIndexed(format gfx.IndexFormat, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.indexedDraws = append(c.indexedDraws, format)
}

func (c *fakeContext) Err() error {
	err := c.err
	c.err = nil
	return err
}

// fakeWindow is a GL window of a settable size.
type fakeWindow struct {
	width, height uint32
	interval      int
	swaps         int
	current       bool
}

func (w *fakeWindow) Size() (uint32, uint32) { return w.width, w.height }
func (w *fakeWindow) SwapBuffers() { w.swaps++ }

func (w *fakeWindow) MakeCurrent() error {
	w.current = true
	return nil
}

func (w *fakeWindow) SetSwapInterval(interval int) error {
	w.interval = interval
	return nil
}
