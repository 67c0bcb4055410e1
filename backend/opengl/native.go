// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package opengl

import (
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/model"
	"github.com/go-gl/gl/v4.6-core/gl"
)

// NativeContext drives the context current on the calling thread.
// Shaders are consumed as SPIR-V, which needs OpenGL 4.6.
type NativeContext struct {
	vertexArray uint32
}

// NewNativeContext returns a context that is not initialised yet.
func NewNativeContext() *NativeContext {
	return &NativeContext{}
}

// Init implements Context.
func (c *NativeContext) Init() error {
	if err := gl.Init(); err != nil {
		return errors.Wrap(err, "gl.Init()")
	}
	gl.Enable(gl.SCISSOR_TEST)

	var vertex model.Vertex
	gl.GenVertexArrays(1, &c.vertexArray)
	gl.BindVertexArray(c.vertexArray)
	gl.VertexAttribFormat(0, 3, gl.FLOAT, false, uint32(unsafe.Offsetof(vertex.Pos)))
	gl.VertexAttribFormat(1, 4, gl.FLOAT, false, uint32(unsafe.Offsetof(vertex.Color)))
	gl.VertexAttribBinding(0, 0)
	gl.VertexAttribBinding(1, 0)
	gl.EnableVertexAttribArray(0)
	gl.EnableVertexAttribArray(1)
	return c.Err()
}

// Info implements Context.
func (c *NativeContext) Info() (vendor, renderer string) {
	return gl.GoStr(gl.GetString(gl.VENDOR)), gl.GoStr(gl.GetString(gl.RENDERER))
}

// SetViewport implements Context.
func (c *NativeContext) SetViewport(vp gfx.Viewport) {
	gl.Viewport(int32(vp.X), int32(vp.Y), int32(vp.Width), int32(vp.Height))
	gl.DepthRangef(vp.MinDepth, vp.MaxDepth)
}

// SetScissor implements Context.
func (c *NativeContext) SetScissor(r gfx.Rect) {
	gl.Scissor(r.X, r.Y, int32(r.Width), int32(r.Height))
}

// Clear implements Context.
func (c *NativeContext) Clear(color gfx.Color) {
	gl.ClearColor(color.R, color.G, color.B, color.A)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

// NewBuffer implements Context.
func (c *NativeContext) NewBuffer(size int) (uint32, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, id)
	gl.BufferData(gl.COPY_WRITE_BUFFER, size, nil, gl.DYNAMIC_DRAW)
	if err := c.Err(); err != nil {
		gl.DeleteBuffers(1, &id)
		return 0, errors.Wrap(err, "gl.BufferData()")
	}
	return id, nil
}

// WriteBuffer implements Context.
func (c *NativeContext) WriteBuffer(id uint32, offset int, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, id)
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, offset, len(data), gl.Ptr(data))
}

// ReadBuffer implements Context.
func (c *NativeContext) ReadBuffer(id uint32, offset int, p []byte) {
	if len(p) == 0 {
		return
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, id)
	gl.GetBufferSubData(gl.COPY_READ_BUFFER, offset, len(p), gl.Ptr(p))
}

// DeleteBuffer implements Context.
func (c *NativeContext) DeleteBuffer(id uint32) {
	gl.DeleteBuffers(1, &id)
}

func pixelFormat(f gfx.Format) (internal int32, format uint32) {
	switch f {
	case gfx.FormatBGRA8Unorm:
		return gl.RGBA8, gl.BGRA
	case gfx.FormatBGRA8Srgb:
		return gl.SRGB8_ALPHA8, gl.BGRA
	case gfx.FormatRGBA8Srgb:
		return gl.SRGB8_ALPHA8, gl.RGBA
	}
	return gl.RGBA8, gl.RGBA
}

// NewTexture implements Context.
func (c *NativeContext) NewTexture(desc gfx.TextureDesc) (uint32, error) {
	internal, format := pixelFormat(desc.Format)
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(desc.Width), int32(desc.Height), 0, format, gl.UNSIGNED_BYTE, nil)
	if err := c.Err(); err != nil {
		gl.DeleteTextures(1, &id)
		return 0, errors.Wrap(err, "gl.TexImage2D()")
	}
	return id, nil
}

// UploadTexture implements Context.
func (c *NativeContext) UploadTexture(id uint32, desc gfx.TextureDesc, pixels []byte) {
	_, format := pixelFormat(desc.Format)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(desc.Width), int32(desc.Height), format, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
}

// ReadTexture implements Context.
func (c *NativeContext) ReadTexture(id uint32, desc gfx.TextureDesc, p []byte) {
	_, format := pixelFormat(desc.Format)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.GetTexImage(gl.TEXTURE_2D, 0, format, gl.UNSIGNED_BYTE, gl.Ptr(p))
}

// DeleteTexture implements Context.
func (c *NativeContext) DeleteTexture(id uint32) {
	gl.DeleteTextures(1, &id)
}

func (c *NativeContext) newShader(kind uint32, code []byte) (uint32, error) {
	shader := gl.CreateShader(kind)
	gl.ShaderBinary(1, &shader, gl.SHADER_BINARY_FORMAT_SPIR_V, gl.Ptr(code), int32(len(code)))
	gl.SpecializeShader(shader, gl.Str("main\x00"), 0, nil, nil)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var length int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &length)
		log := strings.Repeat("\x00", int(length+1))
		gl.GetShaderInfoLog(shader, length, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, errors.Wrapf(gfx.ErrInvalidShader, "gl.SpecializeShader(): %s", strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}

// NewProgram implements Context.
func (c *NativeContext) NewProgram(src gfx.ShaderSource) (uint32, error) {
	vertex, err := c.newShader(gl.VERTEX_SHADER, src.Vertex)
	if err != nil {
		return 0, errors.Wrapf(err, "%s vertex", src.Name)
	}
	defer gl.DeleteShader(vertex)
	fragment, err := c.newShader(gl.FRAGMENT_SHADER, src.Fragment)
	if err != nil {
		return 0, errors.Wrapf(err, "%s fragment", src.Name)
	}
	defer gl.DeleteShader(fragment)

	program := gl.CreateProgram()
	gl.AttachShader(program, vertex)
	gl.AttachShader(program, fragment)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var length int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &length)
		log := strings.Repeat("\x00", int(length+1))
		gl.GetProgramInfoLog(program, length, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, errors.Wrapf(gfx.ErrInvalidShader, "gl.LinkProgram(%s): %s", src.Name, strings.TrimRight(log, "\x00"))
	}
	return program, nil
}

// UseProgram implements Context.
func (c *NativeContext) UseProgram(program, camera uint32) {
	gl.UseProgram(program)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, 0, camera)
}

// DeleteProgram implements Context.
func (c *NativeContext) DeleteProgram(id uint32) {
	gl.DeleteProgram(id)
}

// BindVertexBuffer implements Context.
func (c *NativeContext) BindVertexBuffer(binding, id uint32) {
	gl.BindVertexBuffer(binding, id, 0, int32(model.VertexSize))
}

// BindIndexBuffer implements Context.
func (c *NativeContext) BindIndexBuffer(id uint32) {
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, id)
}

// Draw implements Context.
func (c *NativeContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	gl.DrawArraysInstancedBaseInstance(gl.TRIANGLES, int32(firstVertex), int32(vertexCount), int32(instanceCount), firstInstance)
}

// DrawIndexed implements Context.
func (c *NativeContext) DrawIndexed(format gfx.IndexFormat, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	indexType := uint32(gl.UNSIGNED_INT)
	if format == gfx.IndexUint16 {
		indexType = gl.UNSIGNED_SHORT
	}
	gl.DrawElementsInstancedBaseVertexBaseInstance(gl.TRIANGLES, int32(indexCount), indexType,
		gl.PtrOffset(int(firstIndex)*format.Size()), int32(instanceCount), vertexOffset, firstInstance)
}

// Finish implements Context.
func (c *NativeContext) Finish() {
	gl.Finish()
}

// Err implements Context.
func (c *NativeContext) Err() error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return errors.Newf("gl error 0x%x", code)
	}
	return nil
}
