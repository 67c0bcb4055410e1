// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package opengl

import (
	"github.com/devblok/prism/gfx"
)

// Context is the part of an OpenGL context the backend drives. Every
// call executes immediately and has to be made on the thread the
// context is current on.
type Context interface {
	// Init loads the function pointers and sets the fixed state.
	Init() error

	// Info returns the vendor and renderer strings.
	Info() (vendor, renderer string)

	SetViewport(vp gfx.Viewport)
	SetScissor(r gfx.Rect)

	// Clear clears the color buffer of the default framebuffer.
	Clear(c gfx.Color)

	NewBuffer(size int) (uint32, error)
	WriteBuffer(id uint32, offset int, data []byte)
	ReadBuffer(id uint32, offset int, p []byte)
	DeleteBuffer(id uint32)

	NewTexture(desc gfx.TextureDesc) (uint32, error)
	UploadTexture(id uint32, desc gfx.TextureDesc, pixels []byte)
	ReadTexture(id uint32, desc gfx.TextureDesc, p []byte)
	DeleteTexture(id uint32)

	// NewProgram links a program from precompiled vertex and fragment stages.
	NewProgram(src gfx.ShaderSource) (uint32, error)

	// UseProgram binds the program and its camera block to binding zero.
	UseProgram(program, camera uint32)
	DeleteProgram(id uint32)

	BindVertexBuffer(binding, id uint32)
	BindIndexBuffer(id uint32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(format gfx.IndexFormat, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	// Finish blocks until every issued command has completed.
	Finish()

	// Err returns and clears the pending error flag.
	Err() error
}
