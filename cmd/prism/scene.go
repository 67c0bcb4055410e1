// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/core"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/model"
	glm "github.com/go-gl/mathgl/mgl32"
)

var triangle = []model.Vertex{
	{Pos: glm.Vec3{0, -0.5, 0}, Color: glm.Vec4{1, 0, 0, 1}},
	{Pos: glm.Vec3{0.5, 0.5, 0}, Color: glm.Vec4{0, 1, 0, 1}},
	{Pos: glm.Vec3{-0.5, 0.5, 0}, Color: glm.Vec4{0, 0, 1, 1}},
}

var triangleIndices = []uint32{0, 1, 2}

// scene is the demo content: a cleared background and a spinning
// triangle drawn over it when its shader is available.
type scene struct {
	renderer *core.Renderer
	started  time.Time

	background gfx.RenderPass
	foreground gfx.RenderPass
	vertices   gfx.Buffer
	indices    gfx.Buffer
}

func newScene(renderer *core.Renderer, source *gfx.ShaderSource) (*scene, error) {
	s := &scene{renderer: renderer, started: time.Now()}

	var err error
	if s.background, err = renderer.CreateRenderPass(gfx.PassSpec{
		Name:         "background",
		Schedule:     gfx.DrawOnce,
		Layer:        gfx.Background,
		DefaultClear: true,
	}); err != nil {
		return nil, err
	}
	if source == nil {
		return s, nil
	}

	if s.vertices, err = s.upload(model.VertexBytes(triangle), gfx.UsageVertex); err != nil {
		return nil, errors.Wrap(err, "vertex buffer")
	}
	format := renderer.IndexFormat()
	indices, err := core.IndexBytes(triangleIndices, format)
	if err != nil {
		return nil, err
	}
	if s.indices, err = s.upload(indices, gfx.UsageIndex); err != nil {
		return nil, errors.Wrap(err, "index buffer")
	}

	s.foreground, err = renderer.CreateRenderPass(gfx.PassSpec{
		Name:   "triangle",
		Layer:  gfx.Foreground,
		Shader: source,
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			rec.BindVertexBuffer(0, s.vertices)
			rec.BindIndexBuffer(s.indices, format)
			rec.DrawIndexed(uint32(len(triangleIndices)), 1, 0, 0, 0)
			return nil
		},
	})
	return s, err
}

func (s *scene) upload(data []byte, usage gfx.BufferUsage) (gfx.Buffer, error) {
	b, err := s.renderer.CreateBuffer(gfx.BufferDesc{
		Size:        len(data),
		Usage:       usage,
		DeviceLocal: true,
	})
	if err != nil {
		return nil, err
	}
	if err := b.Write(0, data); err != nil {
		b.Release()
		return nil, err
	}
	if err := b.Flush(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// update spins the camera around the triangle in the block read by
// recordings of buffer index frame.
func (s *scene) update(frame int, width, height uint32) error {
	if s.foreground == nil || width == 0 || height == 0 {
		return nil
	}
	angle := float32(time.Since(s.started).Seconds())
	eye := glm.Rotate3DY(angle).Mul3x1(glm.Vec3{0, 0, 2})
	camera := model.PerspectiveCamera(45, float32(width)/float32(height), 0.1, 10, eye, glm.Vec3{})

	buffer := s.foreground.Camera(frame)
	if buffer == nil {
		return nil
	}
	if err := buffer.Write(0, camera.Bytes()); err != nil {
		return err
	}
	return buffer.Flush()
}

// release frees the buffers, the renderer cleans up the passes.
func (s *scene) release() {
	if s.vertices != nil {
		s.vertices.Release()
	}
	if s.indices != nil {
		s.indices.Release()
	}
}
