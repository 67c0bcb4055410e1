// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package opengl_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/backend/opengl"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, cfg opengl.Config) (*opengl.Backend, *fakeContext, *fakeWindow) {
	ctx := newFakeContext()
	window := &fakeWindow{width: 800, height: 600}
	b := opengl.New(window, ctx, cfg, nil)
	require.NoError(t, b.Initialize())
	t.Cleanup(b.Destroy)
	return b, ctx, window
}

func TestInitialize(t *testing.T) {
	b, _, window := newBackend(t, opengl.Config{Buffering: gfx.DoubleBuffering, VSync: true, Width: 640, Height: 480})

	assert.True(t, window.current)
	assert.Equal(t, 1, window.interval)
	assert.Equal(t, gfx.OpenGL, b.Info().Kind)
	assert.Equal(t, "fake", b.Info().Name)
	assert.Equal(t, 2, b.BufferCount())
	assert.Equal(t, gfx.Extent{Width: 640, Height: 480}, b.Extent())
}

func TestExtentFallback(t *testing.T) {
	b, _, window := newBackend(t, opengl.Config{})
	assert.Equal(t, gfx.Extent{Width: 800, Height: 600}, b.Extent())
	assert.Equal(t, 3, b.BufferCount())
	assert.Equal(t, 0, window.interval)

	window.width, window.height = 0, 0
	require.NoError(t, b.Resize(0, 0))
	assert.Equal(t, opengl.DefaultExtent, b.Extent())
}

func TestPrepareRotatesModulo(t *testing.T) {
	b, _, window := newBackend(t, opengl.Config{Buffering: gfx.DoubleBuffering, Width: 800, Height: 600})

	var indices []int
	for i := 0; i < 5; i++ {
		index, err := b.Prepare()
		require.NoError(t, err)
		assert.Equal(t, index, b.BufferIndex())
		indices = append(indices, index)
		status, err := b.Present()
		require.NoError(t, err)
		assert.Equal(t, gfx.PresentOK, status)
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0}, indices)
	assert.Equal(t, 5, window.swaps)
}

func TestPresentReportsWindowResize(t *testing.T) {
	b, _, window := newBackend(t, opengl.Config{Width: 800, Height: 600})

	_, err := b.Prepare()
	require.NoError(t, err)
	window.width = 1024
	status, err := b.Present()
	require.NoError(t, err)
	assert.True(t, status.NeedsResize())

	require.NoError(t, b.Resize(1024, 600))
	_, err = b.Prepare()
	require.NoError(t, err)
	status, err = b.Present()
	require.NoError(t, err)
	assert.Equal(t, gfx.PresentOK, status)
}

func TestPresentContextErrorIsFatal(t *testing.T) {
	b, ctx, _ := newBackend(t, opengl.Config{})

	_, err := b.Prepare()
	require.NoError(t, err)
	ctx.err = errors.New("gl error 0x505")
	_, err = b.Present()
	assert.True(t, gfx.IsFatal(err))
}

func TestRecordExecutesImmediately(t *testing.T) {
	b, ctx, _ := newBackend(t, opengl.Config{Width: 320, Height: 200})

	vertices, err := b.NewBuffer(gfx.BufferDesc{Size: 3 * model.VertexSize, Usage: gfx.UsageVertex})
	require.NoError(t, err)
	data := model.VertexBytes(make([]model.Vertex, 3))
	require.NoError(t, vertices.Write(0, data))

	background := b.NewRenderPass()
	require.NoError(t, background.Build(gfx.PassSpec{
		Name:       "background",
		ClearColor: gfx.Color{R: 1, A: 1},
		Shader:     &gfx.ShaderSource{Name: "triangle", Vertex: make([]byte, 4), Fragment: make([]byte, 4)},
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			rec.BindPipeline(nil)
			rec.BindVertexBuffer(0, vertices)
			rec.Draw(3, 1, 0, 0)
			return nil
		},
	}))
	foreground := b.NewRenderPass()
	require.NoError(t, foreground.Build(gfx.PassSpec{Name: "foreground", Layer: gfx.Foreground}))

	assert.Nil(t, background.Pipeline())
	require.NotNil(t, background.Camera(0))
	assert.Nil(t, background.Camera(3))

	frame, err := b.Prepare()
	require.NoError(t, err)
	require.NoError(t, background.Record(frame))
	require.NoError(t, foreground.Record(frame))

	assert.Equal(t, []gfx.Color{{R: 1, A: 1}}, ctx.clears)
	assert.Equal(t, 1, ctx.draws)
	assert.Equal(t, gfx.Viewport{Width: 320, Height: 200, MaxDepth: 1}, ctx.viewport)
	assert.Equal(t, "triangle", ctx.programs[ctx.program])

	name := vertices.(*opengl.Buffer).Name()
	assert.Equal(t, name, ctx.vertexBuffers[0])
	assert.Equal(t, data, ctx.buffers[name])
	assert.Equal(t, model.IdentityCamera().Bytes(), ctx.buffers[ctx.camera])
	assert.Equal(t, background.Camera(frame).(*opengl.Buffer).Name(), ctx.camera)
	assert.Equal(t, gfx.Closed, background.Recorder(frame).State())

	background.Cleanup()
	foreground.Cleanup()
	assert.Empty(t, ctx.programs)
}

func TestDrawOnceExecutesEveryFrame(t *testing.T) {
	b, _, _ := newBackend(t, opengl.Config{Buffering: gfx.DoubleBuffering})

	calls := 0
	pass := b.NewRenderPass()
	require.NoError(t, pass.Build(gfx.PassSpec{
		Schedule: gfx.DrawOnce,
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			calls++
			return nil
		},
	}))
	for i := 0; i < 4; i++ {
		frame, err := b.Prepare()
		require.NoError(t, err)
		require.NoError(t, pass.Record(frame))
		_, err = b.Present()
		require.NoError(t, err)
	}
	assert.Equal(t, 4, calls)
}

func TestIndexedDrawUsesBoundFormat(t *testing.T) {
	b, ctx, _ := newBackend(t, opengl.Config{})

	indices, err := b.NewBuffer(gfx.BufferDesc{Size: 6, Usage: gfx.UsageIndex})
	require.NoError(t, err)
	require.NoError(t, indices.Write(0, model.IndexBytes16([]uint16{0, 1, 2})))

	pass := b.NewRenderPass()
	require.NoError(t, pass.Build(gfx.PassSpec{
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			rec.BindIndexBuffer(indices, gfx.IndexUint16)
			rec.DrawIndexed(3, 1, 0, 0, 0)
			return nil
		},
	}))
	frame, err := b.Prepare()
	require.NoError(t, err)
	require.NoError(t, pass.Record(frame))
	assert.Equal(t, []gfx.IndexFormat{gfx.IndexUint16}, ctx.indexedDraws)
	assert.Equal(t, indices.(*opengl.Buffer).Name(), ctx.indexBuffer)
}

func TestDrawErrorInvalidatesRecorder(t *testing.T) {
	b, _, _ := newBackend(t, opengl.Config{})

	pass := b.NewRenderPass()
	require.NoError(t, pass.Build(gfx.PassSpec{
		Name: "broken",
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			return errors.New("no mesh")
		},
	}))
	frame, err := b.Prepare()
	require.NoError(t, err)
	err = pass.Record(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mesh")
	assert.Equal(t, gfx.Unrecorded, pass.Recorder(frame).State())
}

func TestRecorderPanicsOutsideScope(t *testing.T) {
	b, _, _ := newBackend(t, opengl.Config{})

	pass := b.NewRenderPass()
	require.NoError(t, pass.Build(gfx.PassSpec{}))
	rec := pass.Recorder(0)
	require.NotNil(t, rec)
	assert.Panics(t, func() { rec.Draw(3, 1, 0, 0) })
	assert.Panics(t, func() { rec.SetViewport(gfx.Viewport{}) })
	assert.Nil(t, pass.Recorder(99))
}

func TestRecordBeforeBuild(t *testing.T) {
	b, _, _ := newBackend(t, opengl.Config{})
	err := b.NewRenderPass().Record(0)
	assert.True(t, errors.Is(err, gfx.ErrNotBuilt))
}

func TestDeviceLocalBufferIsImmutable(t *testing.T) {
	b, _, _ := newBackend(t, opengl.Config{})

	buf, err := b.NewBuffer(gfx.BufferDesc{Size: 4, Usage: gfx.UsageVertex, DeviceLocal: true})
	require.NoError(t, err)
	require.NoError(t, buf.Write(0, []byte{1, 2, 3, 4}))
	require.NoError(t, buf.Flush())

	data, err := buf.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	assert.True(t, errors.Is(buf.Write(0, []byte{5}), gfx.ErrImmutable))
	assert.True(t, errors.Is(buf.Flush(), gfx.ErrImmutable))
	assert.True(t, errors.Is(buf.Write(2, []byte{1, 2, 3}), gfx.ErrOutOfRange))
}

func TestDynamicBufferFlushesRepeatedly(t *testing.T) {
	b, _, _ := newBackend(t, opengl.Config{})

	buf, err := b.NewBuffer(gfx.BufferDesc{Size: 2, Usage: gfx.UsageVertex, DeviceLocal: true, Dynamic: true})
	require.NoError(t, err)
	for i := byte(0); i < 3; i++ {
		require.NoError(t, buf.Write(0, []byte{i, i}))
		require.NoError(t, buf.Flush())
		data, err := buf.Read()
		require.NoError(t, err)
		assert.Equal(t, []byte{i, i}, data)
	}
}

func TestTextureUploadOnce(t *testing.T) {
	b, _, _ := newBackend(t, opengl.Config{})

	tex, err := b.NewTexture(gfx.TextureDesc{Width: 2, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, gfx.FormatRGBA8Unorm, tex.Desc().Format)

	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, tex.Upload(pixels))
	read, err := tex.Read()
	require.NoError(t, err)
	assert.Equal(t, pixels, read)

	assert.True(t, errors.Is(tex.Upload(pixels), gfx.ErrImmutable))
	assert.True(t, errors.Is(tex.Upload(pixels[:4]), gfx.ErrOutOfRange))
	tex.Release()
}
