package core_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/backend/explicit"
	"github.com/devblok/prism/backend/headless"
	"github.com/devblok/prism/core"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.FieldLogger {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	return logger
}

func newRenderer(t *testing.T) (*core.Renderer, *headless.Device) {
	t.Helper()
	return newRendererWith(t, core.DefaultConfiguration().Renderer)
}

func newRendererWith(t *testing.T, cfg core.RendererConfiguration) (*core.Renderer, *headless.Device) {
	t.Helper()
	cfg.Backend = gfx.Headless
	device := headless.NewDevice(headless.DefaultConfig(), testLogger())
	b := explicit.New(gfx.Headless, func() (hal.Device, error) {
		return device, nil
	}, explicit.Config{
		Buffering: cfg.Buffering,
		VSync:     cfg.VSync,
		Width:     cfg.ScreenWidth,
		Height:    cfg.ScreenHeight,
	}, testLogger())
	return core.NewRenderer(b, cfg, testLogger()), device
}

func frame(t *testing.T, r *core.Renderer) {
	t.Helper()
	index, err := r.Prepare()
	require.NoError(t, err)
	require.Equal(t, index, r.GetBufferIndex())
	require.NoError(t, r.Display())
}

func TestPassOrdering(t *testing.T) {
	r, _ := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()

	create := func(name string, schedule gfx.Schedule) gfx.RenderPass {
		pass, err := r.CreateRenderPass(gfx.PassSpec{Name: name, Schedule: schedule})
		require.NoError(t, err)
		return pass
	}
	a := create("A", gfx.EveryFrame)
	b := create("B", gfx.DrawOnce)
	c := create("C", gfx.DrawOnce)
	d := create("D", gfx.EveryFrame)

	names := func() []string {
		var out []string
		for _, pass := range r.Passes() {
			out = append(out, pass.Name())
		}
		return out
	}
	assert.Equal(t, []string{"B", "C", "A", "D"}, names())
	assert.Nil(t, b.Parent())
	assert.Same(t, b, c.Parent())
	assert.Same(t, c, a.Parent())
	assert.Same(t, a, d.Parent())

	require.NoError(t, r.RemoveRenderPass(c))
	assert.Equal(t, []string{"B", "A", "D"}, names())
	assert.Nil(t, c.Parent())
	assert.Same(t, b, a.Parent())

	assert.Error(t, r.RemoveRenderPass(c), "already removed")
}

func TestPassListInsertPositions(t *testing.T) {
	var list core.PassList
	r, _ := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()

	var built []gfx.RenderPass
	defer func() {
		for _, p := range built {
			p.Cleanup()
		}
	}()
	pass := func(schedule gfx.Schedule) gfx.RenderPass {
		p := r.Backend().NewRenderPass()
		require.NoError(t, p.Build(gfx.PassSpec{Schedule: schedule}))
		built = append(built, p)
		return p
	}
	assert.Equal(t, 0, list.Insert(pass(gfx.EveryFrame)))
	assert.Equal(t, 0, list.Insert(pass(gfx.DrawOnce)))
	assert.Equal(t, 2, list.Insert(pass(gfx.EveryFrame)))
	assert.Equal(t, 1, list.Insert(pass(gfx.DrawOnce)))
	assert.Equal(t, 4, list.Len())
}

func TestRendererFrames(t *testing.T) {
	r, device := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()
	assert.Equal(t, 3, r.BufferCount())

	background, err := r.CreateRenderPass(gfx.PassSpec{Name: "background", Schedule: gfx.DrawOnce, DefaultClear: true})
	require.NoError(t, err)
	assert.Equal(t, gfx.Color{A: 1}, background.Spec().ClearColor)

	var draws int
	_, err = r.CreateRenderPass(gfx.PassSpec{
		Name:  "overlay",
		Layer: gfx.Foreground,
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			draws++
			rec.Draw(3, 1, 0, 0)
			return nil
		},
	})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		frame(t, r)
	}
	require.NoError(t, r.WaitIdle())

	assert.Equal(t, 6, draws)
	assert.Equal(t, uint64(6), device.Draws())
	assert.Len(t, device.Presented(), 6)
	stats := r.Stats()
	assert.Equal(t, uint64(6), stats.Frames)
	assert.Positive(t, int64(stats.FrameTime))
}

func TestRendererDrawErrorsDoNotStopTheFrame(t *testing.T) {
	r, device := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()

	failure := errors.New("mesh missing")
	_, err := r.CreateRenderPass(gfx.PassSpec{
		Name: "broken",
		Draw: func(rec gfx.CommandRecorder, frame int) error { return failure },
	})
	require.NoError(t, err)

	_, err = r.Prepare()
	require.NoError(t, err)
	err = r.Display()
	assert.True(t, errors.Is(err, failure))
	require.NoError(t, r.WaitIdle())
	assert.Len(t, device.Presented(), 1)
	assert.NoError(t, r.Err())
}

func TestRendererNotInitialised(t *testing.T) {
	r, _ := newRenderer(t)
	defer r.Cleanup()

	_, err := r.Prepare()
	assert.True(t, errors.Is(err, core.ErrNotInitialised))
	_, err = r.CreateBuffer(gfx.BufferDesc{Size: 4})
	assert.True(t, errors.Is(err, core.ErrNotInitialised))
	assert.NoError(t, r.WaitIdle())
}

func TestDisplayNeedsPrepare(t *testing.T) {
	r, _ := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()
	assert.Error(t, r.Display())
}

func TestRendererRecreatesOutOfDateSwapchain(t *testing.T) {
	r, device := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()
	_, err := r.CreateRenderPass(gfx.PassSpec{Name: "clear"})
	require.NoError(t, err)

	frame(t, r)
	device.SetSurfaceExtent(gfx.Extent{Width: 800, Height: 600})
	frame(t, r)

	assert.Equal(t, gfx.Extent{Width: 800, Height: 600}, r.Backend().Extent())
	assert.Equal(t, 1, r.Stats().Resizes)
}

func TestRendererResize(t *testing.T) {
	r, device := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()

	images := device.Live(headless.KindImage)
	require.NoError(t, r.Resize(0, 0), "minimized")
	assert.Equal(t, 0, r.Stats().Resizes)

	require.NoError(t, r.Resize(1280, 720))
	require.NoError(t, r.Resize(1280, 720))
	assert.Equal(t, 2, r.Stats().Resizes)
	assert.Equal(t, images, device.Live(headless.KindImage))
}

func TestRendererLatchesFatalErrors(t *testing.T) {
	r, device := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()

	frame(t, r)
	device.Lose()

	_, err := r.Prepare()
	require.Error(t, err)
	assert.True(t, gfx.IsFatal(err))
	assert.Equal(t, err, r.Err())

	_, err = r.CreateBuffer(gfx.BufferDesc{Size: 4})
	assert.Equal(t, r.Err(), err)
}

func TestRendererResources(t *testing.T) {
	r, _ := newRenderer(t)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()

	pool, err := r.CreateUniformPool(64, 0)
	require.NoError(t, err)
	defer pool.Release()
	assert.Equal(t, core.DefaultConfiguration().Renderer.UniformPoolCapacity, pool.Capacity())

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})
	tex, err := r.CreateTextureFromImage(img, gfx.FormatUndefined)
	require.NoError(t, err)
	defer tex.Release()

	got, err := tex.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, got)
}

func TestRendererKeepsTransparentClear(t *testing.T) {
	cfg := core.DefaultConfiguration().Renderer
	cfg.ClearColor = gfx.Color{R: 0.5, A: 1}
	r, _ := newRendererWith(t, cfg)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()

	transparent, err := r.CreateRenderPass(gfx.PassSpec{Name: "transparent", Schedule: gfx.DrawOnce})
	require.NoError(t, err)
	assert.Equal(t, gfx.Color{}, transparent.Spec().ClearColor)

	configured, err := r.CreateRenderPass(gfx.PassSpec{
		Name:         "configured",
		Schedule:     gfx.DrawOnce,
		ClearColor:   gfx.Color{G: 1, A: 1},
		DefaultClear: true,
	})
	require.NoError(t, err)
	assert.Equal(t, gfx.Color{R: 0.5, A: 1}, configured.Spec().ClearColor)
	frame(t, r)
}

func TestRendererIndexFormat(t *testing.T) {
	r, _ := newRenderer(t)
	assert.Equal(t, gfx.IndexUint32, r.IndexFormat())

	cfg := core.DefaultConfiguration().Renderer
	cfg.IndexFormat = gfx.IndexUint16
	r, device := newRendererWith(t, cfg)
	require.NoError(t, r.Initialize())
	defer r.Cleanup()
	assert.Equal(t, gfx.IndexUint16, r.IndexFormat())

	data, err := core.IndexBytes([]uint32{0, 1, 2}, r.IndexFormat())
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 0, 2, 0}, data)

	indices, err := r.CreateBuffer(gfx.BufferDesc{Size: len(data), Usage: gfx.UsageIndex})
	require.NoError(t, err)
	defer indices.Release()
	require.NoError(t, indices.Write(0, data))
	require.NoError(t, indices.Flush())

	_, err = r.CreateRenderPass(gfx.PassSpec{
		Name: "indexed",
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			rec.BindIndexBuffer(indices, r.IndexFormat())
			rec.DrawIndexed(3, 1, 0, 0, 0)
			return nil
		},
	})
	require.NoError(t, err)
	before := device.Draws()
	frame(t, r)
	require.NoError(t, r.WaitIdle())
	assert.Equal(t, before+1, device.Draws())
}

func TestIndexBytes(t *testing.T) {
	data, err := core.IndexBytes([]uint32{1, 2}, gfx.IndexUint32)
	require.NoError(t, err)
	assert.Len(t, data, 8)

	data, err = core.IndexBytes([]uint32{1, 2}, gfx.IndexUint16)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0}, data)

	_, err = core.IndexBytes([]uint32{0x10000}, gfx.IndexUint16)
	assert.True(t, errors.Is(err, gfx.ErrIndexFormat))
}

func TestGetPixels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	rgba, err := core.GetPixels(img, gfx.FormatRGBA8Unorm)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 255}, rgba)

	bgra, err := core.GetPixels(img, gfx.FormatBGRA8Unorm)
	require.NoError(t, err)
	assert.Equal(t, []byte{30, 20, 10, 255}, bgra)

	_, err = core.GetPixels(nil, gfx.FormatRGBA8Unorm)
	assert.Error(t, err)
}

func BenchmarkGetPixels(b *testing.B) {
	img := image.NewNRGBA(image.Rect(0, 0, 512, 512))
	b.SetBytes(512 * 512 * 4)
	for i := 0; i < b.N; i++ {
		if _, err := core.GetPixels(img, gfx.FormatBGRA8Unorm); err != nil {
			b.Fatal(err)
		}
	}
}

func TestTime(t *testing.T) {
	ts := core.NewTime(core.TimeConfiguration{FramesPerSecond: 100, EventPollDelay: 1})
	defer ts.Stop()

	assert.Equal(t, 100, ts.Fps())
	<-ts.FpsTicker().C
	<-ts.EventTicker().C
}
