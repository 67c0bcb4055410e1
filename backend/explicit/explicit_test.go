// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package explicit_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/backend/explicit"
	"github.com/devblok/prism/backend/headless"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	"github.com/devblok/prism/model"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.FieldLogger {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	return logger
}

func newBackend(t *testing.T, hcfg headless.Config, buffering gfx.Buffering) (*explicit.Backend, *headless.Device) {
	t.Helper()
	device := headless.NewDevice(hcfg, testLogger())
	b := explicit.New(gfx.Headless, func() (hal.Device, error) {
		return device, nil
	}, explicit.Config{
		Buffering: buffering,
		VSync:     true,
		Width:     1280,
		Height:    720,
	}, testLogger())
	require.NoError(t, b.Initialize())
	return b, device
}

func newPass(t *testing.T, b *explicit.Backend, spec gfx.PassSpec) gfx.RenderPass {
	t.Helper()
	pass := b.NewRenderPass()
	require.NoError(t, pass.Build(spec))
	return pass
}

func drawFrame(t *testing.T, b *explicit.Backend, passes ...gfx.RenderPass) int {
	t.Helper()
	index, err := b.Prepare()
	require.NoError(t, err)
	for _, pass := range passes {
		require.NoError(t, pass.Record(index))
	}
	status, err := b.Present()
	require.NoError(t, err)
	require.Equal(t, gfx.PresentOK, status)
	return index
}

func teardown(t *testing.T, b *explicit.Backend, device *headless.Device, passes ...gfx.RenderPass) {
	t.Helper()
	require.NoError(t, b.WaitIdle())
	for _, pass := range passes {
		pass.Cleanup()
	}
	b.Destroy()
	for _, kind := range []string{headless.KindFence, headless.KindCommandList, headless.KindMemory, headless.KindImage, headless.KindSwapchain} {
		assert.Zero(t, device.Live(kind), kind)
	}
}

func TestInitialize(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	defer teardown(t, b, device)

	assert.Equal(t, 2, b.BufferCount())
	assert.Equal(t, gfx.PreferredFormat, b.Format())
	assert.Equal(t, gfx.PresentFifo, b.Swapchain().PresentMode())
	assert.Equal(t, "Prism Headless Device", b.Info().Name)
	assert.Equal(t, 2, b.Synchronizer().Count())

	assert.Error(t, b.Initialize(), "second initialisation")
}

func TestInitializeFenceFailureIsFatal(t *testing.T) {
	device := headless.NewDevice(headless.DefaultConfig(), testLogger())
	device.Fail(headless.KindFence, errors.New("no fences today"))
	b := explicit.New(gfx.Headless, func() (hal.Device, error) {
		return device, nil
	}, explicit.Config{Buffering: gfx.TripleBuffering, Width: 1280, Height: 720}, testLogger())

	err := b.Initialize()
	require.Error(t, err)
	assert.True(t, gfx.IsFatal(err))
	b.Destroy()
}

func TestInvalidBufferingFallsBackToTriple(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.Buffering(7))
	defer teardown(t, b, device)
	assert.Equal(t, 3, b.BufferCount())
}

func TestImageCountClampedToSurface(t *testing.T) {
	cfg := headless.DefaultConfig()
	cfg.MinImages = 2
	b, device := newBackend(t, cfg, gfx.SingleBuffering)
	defer teardown(t, b, device)
	assert.Equal(t, 2, b.BufferCount())
}

func TestUndefinedExtentUsesConfiguredSize(t *testing.T) {
	cfg := headless.DefaultConfig()
	cfg.Extent = gfx.Extent{Width: gfx.UndefinedExtent, Height: gfx.UndefinedExtent}
	b, device := newBackend(t, cfg, gfx.TripleBuffering)
	defer teardown(t, b, device)

	assert.Equal(t, gfx.Extent{Width: 1280, Height: 720}, b.Extent())
}

func TestChooseFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats []gfx.Format
		want    gfx.Format
	}{
		{"none offered", nil, gfx.PreferredFormat},
		{"undefined", []gfx.Format{gfx.FormatUndefined}, gfx.PreferredFormat},
		{"preferred offered", []gfx.Format{gfx.FormatRGBA8Unorm, gfx.FormatBGRA8Unorm}, gfx.FormatBGRA8Unorm},
		{"first otherwise", []gfx.Format{gfx.FormatRGBA8Srgb, gfx.FormatRGBA8Unorm}, gfx.FormatRGBA8Srgb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, explicit.ChooseFormat(tt.formats))
		})
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []gfx.PresentMode{gfx.PresentFifo, gfx.PresentImmediate, gfx.PresentMailbox}
	assert.Equal(t, gfx.PresentFifo, explicit.ChoosePresentMode(all, true))
	assert.Equal(t, gfx.PresentMailbox, explicit.ChoosePresentMode(all, false))
	assert.Equal(t, gfx.PresentImmediate, explicit.ChoosePresentMode([]gfx.PresentMode{gfx.PresentFifo, gfx.PresentImmediate}, false))
	assert.Equal(t, gfx.PresentFifo, explicit.ChoosePresentMode([]gfx.PresentMode{gfx.PresentFifo}, false))
}

func TestFenceValuesGrowAndFramesStayBounded(t *testing.T) {
	cfg := headless.DefaultConfig()
	cfg.Latency = 2 * time.Millisecond
	b, device := newBackend(t, cfg, gfx.TripleBuffering)
	pass := newPass(t, b, gfx.PassSpec{Name: "clear"})
	defer teardown(t, b, device, pass)

	sync := b.Synchronizer()
	last := make([]uint64, b.BufferCount())
	for i := 0; i < 30; i++ {
		index := drawFrame(t, b, pass)
		value := sync.Value(index)
		assert.Greater(t, value, last[index], "frame %d", i)
		assert.LessOrEqual(t, sync.Completed(index), value)
		assert.LessOrEqual(t, sync.InFlight(), b.BufferCount())
		last[index] = value

		if i%5 == 0 {
			require.NoError(t, sync.Wait(index))
			assert.Equal(t, value, sync.Completed(index), "wait returned before the device reached the value")
		}
	}

	require.NoError(t, b.WaitIdle())
	for index := range last {
		assert.Equal(t, last[index], sync.Completed(index))
	}
	assert.LessOrEqual(t, device.MaxPendingSignals(), b.BufferCount())
	assert.Equal(t, []int{0, 1, 2, 0, 1}, device.Presented()[:5])
}

func TestClearWritesSwapchainImage(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	red := gfx.Color{R: 1, A: 1}
	pass := newPass(t, b, gfx.PassSpec{Name: "background", ClearColor: red})
	defer teardown(t, b, device, pass)

	index := drawFrame(t, b, pass)
	require.NoError(t, b.WaitIdle())

	image := b.Swapchain().Image(index).(*headless.Image)
	texel := headless.Texel(b.Format(), red)
	pixels := image.Pixels()
	require.Len(t, pixels, 1280*720*4)
	assert.Equal(t, texel, pixels[:4])
	assert.Equal(t, texel, pixels[len(pixels)-4:])
	assert.Equal(t, hal.StatePresent, image.State())
}

func TestDrawOnceIsRecordedOncePerImage(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.TripleBuffering)
	var recorded int
	pass := newPass(t, b, gfx.PassSpec{
		Name:     "static",
		Schedule: gfx.DrawOnce,
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			recorded++
			rec.Draw(3, 1, 0, 0)
			return nil
		},
	})
	defer teardown(t, b, device, pass)

	for i := 0; i < 9; i++ {
		drawFrame(t, b, pass)
	}
	require.NoError(t, b.WaitIdle())
	assert.Equal(t, 3, recorded)
	assert.Equal(t, uint64(9), device.Draws())
	assert.Equal(t, uint64(9), device.Submissions())

	require.NoError(t, b.Resize(1280, 720))
	pass.Resize(1280, 720)
	for i := 0; i < 3; i++ {
		drawFrame(t, b, pass)
	}
	assert.Equal(t, 6, recorded, "recreated images are recorded again")
}

func TestEveryFramePassIsRecordedEveryFrame(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	var recorded int
	pass := newPass(t, b, gfx.PassSpec{
		Name: "dynamic",
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			recorded++
			rec.Draw(3, 1, 0, 0)
			return nil
		},
	})
	defer teardown(t, b, device, pass)

	for i := 0; i < 5; i++ {
		drawFrame(t, b, pass)
	}
	assert.Equal(t, 5, recorded)
}

func TestDrawErrorInvalidatesRecording(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	failure := errors.New("scene not loaded")
	pass := newPass(t, b, gfx.PassSpec{
		Name: "failing",
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			return failure
		},
	})
	defer teardown(t, b, device, pass)

	index, err := b.Prepare()
	require.NoError(t, err)
	err = pass.Record(index)
	assert.True(t, errors.Is(err, failure))
	assert.False(t, gfx.IsFatal(err))
	assert.Equal(t, gfx.Unrecorded, pass.Recorder(index).State())
	_, err = b.Present()
	require.NoError(t, err)
}

func TestDrawErrorRestoresImageState(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	fail := true
	pass := newPass(t, b, gfx.PassSpec{
		Name: "flaky",
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			if fail {
				return errors.New("mesh missing")
			}
			return nil
		},
	})
	defer teardown(t, b, device, pass)

	index, err := b.Prepare()
	require.NoError(t, err)
	image := b.Swapchain().Image(index)
	before := image.State()
	require.Error(t, pass.Record(index))
	assert.Equal(t, before, image.State())
	_, err = b.Present()
	require.NoError(t, err)

	fail = false
	for i := 0; i < 3; i++ {
		index = drawFrame(t, b, pass)
		assert.Equal(t, hal.StatePresent, b.Swapchain().Image(index).State())
	}
}

func TestRecordRefusedWhileInFlight(t *testing.T) {
	cfg := headless.DefaultConfig()
	cfg.Latency = 50 * time.Millisecond
	b, device := newBackend(t, cfg, gfx.DoubleBuffering)
	pass := newPass(t, b, gfx.PassSpec{Name: "clear"})
	defer teardown(t, b, device, pass)

	index := drawFrame(t, b, pass)
	err := pass.Record(index)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gfx.ErrRecorderInFlight))
	assert.True(t, gfx.IsFatal(err))
	assert.Equal(t, gfx.Submitted, pass.Recorder(index).State())

	require.NoError(t, b.WaitIdle())
	require.NoError(t, pass.Record(index))
	assert.Equal(t, gfx.Submitted, pass.Recorder(index).State())
}

func TestRecorderMisusePanics(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	pass := newPass(t, b, gfx.PassSpec{Name: "clear"})
	defer teardown(t, b, device, pass)

	rec := pass.Recorder(0)
	require.NotNil(t, rec)
	assert.Panics(t, func() { rec.Draw(3, 1, 0, 0) }, "draw before begin")

	index := drawFrame(t, b, pass)
	rec = pass.Recorder(index)
	assert.Equal(t, gfx.Submitted, rec.State())

	defer func() {
		r := recover()
		require.NotNil(t, r, "draw after end")
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, gfx.ErrRecorderState))
	}()
	rec.Draw(3, 1, 0, 0)
}

func TestRecordBeforeBuild(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	defer teardown(t, b, device)

	pass := b.NewRenderPass()
	assert.True(t, errors.Is(pass.Record(0), gfx.ErrNotBuilt))
	assert.Nil(t, pass.Pipeline())
	assert.Nil(t, pass.Camera(0))
}

func TestPipelinePass(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	pass := newPass(t, b, gfx.PassSpec{
		Name:   "triangle",
		Layer:  gfx.Foreground,
		Shader: &gfx.ShaderSource{Name: "triangle", Vertex: make([]byte, 8), Fragment: make([]byte, 4)},
	})
	defer teardown(t, b, device, pass)

	require.NotNil(t, pass.Pipeline())
	assert.Equal(t, "triangle", pass.Pipeline().Name())
	assert.Equal(t, 1, device.Live(headless.KindPipeline))
	assert.Equal(t, gfx.LoadKeep, pass.Spec().LoadOp())

	bad := b.NewRenderPass()
	err := bad.Build(gfx.PassSpec{Shader: &gfx.ShaderSource{Name: "broken", Vertex: make([]byte, 3)}})
	assert.True(t, errors.Is(err, gfx.ErrInvalidShader))
	assert.True(t, gfx.IsFatal(err))
}

func TestCameraPerBufferIndex(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.TripleBuffering)
	pass := newPass(t, b, gfx.PassSpec{
		Name:   "triangle",
		Shader: &gfx.ShaderSource{Name: "triangle", Vertex: make([]byte, 4), Fragment: make([]byte, 4)},
		Draw: func(rec gfx.CommandRecorder, frame int) error {
			rec.Draw(3, 1, 0, 0)
			return nil
		},
	})
	defer teardown(t, b, device, pass)

	assert.NotSame(t, pass.Camera(0), pass.Camera(1))
	assert.Nil(t, pass.Camera(b.BufferCount()))

	blocks := make([][]byte, b.BufferCount())
	for index := range blocks {
		blocks[index] = bytes.Repeat([]byte{byte(index + 1)}, model.CameraSize)
		require.NoError(t, pass.Camera(index).Write(0, blocks[index]))
	}
	for i := 0; i < 6; i++ {
		index := drawFrame(t, b, pass)
		require.NoError(t, b.WaitIdle())
		assert.Equal(t, blocks[index], device.LastCamera(), "frame %d", i)
	}
}

func TestResizeIsIdempotent(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.TripleBuffering)
	pass := newPass(t, b, gfx.PassSpec{Name: "clear"})
	defer teardown(t, b, device, pass)

	drawFrame(t, b, pass)
	images := device.Live(headless.KindImage)
	fences := device.Live(headless.KindFence)
	generation := b.Swapchain().Generation()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Resize(1280, 720))
		pass.Resize(1280, 720)
	}
	assert.Equal(t, images, device.Live(headless.KindImage))
	assert.Equal(t, fences, device.Live(headless.KindFence))
	assert.Equal(t, 1, device.Live(headless.KindSwapchain))
	assert.Equal(t, generation+3, b.Swapchain().Generation())
	assert.Equal(t, 3, b.BufferCount())

	drawFrame(t, b, pass)
}

func TestResizeToFewerImages(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.TripleBuffering)
	background := newPass(t, b, gfx.PassSpec{Name: "background", Schedule: gfx.DrawOnce})
	foreground := newPass(t, b, gfx.PassSpec{Name: "foreground", Layer: gfx.Foreground})
	defer teardown(t, b, device, background, foreground)

	for i := 0; i < 3; i++ {
		drawFrame(t, b, background, foreground)
	}
	fences := device.Live(headless.KindFence)
	lists := device.Live(headless.KindCommandList)

	device.SetImageLimits(1, 2)
	require.NoError(t, b.Resize(1280, 720))
	background.Resize(1280, 720)
	foreground.Resize(1280, 720)

	assert.Equal(t, 2, b.BufferCount())
	assert.Equal(t, fences-1, device.Live(headless.KindFence))
	assert.Equal(t, lists-2, device.Live(headless.KindCommandList))
	for _, pass := range []gfx.RenderPass{background, foreground} {
		assert.Nil(t, pass.Recorder(2), pass.Name())
		assert.Equal(t, gfx.Unrecorded, pass.Recorder(0).State(), pass.Name())
		assert.Equal(t, gfx.Unrecorded, pass.Recorder(1).State(), pass.Name())
	}
	for i := 0; i < 4; i++ {
		drawFrame(t, b, background, foreground)
	}

	device.SetImageLimits(1, 3)
	require.NoError(t, b.Resize(1280, 720))
	background.Resize(1280, 720)
	foreground.Resize(1280, 720)
	assert.Equal(t, 3, b.BufferCount())
	assert.NotNil(t, foreground.Recorder(2))
	for i := 0; i < 4; i++ {
		drawFrame(t, b, background, foreground)
	}
}

func TestOutOfDateSurface(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	pass := newPass(t, b, gfx.PassSpec{Name: "clear"})
	defer teardown(t, b, device, pass)

	drawFrame(t, b, pass)
	device.SetSurfaceExtent(gfx.Extent{Width: 800, Height: 600})

	_, err := b.Prepare()
	assert.True(t, errors.Is(err, gfx.ErrOutOfDate))
	assert.False(t, gfx.IsFatal(err))

	require.NoError(t, b.Resize(800, 600))
	pass.Resize(800, 600)
	assert.Equal(t, gfx.Extent{Width: 800, Height: 600}, b.Extent())
	drawFrame(t, b, pass)
}

func TestDeviceLostIsFatal(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	pass := newPass(t, b, gfx.PassSpec{Name: "clear"})

	drawFrame(t, b, pass)
	device.Lose()

	_, err := b.Prepare()
	require.Error(t, err)
	assert.True(t, gfx.IsFatal(err))
	assert.True(t, errors.Is(err, gfx.ErrDeviceLost))

	pass.Cleanup()
	b.Destroy()
}

func TestDeviceLocalBufferRoundTrip(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	defer teardown(t, b, device)

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}

	buf, err := b.NewBuffer(gfx.BufferDesc{Size: len(data), Usage: gfx.UsageVertex, DeviceLocal: true})
	require.NoError(t, err)
	defer buf.Release()

	require.NoError(t, buf.Write(0, data))
	require.NoError(t, buf.Flush())
	got, err := buf.Read()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.True(t, errors.Is(buf.Write(0, data), gfx.ErrImmutable))
	assert.True(t, errors.Is(buf.Flush(), gfx.ErrImmutable))
	assert.True(t, errors.Is(buf.Write(250, data[:10]), gfx.ErrOutOfRange))
}

func TestDynamicBufferFlushesRepeatedly(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	defer teardown(t, b, device)

	buf, err := b.NewBuffer(gfx.BufferDesc{Size: 4, Usage: gfx.UsageUniform, DeviceLocal: true, Dynamic: true})
	require.NoError(t, err)
	defer buf.Release()

	for i := byte(0); i < 3; i++ {
		require.NoError(t, buf.Write(0, []byte{i, i, i, i}))
		require.NoError(t, buf.Flush())
		got, err := buf.Read()
		require.NoError(t, err)
		assert.Equal(t, []byte{i, i, i, i}, got)
	}
}

func TestHostVisibleBuffer(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	defer teardown(t, b, device)

	buf, err := b.NewBuffer(gfx.BufferDesc{Size: 8, Usage: gfx.UsageUniform})
	require.NoError(t, err)
	defer buf.Release()

	require.NoError(t, buf.Write(4, []byte{1, 2, 3, 4}))
	require.NoError(t, buf.Flush())
	got, err := buf.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, got)

	_, err = b.NewBuffer(gfx.BufferDesc{Size: 0})
	assert.Error(t, err)
}

func TestTextureUploadOnce(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	defer teardown(t, b, device)

	tex, err := b.NewTexture(gfx.TextureDesc{Width: 2, Height: 2})
	require.NoError(t, err)
	defer tex.Release()
	assert.Equal(t, gfx.FormatRGBA8Unorm, tex.Desc().Format)

	pixels := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}
	assert.True(t, errors.Is(tex.Upload(pixels[:4]), gfx.ErrOutOfRange))
	require.NoError(t, tex.Upload(pixels))
	got, err := tex.Read()
	require.NoError(t, err)
	assert.Equal(t, pixels, got)

	assert.True(t, errors.Is(tex.Upload(pixels), gfx.ErrImmutable))
}

func TestUniformPoolOnBackend(t *testing.T) {
	b, device := newBackend(t, headless.DefaultConfig(), gfx.DoubleBuffering)
	defer teardown(t, b, device)

	pool, err := gfx.NewUniformPool(b.NewBuffer, 64, 4, testLogger())
	require.NoError(t, err)
	defer pool.Release()

	require.NoError(t, pool.Write(3, []byte{9}))
	require.NoError(t, pool.Flush())
	got, err := pool.Buffer().Read()
	require.NoError(t, err)
	assert.Equal(t, byte(9), got[pool.Offset(3)])
	assert.True(t, errors.Is(pool.Write(4, []byte{1}), gfx.ErrPoolExhausted))
}
