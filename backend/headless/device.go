// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package headless is a software device for the explicit backend.
// It executes command lists on a worker goroutine into CPU memory,
// so rendering can run without a window or a GPU, as in CI.
package headless

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	log "github.com/sirupsen/logrus"
)

// Object kinds tracked by the device counters.
const (
	KindFence       = "fence"
	KindCommandList = "command-list"
	KindMemory      = "memory"
	KindImage       = "image"
	KindPipeline    = "pipeline"
	KindSwapchain   = "swapchain"
)

// Config describes the simulated device and surface.
type Config struct {
	// Name is reported as the device name.
	Name string

	// Extent is the surface size, gfx.UndefinedExtent lets the
	// swapchain decide.
	Extent gfx.Extent

	Formats      []gfx.Format
	PresentModes []gfx.PresentMode
	MinImages    int
	MaxImages    int

	// Latency delays the execution of every submission.
	Latency time.Duration
}

// DefaultConfig returns a surface that accepts every common setting.
func DefaultConfig() Config {
	return Config{
		Name:         "Prism Headless Device",
		Extent:       gfx.Extent{Width: 1280, Height: 720},
		Formats:      []gfx.Format{gfx.FormatBGRA8Unorm, gfx.FormatRGBA8Unorm},
		PresentModes: []gfx.PresentMode{gfx.PresentFifo, gfx.PresentMailbox, gfx.PresentImmediate},
		MinImages:    1,
		MaxImages:    3,
	}
}

// Device is a hal.Device executing on the CPU.
type Device struct {
	config Config
	logger log.FieldLogger

	queue   *Queue
	surface *Surface

	lost uint32

	countMutex sync.Mutex
	created    map[string]int
	destroyed  map[string]int
	failing    map[string]error

	fenceMutex sync.Mutex
	fences     map[*Fence]struct{}

	draws       uint64
	submissions uint64

	cameraMutex sync.Mutex
	camera      []byte

	presentMutex sync.Mutex
	presented    []int
}

// NewDevice opens a headless device and starts its queue.
func NewDevice(cfg Config, logger log.FieldLogger) *Device {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	d := &Device{
		config:    cfg,
		logger:    logger.WithField("device", "headless"),
		created:   make(map[string]int),
		destroyed: make(map[string]int),
		failing:   make(map[string]error),
		fences:    make(map[*Fence]struct{}),
	}
	d.queue = newQueue(d)
	d.surface = &Surface{
		device:    d,
		extent:    cfg.Extent,
		minImages: cfg.MinImages,
		maxImages: cfg.MaxImages,
	}
	return d
}

// Info implements hal.Device.
func (d *Device) Info() gfx.DeviceInfo {
	return gfx.DeviceInfo{
		Kind: gfx.Headless,
		Name: d.config.Name,
	}
}

// Queue implements hal.Device.
func (d *Device) Queue() hal.Queue {
	return d.queue
}

// Surface implements hal.Device.
func (d *Device) Surface() hal.Surface {
	return d.surface
}

// SetSurfaceExtent simulates a window resize. Swapchains created for
// another size report out of date from then on.
func (d *Device) SetSurfaceExtent(e gfx.Extent) {
	d.surface.setExtent(e)
}

// SetImageLimits changes the image counts the surface reports, as
// when the window moves to another display.
func (d *Device) SetImageLimits(minImages, maxImages int) {
	d.surface.setImageLimits(minImages, maxImages)
}

// Fail makes every following creation of kind return err, nil restores it.
func (d *Device) Fail(kind string, err error) {
	d.countMutex.Lock()
	defer d.countMutex.Unlock()
	if err == nil {
		delete(d.failing, kind)
		return
	}
	d.failing[kind] = err
}

// Lose simulates a device loss. Pending and future fence waits fail.
func (d *Device) Lose() {
	atomic.StoreUint32(&d.lost, 1)
	d.fenceMutex.Lock()
	defer d.fenceMutex.Unlock()
	for fence := range d.fences {
		fence.wake()
	}
}

// Lost reports whether Lose was called.
func (d *Device) Lost() bool {
	return atomic.LoadUint32(&d.lost) == 1
}

// Created returns how many objects of kind were created.
func (d *Device) Created(kind string) int {
	d.countMutex.Lock()
	defer d.countMutex.Unlock()
	return d.created[kind]
}

// Live returns how many objects of kind exist.
func (d *Device) Live(kind string) int {
	d.countMutex.Lock()
	defer d.countMutex.Unlock()
	return d.created[kind] - d.destroyed[kind]
}

// LastCamera returns the camera block as the last executed draw
// through a pipeline read it.
func (d *Device) LastCamera() []byte {
	d.cameraMutex.Lock()
	defer d.cameraMutex.Unlock()
	return append([]byte(nil), d.camera...)
}

func (d *Device) readCamera(m *Memory) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	d.cameraMutex.Lock()
	d.camera = append(d.camera[:0], m.data...)
	d.cameraMutex.Unlock()
}

// Draws returns the number of executed draw commands.
func (d *Device) Draws() uint64 {
	return atomic.LoadUint64(&d.draws)
}

// Submissions returns the number of executed command lists.
func (d *Device) Submissions() uint64 {
	return atomic.LoadUint64(&d.submissions)
}

// Presented returns the image indices in the order they were presented.
func (d *Device) Presented() []int {
	d.presentMutex.Lock()
	defer d.presentMutex.Unlock()
	return append([]int(nil), d.presented...)
}

// MaxPendingSignals returns the largest number of fence signals that
// were queued but not yet executed at the same time.
func (d *Device) MaxPendingSignals() int {
	return d.queue.maxPendingSignals()
}

func (d *Device) create(kind string) error {
	d.countMutex.Lock()
	defer d.countMutex.Unlock()
	if err := d.failing[kind]; err != nil {
		return errors.Wrapf(err, "create %s", kind)
	}
	d.created[kind]++
	return nil
}

func (d *Device) destroy(kind string) {
	d.countMutex.Lock()
	defer d.countMutex.Unlock()
	d.destroyed[kind]++
}

// NewFence implements hal.Device.
func (d *Device) NewFence() (hal.Fence, error) {
	if err := d.create(KindFence); err != nil {
		return nil, err
	}
	f := &Fence{device: d}
	f.cond = sync.NewCond(&f.mutex)
	d.fenceMutex.Lock()
	d.fences[f] = struct{}{}
	d.fenceMutex.Unlock()
	return f, nil
}

// NewCommandList implements hal.Device.
func (d *Device) NewCommandList() (hal.CommandList, error) {
	if err := d.create(KindCommandList); err != nil {
		return nil, err
	}
	return &CommandList{device: d}, nil
}

// NewMemory implements hal.Device.
func (d *Device) NewMemory(size int, usage gfx.BufferUsage, kind hal.MemoryKind) (hal.Memory, error) {
	if size <= 0 {
		return nil, errors.Newf("memory size %d", size)
	}
	if err := d.create(KindMemory); err != nil {
		return nil, err
	}
	return &Memory{
		device: d,
		usage:  usage,
		kind:   kind,
		data:   make([]byte, size),
	}, nil
}

// NewImage implements hal.Device.
func (d *Device) NewImage(desc gfx.TextureDesc) (hal.Image, error) {
	if err := d.create(KindImage); err != nil {
		return nil, err
	}
	return newImage(d, gfx.Extent{Width: desc.Width, Height: desc.Height}, desc.Format), nil
}

// NewPipeline implements hal.Device.
func (d *Device) NewPipeline(desc hal.PipelineDesc) (hal.Pipeline, error) {
	if err := desc.Shader.Validate(); err != nil {
		return nil, err
	}
	if err := d.create(KindPipeline); err != nil {
		return nil, err
	}
	return &Pipeline{device: d, name: desc.Shader.Name}, nil
}

// WaitIdle implements hal.Device.
func (d *Device) WaitIdle() error {
	return d.queue.WaitIdle()
}

// Destroy implements hal.Device. Objects still alive are reported.
func (d *Device) Destroy() {
	d.queue.close()

	d.countMutex.Lock()
	defer d.countMutex.Unlock()
	for kind, n := range d.created {
		if live := n - d.destroyed[kind]; live != 0 {
			d.logger.WithFields(log.Fields{"kind": kind, "live": live}).Warn("object leaked at device destruction")
		}
	}
}
