// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package explicit implements the rendering contracts for backends
// that record command lists and synchronize with fences. The logic is
// written once against the hal seam, Vulkan and the headless device
// only provide the native side.
package explicit

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	log "github.com/sirupsen/logrus"
)

// Config holds the swapchain settings of an explicit backend.
type Config struct {
	Buffering gfx.Buffering
	VSync     bool
	Width     uint32
	Height    uint32
}

// OpenFunc opens the native device during Initialize.
type OpenFunc func() (hal.Device, error)

// Backend implements gfx.Backend on top of a hal.Device.
type Backend struct {
	kind   gfx.Kind
	open   OpenFunc
	config Config
	logger log.FieldLogger

	device    hal.Device
	sync      *FrameSynchronizer
	swapchain *Swapchain
	index     int

	transferMutex sync.Mutex
	transfer      hal.CommandList
	transferFence hal.Fence
	transferValue uint64
}

// New creates a backend that is not initialised yet.
func New(kind gfx.Kind, open OpenFunc, cfg Config, logger log.FieldLogger) *Backend {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if !cfg.Buffering.Valid() {
		cfg.Buffering = gfx.TripleBuffering
	}
	return &Backend{
		kind:   kind,
		open:   open,
		config: cfg,
		logger: logger.WithField("backend", kind.String()),
	}
}

// Kind implements gfx.Backend.
func (b *Backend) Kind() gfx.Kind {
	return b.kind
}

// Info implements gfx.Backend.
func (b *Backend) Info() gfx.DeviceInfo {
	if b.device == nil {
		return gfx.DeviceInfo{Kind: b.kind}
	}
	return b.device.Info()
}

// Initialize implements gfx.Backend.
func (b *Backend) Initialize() error {
	if b.device != nil {
		return errors.New("backend is already initialised")
	}

	device, err := b.open()
	if err != nil {
		return gfx.Fatal(b.logger, "hal.Open()", err)
	}
	b.device = device

	if b.sync, err = NewFrameSynchronizer(device, 0, b.logger); err != nil {
		return err
	}
	b.swapchain = NewSwapchain(device, b.sync, b.config.Buffering, b.logger)
	if err := b.swapchain.Create(b.config.Width, b.config.Height, b.config.VSync); err != nil {
		return err
	}

	if b.transfer, err = device.NewCommandList(); err != nil {
		return gfx.Fatal(b.logger, "hal.NewCommandList(transfer)", err)
	}
	if b.transferFence, err = device.NewFence(); err != nil {
		return gfx.Fatal(b.logger, "hal.NewFence(transfer)", err)
	}

	info := device.Info()
	b.logger.WithFields(log.Fields{
		"device":   info.Name,
		"vendorID": info.VendorID,
		"deviceID": info.ID,
		"images":   b.swapchain.Len(),
	}).Info("backend initialised")
	return nil
}

// BufferCount implements gfx.Backend.
func (b *Backend) BufferCount() int {
	if b.swapchain == nil {
		return 0
	}
	return b.swapchain.Len()
}

// BufferIndex implements gfx.Backend.
func (b *Backend) BufferIndex() int {
	return b.index
}

// Extent implements gfx.Backend.
func (b *Backend) Extent() gfx.Extent {
	if b.swapchain == nil {
		return gfx.Extent{Width: b.config.Width, Height: b.config.Height}
	}
	return b.swapchain.Extent()
}

// Format implements gfx.Backend.
func (b *Backend) Format() gfx.Format {
	if b.swapchain == nil {
		return gfx.FormatUndefined
	}
	return b.swapchain.Format()
}

// Synchronizer returns the frame synchronizer.
func (b *Backend) Synchronizer() *FrameSynchronizer {
	return b.sync
}

// Swapchain returns the swapchain.
func (b *Backend) Swapchain() *Swapchain {
	return b.swapchain
}

// Device returns the native device.
func (b *Backend) Device() hal.Device {
	return b.device
}

// Prepare implements gfx.Backend: it acquires the next image, waits
// for the frame that used it before and re-arms its fence.
func (b *Backend) Prepare() (int, error) {
	index, err := b.swapchain.AcquireNextImage()
	if err != nil {
		return -1, err
	}
	if err := b.sync.Reset(index); err != nil {
		return -1, err
	}
	b.index = index
	return index, nil
}

// Present implements gfx.Backend. Everything the passes submitted for
// the frame is covered by the single fence signal that precedes it.
func (b *Backend) Present() (gfx.PresentStatus, error) {
	if err := b.sync.Signal(b.index, b.device.Queue()); err != nil {
		return gfx.PresentOK, err
	}
	return b.swapchain.Present(b.index)
}

// Resize implements gfx.Backend.
func (b *Backend) Resize(width, height uint32) error {
	b.config.Width, b.config.Height = width, height
	return b.swapchain.Create(width, height, b.config.VSync)
}

// oneShot records a transfer with record, submits it and blocks until
// the device has executed it. Uploads are not pipelined with rendering.
func (b *Backend) oneShot(record func(list hal.CommandList)) error {
	b.transferMutex.Lock()
	defer b.transferMutex.Unlock()

	if err := b.transfer.Reset(); err != nil {
		return gfx.Fatal(b.logger, "CommandList.Reset(transfer)", err)
	}
	if err := b.transfer.Begin(); err != nil {
		return gfx.Fatal(b.logger, "CommandList.Begin(transfer)", err)
	}
	record(b.transfer)
	if err := b.transfer.Close(); err != nil {
		return gfx.Fatal(b.logger, "CommandList.Close(transfer)", err)
	}

	if err := b.transferFence.Reset(); err != nil {
		return gfx.Fatal(b.logger, "Fence.Reset(transfer)", err)
	}
	queue := b.device.Queue()
	if err := queue.Submit(b.transfer); err != nil {
		return gfx.Fatal(b.logger, "Queue.Submit(transfer)", err)
	}
	b.transferValue++
	if err := queue.Signal(b.transferFence, b.transferValue); err != nil {
		return gfx.Fatal(b.logger, "Queue.Signal(transfer)", err)
	}
	if err := b.transferFence.Wait(b.transferValue); err != nil {
		return gfx.Fatal(b.logger, "Fence.Wait(transfer)", errors.Mark(err, gfx.ErrDeviceLost))
	}
	return nil
}

// WaitIdle implements gfx.Backend.
func (b *Backend) WaitIdle() error {
	if b.device == nil {
		return nil
	}
	if err := b.device.WaitIdle(); err != nil {
		return gfx.Fatal(b.logger, "Device.WaitIdle()", err)
	}
	return nil
}

// Destroy implements gfx.Backend.
func (b *Backend) Destroy() {
	if b.device == nil {
		return
	}
	if err := b.device.WaitIdle(); err != nil {
		b.logger.WithError(err).Warn("device did not drain before destruction")
	}
	if b.transfer != nil {
		b.transfer.Destroy()
	}
	if b.transferFence != nil {
		b.transferFence.Destroy()
	}
	if b.swapchain != nil {
		b.swapchain.Destroy()
	}
	if b.sync != nil {
		b.sync.Destroy()
	}
	b.device.Destroy()
	b.device = nil
}
