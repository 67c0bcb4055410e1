// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package explicit

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	log "github.com/sirupsen/logrus"
)

// Swapchain owns the rotating set of presentable images.
type Swapchain struct {
	device    hal.Device
	sync      *FrameSynchronizer
	buffering gfx.Buffering
	logger    log.FieldLogger

	native     hal.Swapchain
	images     []hal.Image
	extent     gfx.Extent
	format     gfx.Format
	mode       gfx.PresentMode
	generation int
	suboptimal bool
}

// NewSwapchain creates an empty swapchain, Create has to be called before use.
func NewSwapchain(device hal.Device, sync *FrameSynchronizer, buffering gfx.Buffering, logger log.FieldLogger) *Swapchain {
	return &Swapchain{
		device:    device,
		sync:      sync,
		buffering: buffering,
		logger:    logger,
	}
}

// ChooseFormat prefers gfx.PreferredFormat and falls back to the first
// format offered.
func ChooseFormat(formats []gfx.Format) gfx.Format {
	if len(formats) == 0 || (len(formats) == 1 && formats[0] == gfx.FormatUndefined) {
		return gfx.PreferredFormat
	}
	for _, f := range formats {
		if f == gfx.PreferredFormat {
			return f
		}
	}
	return formats[0]
}

// ChoosePresentMode picks a non-blocking mode when vsync is off and
// the device offers one, FIFO otherwise.
func ChoosePresentMode(modes []gfx.PresentMode, vsync bool) gfx.PresentMode {
	if vsync {
		return gfx.PresentFifo
	}
	has := func(m gfx.PresentMode) bool {
		for _, mode := range modes {
			if mode == m {
				return true
			}
		}
		return false
	}
	switch {
	case has(gfx.PresentMailbox):
		return gfx.PresentMailbox
	case has(gfx.PresentImmediate):
		return gfx.PresentImmediate
	}
	return gfx.PresentFifo
}

func imageCount(b gfx.Buffering, caps hal.SurfaceCaps) int {
	count := int(b)
	if count < caps.MinImages {
		count = caps.MinImages
	}
	if caps.MaxImages > 0 && count > caps.MaxImages {
		count = caps.MaxImages
	}
	return count
}

// Create (re)creates the image set. The previous set is destroyed
// after the new one exists and the queue has drained, contents are not
// preserved.
func (s *Swapchain) Create(width, height uint32, vsync bool) error {
	caps, err := s.device.Surface().Capabilities()
	if err != nil {
		return gfx.Fatal(s.logger, "Surface.Capabilities()", err)
	}

	extent := caps.Current
	if extent.Undefined() {
		extent = gfx.Extent{Width: width, Height: height}
	}

	desc := hal.SwapchainDesc{
		Extent:      extent,
		Format:      ChooseFormat(caps.Formats),
		PresentMode: ChoosePresentMode(caps.PresentModes, vsync),
		ImageCount:  imageCount(s.buffering, caps),
	}

	old := s.native
	if old != nil {
		if err := s.device.WaitIdle(); err != nil {
			return gfx.Fatal(s.logger, "Device.WaitIdle()", err)
		}
	}

	native, err := s.device.Surface().CreateSwapchain(desc, old)
	if err != nil {
		return gfx.Fatal(s.logger, "Surface.CreateSwapchain()", err)
	}
	if old != nil {
		old.Destroy()
	}

	s.native = native
	s.images = native.Images()
	s.extent = desc.Extent
	s.format = desc.Format
	s.mode = desc.PresentMode
	s.generation++
	s.suboptimal = false

	s.logger.WithFields(log.Fields{
		"width":   s.extent.Width,
		"height":  s.extent.Height,
		"images":  len(s.images),
		"present": s.mode,
	}).Debug("swapchain created")

	return s.sync.Resize(len(s.images))
}

// AcquireNextImage returns the index of the next image safe to render
// into, blocking until its previous frame has completed. An out of date
// surface returns gfx.ErrOutOfDate.
func (s *Swapchain) AcquireNextImage() (int, error) {
	index, status, err := s.native.Acquire()
	if err != nil {
		return -1, gfx.Fatal(s.logger, "Swapchain.Acquire()", err)
	}
	switch status {
	case gfx.PresentOutOfDate:
		return -1, errors.Wrap(gfx.ErrOutOfDate, "acquire")
	case gfx.PresentSuboptimal:
		s.suboptimal = true
	}
	if err := s.sync.Wait(index); err != nil {
		return -1, err
	}
	return index, nil
}

// Present queues index for display after the last signal.
func (s *Swapchain) Present(index int) (gfx.PresentStatus, error) {
	status, err := s.device.Queue().Present(s.native, index)
	if err != nil {
		return status, gfx.Fatal(s.logger.WithField("frame", index), "Queue.Present()", err)
	}
	if status == gfx.PresentOK && s.suboptimal {
		status = gfx.PresentSuboptimal
	}
	return status, nil
}

// Image returns the image at index.
func (s *Swapchain) Image(index int) hal.Image {
	return s.images[index]
}

// Len returns the number of images.
func (s *Swapchain) Len() int {
	return len(s.images)
}

// Extent returns the image size.
func (s *Swapchain) Extent() gfx.Extent {
	return s.extent
}

// Format returns the image format.
func (s *Swapchain) Format() gfx.Format {
	return s.format
}

// PresentMode returns the selected present mode.
func (s *Swapchain) PresentMode() gfx.PresentMode {
	return s.mode
}

// Generation is incremented every time the image set is recreated.
func (s *Swapchain) Generation() int {
	return s.generation
}

// Destroy destroys the native swapchain.
func (s *Swapchain) Destroy() {
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
		s.images = nil
	}
}
