// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package headless

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
)

// Surface is an offscreen presentation surface.
type Surface struct {
	device *Device

	mutex     sync.Mutex
	extent    gfx.Extent
	minImages int
	maxImages int
}

func (s *Surface) setExtent(e gfx.Extent) {
	s.mutex.Lock()
	s.extent = e
	s.mutex.Unlock()
}

func (s *Surface) setImageLimits(minImages, maxImages int) {
	s.mutex.Lock()
	s.minImages, s.maxImages = minImages, maxImages
	s.mutex.Unlock()
}

func (s *Surface) imageLimits() (int, int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.minImages, s.maxImages
}

func (s *Surface) current() gfx.Extent {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.extent
}

// Capabilities implements hal.Surface.
func (s *Surface) Capabilities() (hal.SurfaceCaps, error) {
	if s.device.Lost() {
		return hal.SurfaceCaps{}, gfx.ErrDeviceLost
	}
	cfg := s.device.config
	minImages, maxImages := s.imageLimits()
	return hal.SurfaceCaps{
		Current:      s.current(),
		MinImages:    minImages,
		MaxImages:    maxImages,
		Formats:      append([]gfx.Format(nil), cfg.Formats...),
		PresentModes: append([]gfx.PresentMode(nil), cfg.PresentModes...),
	}, nil
}

// CreateSwapchain implements hal.Surface.
func (s *Surface) CreateSwapchain(desc hal.SwapchainDesc, old hal.Swapchain) (hal.Swapchain, error) {
	if desc.ImageCount <= 0 {
		return nil, errors.Newf("swapchain of %d images", desc.ImageCount)
	}
	if desc.Extent.Empty() || desc.Extent.Undefined() {
		return nil, errors.Newf("swapchain extent %dx%d", desc.Extent.Width, desc.Extent.Height)
	}
	if old != nil {
		if sc, ok := old.(*Swapchain); ok {
			sc.retired = true
		}
	}
	if err := s.device.create(KindSwapchain); err != nil {
		return nil, err
	}

	sc := &Swapchain{
		surface: s,
		desc:    desc,
		next:    -1,
	}
	for i := 0; i < desc.ImageCount; i++ {
		if err := s.device.create(KindImage); err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.images = append(sc.images, newImage(s.device, desc.Extent, desc.Format))
	}
	return sc, nil
}

// Swapchain hands out its images round-robin.
type Swapchain struct {
	surface *Surface
	desc    hal.SwapchainDesc
	images  []*Image
	next    int
	retired bool
}

// Desc returns the description the swapchain was created with.
func (s *Swapchain) Desc() hal.SwapchainDesc {
	return s.desc
}

// Images implements hal.Swapchain.
func (s *Swapchain) Images() []hal.Image {
	images := make([]hal.Image, len(s.images))
	for i, img := range s.images {
		images[i] = img
	}
	return images
}

// Acquire implements hal.Swapchain.
func (s *Swapchain) Acquire() (int, gfx.PresentStatus, error) {
	if s.surface.device.Lost() {
		return -1, gfx.PresentOK, gfx.ErrDeviceLost
	}
	if s.retired {
		return -1, gfx.PresentOK, errors.New("acquire from a retired swapchain")
	}
	if status := s.status(); status == gfx.PresentOutOfDate {
		return -1, status, nil
	}
	s.next = (s.next + 1) % len(s.images)
	return s.next, gfx.PresentOK, nil
}

func (s *Swapchain) status() gfx.PresentStatus {
	current := s.surface.current()
	if !current.Undefined() && current != s.desc.Extent {
		return gfx.PresentOutOfDate
	}
	return gfx.PresentOK
}

// Destroy implements hal.Swapchain.
func (s *Swapchain) Destroy() {
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
	s.surface.device.destroy(KindSwapchain)
}
