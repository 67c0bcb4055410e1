// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	vk "github.com/vulkan-go/vulkan"
)

// Surface is the window surface the device presents to.
type Surface struct {
	device *Device

	// colorSpaces remembers the color space offered with each format
	colorSpaces map[gfx.Format]vk.ColorSpace
}

// Capabilities implements hal.Surface.
func (s *Surface) Capabilities() (hal.SurfaceCaps, error) {
	physical, surface := s.device.physicalDevice, s.device.surfaceHandle

	var surfaceCapabilities vk.SurfaceCapabilities
	if err := resultError(vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &surfaceCapabilities), "vk.GetPhysicalDeviceSurfaceCapabilities()"); err != nil {
		return hal.SurfaceCaps{}, err
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()

	caps := hal.SurfaceCaps{
		Current: gfx.Extent{
			Width:  surfaceCapabilities.CurrentExtent.Width,
			Height: surfaceCapabilities.CurrentExtent.Height,
		},
		MinImages: int(surfaceCapabilities.MinImageCount),
		MaxImages: int(surfaceCapabilities.MaxImageCount),
	}

	var formatCount uint32
	if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil), "vk.GetPhysicalDeviceSurfaceFormats(count)"); err != nil {
		return hal.SurfaceCaps{}, err
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, formats), "vk.GetPhysicalDeviceSurfaceFormats()"); err != nil {
		return hal.SurfaceCaps{}, err
	}
	s.colorSpaces = make(map[gfx.Format]vk.ColorSpace)
	for _, format := range formats {
		format.Deref()
		f := fromVkFormat(format.Format)
		if format.Format == vk.FormatUndefined {
			// any format goes, the platform leaves the choice to us
			caps.Formats = append(caps.Formats, gfx.FormatUndefined)
			s.colorSpaces[gfx.PreferredFormat] = format.ColorSpace
			continue
		}
		if f == gfx.FormatUndefined {
			continue
		}
		if _, seen := s.colorSpaces[f]; !seen {
			caps.Formats = append(caps.Formats, f)
			s.colorSpaces[f] = format.ColorSpace
		}
	}

	var modeCount uint32
	if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil), "vk.GetPhysicalDeviceSurfacePresentModes(count)"); err != nil {
		return hal.SurfaceCaps{}, err
	}
	modes := make([]vk.PresentMode, modeCount)
	if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, modes), "vk.GetPhysicalDeviceSurfacePresentModes()"); err != nil {
		return hal.SurfaceCaps{}, err
	}
	for _, mode := range modes {
		if m, ok := fromVkPresentMode(mode); ok {
			caps.PresentModes = append(caps.PresentModes, m)
		}
	}
	return caps, nil
}

// CreateSwapchain implements hal.Surface.
func (s *Surface) CreateSwapchain(desc hal.SwapchainDesc, old hal.Swapchain) (hal.Swapchain, error) {
	d := s.device
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := resultError(vk.GetPhysicalDeviceSurfaceCapabilities(d.physicalDevice, d.surfaceHandle, &surfaceCapabilities), "vk.GetPhysicalDeviceSurfaceCapabilities()"); err != nil {
		return nil, err
	}
	surfaceCapabilities.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		alphaFlags := vk.CompositeAlphaFlags(compositeAlphaFlags[i])
		if surfaceCapabilities.SupportedCompositeAlpha&alphaFlags != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	var oldSwapchain vk.Swapchain
	if old != nil {
		previous, ok := old.(*Swapchain)
		if !ok {
			return nil, errors.Newf("swapchain %T does not belong to this device", old)
		}
		oldSwapchain = previous.swapchain
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surfaceHandle,
		MinImageCount:   uint32(desc.ImageCount),
		ImageFormat:     toVkFormat(desc.Format),
		ImageColorSpace: s.colorSpaces[desc.Format],
		ImageExtent: vk.Extent2D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      toVkPresentMode(desc.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldSwapchain,
	}

	var swapchain vk.Swapchain
	if err := resultError(vk.CreateSwapchain(d.logicalDevice, &scci, nil, &swapchain), "vk.CreateSwapchain()"); err != nil {
		return nil, err
	}
	sc := &Swapchain{device: d, swapchain: swapchain}

	var numImages uint32
	if err := resultError(vk.GetSwapchainImages(d.logicalDevice, swapchain, &numImages, nil), "vk.GetSwapchainImages(num)"); err != nil {
		sc.Destroy()
		return nil, err
	}
	images := make([]vk.Image, numImages)
	if err := resultError(vk.GetSwapchainImages(d.logicalDevice, swapchain, &numImages, images), "vk.GetSwapchainImages(images)"); err != nil {
		sc.Destroy()
		return nil, err
	}

	for _, image := range images {
		img, err := d.newSwapchainImage(image, desc.Extent, desc.Format)
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.images = append(sc.images, img)

		semaphore, err := d.newSemaphore()
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.acquired = append(sc.acquired, semaphore)
	}
	spare, err := d.newSemaphore()
	if err != nil {
		sc.Destroy()
		return nil, err
	}
	sc.spare = spare
	return sc, nil
}

// Swapchain is a native swapchain and the views of its images.
type Swapchain struct {
	device    *Device
	swapchain vk.Swapchain
	images    []*Image

	// acquired holds the semaphore the last acquire of each image
	// signaled, spare is the one the next acquire signals.
	acquired []vk.Semaphore
	spare    vk.Semaphore
}

// Images implements hal.Swapchain.
func (s *Swapchain) Images() []hal.Image {
	images := make([]hal.Image, len(s.images))
	for i, img := range s.images {
		images[i] = img
	}
	return images
}

// Acquire implements hal.Swapchain. The acquire semaphore is handed to
// the queue, which waits on it with the next submission.
func (s *Swapchain) Acquire() (int, gfx.PresentStatus, error) {
	var index uint32
	res := vk.AcquireNextImage(s.device.logicalDevice, s.swapchain, math.MaxUint64, s.spare, nil, &index)
	status := gfx.PresentOK
	switch res {
	case vk.Success:
	case vk.Suboptimal:
		status = gfx.PresentSuboptimal
	case vk.ErrorOutOfDate:
		return -1, gfx.PresentOutOfDate, nil
	default:
		return -1, gfx.PresentOK, resultError(res, "vk.AcquireNextImage()")
	}

	s.acquired[index], s.spare = s.spare, s.acquired[index]
	s.device.queue.acquired = s.acquired[index]
	return int(index), status, nil
}

// Destroy implements hal.Swapchain.
func (s *Swapchain) Destroy() {
	logical := s.device.logicalDevice
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
	for _, semaphore := range s.acquired {
		if s.device.queue.acquired == semaphore {
			s.device.queue.acquired = nil
		}
		vk.DestroySemaphore(logical, semaphore, nil)
	}
	s.acquired = nil
	if s.spare != nil {
		vk.DestroySemaphore(logical, s.spare, nil)
		s.spare = nil
	}
	vk.DestroySwapchain(logical, s.swapchain, nil)
}
