// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	vk "github.com/vulkan-go/vulkan"
)

// Image is a native image with a color view. Swapchain images are
// owned by their swapchain and have no memory of their own.
type Image struct {
	device *Device
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	extent gfx.Extent
	format gfx.Format
	state  hal.ImageState

	// framebuffers are created lazily, one per compatible render pass
	framebuffers map[vk.RenderPass]vk.Framebuffer
}

var colorSubresource = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

func (d *Device) newTextureImage(desc gfx.TextureDesc) (*Image, error) {
	format := toVkFormat(desc.Format)
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(d.logicalDevice, &ici, nil, &image)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateImage()")
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logicalDevice, image, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := d.allocator.malloc(memoryRequirements, hal.DeviceLocal)
	if err != nil {
		vk.DestroyImage(d.logicalDevice, image, nil)
		return nil, err
	}
	if err := vk.Error(vk.BindImageMemory(d.logicalDevice, image, memory, 0)); err != nil {
		vk.FreeMemory(d.logicalDevice, memory, nil)
		vk.DestroyImage(d.logicalDevice, image, nil)
		return nil, errors.Wrap(err, "vk.BindImageMemory()")
	}

	view, err := d.newImageView(image, format)
	if err != nil {
		vk.FreeMemory(d.logicalDevice, memory, nil)
		vk.DestroyImage(d.logicalDevice, image, nil)
		return nil, err
	}

	return &Image{
		device: d,
		image:  image,
		memory: memory,
		view:   view,
		extent: gfx.Extent{Width: desc.Width, Height: desc.Height},
		format: desc.Format,
	}, nil
}

func (d *Device) newSwapchainImage(image vk.Image, extent gfx.Extent, format gfx.Format) (*Image, error) {
	view, err := d.newImageView(image, toVkFormat(format))
	if err != nil {
		return nil, err
	}
	return &Image{
		device: d,
		image:  image,
		view:   view,
		extent: extent,
		format: format,
	}, nil
}

func (d *Device) newImageView(image vk.Image, format vk.Format) (vk.ImageView, error) {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: colorSubresource,
	}

	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(d.logicalDevice, &ivci, nil, &view)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateImageView()")
	}
	return view, nil
}

// framebuffer returns the framebuffer of the image for renderPass.
func (i *Image) framebuffer(renderPass vk.RenderPass) (vk.Framebuffer, error) {
	if fb, ok := i.framebuffers[renderPass]; ok {
		return fb, nil
	}

	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{i.view},
		Width:           i.extent.Width,
		Height:          i.extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := vk.Error(vk.CreateFramebuffer(i.device.logicalDevice, &fci, nil, &framebuffer)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateFramebuffer()")
	}
	if i.framebuffers == nil {
		i.framebuffers = make(map[vk.RenderPass]vk.Framebuffer)
	}
	i.framebuffers[renderPass] = framebuffer
	return framebuffer, nil
}

// Extent implements hal.Image.
func (i *Image) Extent() gfx.Extent {
	return i.extent
}

// Format implements hal.Image.
func (i *Image) Format() gfx.Format {
	return i.format
}

// State implements hal.Image.
func (i *Image) State() hal.ImageState {
	return i.state
}

// SetState implements hal.Image.
func (i *Image) SetState(s hal.ImageState) {
	i.state = s
}

// Destroy implements hal.Image. The image itself is only destroyed
// when it is not owned by a swapchain.
func (i *Image) Destroy() {
	for renderPass, fb := range i.framebuffers {
		vk.DestroyFramebuffer(i.device.logicalDevice, fb, nil)
		delete(i.framebuffers, renderPass)
	}
	vk.DestroyImageView(i.device.logicalDevice, i.view, nil)
	if i.memory != nil {
		vk.DestroyImage(i.device.logicalDevice, i.image, nil)
		vk.FreeMemory(i.device.logicalDevice, i.memory, nil)
	}
}
