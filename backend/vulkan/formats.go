// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	vk "github.com/vulkan-go/vulkan"
)

func toVkFormat(f gfx.Format) vk.Format {
	switch f {
	case gfx.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gfx.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gfx.FormatBGRA8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case gfx.FormatRGBA8Srgb:
		return vk.FormatR8g8b8a8Srgb
	}
	return vk.FormatUndefined
}

func fromVkFormat(f vk.Format) gfx.Format {
	switch f {
	case vk.FormatB8g8r8a8Unorm:
		return gfx.FormatBGRA8Unorm
	case vk.FormatR8g8b8a8Unorm:
		return gfx.FormatRGBA8Unorm
	case vk.FormatB8g8r8a8Srgb:
		return gfx.FormatBGRA8Srgb
	case vk.FormatR8g8b8a8Srgb:
		return gfx.FormatRGBA8Srgb
	}
	return gfx.FormatUndefined
}

func toVkPresentMode(m gfx.PresentMode) vk.PresentMode {
	switch m {
	case gfx.PresentMailbox:
		return vk.PresentModeMailbox
	case gfx.PresentImmediate:
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}

func fromVkPresentMode(m vk.PresentMode) (gfx.PresentMode, bool) {
	switch m {
	case vk.PresentModeFifo:
		return gfx.PresentFifo, true
	case vk.PresentModeMailbox:
		return gfx.PresentMailbox, true
	case vk.PresentModeImmediate:
		return gfx.PresentImmediate, true
	}
	return gfx.PresentFifo, false
}

func toVkBufferUsage(u gfx.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u.Has(gfx.UsageVertex) {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u.Has(gfx.UsageIndex) {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u.Has(gfx.UsageUniform) {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u.Has(gfx.UsageTransferSrc) {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u.Has(gfx.UsageTransferDst) {
		flags |= vk.BufferUsageTransferDstBit
	}
	if u.Has(gfx.UsageStorage) {
		flags |= vk.BufferUsageStorageBufferBit
	}
	return vk.BufferUsageFlags(flags)
}

func toVkIndexType(f gfx.IndexFormat) vk.IndexType {
	if f == gfx.IndexUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

// imageLayout describes how an image state maps onto a layout, the
// access it implies and the pipeline stage it is used in.
type imageLayout struct {
	layout vk.ImageLayout
	access vk.AccessFlagBits
	stage  vk.PipelineStageFlagBits
}

var imageLayouts = map[hal.ImageState]imageLayout{
	hal.StateUndefined:    {vk.ImageLayoutUndefined, 0, vk.PipelineStageTopOfPipeBit},
	hal.StatePresent:      {vk.ImageLayoutPresentSrc, vk.AccessMemoryReadBit, vk.PipelineStageBottomOfPipeBit},
	hal.StateRenderTarget: {vk.ImageLayoutColorAttachmentOptimal, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.PipelineStageColorAttachmentOutputBit},
	hal.StateTransferDst:  {vk.ImageLayoutTransferDstOptimal, vk.AccessTransferWriteBit, vk.PipelineStageTransferBit},
	hal.StateTransferSrc:  {vk.ImageLayoutTransferSrcOptimal, vk.AccessTransferReadBit, vk.PipelineStageTransferBit},
	hal.StateShaderRead:   {vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit},
}
