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

// CommandList is a primary command buffer with its own pool.
type CommandList struct {
	device *Device
	pool   vk.CommandPool
	buffer vk.CommandBuffer

	// err is the first misuse seen while recording, reported by Close
	err error
}

func (c *CommandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Reset implements hal.CommandList.
func (c *CommandList) Reset() error {
	c.err = nil
	return resultError(vk.ResetCommandPool(c.device.logicalDevice, c.pool, 0), "vk.ResetCommandPool()")
}

// Begin implements hal.CommandList.
func (c *CommandList) Begin() error {
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	return resultError(vk.BeginCommandBuffer(c.buffer, &cbbi), "vk.BeginCommandBuffer()")
}

// Barrier implements hal.CommandList.
func (c *CommandList) Barrier(img hal.Image, state hal.ImageState) {
	image, ok := img.(*Image)
	if !ok {
		c.fail(errors.Newf("image %T does not belong to this device", img))
		return
	}
	from, to := imageLayouts[image.state], imageLayouts[state]
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(from.access),
		DstAccessMask:       vk.AccessFlags(to.access),
		OldLayout:           from.layout,
		NewLayout:           to.layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.image,
		SubresourceRange:    colorSubresource,
	}
	vk.CmdPipelineBarrier(c.buffer,
		vk.PipelineStageFlags(from.stage), vk.PipelineStageFlags(to.stage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	image.state = state
}

// BeginRendering implements hal.CommandList.
func (c *CommandList) BeginRendering(target hal.Image, load gfx.LoadOp, clear gfx.Color) {
	image, ok := target.(*Image)
	if !ok {
		c.fail(errors.Newf("image %T does not belong to this device", target))
		return
	}
	renderPass, err := c.device.renderPass(renderPassKey{format: toVkFormat(image.format), load: load})
	if err != nil {
		c.fail(err)
		return
	}
	framebuffer, err := image.framebuffer(renderPass)
	if err != nil {
		c.fail(err)
		return
	}

	var clearValue vk.ClearValue
	clearValue.SetColor(clear.Slice())
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  image.extent.Width,
				Height: image.extent.Height,
			},
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clearValue},
	}
	vk.CmdBeginRenderPass(c.buffer, &rpbi, vk.SubpassContentsInline)
}

// EndRendering implements hal.CommandList.
func (c *CommandList) EndRendering() {
	vk.CmdEndRenderPass(c.buffer)
}

// SetViewport implements hal.CommandList.
func (c *CommandList) SetViewport(vp gfx.Viewport) {
	vk.CmdSetViewport(c.buffer, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

// SetScissor implements hal.CommandList.
func (c *CommandList) SetScissor(r gfx.Rect) {
	vk.CmdSetScissor(c.buffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}})
}

// BindPipeline implements hal.CommandList, binding the descriptor set
// of camera along with the pipeline.
func (c *CommandList) BindPipeline(p hal.Pipeline, camera hal.Memory) {
	pipeline, ok := p.(*Pipeline)
	if !ok {
		c.fail(errors.Newf("pipeline %T does not belong to this device", p))
		return
	}
	memory := c.memory(camera)
	if memory == nil {
		return
	}
	descriptorSet, err := pipeline.descriptorSet(memory)
	if err != nil {
		c.fail(err)
		return
	}
	vk.CmdBindPipeline(c.buffer, vk.PipelineBindPointGraphics, pipeline.pipeline)
	vk.CmdBindDescriptorSets(c.buffer, vk.PipelineBindPointGraphics, pipeline.layout,
		0, 1, []vk.DescriptorSet{descriptorSet}, 0, nil)
}

func (c *CommandList) memory(m hal.Memory) *Memory {
	memory, ok := m.(*Memory)
	if !ok {
		c.fail(errors.Newf("memory %T does not belong to this device", m))
		return nil
	}
	return memory
}

// BindVertexBuffer implements hal.CommandList.
func (c *CommandList) BindVertexBuffer(binding uint32, m hal.Memory) {
	if memory := c.memory(m); memory != nil {
		vk.CmdBindVertexBuffers(c.buffer, binding, 1, []vk.Buffer{memory.buffer}, []vk.DeviceSize{0})
	}
}

// BindIndexBuffer implements hal.CommandList.
func (c *CommandList) BindIndexBuffer(m hal.Memory, format gfx.IndexFormat) {
	if memory := c.memory(m); memory != nil {
		vk.CmdBindIndexBuffer(c.buffer, memory.buffer, 0, toVkIndexType(format))
	}
}

// Draw implements hal.CommandList.
func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.buffer, vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexed implements hal.CommandList.
func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.buffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// CopyMemory implements hal.CommandList.
func (c *CommandList) CopyMemory(src, dst hal.Memory, size int) {
	from, to := c.memory(src), c.memory(dst)
	if from == nil || to == nil {
		return
	}
	vk.CmdCopyBuffer(c.buffer, from.buffer, to.buffer, 1, []vk.BufferCopy{{
		Size: vk.DeviceSize(size),
	}})
}

func imageCopy(image *Image) vk.BufferImageCopy {
	return vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  image.extent.Width,
			Height: image.extent.Height,
			Depth:  1,
		},
	}
}

// CopyMemoryToImage implements hal.CommandList.
func (c *CommandList) CopyMemoryToImage(src hal.Memory, dst hal.Image) {
	from := c.memory(src)
	image, ok := dst.(*Image)
	if !ok {
		c.fail(errors.Newf("image %T does not belong to this device", dst))
		return
	}
	if from == nil {
		return
	}
	vk.CmdCopyBufferToImage(c.buffer, from.buffer, image.image,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{imageCopy(image)})
}

// CopyImageToMemory implements hal.CommandList.
func (c *CommandList) CopyImageToMemory(src hal.Image, dst hal.Memory) {
	image, ok := src.(*Image)
	if !ok {
		c.fail(errors.Newf("image %T does not belong to this device", src))
		return
	}
	to := c.memory(dst)
	if to == nil {
		return
	}
	vk.CmdCopyImageToBuffer(c.buffer, image.image,
		vk.ImageLayoutTransferSrcOptimal, to.buffer, 1, []vk.BufferImageCopy{imageCopy(image)})
}

// Close implements hal.CommandList.
func (c *CommandList) Close() error {
	if err := resultError(vk.EndCommandBuffer(c.buffer), "vk.EndCommandBuffer()"); err != nil {
		return err
	}
	return c.err
}

// Destroy implements hal.CommandList.
func (c *CommandList) Destroy() {
	vk.FreeCommandBuffers(c.device.logicalDevice, c.pool, 1, []vk.CommandBuffer{c.buffer})
	vk.DestroyCommandPool(c.device.logicalDevice, c.pool, nil)
}
