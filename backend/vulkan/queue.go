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

// Queue is the one graphics and present queue of a Device.
type Queue struct {
	device *Device
	queue  vk.Queue

	// acquired is signaled by the last acquire and waited on by the
	// first submission after it.
	acquired vk.Semaphore

	// renderFinished holds one semaphore per swapchain image, signaled
	// before the image is presented.
	renderFinished []vk.Semaphore
}

// Submit implements hal.Queue.
func (q *Queue) Submit(list hal.CommandList) error {
	cl, ok := list.(*CommandList)
	if !ok {
		return errors.Newf("command list %T does not belong to this device", list)
	}

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cl.buffer},
	}
	if q.acquired != nil {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{q.acquired}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
		q.acquired = nil
	}
	return resultError(vk.QueueSubmit(q.queue, 1, []vk.SubmitInfo{submit}, nil), "vk.QueueSubmit()")
}

// Signal implements hal.Queue. Vulkan fences are binary, the value is
// remembered and reported as completed once the fence is signaled.
func (q *Queue) Signal(fence hal.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return errors.Newf("fence %T does not belong to this device", fence)
	}
	if value <= f.pending {
		return errors.Newf("fence value %d is not above %d", value, f.pending)
	}
	if err := resultError(vk.QueueSubmit(q.queue, 0, nil, f.fence), "vk.QueueSubmit(signal)"); err != nil {
		return err
	}
	f.pending = value
	return nil
}

// Present implements hal.Queue. An empty submission orders the render
// finished semaphore after everything queued for the frame.
func (q *Queue) Present(swapchain hal.Swapchain, index int) (gfx.PresentStatus, error) {
	sc, ok := swapchain.(*Swapchain)
	if !ok {
		return gfx.PresentOK, errors.Newf("swapchain %T does not belong to this device", swapchain)
	}
	if err := q.reserveSemaphores(len(sc.images)); err != nil {
		return gfx.PresentOK, err
	}
	finished := q.renderFinished[index]

	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{finished},
	}
	if q.acquired != nil {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{q.acquired}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
		q.acquired = nil
	}
	if err := resultError(vk.QueueSubmit(q.queue, 1, []vk.SubmitInfo{submit}, nil), "vk.QueueSubmit(present)"); err != nil {
		return gfx.PresentOK, err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{finished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{uint32(index)},
	}
	switch res := vk.QueuePresent(q.queue, &presentInfo); res {
	case vk.Success:
		return gfx.PresentOK, nil
	case vk.Suboptimal:
		return gfx.PresentSuboptimal, nil
	case vk.ErrorOutOfDate:
		return gfx.PresentOutOfDate, nil
	default:
		return gfx.PresentOK, resultError(res, "vk.QueuePresent()")
	}
}

// WaitIdle implements hal.Queue.
func (q *Queue) WaitIdle() error {
	return resultError(vk.QueueWaitIdle(q.queue), "vk.QueueWaitIdle()")
}

func (q *Queue) reserveSemaphores(count int) error {
	for len(q.renderFinished) < count {
		semaphore, err := q.device.newSemaphore()
		if err != nil {
			return err
		}
		q.renderFinished = append(q.renderFinished, semaphore)
	}
	return nil
}

func (q *Queue) destroy() {
	for _, semaphore := range q.renderFinished {
		vk.DestroySemaphore(q.device.logicalDevice, semaphore, nil)
	}
	q.renderFinished = nil
}

func (d *Device) newSemaphore() (vk.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(d.logicalDevice, &sci, nil, &semaphore)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateSemaphore()")
	}
	return semaphore, nil
}

// Fence emulates a monotonically increasing fence value on a binary
// Vulkan fence: the value of the last signal is pending until the fence
// is observed signaled.
type Fence struct {
	device *Device
	fence  vk.Fence

	pending   uint64
	completed uint64
}

// Completed implements hal.Fence.
func (f *Fence) Completed() uint64 {
	if f.pending > f.completed && vk.GetFenceStatus(f.device.logicalDevice, f.fence) == vk.Success {
		f.completed = f.pending
	}
	return f.completed
}

// Wait implements hal.Fence.
func (f *Fence) Wait(value uint64) error {
	if f.Completed() >= value {
		return nil
	}
	if value > f.pending {
		return errors.Newf("waiting for fence value %d that was never signaled, last is %d", value, f.pending)
	}
	if err := resultError(vk.WaitForFences(f.device.logicalDevice, 1, []vk.Fence{f.fence}, vk.True, math.MaxUint64), "vk.WaitForFences()"); err != nil {
		return err
	}
	f.completed = f.pending
	return nil
}

// Reset implements hal.Fence. A fence still pending is not reset, as
// that would lose its value.
func (f *Fence) Reset() error {
	if f.Completed() < f.pending {
		return errors.New("reset of a fence that is still pending")
	}
	return resultError(vk.ResetFences(f.device.logicalDevice, 1, []vk.Fence{f.fence}), "vk.ResetFences()")
}

// Destroy implements hal.Fence.
func (f *Fence) Destroy() {
	vk.DestroyFence(f.device.logicalDevice, f.fence, nil)
}
