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

// FrameSynchronizer owns one fence and one monotonically increasing
// value per swapchain image. A value is signaled after the last
// submission of a frame, and the image is not written again until the
// fence has reached it.
type FrameSynchronizer struct {
	device hal.Device
	logger log.FieldLogger

	fences []hal.Fence
	values []uint64
}

// NewFrameSynchronizer creates fences for count images. Fence creation
// failure is fatal.
func NewFrameSynchronizer(device hal.Device, count int, logger log.FieldLogger) (*FrameSynchronizer, error) {
	s := &FrameSynchronizer{
		device: device,
		logger: logger,
	}
	if err := s.Resize(count); err != nil {
		return nil, err
	}
	return s, nil
}

// Count returns the number of images synchronized.
func (s *FrameSynchronizer) Count() int {
	return len(s.fences)
}

// Resize adjusts the number of fences to count. Existing fences keep
// their values, so it is only safe once the queue is idle.
func (s *FrameSynchronizer) Resize(count int) error {
	for len(s.fences) > count {
		last := len(s.fences) - 1
		s.fences[last].Destroy()
		s.fences = s.fences[:last]
		s.values = s.values[:last]
	}
	for len(s.fences) < count {
		fence, err := s.device.NewFence()
		if err != nil {
			return gfx.Fatal(s.logger, "hal.NewFence()", err)
		}
		s.fences = append(s.fences, fence)
		s.values = append(s.values, 0)
	}
	return nil
}

// Wait blocks until all work submitted against frame has completed.
// There is no timeout: a wait that never returns means a submission
// was never signaled, and a lost device is reported as fatal.
func (s *FrameSynchronizer) Wait(frame int) error {
	fence, value := s.fences[frame], s.values[frame]
	if fence.Completed() >= value {
		return nil
	}
	if err := fence.Wait(value); err != nil {
		if !errors.Is(err, gfx.ErrDeviceLost) {
			err = errors.Mark(err, gfx.ErrDeviceLost)
		}
		return gfx.Fatal(s.logger.WithField("frame", frame), "Fence.Wait()", err)
	}
	return nil
}

// Reset clears the signaled condition of the frame's fence so the
// next Signal can arm it.
func (s *FrameSynchronizer) Reset(frame int) error {
	if err := s.fences[frame].Reset(); err != nil {
		return gfx.Fatal(s.logger.WithField("frame", frame), "Fence.Reset()", err)
	}
	return nil
}

// Signal enqueues raising the frame's fence to its next value on q.
func (s *FrameSynchronizer) Signal(frame int, q hal.Queue) error {
	value := s.values[frame] + 1
	if err := q.Signal(s.fences[frame], value); err != nil {
		return gfx.Fatal(s.logger.WithField("frame", frame), "Queue.Signal()", err)
	}
	s.values[frame] = value
	return nil
}

// Value returns the last value signaled for frame.
func (s *FrameSynchronizer) Value(frame int) uint64 {
	return s.values[frame]
}

// Next returns the value the next Signal of frame will use.
func (s *FrameSynchronizer) Next(frame int) uint64 {
	return s.values[frame] + 1
}

// Completed returns the value the device reached for frame.
func (s *FrameSynchronizer) Completed(frame int) uint64 {
	return s.fences[frame].Completed()
}

// InFlight returns how many frames have signaled values the device
// has not reached yet.
func (s *FrameSynchronizer) InFlight() int {
	var n int
	for idx, fence := range s.fences {
		if fence.Completed() < s.values[idx] {
			n++
		}
	}
	return n
}

// Destroy destroys all fences.
func (s *FrameSynchronizer) Destroy() {
	for _, fence := range s.fences {
		fence.Destroy()
	}
	s.fences = nil
	s.values = nil
}
