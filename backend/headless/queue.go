// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package headless

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
)

// Queue executes submitted work in order on its own goroutine.
type Queue struct {
	device *Device
	ops    chan func()
	done   chan struct{}

	closeOnce sync.Once

	mutex      sync.Mutex
	pending    int
	maxPending int
}

func newQueue(d *Device) *Queue {
	q := &Queue{
		device: d,
		ops:    make(chan func(), 256),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for op := range q.ops {
		op()
	}
}

func (q *Queue) close() {
	q.closeOnce.Do(func() {
		close(q.ops)
		<-q.done
	})
}

// Submit implements hal.Queue.
func (q *Queue) Submit(list hal.CommandList) error {
	if q.device.Lost() {
		return gfx.ErrDeviceLost
	}
	cl, ok := list.(*CommandList)
	if !ok {
		return errors.Newf("command list %T does not belong to this device", list)
	}
	ops, err := cl.submit()
	if err != nil {
		return err
	}

	latency := q.device.config.Latency
	q.ops <- func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		for _, op := range ops {
			op()
		}
		cl.retire()
		atomic.AddUint64(&q.device.submissions, 1)
	}
	return nil
}

// Signal implements hal.Queue.
func (q *Queue) Signal(fence hal.Fence, value uint64) error {
	if q.device.Lost() {
		return gfx.ErrDeviceLost
	}
	f, ok := fence.(*Fence)
	if !ok {
		return errors.Newf("fence %T does not belong to this device", fence)
	}

	q.mutex.Lock()
	q.pending++
	if q.pending > q.maxPending {
		q.maxPending = q.pending
	}
	q.mutex.Unlock()

	q.ops <- func() {
		q.mutex.Lock()
		q.pending--
		q.mutex.Unlock()
		f.signal(value)
	}
	return nil
}

// Present implements hal.Queue.
func (q *Queue) Present(swapchain hal.Swapchain, index int) (gfx.PresentStatus, error) {
	if q.device.Lost() {
		return gfx.PresentOK, gfx.ErrDeviceLost
	}
	sc, ok := swapchain.(*Swapchain)
	if !ok {
		return gfx.PresentOK, errors.Newf("swapchain %T does not belong to this device", swapchain)
	}
	if index < 0 || index >= len(sc.images) {
		return gfx.PresentOK, errors.Newf("present index %d of %d", index, len(sc.images))
	}

	q.ops <- func() {
		q.device.presentMutex.Lock()
		q.device.presented = append(q.device.presented, index)
		q.device.presentMutex.Unlock()
	}
	return sc.status(), nil
}

// WaitIdle implements hal.Queue.
func (q *Queue) WaitIdle() error {
	if q.device.Lost() {
		return gfx.ErrDeviceLost
	}
	idle := make(chan struct{})
	q.ops <- func() { close(idle) }
	<-idle
	return nil
}

func (q *Queue) maxPendingSignals() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.maxPending
}
