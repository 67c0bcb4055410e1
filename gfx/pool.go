// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// UniformAlignment is the slot alignment of pooled uniform blocks,
// the largest minUniformBufferOffsetAlignment seen on desktop devices.
const UniformAlignment = 256

// BufferFunc creates buffers, usually a Renderer or Backend method value.
type BufferFunc func(desc BufferDesc) (Buffer, error)

// UniformPool partitions one uniform buffer into fixed size slots
// addressed by an instance index. It never grows: writes past the
// capacity are reported and skipped.
type UniformPool struct {
	buffer   Buffer
	block    int
	stride   int
	capacity int
	logger   log.FieldLogger
}

// NewUniformPool creates a pool of capacity slots able to hold block bytes each.
// A capacity that is not positive is rejected, as the pool cannot be unbounded.
func NewUniformPool(create BufferFunc, block, capacity int, logger log.FieldLogger) (*UniformPool, error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrPoolUnbounded, "capacity %d", capacity)
	}
	if block <= 0 {
		return nil, errors.Newf("uniform block size %d", block)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	stride := (block + UniformAlignment - 1) / UniformAlignment * UniformAlignment

	buffer, err := create(BufferDesc{
		Size:  stride * capacity,
		Usage: UsageUniform | UsageTransferDst,
	})
	if err != nil {
		return nil, errors.Wrap(err, "uniform pool")
	}

	return &UniformPool{
		buffer:   buffer,
		block:    block,
		stride:   stride,
		capacity: capacity,
		logger:   logger,
	}, nil
}

// Buffer returns the backing buffer.
func (p *UniformPool) Buffer() Buffer {
	return p.buffer
}

// Capacity returns the number of slots.
func (p *UniformPool) Capacity() int {
	return p.capacity
}

// Stride returns the aligned distance between slots.
func (p *UniformPool) Stride() int {
	return p.stride
}

// Offset returns the byte offset of a slot.
func (p *UniformPool) Offset(instance int) int {
	return instance * p.stride
}

// Write copies data into the slot of instance. Writes to different
// slots may run concurrently, writes to the same slot may not.
func (p *UniformPool) Write(instance int, data []byte) error {
	if instance < 0 || instance >= p.capacity {
		err := errors.Wrapf(ErrPoolExhausted, "instance %d of %d", instance, p.capacity)
		p.logger.WithField("op", "UniformPool.Write").Error(err)
		return err
	}
	if len(data) > p.block {
		err := errors.Wrapf(ErrOutOfRange, "block of %d bytes in %d byte slot", len(data), p.block)
		p.logger.WithField("op", "UniformPool.Write").Error(err)
		return err
	}
	return p.buffer.Write(p.Offset(instance), data)
}

// Flush makes all slot writes visible to the device.
func (p *UniformPool) Flush() error {
	return p.buffer.Flush()
}

// Release implements Releasable.
func (p *UniformPool) Release() {
	p.buffer.Release()
}
