// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package explicit

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
)

// Buffer is device memory plus, for device-local buffers, a host
// visible staging counterpart that Flush copies from.
type Buffer struct {
	id      string
	backend *Backend
	desc    gfx.BufferDesc

	memory  hal.Memory
	staging hal.Memory

	mutex     sync.Mutex
	populated bool
}

// NewBuffer implements gfx.Backend.
func (b *Backend) NewBuffer(desc gfx.BufferDesc) (gfx.Buffer, error) {
	if desc.Size <= 0 {
		return nil, errors.Newf("buffer size %d", desc.Size)
	}

	buf := &Buffer{
		id:      gfx.NewID(),
		backend: b,
		desc:    desc,
	}

	if !desc.DeviceLocal {
		memory, err := b.device.NewMemory(desc.Size, desc.Usage, hal.HostVisible)
		if err != nil {
			return nil, gfx.Fatal(b.logger, "hal.NewMemory(host)", err)
		}
		buf.memory = memory
		return buf, nil
	}

	memory, err := b.device.NewMemory(desc.Size, desc.Usage|gfx.UsageTransferDst|gfx.UsageTransferSrc, hal.DeviceLocal)
	if err != nil {
		return nil, gfx.Fatal(b.logger, "hal.NewMemory(device)", err)
	}
	staging, err := b.device.NewMemory(desc.Size, gfx.UsageTransferSrc, hal.HostVisible)
	if err != nil {
		memory.Destroy()
		return nil, gfx.Fatal(b.logger, "hal.NewMemory(staging)", err)
	}
	buf.memory = memory
	buf.staging = staging
	return buf, nil
}

// ID implements gfx.Resource.
func (b *Buffer) ID() string {
	return b.id
}

// Desc implements gfx.Buffer.
func (b *Buffer) Desc() gfx.BufferDesc {
	return b.desc
}

// Write implements gfx.Buffer.
func (b *Buffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > b.desc.Size {
		return errors.Wrapf(gfx.ErrOutOfRange, "%d bytes at %d in buffer of %d", len(data), offset, b.desc.Size)
	}
	if b.staging == nil {
		return b.memory.Write(offset, data)
	}

	b.mutex.Lock()
	populated := b.populated
	b.mutex.Unlock()
	if populated && b.desc.Immutable() {
		return errors.Wrapf(gfx.ErrImmutable, "buffer %s", b.id)
	}
	return b.staging.Write(offset, data)
}

// Flush implements gfx.Buffer. Device-local buffers that are not
// dynamic accept exactly one flush.
func (b *Buffer) Flush() error {
	if b.staging == nil {
		return nil
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.populated && b.desc.Immutable() {
		return errors.Wrapf(gfx.ErrImmutable, "buffer %s", b.id)
	}
	if err := b.backend.oneShot(func(list hal.CommandList) {
		list.CopyMemory(b.staging, b.memory, b.desc.Size)
	}); err != nil {
		return err
	}
	b.populated = true
	return nil
}

// Read implements gfx.Buffer, going through a transient readback
// buffer for device-local memory.
func (b *Buffer) Read() ([]byte, error) {
	data := make([]byte, b.desc.Size)
	if b.staging == nil {
		if err := b.memory.Read(0, data); err != nil {
			return nil, err
		}
		return data, nil
	}

	readback, err := b.backend.device.NewMemory(b.desc.Size, gfx.UsageTransferDst, hal.HostVisible)
	if err != nil {
		return nil, gfx.Fatal(b.backend.logger, "hal.NewMemory(readback)", err)
	}
	defer readback.Destroy()

	if err := b.backend.oneShot(func(list hal.CommandList) {
		list.CopyMemory(b.memory, readback, b.desc.Size)
	}); err != nil {
		return nil, err
	}
	if err := readback.Read(0, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Release implements gfx.Releasable.
func (b *Buffer) Release() {
	if b.staging != nil {
		b.staging.Destroy()
		b.staging = nil
	}
	if b.memory != nil {
		b.memory.Destroy()
		b.memory = nil
	}
}
