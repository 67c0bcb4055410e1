// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package opengl

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
)

// Buffer is a GL buffer with a CPU shadow copy. Writes only touch the
// shadow, so they are safe from any goroutine; the shadow is uploaded
// on the context thread when the buffer is flushed or bound.
type Buffer struct {
	id      string
	backend *Backend
	desc    gfx.BufferDesc
	name    uint32

	shadow []byte
	dirty  int32

	mutex     sync.Mutex
	populated bool
}

// NewBuffer implements gfx.Backend.
func (b *Backend) NewBuffer(desc gfx.BufferDesc) (gfx.Buffer, error) {
	if desc.Size <= 0 {
		return nil, errors.Newf("buffer size %d", desc.Size)
	}
	name, err := b.ctx.NewBuffer(desc.Size)
	if err != nil {
		return nil, gfx.Fatal(b.logger, "Context.NewBuffer()", err)
	}
	return &Buffer{
		id:      gfx.NewID(),
		backend: b,
		desc:    desc,
		name:    name,
		shadow:  make([]byte, desc.Size),
	}, nil
}

// ID implements gfx.Resource.
func (b *Buffer) ID() string {
	return b.id
}

// Desc implements gfx.Buffer.
func (b *Buffer) Desc() gfx.BufferDesc {
	return b.desc
}

// Name returns the GL buffer name.
func (b *Buffer) Name() uint32 {
	return b.name
}

// Write implements gfx.Buffer.
func (b *Buffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > b.desc.Size {
		return errors.Wrapf(gfx.ErrOutOfRange, "%d bytes at %d in buffer of %d", len(data), offset, b.desc.Size)
	}
	if b.desc.Immutable() {
		b.mutex.Lock()
		populated := b.populated
		b.mutex.Unlock()
		if populated {
			return errors.Wrapf(gfx.ErrImmutable, "buffer %s", b.id)
		}
	}
	copy(b.shadow[offset:], data)
	atomic.StoreInt32(&b.dirty, 1)
	return nil
}

// Flush implements gfx.Buffer. Device-local buffers that are not
// dynamic accept exactly one flush.
func (b *Buffer) Flush() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.populated && b.desc.Immutable() {
		return errors.Wrapf(gfx.ErrImmutable, "buffer %s", b.id)
	}
	atomic.StoreInt32(&b.dirty, 1)
	b.upload()
	b.populated = true
	return nil
}

// upload sends the shadow to the context if it changed.
func (b *Buffer) upload() {
	if atomic.CompareAndSwapInt32(&b.dirty, 1, 0) {
		b.backend.ctx.WriteBuffer(b.name, 0, b.shadow)
	}
}

// bind uploads pending writes of host-visible buffers, device-local
// ones only change on Flush.
func (b *Buffer) bind() uint32 {
	if !b.desc.DeviceLocal {
		b.upload()
	}
	return b.name
}

// Read implements gfx.Buffer. Host-visible buffers return the shadow,
// device-local ones what the context holds.
func (b *Buffer) Read() ([]byte, error) {
	data := make([]byte, b.desc.Size)
	if !b.desc.DeviceLocal {
		copy(data, b.shadow)
		return data, nil
	}
	b.backend.ctx.ReadBuffer(b.name, 0, data)
	if err := b.backend.ctx.Err(); err != nil {
		return nil, gfx.Fatal(b.backend.logger, "Context.ReadBuffer()", err)
	}
	return data, nil
}

// Release implements gfx.Releasable.
func (b *Buffer) Release() {
	if b.name != 0 {
		b.backend.ctx.DeleteBuffer(b.name)
		b.name = 0
	}
}

// Texture is a GL texture populated once.
type Texture struct {
	id      string
	backend *Backend
	desc    gfx.TextureDesc
	name    uint32

	mutex     sync.Mutex
	populated bool
}

// NewTexture implements gfx.Backend.
func (b *Backend) NewTexture(desc gfx.TextureDesc) (gfx.Texture, error) {
	if desc.Format == gfx.FormatUndefined {
		desc.Format = gfx.FormatRGBA8Unorm
	}
	if desc.Size() == 0 {
		return nil, errors.Newf("texture size %dx%d", desc.Width, desc.Height)
	}
	name, err := b.ctx.NewTexture(desc)
	if err != nil {
		return nil, gfx.Fatal(b.logger, "Context.NewTexture()", err)
	}
	return &Texture{
		id:      gfx.NewID(),
		backend: b,
		desc:    desc,
		name:    name,
	}, nil
}

// ID implements gfx.Resource.
func (t *Texture) ID() string {
	return t.id
}

// Desc implements gfx.Texture.
func (t *Texture) Desc() gfx.TextureDesc {
	return t.desc
}

// Upload implements gfx.Texture.
func (t *Texture) Upload(pixels []byte) error {
	if len(pixels) != t.desc.Size() {
		return errors.Wrapf(gfx.ErrOutOfRange, "%d bytes for %dx%d texture", len(pixels), t.desc.Width, t.desc.Height)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.populated {
		return errors.Wrapf(gfx.ErrImmutable, "texture %s", t.id)
	}
	t.backend.ctx.UploadTexture(t.name, t.desc, pixels)
	if err := t.backend.ctx.Err(); err != nil {
		return gfx.Fatal(t.backend.logger, "Context.UploadTexture()", err)
	}
	t.populated = true
	return nil
}

// Read implements gfx.Texture.
func (t *Texture) Read() ([]byte, error) {
	data := make([]byte, t.desc.Size())
	t.backend.ctx.ReadTexture(t.name, t.desc, data)
	if err := t.backend.ctx.Err(); err != nil {
		return nil, gfx.Fatal(t.backend.logger, "Context.ReadTexture()", err)
	}
	return data, nil
}

// Release implements gfx.Releasable.
func (t *Texture) Release() {
	if t.name != 0 {
		t.backend.ctx.DeleteTexture(t.name)
		t.name = 0
	}
}
