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

// Texture is a device-local image populated once from a staging buffer.
type Texture struct {
	id      string
	backend *Backend
	desc    gfx.TextureDesc

	image   hal.Image
	staging hal.Memory

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

	image, err := b.device.NewImage(desc)
	if err != nil {
		return nil, gfx.Fatal(b.logger, "hal.NewImage()", err)
	}
	staging, err := b.device.NewMemory(desc.Size(), gfx.UsageTransferSrc, hal.HostVisible)
	if err != nil {
		image.Destroy()
		return nil, gfx.Fatal(b.logger, "hal.NewMemory(staging)", err)
	}

	return &Texture{
		id:      gfx.NewID(),
		backend: b,
		desc:    desc,
		image:   image,
		staging: staging,
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
	if err := t.staging.Write(0, pixels); err != nil {
		return err
	}
	if err := t.backend.oneShot(func(list hal.CommandList) {
		list.Barrier(t.image, hal.StateTransferDst)
		list.CopyMemoryToImage(t.staging, t.image)
		list.Barrier(t.image, hal.StateShaderRead)
	}); err != nil {
		return err
	}
	t.populated = true
	return nil
}

// Read implements gfx.Texture.
func (t *Texture) Read() ([]byte, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	readback, err := t.backend.device.NewMemory(t.desc.Size(), gfx.UsageTransferDst, hal.HostVisible)
	if err != nil {
		return nil, gfx.Fatal(t.backend.logger, "hal.NewMemory(readback)", err)
	}
	defer readback.Destroy()

	if err := t.backend.oneShot(func(list hal.CommandList) {
		list.Barrier(t.image, hal.StateTransferSrc)
		list.CopyImageToMemory(t.image, readback)
		list.Barrier(t.image, hal.StateShaderRead)
	}); err != nil {
		return nil, err
	}

	data := make([]byte, t.desc.Size())
	if err := readback.Read(0, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Release implements gfx.Releasable.
func (t *Texture) Release() {
	if t.staging != nil {
		t.staging.Destroy()
		t.staging = nil
	}
	if t.image != nil {
		t.image.Destroy()
		t.image = nil
	}
}
