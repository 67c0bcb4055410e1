// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package headless

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
)

// Fence is a hal.Fence raised by the queue goroutine.
type Fence struct {
	device *Device

	mutex sync.Mutex
	cond  *sync.Cond
	value uint64
}

// Completed implements hal.Fence.
func (f *Fence) Completed() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.value
}

// Wait implements hal.Fence.
func (f *Fence) Wait(value uint64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for f.value < value {
		if f.device.Lost() {
			return errors.Wrapf(gfx.ErrDeviceLost, "waiting for %d at %d", value, f.value)
		}
		f.cond.Wait()
	}
	return nil
}

// Reset implements hal.Fence. Values only ever grow, so there is no
// signaled condition to clear.
func (f *Fence) Reset() error {
	if f.device.Lost() {
		return gfx.ErrDeviceLost
	}
	return nil
}

// Destroy implements hal.Fence.
func (f *Fence) Destroy() {
	f.device.fenceMutex.Lock()
	delete(f.device.fences, f)
	f.device.fenceMutex.Unlock()
	f.device.destroy(KindFence)
}

func (f *Fence) signal(value uint64) {
	f.mutex.Lock()
	if value > f.value {
		f.value = value
	}
	f.mutex.Unlock()
	f.cond.Broadcast()
}

func (f *Fence) wake() {
	f.mutex.Lock()
	f.mutex.Unlock()
	f.cond.Broadcast()
}

// Memory is a hal.Memory backed by a byte slice.
type Memory struct {
	device *Device
	usage  gfx.BufferUsage
	kind   hal.MemoryKind

	mutex sync.RWMutex
	data  []byte
}

// Size implements hal.Memory.
func (m *Memory) Size() int {
	return len(m.data)
}

// Kind implements hal.Memory.
func (m *Memory) Kind() hal.MemoryKind {
	return m.kind
}

// Usage returns the usage the memory was created with.
func (m *Memory) Usage() gfx.BufferUsage {
	return m.usage
}

// Write implements hal.Memory. Device-local memory cannot be mapped.
func (m *Memory) Write(offset int, data []byte) error {
	if m.kind != hal.HostVisible {
		return errors.New("device-local memory is not host visible")
	}
	if offset < 0 || offset+len(data) > len(m.data) {
		return errors.Wrapf(gfx.ErrOutOfRange, "%d bytes at %d in memory of %d", len(data), offset, len(m.data))
	}
	m.mutex.Lock()
	copy(m.data[offset:], data)
	m.mutex.Unlock()
	return nil
}

// Read implements hal.Memory.
func (m *Memory) Read(offset int, p []byte) error {
	if m.kind != hal.HostVisible {
		return errors.New("device-local memory is not host visible")
	}
	if offset < 0 || offset+len(p) > len(m.data) {
		return errors.Wrapf(gfx.ErrOutOfRange, "%d bytes at %d in memory of %d", len(p), offset, len(m.data))
	}
	m.mutex.RLock()
	copy(p, m.data[offset:])
	m.mutex.RUnlock()
	return nil
}

// Destroy implements hal.Memory.
func (m *Memory) Destroy() {
	m.device.destroy(KindMemory)
}

func copyMemory(src, dst *Memory, size int) {
	src.mutex.RLock()
	defer src.mutex.RUnlock()
	dst.mutex.Lock()
	defer dst.mutex.Unlock()
	copy(dst.data[:size], src.data[:size])
}

// Image is a hal.Image backed by tightly packed pixels.
type Image struct {
	device *Device
	extent gfx.Extent
	format gfx.Format

	// state as left by recorded barriers
	state hal.ImageState

	mutex  sync.RWMutex
	pixels []byte
}

func newImage(d *Device, extent gfx.Extent, format gfx.Format) *Image {
	return &Image{
		device: d,
		extent: extent,
		format: format,
		pixels: make([]byte, int(extent.Width)*int(extent.Height)*format.BytesPerPixel()),
	}
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

// Pixels returns a copy of the image contents as executed so far.
func (i *Image) Pixels() []byte {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return append([]byte(nil), i.pixels...)
}

// Destroy implements hal.Image.
func (i *Image) Destroy() {
	i.device.destroy(KindImage)
}

func (i *Image) clear(c gfx.Color) {
	texel := Texel(i.format, c)
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for off := 0; off+len(texel) <= len(i.pixels); off += len(texel) {
		copy(i.pixels[off:], texel)
	}
}

// Texel encodes c in the byte order of format.
func Texel(format gfx.Format, c gfx.Color) []byte {
	r, g, b, a := unorm(c.R), unorm(c.G), unorm(c.B), unorm(c.A)
	switch format {
	case gfx.FormatBGRA8Unorm, gfx.FormatBGRA8Srgb:
		return []byte{b, g, r, a}
	}
	return []byte{r, g, b, a}
}

func unorm(f float32) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	}
	return uint8(f*255 + 0.5)
}

// Pipeline is a named hal.Pipeline, draws through it are only counted.
type Pipeline struct {
	device *Device
	name   string
}

// Name implements hal.Pipeline.
func (p *Pipeline) Name() string {
	return p.name
}

// Destroy implements hal.Pipeline.
func (p *Pipeline) Destroy() {
	p.device.destroy(KindPipeline)
}
