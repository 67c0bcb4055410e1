// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "strings"

// BufferUsage is a set of ways a buffer is used by the device.
type BufferUsage uint32

// Buffer usage flags
const (
	UsageVertex BufferUsage = 1 << iota
	UsageIndex
	UsageUniform
	UsageTransferSrc
	UsageTransferDst
	UsageStorage
)

// Has reports whether all flags in f are set.
func (u BufferUsage) Has(f BufferUsage) bool {
	return u&f == f
}

func (u BufferUsage) String() string {
	names := []string{"vertex", "index", "uniform", "transfer-src", "transfer-dst", "storage"}
	var set []string
	for i, name := range names {
		if u&(1<<uint(i)) != 0 {
			set = append(set, name)
		}
	}
	return strings.Join(set, "|")
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Size  int
	Usage BufferUsage

	// DeviceLocal buffers live in device-only memory and are filled
	// through a staging copy on Flush.
	DeviceLocal bool

	// Dynamic device-local buffers may be flushed any number of
	// times, all others exactly once.
	Dynamic bool
}

// Immutable reports whether the buffer may be populated only once.
func (d BufferDesc) Immutable() bool {
	return d.DeviceLocal && !d.Dynamic
}

// Buffer is device memory with an optional CPU-visible staging side.
type Buffer interface {
	Resource

	// Desc returns the description the buffer was created with.
	Desc() BufferDesc

	// Write copies data into the CPU-visible side at offset.
	// Concurrent writes to disjoint ranges are safe.
	Write(offset int, data []byte) error

	// Flush makes written bytes visible to the device, performing
	// the staging copy for device-local buffers. Blocks until done.
	Flush() error

	// Read returns the device-visible contents.
	Read() ([]byte, error)
}

// TextureDesc describes a two dimensional texture.
type TextureDesc struct {
	Width  uint32
	Height uint32
	Format Format
}

// Size returns the byte size of the full texture.
func (d TextureDesc) Size() int {
	return int(d.Width) * int(d.Height) * d.Format.BytesPerPixel()
}

// Texture is a device-local image populated once through staging.
type Texture interface {
	Resource

	// Desc returns the description the texture was created with.
	Desc() TextureDesc

	// Upload copies tightly packed pixels into the texture.
	Upload(pixels []byte) error

	// Read returns the texture contents.
	Read() ([]byte, error)
}
