// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "github.com/cockroachdb/errors"

// Buffering is the number of swapchain images kept in rotation.
type Buffering int

// Buffering modes
const (
	SingleBuffering Buffering = 1
	DoubleBuffering Buffering = 2
	TripleBuffering Buffering = 3
)

// Valid reports whether b is one of the supported modes.
func (b Buffering) Valid() bool {
	return b >= SingleBuffering && b <= TripleBuffering
}

// PresentMode selects how presented images reach the display.
type PresentMode int

// Present modes, FIFO is the only one every device supports.
const (
	PresentFifo PresentMode = iota
	PresentMailbox
	PresentImmediate
)

func (p PresentMode) String() string {
	switch p {
	case PresentMailbox:
		return "mailbox"
	case PresentImmediate:
		return "immediate"
	}
	return "fifo"
}

// PresentStatus is the outcome of presenting or acquiring an image.
type PresentStatus int

// Present outcomes. Suboptimal and OutOfDate ask for a resize,
// they are not errors.
const (
	PresentOK PresentStatus = iota
	PresentSuboptimal
	PresentOutOfDate
)

// NeedsResize reports whether the swapchain has to be recreated.
func (s PresentStatus) NeedsResize() bool {
	return s != PresentOK
}

// Format is a color format of images and textures.
type Format int

// Color formats
const (
	FormatUndefined Format = iota
	FormatBGRA8Unorm
	FormatRGBA8Unorm
	FormatBGRA8Srgb
	FormatRGBA8Srgb
)

// PreferredFormat is chosen for the swapchain whenever the device offers it.
const PreferredFormat = FormatBGRA8Unorm

// BytesPerPixel returns the texel size of f.
func (f Format) BytesPerPixel() int {
	if f == FormatUndefined {
		return 0
	}
	return 4
}

// UndefinedExtent is what a platform reports when the surface
// size is decided by the swapchain instead of the window.
const UndefinedExtent = 0xFFFFFFFF

// Extent is a two dimensional size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Undefined reports whether e carries the platform sentinel.
func (e Extent) Undefined() bool {
	return e.Width == UndefinedExtent || e.Height == UndefinedExtent
}

// Empty reports whether e has no area, as with a minimized window.
func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Viewport maps normalized device coordinates to the target.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Rect is a scissor rectangle.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// FullViewport covers e with the default depth range.
func FullViewport(e Extent) Viewport {
	return Viewport{
		Width:    float32(e.Width),
		Height:   float32(e.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// FullScissor covers e.
func FullScissor(e Extent) Rect {
	return Rect{Width: e.Width, Height: e.Height}
}

// Color is a linear RGBA color.
type Color struct {
	R, G, B, A float32
}

// Slice returns c as a four element slice.
func (c Color) Slice() []float32 {
	return []float32{c.R, c.G, c.B, c.A}
}

// IndexFormat is the width of index buffer elements.
type IndexFormat int

// Index formats. The zero value is 32-bit, which every backend
// assumes unless a binding asks for 16-bit explicitly.
const (
	IndexUint32 IndexFormat = iota
	IndexUint16
)

// Size returns the element size in bytes.
func (f IndexFormat) Size() int {
	if f == IndexUint16 {
		return 2
	}
	return 4
}

func (f IndexFormat) String() string {
	if f == IndexUint16 {
		return "uint16"
	}
	return "uint32"
}

// ParseIndexFormat parses "uint16"/"16" or "uint32"/"32".
func ParseIndexFormat(s string) (IndexFormat, error) {
	switch s {
	case "uint32", "32", "":
		return IndexUint32, nil
	case "uint16", "16":
		return IndexUint16, nil
	}
	return IndexUint32, errors.Wrapf(ErrIndexFormat, "%q", s)
}

// ShaderSource is a named pair of precompiled shader blobs.
type ShaderSource struct {
	Name     string
	Vertex   []byte
	Fragment []byte
}

// Validate checks that both stages are present and that the blobs
// are a whole number of 32-bit words.
func (s *ShaderSource) Validate() error {
	if s == nil {
		return nil
	}
	if len(s.Vertex) == 0 || len(s.Fragment) == 0 {
		return errors.Wrapf(ErrInvalidShader, "%s: missing stage", s.Name)
	}
	if len(s.Vertex)%4 != 0 || len(s.Fragment)%4 != 0 {
		return errors.Wrapf(ErrInvalidShader, "%s: bytecode is not a sequence of 32-bit words", s.Name)
	}
	return nil
}

// Pipeline is a backend object describing how draws are processed.
// The immediate-mode backend has no separate pipeline object and
// returns nil wherever one would be expected.
type Pipeline interface {
	Releasable

	// Name returns the shader name the pipeline was built from.
	Name() string
}
