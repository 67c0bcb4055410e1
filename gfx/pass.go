// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// Schedule says how often a render pass records its commands.
type Schedule int

// Schedules. DrawOnce passes are always ordered before EveryFrame passes.
const (
	EveryFrame Schedule = iota
	DrawOnce
)

func (s Schedule) String() string {
	if s == DrawOnce {
		return "draw-once"
	}
	return "every-frame"
}

// Layer places a pass behind or in front of the others.
type Layer int

// Layers
const (
	Background Layer = iota
	Foreground
)

func (l Layer) String() string {
	if l == Foreground {
		return "foreground"
	}
	return "background"
}

// LoadOp says what happens to the target contents when a pass starts.
type LoadOp int

// Load operations. LoadDefault clears background passes and keeps
// the contents under foreground passes so they composite.
const (
	LoadDefault LoadOp = iota
	LoadClear
	LoadKeep
)

// DrawFunc injects client draw calls into a pass recording.
type DrawFunc func(rec CommandRecorder, frame int) error

// PassSpec describes a render pass to build.
type PassSpec struct {
	Name       string
	Schedule   Schedule
	Layer      Layer
	Load       LoadOp
	ClearColor Color

	// DefaultClear replaces ClearColor with the renderer's configured
	// colour when the pass is created through it.
	DefaultClear bool

	// Shader is optional, passes without one only clear.
	Shader *ShaderSource

	// Draw is called between the clear and the end of the pass.
	Draw DrawFunc
}

// LoadOp resolves LoadDefault against the layer.
func (s PassSpec) LoadOp() LoadOp {
	if s.Load != LoadDefault {
		return s.Load
	}
	if s.Layer == Foreground {
		return LoadKeep
	}
	return LoadClear
}

// RenderPass is one logical drawing phase with its own recorders,
// one per swapchain image.
type RenderPass interface {
	Resource

	// Name returns the name given in the spec.
	Name() string

	// Spec returns the spec the pass was built with.
	Spec() PassSpec

	// Build allocates recorders, pipeline and camera buffer.
	Build(spec PassSpec) error

	// Resize updates the cached resolution for viewport and scissor.
	Resize(width, height uint32)

	// Record records and submits the pass for the given buffer index.
	Record(frame int) error

	// Recorder returns the recorder of a buffer index.
	Recorder(frame int) CommandRecorder

	// Pipeline returns the pipeline, nil for clear-only passes and
	// on backends without pipeline objects.
	Pipeline() Pipeline

	// Camera returns the camera block read by recordings of a buffer
	// index. Writing it after Prepare returned frame is safe, the
	// device is done with the previous use of that index.
	Camera(frame int) Buffer

	// Parent returns the pass ordered immediately before this one.
	Parent() RenderPass

	// SetParent is called by the pass list whenever the order changes.
	SetParent(p RenderPass)

	// Cleanup destroys everything Build created.
	Cleanup()
}
