package model

import (
	"encoding/binary"
	"math"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a model vertex, laid out the way the default
// pipelines expect it at binding zero.
type Vertex struct {
	Pos   glm.Vec3
	Color glm.Vec4
}

// VertexSize is the byte stride of Vertex.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// VertexBytes packs vertices tightly for a vertex buffer.
func VertexBytes(vertices []Vertex) []byte {
	out := make([]byte, 0, len(vertices)*VertexSize)
	for _, v := range vertices {
		out = appendFloats(out, v.Pos[:]...)
		out = appendFloats(out, v.Color[:]...)
	}
	return out
}

// IndexBytes16 packs indices as 16-bit little-endian values.
func IndexBytes16(indices []uint16) []byte {
	out := make([]byte, 2*len(indices))
	for i, idx := range indices {
		binary.LittleEndian.PutUint16(out[2*i:], idx)
	}
	return out
}

// IndexBytes32 packs indices as 32-bit little-endian values.
func IndexBytes32(indices []uint32) []byte {
	out := make([]byte, 4*len(indices))
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[4*i:], idx)
	}
	return out
}

// CameraSize is the byte size of the camera uniform block: six
// column-major 4x4 float matrices.
const CameraSize = 6 * 16 * 4

// Camera is the uniform block every render pass binds at binding zero.
type Camera struct {
	Projection        glm.Mat4
	View              glm.Mat4
	Combined          glm.Mat4
	InverseProjection glm.Mat4
	InverseView       glm.Mat4
	InverseCombined   glm.Mat4
}

// NewCamera derives the combined and inverse matrices.
func NewCamera(projection, view glm.Mat4) Camera {
	combined := projection.Mul4(view)
	return Camera{
		Projection:        projection,
		View:              view,
		Combined:          combined,
		InverseProjection: projection.Inv(),
		InverseView:       view.Inv(),
		InverseCombined:   combined.Inv(),
	}
}

// IdentityCamera is the camera a pass starts with.
func IdentityCamera() Camera {
	return NewCamera(glm.Ident4(), glm.Ident4())
}

// PerspectiveCamera looks from eye at center with a vertical field of
// view in degrees.
func PerspectiveCamera(fovy, aspect, near, far float32, eye, center glm.Vec3) Camera {
	return NewCamera(
		glm.Perspective(glm.DegToRad(fovy), aspect, near, far),
		glm.LookAtV(eye, center, glm.Vec3{0, 1, 0}),
	)
}

// Bytes returns the block in the std140 layout the shaders read.
func (c Camera) Bytes() []byte {
	out := make([]byte, 0, CameraSize)
	for _, m := range []glm.Mat4{c.Projection, c.View, c.Combined, c.InverseProjection, c.InverseView, c.InverseCombined} {
		out = appendFloats(out, m[:]...)
	}
	return out
}

func appendFloats(out []byte, fs ...float32) []byte {
	var buf [4]byte
	for _, f := range fs {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		out = append(out, buf[:]...)
	}
	return out
}
