package model

import (
	"encoding/binary"
	"math"
	"testing"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraBytes(t *testing.T) {
	data := IdentityCamera().Bytes()
	require.Len(t, data, CameraSize)

	// every matrix of the identity camera is the identity
	for m := 0; m < 6; m++ {
		for i := 0; i < 16; i++ {
			f := math.Float32frombits(binary.LittleEndian.Uint32(data[(m*16+i)*4:]))
			if i%5 == 0 {
				assert.Equal(t, float32(1), f, "matrix %d element %d", m, i)
			} else {
				assert.Equal(t, float32(0), f, "matrix %d element %d", m, i)
			}
		}
	}
}

func TestNewCameraInverse(t *testing.T) {
	c := PerspectiveCamera(60, 16.0/9.0, 0.1, 100, glm.Vec3{0, 0, 5}, glm.Vec3{})
	assert.True(t, c.Combined.Mul4(c.InverseCombined).ApproxEqualThreshold(glm.Ident4(), 1e-4))
	assert.True(t, c.View.Mul4(c.InverseView).ApproxEqualThreshold(glm.Ident4(), 1e-4))
}

func TestVertexBytes(t *testing.T) {
	data := VertexBytes([]Vertex{{Pos: glm.Vec3{1, 2, 3}, Color: glm.Vec4{0, 0, 0, 1}}})
	require.Len(t, data, VertexSize)
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(data[4:])))
}

func TestIndexBytes(t *testing.T) {
	assert.Equal(t, []byte{1, 0, 2, 0}, IndexBytes16([]uint16{1, 2}))
	assert.Equal(t, []byte{1, 0, 0, 0}, IndexBytes32([]uint32{1}))
}
