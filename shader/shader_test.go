// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shader_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/shader"
	"github.com/devblok/prism/utility/kar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vertex   = []byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0}
	fragment = []byte{0x03, 0x02, 0x23, 0x07, 2, 0, 0, 0}
)

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	for name, data := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, data, 0644))
	}
}

func TestFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"triangle.vert.spv":      vertex,
		"triangle.frag.spv":      fragment,
		"nested/quad.vert.spv":   vertex,
		"nested/quad.frag.spv":   fragment,
		"readme.txt":             []byte("not a shader"),
		"too.many.dots.vert.spv": vertex,
	})

	sources, err := shader.FromDirectory(dir)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "quad", sources[0].Name)
	assert.Equal(t, "triangle", sources[1].Name)
	assert.Equal(t, vertex, sources[1].Vertex)
	assert.Equal(t, fragment, sources[1].Fragment)

	found, err := shader.Find(sources, "triangle")
	require.NoError(t, err)
	assert.Equal(t, "triangle", found.Name)

	_, err = shader.Find(sources, "missing")
	assert.True(t, errors.Is(err, shader.ErrNotFound))
}

func TestFromDirectoryMissingStage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"lonely.vert.spv": vertex})

	_, err := shader.FromDirectory(dir)
	assert.True(t, errors.Is(err, gfx.ErrInvalidShader))
}

func TestFromDirectoryBadBytecode(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"odd.vert.spv": {1, 2, 3},
		"odd.frag.spv": fragment,
	})

	_, err := shader.FromDirectory(dir)
	assert.True(t, errors.Is(err, gfx.ErrInvalidShader))
}

func TestFromArchive(t *testing.T) {
	builder, err := kar.NewBuilder(kar.Header{Author: "devblok", Version: 1})
	require.NoError(t, err)
	defer builder.Close()
	require.NoError(t, builder.Add("shaders/triangle.vert.spv", bytes.NewReader(vertex)))
	require.NoError(t, builder.Add("shaders/triangle.frag.spv", bytes.NewReader(fragment)))
	require.NoError(t, builder.Add("textures/wall.png", bytes.NewReader([]byte{0x89, 'P', 'N', 'G'})))

	buf := bytes.NewBuffer(nil)
	_, err = builder.WriteTo(buf)
	require.NoError(t, err)

	ar, err := kar.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	sources, err := shader.FromArchive(ar)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, gfx.ShaderSource{Name: "triangle", Vertex: vertex, Fragment: fragment}, sources[0])
}

func TestSliceUint32(t *testing.T) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 0x07230203)
	binary.LittleEndian.PutUint32(data[4:], 1)
	binary.LittleEndian.PutUint32(data[8:], 0xdeadbeef)

	words := shader.SliceUint32(data)
	require.Len(t, words, 3)
	assert.Equal(t, uint32(0x07230203), words[0])
	assert.Equal(t, uint32(0xdeadbeef), words[2])
	assert.Nil(t, shader.SliceUint32([]byte{1, 2}))
	assert.Len(t, shader.SliceUint32(make([]byte, 7)), 1)
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		shader.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		shader.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		shader.SliceUint32(data)
	}
}
