// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shader finds precompiled shader pairs. A pair is two files
// named name.vert.spv and name.frag.spv, it is important that the name
// itself does not contain dots.
package shader

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/utility/kar"
)

const shaderSuffix = ".spv"

// ErrNotFound is returned by Find for an unknown shader name.
var ErrNotFound = errors.New("shader not found")

// stage splits a file name into the shader name and its stage,
// ok is false for files that are not compiled shaders.
func stage(file string) (name, kind string, ok bool) {
	if !strings.HasSuffix(file, shaderSuffix) {
		return "", "", false
	}
	nodes := strings.Split(strings.TrimSuffix(file, shaderSuffix), ".")
	if len(nodes) != 2 {
		return "", "", false
	}
	switch nodes[1] {
	case "vert", "frag":
		return nodes[0], nodes[1], true
	}
	return "", "", false
}

type collector map[string]*gfx.ShaderSource

func (c collector) add(file string, read func() ([]byte, error)) error {
	name, st, ok := stage(file)
	if !ok {
		return nil
	}
	data, err := read()
	if err != nil {
		return errors.Wrapf(err, "read %s", file)
	}
	src, ok := c[name]
	if !ok {
		src = &gfx.ShaderSource{Name: name}
		c[name] = src
	}
	if st == "vert" {
		src.Vertex = data
	} else {
		src.Fragment = data
	}
	return nil
}

// sources validates every pair and returns them sorted by name.
func (c collector) sources() ([]gfx.ShaderSource, error) {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]gfx.ShaderSource, 0, len(names))
	for _, name := range names {
		if err := c[name].Validate(); err != nil {
			return nil, err
		}
		out = append(out, *c[name])
	}
	return out, nil
}

// FromDirectory loads every shader pair found under dir.
func FromDirectory(dir string) ([]gfx.ShaderSource, error) {
	c := make(collector)
	if err := filepath.Walk(dir, func(p string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() {
			return nil
		}
		return c.add(f.Name(), func() ([]byte, error) { return os.ReadFile(p) })
	}); err != nil {
		return nil, errors.Wrapf(err, "shader directory %s", dir)
	}
	return c.sources()
}

// FromArchive loads every shader pair stored in ar.
func FromArchive(ar *kar.Archive) ([]gfx.ShaderSource, error) {
	c := make(collector)
	for _, name := range ar.Names() {
		name := name
		if err := c.add(path.Base(name), func() ([]byte, error) { return ar.ReadAll(name) }); err != nil {
			return nil, err
		}
	}
	return c.sources()
}

// Find returns the source called name.
func Find(sources []gfx.ShaderSource, name string) (*gfx.ShaderSource, error) {
	for i := range sources {
		if sources[i].Name == name {
			return &sources[i], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%q", name)
}

// SliceUint32 reinterprets shader bytecode as 32-bit words without
// copying. Trailing bytes that do not make a whole word are dropped.
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
