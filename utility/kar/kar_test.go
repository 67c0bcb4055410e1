// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/utility/kar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func newBuilder(t *testing.T) *kar.Builder {
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { builder.Close() })
	return builder
}

func build(t *testing.T, files map[string]string) []byte {
	builder := newBuilder(t)
	for name, contents := range files {
		require.NoError(t, builder.Add(name, strings.NewReader(contents)))
	}
	buf := bytes.NewBuffer(nil)
	written, err := builder.WriteTo(buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), written)
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	data := build(t, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)

	f, err := ar.Open("test")
	require.NoError(t, err)
	assert.Equal(t, int64(len(testString1)), f.Size())

	result, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, testString1, string(result))
}

func TestCreateAndReadAll(t *testing.T) {
	data := build(t, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "test2"}, ar.Names())
	assert.Equal(t, "devblok", ar.Header().Author)

	for name, expected := range map[string]string{"test": testString1, "test2": testString2} {
		f, err := ar.ReadAll(name)
		require.NoError(t, err)
		assert.Equal(t, expected, string(f))
	}
}

func TestOpenMissing(t *testing.T) {
	data := build(t, map[string]string{"test": testString1})

	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = ar.Open("nope")
	assert.True(t, errors.Is(err, kar.ErrNotFound))
}

func TestOpenNotArchive(t *testing.T) {
	_, err := kar.Open(strings.NewReader("this is not an archive at all"))
	assert.True(t, errors.Is(err, kar.ErrFileFormat))

	_, err = kar.Open(strings.NewReader("KA"))
	assert.True(t, errors.Is(err, kar.ErrFileFormat))
}

func TestAddDuplicate(t *testing.T) {
	builder := newBuilder(t)
	require.NoError(t, builder.Add("test", strings.NewReader(testString1)))
	err := builder.Add("test", strings.NewReader(testString2))
	assert.True(t, errors.Is(err, kar.ErrDuplicate))
	assert.Equal(t, 1, builder.Len())
}

func TestClosedBuilder(t *testing.T) {
	builder := newBuilder(t)
	require.NoError(t, builder.Close())
	assert.True(t, errors.Is(builder.Add("test", strings.NewReader(testString1)), kar.ErrBuilderState))
	_, err := builder.WriteTo(io.Discard)
	assert.True(t, errors.Is(err, kar.ErrBuilderState))
}

func TestAddDirAndOpenFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "test"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "test", "test1.txt"), []byte("this is a test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "test", "test2.txt"), []byte("this is another test"), 0644))
	big := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	require.NoError(t, os.WriteFile(filepath.Join(src, "big.bin"), big, 0644))

	builder := newBuilder(t)
	require.NoError(t, builder.AddDir(context.Background(), src))
	assert.Equal(t, 3, builder.Len())

	path := filepath.Join(dir, "out.kar")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = builder.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ar, err := kar.OpenFile(path)
	require.NoError(t, err)
	defer ar.Close()

	assert.Equal(t, []string{"big.bin", "test/test1.txt", "test/test2.txt"}, ar.Names())

	contents, err := ar.ReadAll("test/test1.txt")
	require.NoError(t, err)
	assert.Equal(t, "this is a test", string(contents))

	contents, err = ar.ReadAll("test/test2.txt")
	require.NoError(t, err)
	assert.Equal(t, "this is another test", string(contents))

	contents, err = ar.ReadAll("big.bin")
	require.NoError(t, err)
	assert.Equal(t, big, contents)

	entry, ok := ar.Entry("big.bin")
	require.True(t, ok)
	assert.Less(t, entry.CompressedSize, entry.Size)
}
