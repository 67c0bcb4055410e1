// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4"
	"golang.org/x/sync/errgroup"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) (*Builder, error) {
	temp, err := os.MkdirTemp("", "karBuilder")
	if err != nil {
		return nil, errors.Wrap(err, "temporary directory")
	}
	return &Builder{
		tempDir: temp,
		header:  header,
		names:   make(map[string]struct{}),
	}, nil
}

type tempFile struct {

	// Name is the actual name of the file
	Name string

	// TempName is the temporary name given by the Builder
	TempName string

	// Size in uncompressed state
	Size int64

	Compressed int64
}

// Builder is the high level builder for the archive format.
// Archives are versioned and cannot be appended to, this Builder
// is the way to create an archive. Whenever Add is called, Builder
// stores the compressed file in a temporary dir, WriteTo then bundles
// them together. Close removes the temporary dir.
type Builder struct {
	tempDir string
	header  Header

	mutex   sync.Mutex
	files   []tempFile
	names   map[string]struct{}
	counter int
	closed  bool
}

func (b *Builder) reserve(name string) (string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return "", ErrBuilderState
	}
	if _, ok := b.names[name]; ok {
		return "", errors.Wrapf(ErrDuplicate, "%q", name)
	}
	b.names[name] = struct{}{}
	b.counter++
	return strconv.Itoa(b.counter), nil
}

func (b *Builder) release(name string) {
	b.mutex.Lock()
	delete(b.names, name)
	b.mutex.Unlock()
}

// Add appends the contents of r to the builder with a given name.
// Will block until lz4 finishes compression. Is safe to use
// concurrently in different goroutines.
func (b *Builder) Add(name string, r io.Reader) error {
	tempName, err := b.reserve(name)
	if err != nil {
		return err
	}

	entry, err := b.compress(name, tempName, r)
	if err != nil {
		b.release(name)
		return errors.Wrapf(err, "add %q", name)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, entry)
	return nil
}

func (b *Builder) compress(name, tempName string, r io.Reader) (tempFile, error) {
	f, err := os.Create(filepath.Join(b.tempDir, tempName))
	if err != nil {
		return tempFile{}, err
	}
	defer f.Close()

	writer := lz4.NewWriter(f)
	written, err := io.Copy(writer, r)
	if err != nil {
		return tempFile{}, err
	}
	if err := writer.Close(); err != nil {
		return tempFile{}, err
	}
	info, err := f.Stat()
	if err != nil {
		return tempFile{}, err
	}
	return tempFile{
		Name:       name,
		TempName:   tempName,
		Size:       written,
		Compressed: info.Size(),
	}, nil
}

// AddDir adds every regular file under dir, named by its slash
// separated path relative to dir. Files are compressed in parallel.
func (b *Builder) AddDir(ctx context.Context, dir string) error {
	var paths []string
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.Mode().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return errors.Wrapf(err, "walk %s", dir)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return b.Add(filepath.ToSlash(rel), f)
		})
	}
	return g.Wait()
}

// Len returns the number of files added.
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.files)
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use. Files are ordered by name.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return 0, ErrBuilderState
	}

	files := append([]tempFile(nil), b.files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	header := b.header
	header.Index = nil
	var offset int64
	for _, v := range files {
		header.Index = append(header.Index, IndexEntry{
			Name:           v.Name,
			Size:           v.Size,
			CompressedSize: v.Compressed,
			Offset:         offset,
		})
		offset += v.Compressed
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, chunk := range [][]byte{Magic[:], int64ToBinary(int64(len(rawHeader))), rawHeader} {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, errors.Wrap(err, "write header")
		}
	}

	for _, v := range files {
		n, err := b.copyFile(w, v)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "write %q", v.Name)
		}
	}
	return total, nil
}

func (b *Builder) copyFile(w io.Writer, v tempFile) (int64, error) {
	f, err := os.Open(filepath.Join(b.tempDir, v.TempName))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Close removes the temporary files. The builder is unusable afterwards.
func (b *Builder) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.files = nil
	return os.RemoveAll(b.tempDir)
}
