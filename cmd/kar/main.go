// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kar builds, lists and extracts kar archives.
//
//	kar build -o shaders.kar ./shaders
//	kar list shaders.kar
//	kar extract -C out shaders.kar
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/utility/kar"
	log "github.com/sirupsen/logrus"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kar build|list|extract [flags] args")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = build(os.Args[2:])
	case "list":
		err = list(os.Args[2:])
	case "extract":
		err = extract(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.WithError(err).Fatal(os.Args[1])
	}
}

func currentUserName() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

func build(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	output := fs.String("o", "archive.kar", "Output file")
	author := fs.String("author", currentUserName(), "Author recorded in the header")
	version := fs.Int64("version", 1, "Archive version number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no input directories")
	}

	builder, err := kar.NewBuilder(kar.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}
	defer builder.Close()

	for _, dir := range fs.Args() {
		if err := builder.AddDir(context.Background(), dir); err != nil {
			return err
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		return errors.Wrapf(err, "create %s", *output)
	}
	n, err := builder.WriteTo(f)
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"archive": *output,
		"files":   builder.Len(),
		"bytes":   n,
	}).Info("archive written")
	return nil
}

func list(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("list takes one archive")
	}

	ar, err := kar.OpenFile(fs.Arg(0))
	if err != nil {
		return err
	}
	defer ar.Close()

	for _, name := range ar.Names() {
		entry, _ := ar.Entry(name)
		fmt.Printf("%10d %10d %s\n", entry.Size, entry.CompressedSize, name)
	}
	return nil
}

func extract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	dir := fs.String("C", ".", "Directory to extract into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("extract takes one archive")
	}

	ar, err := kar.OpenFile(fs.Arg(0))
	if err != nil {
		return err
	}
	defer ar.Close()

	for _, name := range ar.Names() {
		if err := extractFile(ar, name, *dir); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(ar *kar.Archive, name, dir string) error {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return errors.Newf("%q escapes the target directory", name)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	r, err := ar.Open(name)
	if err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.Wrapf(err, "extract %s", name)
	}
	return f.Close()
}
