// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// package errors
var (
	// ErrFatal marks errors after which the device state is unusable.
	ErrFatal = errors.New("fatal graphics error")

	ErrDeviceLost         = errors.New("device lost")
	ErrOutOfDate          = errors.New("swapchain out of date")
	ErrRecorderState      = errors.New("command recorder used outside of its recording scope")
	ErrRecorderInFlight   = errors.New("command recorder is still executing on the device")
	ErrPoolExhausted      = errors.New("uniform pool exhausted")
	ErrPoolUnbounded      = errors.New("uniform pool capacity must be bounded")
	ErrImmutable          = errors.New("device-local resource is already populated")
	ErrUnsupportedBackend = errors.New("backend is not compiled in")
	ErrNotBuilt           = errors.New("render pass is not built")
	ErrInvalidShader      = errors.New("invalid shader source")
	ErrIndexFormat        = errors.New("unknown index format")
	ErrOutOfRange         = errors.New("write outside of resource bounds")
	ErrOutOfMemory        = errors.New("no suitable device memory")
)

// Fatal marks err as fatal, names the failing operation and logs it
// together with the caller location. Returns nil when err is nil.
func Fatal(logger log.FieldLogger, op string, err error) error {
	if err == nil {
		return nil
	}
	err = errors.Mark(errors.Wrap(err, op), ErrFatal)
	if logger == nil {
		logger = log.StandardLogger()
	}
	fields := log.Fields{"op": op}
	if _, file, line, ok := runtime.Caller(1); ok {
		fields["file"] = filepath.Base(file)
		fields["line"] = line
	}
	logger.WithFields(fields).Error(err)
	return err
}

// IsFatal reports whether err was produced by Fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
