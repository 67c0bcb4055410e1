// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// RecorderState is the lifecycle position of a CommandRecorder.
type RecorderState int32

// Recorder states, cycling Unrecorded -> Recording -> Closed -> Submitted
// and back to Recording once the submission is known to be complete.
const (
	Unrecorded RecorderState = iota
	Recording
	Closed
	Submitted
)

func (s RecorderState) String() string {
	switch s {
	case Recording:
		return "recording"
	case Closed:
		return "closed"
	case Submitted:
		return "submitted"
	}
	return "unrecorded"
}

// CommandRecorder accepts drawing intent. Immediate-mode backends
// execute each call as it is made, explicit backends append it to a
// native command list. Commands issued outside of Begin/End panic
// with ErrRecorderState, as that is always a programming error.
type CommandRecorder interface {
	// State returns the current lifecycle state.
	State() RecorderState

	// Begin resets the allocator and opens a recording scope.
	Begin() error

	SetViewport(vp Viewport)
	SetScissor(r Rect)
	BindPipeline(p Pipeline)
	BindVertexBuffer(binding uint32, b Buffer)
	BindIndexBuffer(b Buffer, format IndexFormat)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	// End closes the recording scope, after which the recording is submittable.
	End() error
}

// RecorderTracker enforces the CommandRecorder state machine.
// Backends embed it and consult it before touching native objects.
type RecorderTracker struct {
	state int32
}

// State implements CommandRecorder.
func (t *RecorderTracker) State() RecorderState {
	return RecorderState(atomic.LoadInt32(&t.state))
}

// Begin moves into Recording. A submitted recording has to be retired first.
func (t *RecorderTracker) Begin() error {
	switch s := t.State(); s {
	case Unrecorded, Closed:
		atomic.StoreInt32(&t.state, int32(Recording))
		return nil
	case Submitted:
		return ErrRecorderInFlight
	default:
		return errors.Wrapf(ErrRecorderState, "begin while %s", s)
	}
}

// Must panics unless the recorder is recording. cmd names the command.
func (t *RecorderTracker) Must(cmd string) {
	if s := t.State(); s != Recording {
		panic(errors.Wrapf(ErrRecorderState, "%s while %s", cmd, s))
	}
}

// End moves from Recording to Closed.
func (t *RecorderTracker) End() error {
	if s := t.State(); s != Recording {
		return errors.Wrapf(ErrRecorderState, "end while %s", s)
	}
	atomic.StoreInt32(&t.state, int32(Closed))
	return nil
}

// Submit moves from Closed to Submitted.
func (t *RecorderTracker) Submit() error {
	if s := t.State(); s != Closed {
		return errors.Wrapf(ErrRecorderState, "submit while %s", s)
	}
	atomic.StoreInt32(&t.state, int32(Submitted))
	return nil
}

// Retire moves a completed submission back to Closed, making the
// recording reusable for resubmission or a new Begin.
func (t *RecorderTracker) Retire() {
	atomic.CompareAndSwapInt32(&t.state, int32(Submitted), int32(Closed))
}

// Invalidate drops any recording, as after a resize.
func (t *RecorderTracker) Invalidate() {
	atomic.StoreInt32(&t.state, int32(Unrecorded))
}
