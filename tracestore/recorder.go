// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracestore

import (
	"errors"

	"amp.computer/rtio"
)

var ErrNotRecording = errors.New("DMA is not recording")

// Recorder accumulates output events into a trace.  The zero value is idle.
type Recorder struct {
	buf       []byte
	recording bool
}

// Start recording.  A recording in progress is discarded.
func (r *Recorder) Start() {
	r.buf = r.buf[:0]
	r.recording = true
}

// Recording in progress?
func (r *Recorder) Recording() bool {
	return r.recording
}

// Append an event.
func (r *Recorder) Append(rec rtio.Record) error {
	if !r.recording {
		return ErrNotRecording
	}

	b, err := rtio.AppendRecord(r.buf, rec)
	if err != nil {
		return err
	}
	r.buf = b
	return nil
}

// Finish recording and return the trace.  The recorder becomes idle.
func (r *Recorder) Finish() ([]byte, error) {
	if !r.recording {
		return nil, ErrNotRecording
	}

	trace := rtio.FinishTrace(r.buf)
	r.buf = nil
	r.recording = false
	return trace, nil
}
