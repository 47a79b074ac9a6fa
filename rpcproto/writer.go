// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcproto

import (
	"io"
)

// Writer fills a fixed buffer.  A write which doesn't fit writes nothing and
// returns io.ErrShortWrite.
type Writer struct {
	buf []byte
	n   int
}

func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		return 0, io.ErrShortWrite
	}

	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

// Len of the written data.
func (w *Writer) Len() int { return w.n }

// Bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf[:w.n] }
