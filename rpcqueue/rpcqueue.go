// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpcqueue implements the single-producer, single-consumer ring of
// RPC frames which carries asynchronous calls from the kernel core to the
// runtime core.
//
// The kernel core is the only producer and the runtime core the only
// consumer.  One chunk is always left unused so that a full ring can be told
// apart from an empty one.
package rpcqueue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"import.name/flux"
)

const (
	ChunkSize   = 4096
	DefaultSize = 16 * ChunkSize

	// Frame header
	OffsetLength = 0
	HeaderSize   = 4
)

// ErrWouldBlock is returned when the queue is full (enqueue) or empty
// (dequeue).
var ErrWouldBlock = errors.New("rpc queue would block")

// Queue of frames in a memory region.
type Queue struct {
	mem    []byte
	chunks uint32
	write  atomic.Uint32
	read   atomic.Uint32
	waker  flux.Waker
}

// New queue in the given memory.  The size must be a multiple of ChunkSize
// and hold at least two chunks.
func New(mem []byte) (*Queue, error) {
	if len(mem)%ChunkSize != 0 || len(mem) < 2*ChunkSize {
		return nil, fmt.Errorf("rpc queue size %d is not a multiple of %d chunks", len(mem), ChunkSize)
	}

	return &Queue{
		mem:    mem,
		chunks: uint32(len(mem) / ChunkSize),
		waker:  flux.MakeWaker(),
	}, nil
}

// Capacity in frames.
func (q *Queue) Capacity() int {
	return int(q.chunks) - 1
}

func (q *Queue) next(i uint32) uint32 {
	return (i + 1) % q.chunks
}

func (q *Queue) chunk(i uint32) []byte {
	off := int(i) * ChunkSize
	return q.mem[off : off+ChunkSize : off+ChunkSize]
}

// Empty queue?
func (q *Queue) Empty() bool {
	return q.read.Load() == q.write.Load()
}

// Full queue?
func (q *Queue) Full() bool {
	return q.next(q.write.Load()) == q.read.Load()
}

// Enqueue a frame.  The writer function fills in the chunk; the frame is
// published only if it returns nil.
func (q *Queue) Enqueue(writer func(frame []byte) error) error {
	w := q.write.Load()
	if q.next(w) == q.read.Load() {
		return ErrWouldBlock
	}

	if err := writer(q.chunk(w)); err != nil {
		return err
	}

	q.write.Store(q.next(w))
	q.waker.Poke()
	return nil
}

// Dequeue a frame.  The chunk is released after the reader function returns,
// regardless of its result.
func (q *Queue) Dequeue(reader func(frame []byte) error) error {
	r := q.read.Load()
	if r == q.write.Load() {
		return ErrWouldBlock
	}

	err := reader(q.chunk(r))
	q.read.Store(q.next(r))
	return err
}

// Reset discards all frames.  It may be used only while the producer is
// halted.
func (q *Queue) Reset() {
	q.read.Store(q.write.Load())
}

// Notify channel receives a value after frames have been enqueued.
func (q *Queue) Notify() <-chan struct{} {
	return q.waker.Chan()
}

// WriteFrame fills a chunk with a length-prefixed payload produced by fill,
// which returns the payload length.
func WriteFrame(frame []byte, fill func(payload []byte) (int, error)) error {
	n, err := fill(frame[HeaderSize:])
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(frame[OffsetLength:], uint32(n))
	return nil
}

// ReadFrame returns the payload of a chunk.
func ReadFrame(frame []byte) ([]byte, error) {
	n := binary.LittleEndian.Uint32(frame[OffsetLength:])
	if int64(n) > int64(len(frame)-HeaderSize) {
		return nil, fmt.Errorf("rpc frame length %d exceeds chunk", n)
	}
	return frame[HeaderSize : HeaderSize+int(n)], nil
}
