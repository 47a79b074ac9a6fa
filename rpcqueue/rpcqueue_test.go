// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcqueue

import (
	"encoding/binary"
	"errors"
	"testing"

	"amp.computer/internal/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "import.name/testing/mustr"
)

func newQueue(t *testing.T, chunks int) *Queue {
	t.Helper()
	mem := Must(t, R(shm.Map(chunks * ChunkSize)))
	t.Cleanup(func() { shm.Unmap(mem) })
	return Must(t, R(New(mem)))
}

func enqueueWord(q *Queue, v uint32) error {
	return q.Enqueue(func(frame []byte) error {
		return WriteFrame(frame, func(payload []byte) (int, error) {
			binary.LittleEndian.PutUint32(payload, v)
			return 4, nil
		})
	})
}

func dequeueWord(q *Queue) (v uint32, err error) {
	err = q.Dequeue(func(frame []byte) error {
		payload, err := ReadFrame(frame)
		if err != nil {
			return err
		}
		if len(payload) != 4 {
			return errors.New("payload length")
		}
		v = binary.LittleEndian.Uint32(payload)
		return nil
	})
	return
}

func TestNewInvalid(t *testing.T) {
	_, err := New(make([]byte, ChunkSize))
	assert.Error(t, err)
	_, err = New(make([]byte, 3*ChunkSize+1))
	assert.Error(t, err)
}

func TestFIFO(t *testing.T) {
	q := newQueue(t, 4)
	assert.Equal(t, 3, q.Capacity())
	assert.True(t, q.Empty())

	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, enqueueWord(q, i))
	}
	assert.True(t, q.Full())
	assert.ErrorIs(t, enqueueWord(q, 4), ErrWouldBlock)

	assert.Equal(t, uint32(1), Must(t, R(dequeueWord(q))))
	require.NoError(t, enqueueWord(q, 4))

	for i := uint32(2); i <= 4; i++ {
		assert.Equal(t, i, Must(t, R(dequeueWord(q))))
	}
	assert.True(t, q.Empty())

	_, err := dequeueWord(q)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestWriterErrorDoesNotPublish(t *testing.T) {
	q := newQueue(t, 2)

	failure := errors.New("no space")
	err := q.Enqueue(func([]byte) error { return failure })
	assert.ErrorIs(t, err, failure)
	assert.True(t, q.Empty())
}

func TestReadFrameCorrupt(t *testing.T) {
	frame := make([]byte, ChunkSize)
	binary.LittleEndian.PutUint32(frame, ChunkSize)
	_, err := ReadFrame(frame)
	assert.Error(t, err)
}

func TestConcurrent(t *testing.T) {
	q := newQueue(t, 3)
	const count = 1000

	go func() {
		for i := uint32(0); i < count; {
			if err := enqueueWord(q, i); err == nil {
				i++
			}
		}
	}()

	for i := uint32(0); i < count; {
		v, err := dequeueWord(q)
		if errors.Is(err, ErrWouldBlock) {
			<-q.Notify()
			continue
		}
		require.NoError(t, err)
		require.Equal(t, i, v)
		i++
	}
}

func TestReset(t *testing.T) {
	q := newQueue(t, 4)

	require.NoError(t, enqueueWord(q, 1))
	require.NoError(t, enqueueWord(q, 2))
	q.Reset()
	assert.True(t, q.Empty())

	require.NoError(t, enqueueWord(q, 3))
	assert.Equal(t, uint32(3), Must(t, R(dequeueWord(q))))
}
