// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracestore keeps recorded DMA traces by name.
package tracestore

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"import.name/lock"

	. "import.name/type/context"
)

var ErrNotFound = errors.New("DMA trace not found")

// Store of finished traces.  Stored traces are not modified after Put, so Get
// may return shared memory.
type Store interface {
	Put(ctx Context, name string, trace []byte) error

	// Get returns ErrNotFound if there is no such trace.
	Get(ctx Context, name string) ([]byte, error)

	// Erase succeeds even if there is no such trace.
	Erase(ctx Context, name string) error

	Names(ctx Context) ([]string, error)
}

// Memory store.
type Memory struct {
	mu     sync.Mutex
	traces map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		traces: make(map[string][]byte),
	}
}

func (m *Memory) Put(ctx Context, name string, trace []byte) error {
	trace = slices.Clone(trace)

	lock.Guard(&m.mu, func() {
		m.traces[name] = trace
	})
	return nil
}

func (m *Memory) Get(ctx Context, name string) (trace []byte, err error) {
	lock.Guard(&m.mu, func() {
		var found bool
		if trace, found = m.traces[name]; !found {
			err = ErrNotFound
		}
	})
	return
}

func (m *Memory) Erase(ctx Context, name string) error {
	lock.Guard(&m.mu, func() {
		delete(m.traces, name)
	})
	return nil
}

func (m *Memory) Names(ctx Context) (names []string, err error) {
	lock.Guard(&m.mu, func() {
		names = slices.Sorted(maps.Keys(m.traces))
	})
	return
}
