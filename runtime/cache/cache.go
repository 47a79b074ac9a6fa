// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache implements the runtime core's key-value cache of integer
// arrays.  A row which has been read by a kernel is borrowed until the kernel
// terminates, and it can't be replaced meanwhile.
package cache

import (
	"slices"
	"sync"

	"import.name/lock"
)

type row struct {
	value    []int32
	borrowed bool
}

type Cache struct {
	mu   sync.Mutex
	rows map[string]*row
}

func New() *Cache {
	return &Cache{
		rows: make(map[string]*row),
	}
}

// Get a row and mark it as borrowed.  A missing row reads as empty, and is
// not borrowed.
func (c *Cache) Get(key string) (value []int32) {
	lock.Guard(&c.mu, func() {
		if r := c.rows[key]; r != nil {
			r.borrowed = true
			value = r.value
		}
	})
	return
}

// Put a row.  False is returned if the row is borrowed.
func (c *Cache) Put(key string, value []int32) (ok bool) {
	value = slices.Clone(value)

	lock.Guard(&c.mu, func() {
		r := c.rows[key]
		if r == nil {
			r = new(row)
			c.rows[key] = r
		} else if r.borrowed {
			return
		}
		r.value = value
		ok = true
	})
	return
}

// Unborrow all rows.
func (c *Cache) Unborrow() {
	lock.Guard(&c.mu, func() {
		for _, r := range c.rows {
			r.borrowed = false
		}
	})
}
