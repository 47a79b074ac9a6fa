// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package watchdog tracks the deadlines which kernels set for themselves.
package watchdog

import (
	"errors"
	"math"
	"sync"
	"time"

	"import.name/lock"
)

// MaxWatchdogs which may be active simultaneously.
const MaxWatchdogs = 16

var ErrTooMany = errors.New("too many watchdogs")

type Set struct {
	mu        sync.Mutex
	clock     func() time.Time
	deadlines [MaxWatchdogs]time.Time
	active    [MaxWatchdogs]bool
}

// New set.  Clock defaults to time.Now.
func New(clock func() time.Time) *Set {
	if clock == nil {
		clock = time.Now
	}
	return &Set{clock: clock}
}

// Milliseconds converts a timeout to a duration.  Timeouts which don't fit
// are clamped to the longest duration.
func Milliseconds(ms uint64) time.Duration {
	if ms > math.MaxInt64/uint64(time.Millisecond) {
		return math.MaxInt64
	}
	return time.Duration(ms) * time.Millisecond
}

// Set a watchdog which expires after the duration.
func (s *Set) Set(d time.Duration) (id int, err error) {
	lock.Guard(&s.mu, func() {
		for i, active := range s.active {
			if !active {
				s.active[i] = true
				s.deadlines[i] = s.clock().Add(d)
				id = i
				return
			}
		}
		err = ErrTooMany
	})
	return
}

// Clear a watchdog.  Unknown ids are ignored.
func (s *Set) Clear(id int) {
	if id < 0 || id >= MaxWatchdogs {
		return
	}

	lock.Guard(&s.mu, func() {
		s.active[id] = false
	})
}

// Expired reports if any active watchdog has expired.
func (s *Set) Expired() (expired bool) {
	lock.Guard(&s.mu, func() {
		now := s.clock()
		for i, active := range s.active {
			if active && !now.Before(s.deadlines[i]) {
				expired = true
				return
			}
		}
	})
	return
}

// Next deadline among active watchdogs.
func (s *Set) Next() (deadline time.Time, ok bool) {
	lock.Guard(&s.mu, func() {
		for i, active := range s.active {
			if active && (!ok || s.deadlines[i].Before(deadline)) {
				deadline = s.deadlines[i]
				ok = true
			}
		}
	})
	return
}

// Reset clears all watchdogs.
func (s *Set) Reset() {
	lock.Guard(&s.mu, func() {
		s.active = [MaxWatchdogs]bool{}
	})
}
