// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package subsystem attributes errors to the runtime facility which caused
// them.
package subsystem

import (
	"errors"
)

type subsystemError interface {
	error
	Subsystem() string
}

type wrapped struct {
	error
	subsys string
}

func (e *wrapped) Unwrap() error     { return e.error }
func (e *wrapped) Subsystem() string { return e.subsys }

// Wrap an error.  Nil is returned as is.
func Wrap(subsys string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{err, subsys}
}

// Get the name of the subsystem which caused the error, or empty string.
func Get(err error) string {
	var e subsystemError
	if errors.As(err, &e) {
		return e.Subsystem()
	}
	return ""
}
