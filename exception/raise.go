// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exception

import (
	"errors"

	"import.name/pan"
)

var z = new(pan.Zone)

// Raise unwinds the stack until the nearest Catch.
func Raise(e *Exception) {
	if e == nil {
		panic("raising nil exception")
	}
	z.Check(e)
}

// Throw raises a new exception which is attributed to the caller of Throw.
func Throw(name, message string, param ...int64) {
	Raise(newAt(2, name, message, param))
}

// Catch invokes f and returns the exception it raised, or nil.  Other panics
// are not recovered.
func Catch(f func()) *Exception {
	err := z.Recover(f)
	if err == nil {
		return nil
	}

	var e *Exception
	if !errors.As(err, &e) {
		panic(err)
	}
	return e
}
