// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package public contains helpers for errors whose descriptions may be shown
// to the author of a kernel.
package public

import (
	"errors"
)

type Error interface {
	error
	PublicError() string
}

type internalError string

func (e internalError) Error() string       { return string(e) }
func (e internalError) PublicError() string { return string(e) }

func Internal(s string) error {
	return internalError(s)
}

// ErrorString returns the public description of the first error in the chain
// which has one, or the alternative.
func ErrorString(err error, alternative string) string {
	var e Error
	if errors.As(err, &e) {
		return e.PublicError()
	}
	return alternative
}
