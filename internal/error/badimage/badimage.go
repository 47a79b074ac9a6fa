// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package badimage contains the error type for unloadable kernel images.
package badimage

import (
	"errors"
	"fmt"
)

// Error is public.
func Error(s string) error {
	return errorType(s)
}

// Errorf formats public information.
func Errorf(format string, args ...any) error {
	return errorType(fmt.Sprintf(format, args...))
}

type errorType string

func (s errorType) Error() string       { return string(s) }
func (s errorType) PublicError() string { return string(s) }
func (s errorType) ImageError() bool    { return true }

type imageError interface {
	error
	ImageError() bool
}

// Is an image error?
func Is(err error) bool {
	var e imageError
	return errors.As(err, &e) && e.ImageError()
}
