// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package protocol contains the error type for inter-core protocol
// violations.
package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"amp.computer/message"
)

// Error describes a message which arrived when another one was expected.
type Error struct {
	Expected string // Type name or description.
	Received message.Message
}

// Unexpected message when T was expected.
func Unexpected[T message.Message](received message.Message) *Error {
	return &Error{
		Expected: typeName(reflect.TypeFor[T]()),
		Received: received,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("unexpected message %v (expected %s)", e.Received, e.Expected)
}

func (e *Error) PublicError() string { return "kernel protocol violation" }
func (e *Error) ProtocolError() bool { return true }

type protocolError interface {
	error
	ProtocolError() bool
}

// Is a protocol error?
func Is(err error) bool {
	var e protocolError
	return errors.As(err, &e) && e.ProtocolError()
}

func typeName(t reflect.Type) string {
	s := t.String()
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
