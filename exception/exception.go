// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package exception implements the structured exceptions which are raised by
// kernel code and propagated to the runtime core.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Revision of the exception naming scheme.
const Revision = 0

const namespace = "artiq.coredevice.exceptions."

// Short names of the exceptions raised by the core.
const (
	ValueError        = "ValueError"
	CacheError        = "CacheError"
	DMAError          = "DMAError"
	RTIOUnderflow     = "RTIOUnderflow"
	RTIOSequenceError = "RTIOSequenceError"
	RTIOCollision     = "RTIOCollision"
	RTIOBusy          = "RTIOBusy"
	RuntimeError      = "RuntimeError"
)

// QualifiedName of an exception: "0:artiq.coredevice.exceptions.<name>".
func QualifiedName(name string) string {
	return strconv.Itoa(Revision) + ":" + namespace + name
}

// ShortName strips the revision and namespace from a qualified name.  Names
// with a foreign namespace are returned without the revision.
func ShortName(qualified string) string {
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		qualified = qualified[i+1:]
	}
	return strings.TrimPrefix(qualified, namespace)
}

// Exception describes an error raised by kernel code.  The message may refer
// to the parameters with {0}, {1} and {2}.
type Exception struct {
	Name     string
	File     string
	Line     int
	Column   int
	Function string
	Message  string
	Param    [3]int64
}

// New exception which is attributed to the caller of New.  Name is the short
// name.  At most three parameters may be specified.
func New(name, message string, param ...int64) *Exception {
	return newAt(2, name, message, param)
}

func newAt(skip int, name, message string, param []int64) *Exception {
	if len(param) > 3 {
		panic(fmt.Sprintf("exception %s with %d parameters", name, len(param)))
	}

	e := &Exception{
		Name:    QualifiedName(name),
		Message: message,
	}
	copy(e.Param[:], param)

	if pc, file, line, ok := runtime.Caller(skip); ok {
		e.File = file
		e.Line = line
		if f := runtime.FuncForPC(pc); f != nil {
			e.Function = f.Name()
		}
	}

	return e
}

// Format the message by substituting parameter placeholders.
func (e *Exception) Format() string {
	if !strings.Contains(e.Message, "{") {
		return e.Message
	}

	r := strings.NewReplacer(
		"{0}", strconv.FormatInt(e.Param[0], 10),
		"{1}", strconv.FormatInt(e.Param[1], 10),
		"{2}", strconv.FormatInt(e.Param[2], 10),
	)
	return r.Replace(e.Message)
}

func (e *Exception) Error() string {
	return ShortName(e.Name) + ": " + e.Format()
}

// Location of the raise site.
func (e *Exception) Location() string {
	return fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
}

// Is matches exceptions by name.
func (e *Exception) Is(target error) bool {
	var other *Exception
	return errors.As(target, &other) && other.Name == e.Name
}
