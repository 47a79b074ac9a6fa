// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exception

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "0:artiq.coredevice.exceptions.DMAError", QualifiedName(DMAError))
	assert.Equal(t, DMAError, ShortName(QualifiedName(DMAError)))
	assert.Equal(t, "builtins.ZeroDivisionError", ShortName("0:builtins.ZeroDivisionError"))
}

func TestFormat(t *testing.T) {
	e := New(RTIOUnderflow, "RTIO underflow at {0} mu, channel {1}, slack {2} mu", 1000, 5, -20)
	assert.Equal(t, "RTIO underflow at 1000 mu, channel 5, slack -20 mu", e.Format())
	assert.Equal(t, "RTIOUnderflow: RTIO underflow at 1000 mu, channel 5, slack -20 mu", e.Error())

	e = New(DMAError, "DMA trace not found")
	assert.Equal(t, [3]int64{}, e.Param)
	assert.Equal(t, "DMA trace not found", e.Format())
}

func TestNewLocation(t *testing.T) {
	e := New(ValueError, "x")
	assert.True(t, strings.HasSuffix(e.File, "exception_test.go"))
	assert.NotZero(t, e.Line)
	assert.True(t, strings.HasSuffix(e.Function, "TestNewLocation"))
}

func TestTooManyParams(t *testing.T) {
	assert.Panics(t, func() { New(ValueError, "x", 1, 2, 3, 4) })
}

func TestCatch(t *testing.T) {
	var after bool

	e := Catch(func() {
		Throw(CacheError, "cannot put into a busy cache row")
		after = true
	})
	require.NotNil(t, e)
	assert.False(t, after)
	assert.Equal(t, QualifiedName(CacheError), e.Name)
	assert.True(t, strings.HasSuffix(e.Function, "TestCatch.func1"))

	assert.Nil(t, Catch(func() {}))
}

func TestCatchIgnoresOtherPanics(t *testing.T) {
	assert.Panics(t, func() {
		Catch(func() { panic("boom") })
	})
}

func TestCatchNested(t *testing.T) {
	outer := Catch(func() {
		inner := Catch(func() {
			Throw(ValueError, "inner")
		})
		require.NotNil(t, inner)
		Raise(inner)
	})
	require.NotNil(t, outer)
	assert.Equal(t, "inner", outer.Message)
}

func TestIs(t *testing.T) {
	e := New(DMAError, "DMA is not recording")
	assert.True(t, errors.Is(e, New(DMAError, "other")))
	assert.False(t, errors.Is(e, New(CacheError, "other")))
}

func TestTranslateBacktrace(t *testing.T) {
	bt := []uint32{5, 0x40000100, 3, 0x40000200}
	assert.Equal(t, []uint32{0x100, 0x200}, TranslateBacktrace(bt, 0x40000000))

	assert.Empty(t, TranslateBacktrace([]uint32{0x40000000, 1}, 0x40000000))
	assert.Empty(t, TranslateBacktrace(nil, 0x40000000))
}
