// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtio drives the real-time I/O gateware through its control and
// status registers.
package rtio

import (
	"fmt"

	"amp.computer/exception"
)

// Output status bits.
const (
	StatusWait          = 1
	StatusUnderflow     = 2
	StatusSequenceError = 4
	StatusCollision     = 8
	StatusBusy          = 16
)

// MaxWideWords is the maximum data width of an output event.
const MaxWideWords = 16

// ArbitrationSpins bounds the wait for a bus grant.
var ArbitrationSpins = 1 << 24

// Registers of the regular RTIO output interface.
type Registers interface {
	ArbReqWrite(uint8)
	ArbGntRead() uint8
	ChanSelWrite(uint32)
	TimestampWrite(uint64)
	OAddressWrite(uint32)
	ODataWrite(index int, word uint32)
	OWeWrite(uint8)
	OStatusRead() uint8
	OUnderflowResetWrite(uint8)
	OSequenceErrorResetWrite(uint8)
	OCollisionResetWrite(uint8)
	OBusyResetWrite(uint8)
	CounterUpdateWrite(uint8)
	CounterRead() uint64
}

// DMARegisters of the RTIO DMA engine.  The base address register takes the
// trace buffer itself.
type DMARegisters interface {
	BaseAddressWrite(trace []byte)
	TimeOffsetWrite(uint64)
	ArbReqWrite(uint8)
	ArbGntRead() uint8
	EnableWrite(uint8)
	EnableRead() uint8
	ErrorStatusRead() uint8
	ErrorTimestampRead() uint64
	ErrorChannelRead() uint32
	ErrorUnderflowResetWrite(uint8)
	ErrorSequenceErrorResetWrite(uint8)
	ErrorCollisionResetWrite(uint8)
	ErrorBusyResetWrite(uint8)
}

// GetCounter reads the current RTIO time.
func GetCounter(r Registers) int64 {
	r.CounterUpdateWrite(1)
	return int64(r.CounterRead())
}

// Output an event with a single data word.
func Output(r Registers, timestamp int64, channel, address, data int32) {
	r.ChanSelWrite(uint32(channel))
	r.TimestampWrite(uint64(timestamp))
	r.OAddressWrite(uint32(address))
	r.ODataWrite(0, uint32(data))
	r.OWeWrite(1)

	if status := r.OStatusRead(); status != 0 {
		processExceptionalStatus(r, timestamp, channel, status)
	}
}

// OutputWide outputs an event with multiple data words.
func OutputWide(r Registers, timestamp int64, channel, address int32, data []int32) {
	r.ChanSelWrite(uint32(channel))
	r.TimestampWrite(uint64(timestamp))
	r.OAddressWrite(uint32(address))
	for i, word := range data {
		r.ODataWrite(i, uint32(word))
	}
	r.OWeWrite(1)

	if status := r.OStatusRead(); status != 0 {
		processExceptionalStatus(r, timestamp, channel, status)
	}
}

func processExceptionalStatus(r Registers, timestamp int64, channel int32, status uint8) {
	if status&StatusWait != 0 {
		for r.OStatusRead()&StatusWait != 0 {
		}
	}

	if status&StatusUnderflow != 0 {
		r.OUnderflowResetWrite(1)
		exception.Throw(exception.RTIOUnderflow,
			"RTIO underflow at {0} mu, channel {1}, slack {2} mu",
			timestamp, int64(channel), timestamp-GetCounter(r))
	}

	if status&StatusSequenceError != 0 {
		r.OSequenceErrorResetWrite(1)
		exception.Throw(exception.RTIOSequenceError,
			"RTIO sequence error at {0} mu, channel {1}",
			timestamp, int64(channel))
	}

	if status&StatusCollision != 0 {
		r.OCollisionResetWrite(1)
		exception.Throw(exception.RTIOCollision,
			"RTIO collision at {0} mu, channel {1}",
			timestamp, int64(channel))
	}

	if status&StatusBusy != 0 {
		r.OBusyResetWrite(1)
		exception.Throw(exception.RTIOBusy,
			"RTIO busy on channel {0}",
			int64(channel))
	}
}

// Log text to the analyzer through the log channel.  The bytes are packed
// into big-endian words.
func Log(r Registers, channel uint32, timestamp int64, text []byte) {
	r.ChanSelWrite(channel)
	r.TimestampWrite(uint64(timestamp))
	r.OAddressWrite(0)

	var word uint32
	for i, c := range text {
		word = word<<8 | uint32(c)
		if i%4 == 3 {
			r.ODataWrite(0, word)
			r.OWeWrite(1)
			word = 0
		}
	}

	if word != 0 {
		r.ODataWrite(0, word)
		r.OWeWrite(1)
	}
}

type arbiter interface {
	ArbReqWrite(uint8)
	ArbGntRead() uint8
}

func arbitrate(release, acquire arbiter, name string) {
	release.ArbReqWrite(0)
	acquire.ArbReqWrite(1)

	for i := 0; acquire.ArbGntRead() == 0; i++ {
		if i == ArbitrationSpins {
			panic(fmt.Sprintf("rtio: %s bus was not granted", name))
		}
	}
}

// ArbitrateDMA releases the regular bus and acquires the DMA bus.
func ArbitrateDMA(r Registers, d DMARegisters) {
	arbitrate(r, d, "DMA")
}

// ArbitrateRegular releases the DMA bus and acquires the regular bus.
func ArbitrateRegular(r Registers, d DMARegisters) {
	arbitrate(d, r, "regular")
}
