// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"amp.computer/exception"
)

// Playback a recorded trace with its timestamps offset by the given time.
// The engine owns the RTIO bus for the duration of the playback.  A playback
// error is reset and raised as an exception; if several errors are flagged,
// only the first one in the order underflow, sequence error, collision, busy
// is reported.
func Playback(r Registers, d DMARegisters, trace []byte, timestamp int64) {
	d.BaseAddressWrite(trace)
	d.TimeOffsetWrite(uint64(timestamp))

	ArbitrateDMA(r, d)
	d.EnableWrite(1)
	for d.EnableRead() != 0 {
	}
	ArbitrateRegular(r, d)

	status := d.ErrorStatusRead()
	if status == 0 {
		return
	}

	ts := int64(d.ErrorTimestampRead())
	channel := int64(d.ErrorChannelRead())

	switch {
	case status&StatusUnderflow != 0:
		d.ErrorUnderflowResetWrite(1)
		exception.Throw(exception.RTIOUnderflow,
			"RTIO underflow at {0} mu, channel {1}",
			ts, channel)

	case status&StatusSequenceError != 0:
		d.ErrorSequenceErrorResetWrite(1)
		exception.Throw(exception.RTIOSequenceError,
			"RTIO sequence error at {0} mu, channel {1}",
			ts, channel)

	case status&StatusCollision != 0:
		d.ErrorCollisionResetWrite(1)
		exception.Throw(exception.RTIOCollision,
			"RTIO collision at {0} mu, channel {1}",
			ts, channel)

	case status&StatusBusy != 0:
		d.ErrorBusyResetWrite(1)
		exception.Throw(exception.RTIOBusy,
			"RTIO busy on channel {0}",
			channel)
	}
}
