// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtiosim simulates the RTIO output and DMA register files.
package rtiosim

import (
	"fmt"
	"slices"
	"sync"

	"amp.computer/rtio"
	"import.name/lock"
)

// Event emitted on an output channel.
type Event struct {
	Timestamp uint64
	Channel   uint32
	Address   uint32
	Data      []uint32
	DMA       bool // Emitted by the DMA engine.
}

// Counts of register operations.
type Counts struct {
	RegularRequests int // Regular bus requests.
	DMARequests     int // DMA bus requests.
	Playbacks       int

	UnderflowResets     int
	SequenceErrorResets int
	CollisionResets     int
	BusyResets          int

	DMAUnderflowResets     int
	DMASequenceErrorResets int
	DMACollisionResets     int
	DMABusyResets          int
}

// Sim of the RTIO core.  The regular and DMA register files are obtained
// with the Registers and DMA methods.
type Sim struct {
	mu sync.Mutex

	counter uint64
	latched uint64

	regularReq uint8
	dmaReq     uint8
	grantDelay int
	noGrant    bool

	chanSel   uint32
	timestamp uint64
	address   uint32
	data      [rtio.MaxWideWords]uint32
	width     int
	status    uint8
	inject    uint8

	trace      []byte
	timeOffset uint64
	enable     uint8
	errStatus  uint8
	errTime    uint64
	errChannel uint32
	dmaInject  *dmaFault

	events []Event
	counts Counts
}

type dmaFault struct {
	status    uint8
	timestamp uint64
	channel   uint32
}

// New simulator with the regular bus granted.
func New() *Sim {
	return &Sim{
		regularReq: 1,
	}
}

// Registers of the regular output interface.
func (s *Sim) Registers() rtio.Registers { return (*regular)(s) }

// DMA engine registers.
func (s *Sim) DMA() rtio.DMARegisters { return (*dma)(s) }

// SetCounter sets the current RTIO time.
func (s *Sim) SetCounter(t uint64) {
	lock.Guard(&s.mu, func() {
		s.counter = t
	})
}

// DelayGrants makes each arbitration take the given number of grant polls.
func (s *Sim) DelayGrants(polls int) {
	lock.Guard(&s.mu, func() {
		s.grantDelay = polls
	})
}

// WithholdGrants prevents bus arbitration from completing.
func (s *Sim) WithholdGrants() {
	lock.Guard(&s.mu, func() {
		s.noGrant = true
	})
}

// InjectStatus makes the next output report the status bits.
func (s *Sim) InjectStatus(status uint8) {
	lock.Guard(&s.mu, func() {
		s.inject |= status
	})
}

// InjectDMAError makes the next playback report an error.
func (s *Sim) InjectDMAError(status uint8, timestamp uint64, channel uint32) {
	lock.Guard(&s.mu, func() {
		s.dmaInject = &dmaFault{status, timestamp, channel}
	})
}

// Events emitted so far.
func (s *Sim) Events() (events []Event) {
	lock.Guard(&s.mu, func() {
		events = slices.Clone(s.events)
	})
	return
}

// Counts of operations so far.
func (s *Sim) Counts() (c Counts) {
	lock.Guard(&s.mu, func() {
		c = s.counts
	})
	return
}

func (s *Sim) regularGranted() bool { return s.regularReq != 0 && s.dmaReq == 0 }
func (s *Sim) dmaGranted() bool     { return s.dmaReq != 0 && s.regularReq == 0 }

func (s *Sim) grant(granted bool) uint8 {
	if !granted || s.noGrant {
		return 0
	}
	if s.grantDelay > 0 {
		s.grantDelay--
		return 0
	}
	return 1
}

type regular Sim

func (r *regular) sim() *Sim { return (*Sim)(r) }

func (r *regular) ArbReqWrite(v uint8) {
	s := r.sim()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.regularReq = v
	if v != 0 {
		s.counts.RegularRequests++
	}
}

func (r *regular) ArbGntRead() uint8 {
	s := r.sim()
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.grant(s.regularGranted())
}

func (r *regular) ChanSelWrite(v uint32)   { lock.Guard(&r.mu, func() { r.chanSel = v }) }
func (r *regular) TimestampWrite(v uint64) { lock.Guard(&r.mu, func() { r.timestamp = v }) }
func (r *regular) OAddressWrite(v uint32)  { lock.Guard(&r.mu, func() { r.address = v }) }

func (r *regular) ODataWrite(index int, word uint32) {
	lock.Guard(&r.mu, func() {
		r.data[index] = word
		r.width = max(r.width, index+1)
	})
}

func (r *regular) OWeWrite(v uint8) {
	if v == 0 {
		return
	}

	s := r.sim()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.regularGranted() {
		panic("rtiosim: output while the regular bus is not granted")
	}

	s.status = s.inject
	s.inject = 0

	if s.timestamp < s.counter {
		s.status |= rtio.StatusUnderflow
	}

	if s.status&^rtio.StatusWait == 0 {
		s.events = append(s.events, Event{
			Timestamp: s.timestamp,
			Channel:   s.chanSel,
			Address:   s.address,
			Data:      slices.Clone(s.data[:max(s.width, 1)]),
		})
	}

	s.width = 0
}

// OStatusRead clears the wait bit after reporting it once.
func (r *regular) OStatusRead() (status uint8) {
	lock.Guard(&r.mu, func() {
		status = r.status
		r.status &^= rtio.StatusWait
	})
	return
}

func (r *regular) reset(bit uint8, count *int) {
	lock.Guard(&r.mu, func() {
		r.status &^= bit
		*count++
	})
}

func (r *regular) OUnderflowResetWrite(uint8) {
	r.reset(rtio.StatusUnderflow, &r.counts.UnderflowResets)
}

func (r *regular) OSequenceErrorResetWrite(uint8) {
	r.reset(rtio.StatusSequenceError, &r.counts.SequenceErrorResets)
}

func (r *regular) OCollisionResetWrite(uint8) {
	r.reset(rtio.StatusCollision, &r.counts.CollisionResets)
}

func (r *regular) OBusyResetWrite(uint8) {
	r.reset(rtio.StatusBusy, &r.counts.BusyResets)
}

func (r *regular) CounterUpdateWrite(uint8) {
	lock.Guard(&r.mu, func() { r.latched = r.counter })
}

func (r *regular) CounterRead() (t uint64) {
	lock.Guard(&r.mu, func() { t = r.latched })
	return
}

type dma Sim

func (d *dma) sim() *Sim { return (*Sim)(d) }

func (d *dma) BaseAddressWrite(trace []byte) { lock.Guard(&d.mu, func() { d.trace = trace }) }
func (d *dma) TimeOffsetWrite(v uint64)      { lock.Guard(&d.mu, func() { d.timeOffset = v }) }

func (d *dma) ArbReqWrite(v uint8) {
	s := d.sim()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dmaReq = v
	if v != 0 {
		s.counts.DMARequests++
	}
}

func (d *dma) ArbGntRead() uint8 {
	s := d.sim()
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.grant(s.dmaGranted())
}

// EnableWrite plays back the whole trace synchronously.
func (d *dma) EnableWrite(v uint8) {
	if v == 0 {
		return
	}

	s := d.sim()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dmaGranted() {
		panic("rtiosim: DMA enabled while the DMA bus is not granted")
	}

	s.counts.Playbacks++
	s.enable = 1

	records, err := rtio.DecodeTrace(s.trace)
	if err != nil {
		panic(fmt.Sprintf("rtiosim: %v", err))
	}

	for _, rec := range records {
		ts := rec.Timestamp + s.timeOffset
		if ts < s.counter {
			s.flag(rtio.StatusUnderflow, ts, rec.Channel)
			continue
		}

		s.events = append(s.events, Event{
			Timestamp: ts,
			Channel:   rec.Channel,
			Address:   uint32(rec.Address),
			Data:      rec.Data,
			DMA:       true,
		})
	}

	if f := s.dmaInject; f != nil {
		s.dmaInject = nil
		s.flag(f.status, f.timestamp, f.channel)
	}
}

func (s *Sim) flag(status uint8, timestamp uint64, channel uint32) {
	if s.errStatus == 0 {
		s.errTime = timestamp
		s.errChannel = channel
	}
	s.errStatus |= status
}

// EnableRead reports completion on the poll after enabling.
func (d *dma) EnableRead() (v uint8) {
	lock.Guard(&d.mu, func() {
		v = d.enable
		d.enable = 0
	})
	return
}

func (d *dma) ErrorStatusRead() (v uint8) {
	lock.Guard(&d.mu, func() { v = d.errStatus })
	return
}

func (d *dma) ErrorTimestampRead() (v uint64) {
	lock.Guard(&d.mu, func() { v = d.errTime })
	return
}

func (d *dma) ErrorChannelRead() (v uint32) {
	lock.Guard(&d.mu, func() { v = d.errChannel })
	return
}

func (d *dma) reset(bit uint8, count *int) {
	lock.Guard(&d.mu, func() {
		d.errStatus &^= bit
		*count++
	})
}

func (d *dma) ErrorUnderflowResetWrite(uint8) {
	d.reset(rtio.StatusUnderflow, &d.counts.DMAUnderflowResets)
}

func (d *dma) ErrorSequenceErrorResetWrite(uint8) {
	d.reset(rtio.StatusSequenceError, &d.counts.DMASequenceErrorResets)
}

func (d *dma) ErrorCollisionResetWrite(uint8) {
	d.reset(rtio.StatusCollision, &d.counts.DMACollisionResets)
}

func (d *dma) ErrorBusyResetWrite(uint8) {
	d.reset(rtio.StatusBusy, &d.counts.DMABusyResets)
}
