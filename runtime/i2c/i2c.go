// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package i2c provides the I2C buses which kernels access through the runtime
// core.
package i2c

import (
	"fmt"
	"sync"

	"import.name/lock"
)

// Bus controller.  Bus numbers select one of the controller's buses.
type Bus interface {
	Start(bus uint8) error
	Stop(bus uint8) error
	Write(bus, data uint8) (ack bool, err error)
	Read(bus uint8, ack bool) (data uint8, err error)
}

// Device on a simulated bus.
type Device interface {
	// Select is called when the device is addressed.
	Select(read bool)

	// Write a byte after the address.  False means NACK.
	Write(data uint8) bool

	// Read a byte.
	Read() uint8
}

type busState struct {
	started   bool
	addressed bool
	reading   bool
	device    Device
}

// Sim is a controller with simulated devices.
type Sim struct {
	mu      sync.Mutex
	buses   []busState
	devices map[uint8]Device // Keyed by 7-bit address.
}

func NewSim(buses int) *Sim {
	return &Sim{
		buses:   make([]busState, buses),
		devices: make(map[uint8]Device),
	}
}

// Attach a device at a 7-bit address on every bus.
func (s *Sim) Attach(addr uint8, dev Device) {
	lock.Guard(&s.mu, func() {
		s.devices[addr&0x7f] = dev
	})
}

func (s *Sim) bus(n uint8) (*busState, error) {
	if int(n) >= len(s.buses) {
		return nil, fmt.Errorf("invalid I2C bus %d", n)
	}
	return &s.buses[n], nil
}

func (s *Sim) Start(n uint8) (err error) {
	lock.Guard(&s.mu, func() {
		var b *busState
		if b, err = s.bus(n); err == nil {
			*b = busState{started: true}
		}
	})
	return
}

func (s *Sim) Stop(n uint8) (err error) {
	lock.Guard(&s.mu, func() {
		var b *busState
		if b, err = s.bus(n); err == nil {
			*b = busState{}
		}
	})
	return
}

// Write a byte.  The first byte after start is the address byte.
func (s *Sim) Write(n, data uint8) (ack bool, err error) {
	lock.Guard(&s.mu, func() {
		var b *busState
		if b, err = s.bus(n); err != nil {
			return
		}
		if !b.started {
			err = fmt.Errorf("I2C bus %d: write without start condition", n)
			return
		}

		if !b.addressed {
			b.device = s.devices[data>>1]
			b.reading = data&1 != 0
			b.addressed = true
			if b.device != nil {
				b.device.Select(b.reading)
				ack = true
			}
			return
		}

		if b.device != nil && !b.reading {
			ack = b.device.Write(data)
		}
	})
	return
}

// Read a byte.  An unaddressed bus reads as 0xff.
func (s *Sim) Read(n uint8, ack bool) (data uint8, err error) {
	lock.Guard(&s.mu, func() {
		var b *busState
		if b, err = s.bus(n); err != nil {
			return
		}
		if !b.started {
			err = fmt.Errorf("I2C bus %d: read without start condition", n)
			return
		}

		data = 0xff
		if b.device != nil && b.reading {
			data = b.device.Read()
		}
	})
	return
}

// Memory is a device with an address pointer, like a serial EEPROM.  The
// first byte written after addressing sets the pointer.
type Memory struct {
	Data    []byte
	pointer int
	set     bool
}

func (m *Memory) Select(read bool) {
	if !read {
		m.set = false
	}
}

func (m *Memory) Write(data uint8) bool {
	if !m.set {
		m.pointer = int(data)
		m.set = true
		return true
	}

	if m.pointer >= len(m.Data) {
		return false
	}
	m.Data[m.pointer] = data
	m.pointer++
	return true
}

func (m *Memory) Read() uint8 {
	if m.pointer >= len(m.Data) {
		return 0xff
	}
	data := m.Data[m.pointer]
	m.pointer++
	return data
}
