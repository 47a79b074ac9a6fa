// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package message defines the requests and replies exchanged between the
// kernel core and the runtime core.
package message

import (
	"fmt"

	"amp.computer/exception"
)

// Message is one of the types defined in this package.
type Message interface {
	fmt.Stringer
	message()
}

type LoadRequest struct{ Image []byte }
type LoadReply struct{ Err error }
type NowInitRequest struct{}
type NowInitReply struct{ Now uint64 }
type NowSave struct{ Now uint64 }
type RunFinished struct{}
type RunAborted struct{}

type RunException struct {
	Exception exception.Exception
	Backtrace []uint32
}

type RPCSend struct {
	Async   bool
	Service uint32
	Tag     string
	Args    []any
}

// RPCRecvRequest offers a slot for the return value of the latest
// synchronous RPC.  The first request of a call has no slot.
type RPCRecvRequest struct{ Slot []byte }

// RPCRecvReply specifies the slot size needed for the return value, or zero
// if the value has been stored.  Exception is set if the remote call raised.
type RPCRecvReply struct {
	AllocSize int
	Exception *exception.Exception
}

type WatchdogSetRequest struct{ Milliseconds uint64 }
type WatchdogSetReply struct{ ID int }
type WatchdogClear struct{ ID int }

type CacheGetRequest struct{ Key string }
type CacheGetReply struct{ Value []int32 }

type CachePutRequest struct {
	Key   string
	Value []int32
}

type CachePutReply struct{ Succeeded bool }

type I2CStartRequest struct{ Bus uint8 }
type I2CStopRequest struct{ Bus uint8 }

type I2CWriteRequest struct {
	Bus  uint8
	Data uint8
}

type I2CWriteReply struct{ Ack bool }

type I2CReadRequest struct {
	Bus uint8
	Ack bool
}

type I2CReadReply struct{ Data uint8 }

type DMARecordStart struct{}
type DMARecordStop struct{ Name string }

type DMARecordAppend struct {
	Timestamp uint64
	Channel   uint32
	Address   uint32
	Data      []uint32
}

type DMAEraseRequest struct{ Name string }
type DMAPlaybackRequest struct{ Name string }

type DMAPlaybackReply struct {
	Trace []byte
	Found bool
}

type Log struct{ Text string }

func (LoadRequest) message()        {}
func (LoadReply) message()          {}
func (NowInitRequest) message()     {}
func (NowInitReply) message()       {}
func (NowSave) message()            {}
func (RunFinished) message()        {}
func (RunAborted) message()         {}
func (RunException) message()       {}
func (RPCSend) message()            {}
func (RPCRecvRequest) message()     {}
func (RPCRecvReply) message()       {}
func (WatchdogSetRequest) message() {}
func (WatchdogSetReply) message()   {}
func (WatchdogClear) message()      {}
func (CacheGetRequest) message()    {}
func (CacheGetReply) message()      {}
func (CachePutRequest) message()    {}
func (CachePutReply) message()      {}
func (I2CStartRequest) message()    {}
func (I2CStopRequest) message()     {}
func (I2CWriteRequest) message()    {}
func (I2CWriteReply) message()      {}
func (I2CReadRequest) message()     {}
func (I2CReadReply) message()       {}
func (DMARecordStart) message()     {}
func (DMARecordStop) message()      {}
func (DMARecordAppend) message()    {}
func (DMAEraseRequest) message()    {}
func (DMAPlaybackRequest) message() {}
func (DMAPlaybackReply) message()   {}
func (Log) message()                {}

func (m LoadRequest) String() string    { return fmt.Sprintf("LoadRequest(%d bytes)", len(m.Image)) }
func (m LoadReply) String() string      { return fmt.Sprintf("LoadReply(%v)", m.Err) }
func (NowInitRequest) String() string   { return "NowInitRequest" }
func (m NowInitReply) String() string   { return fmt.Sprintf("NowInitReply(%d)", m.Now) }
func (m NowSave) String() string        { return fmt.Sprintf("NowSave(%d)", m.Now) }
func (RunFinished) String() string      { return "RunFinished" }
func (RunAborted) String() string       { return "RunAborted" }
func (m RunException) String() string   { return fmt.Sprintf("RunException(%v)", &m.Exception) }
func (m RPCRecvRequest) String() string { return fmt.Sprintf("RPCRecvRequest(%d bytes)", len(m.Slot)) }
func (m WatchdogSetRequest) String() string {
	return fmt.Sprintf("WatchdogSetRequest(%d ms)", m.Milliseconds)
}
func (m WatchdogSetReply) String() string   { return fmt.Sprintf("WatchdogSetReply(%d)", m.ID) }
func (m WatchdogClear) String() string      { return fmt.Sprintf("WatchdogClear(%d)", m.ID) }
func (m CacheGetRequest) String() string    { return fmt.Sprintf("CacheGetRequest(%q)", m.Key) }
func (m CacheGetReply) String() string      { return fmt.Sprintf("CacheGetReply(%v)", m.Value) }
func (m CachePutRequest) String() string    { return fmt.Sprintf("CachePutRequest(%q, %v)", m.Key, m.Value) }
func (m CachePutReply) String() string      { return fmt.Sprintf("CachePutReply(%t)", m.Succeeded) }
func (m I2CStartRequest) String() string    { return fmt.Sprintf("I2CStartRequest(%d)", m.Bus) }
func (m I2CStopRequest) String() string     { return fmt.Sprintf("I2CStopRequest(%d)", m.Bus) }
func (m I2CWriteRequest) String() string    { return fmt.Sprintf("I2CWriteRequest(%d, 0x%02x)", m.Bus, m.Data) }
func (m I2CWriteReply) String() string      { return fmt.Sprintf("I2CWriteReply(%t)", m.Ack) }
func (m I2CReadRequest) String() string     { return fmt.Sprintf("I2CReadRequest(%d, %t)", m.Bus, m.Ack) }
func (m I2CReadReply) String() string       { return fmt.Sprintf("I2CReadReply(0x%02x)", m.Data) }
func (DMARecordStart) String() string       { return "DMARecordStart" }
func (m DMARecordStop) String() string      { return fmt.Sprintf("DMARecordStop(%q)", m.Name) }
func (m DMAEraseRequest) String() string    { return fmt.Sprintf("DMAEraseRequest(%q)", m.Name) }
func (m DMAPlaybackRequest) String() string { return fmt.Sprintf("DMAPlaybackRequest(%q)", m.Name) }
func (m Log) String() string                { return fmt.Sprintf("Log(%q)", m.Text) }

func (m RPCSend) String() string {
	kind := "RPCSend"
	if m.Async {
		kind = "RPCSendAsync"
	}
	return fmt.Sprintf("%s(%d, %q, %d args)", kind, m.Service, m.Tag, len(m.Args))
}

func (m RPCRecvReply) String() string {
	if m.Exception != nil {
		return fmt.Sprintf("RPCRecvReply(%v)", m.Exception)
	}
	return fmt.Sprintf("RPCRecvReply(%d)", m.AllocSize)
}

func (m DMARecordAppend) String() string {
	return fmt.Sprintf("DMARecordAppend(%d, %d, %d, %v)", m.Timestamp, m.Channel, m.Address, m.Data)
}

func (m DMAPlaybackReply) String() string {
	if !m.Found {
		return "DMAPlaybackReply(not found)"
	}
	return fmt.Sprintf("DMAPlaybackReply(%d bytes)", len(m.Trace))
}
