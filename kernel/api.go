// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"reflect"
	"unicode/utf8"

	"amp.computer/exception"
	"amp.computer/message"
	"amp.computer/rtio"
)

// KernelExecAddress is where the runtime API is located in the kernel core's
// address space.  It lies below the payload window.
const KernelExecAddress = 0x40800000

const apiStride = 16

// Signatures of the runtime API functions.
type (
	LogFunc           = func(k *Core, text []byte)
	RTIOLogFunc       = func(k *Core, timestamp int64, text []byte)
	NowInitFunc       = func(k *Core) int64
	NowSaveFunc       = func(k *Core, now int64)
	WatchdogSetFunc   = func(k *Core, ms int64) int32
	WatchdogClearFunc = func(k *Core, id int32)
	CacheGetFunc      = func(k *Core, key string) []int32
	CachePutFunc      = func(k *Core, key string, value []int32)
	I2CBusFunc        = func(k *Core, bus int32)
	I2CWriteFunc      = func(k *Core, bus, data int32) bool
	I2CReadFunc       = func(k *Core, bus int32, ack bool) int32
	OutputFunc        = func(k *Core, timestamp int64, channel, address, data int32)
	OutputWideFunc    = func(k *Core, timestamp int64, channel, address int32, data []int32)
	CounterFunc       = func(k *Core) int64
	DMAStartFunc      = func(k *Core)
	DMANameFunc       = func(k *Core, name string)
	DMAPlaybackFunc   = func(k *Core, timestamp int64, name string)
	RPCSendFunc       = func(k *Core, service uint32, tag string, args []any)
	RPCRecvFunc       = func(k *Core, slot []byte) int
)

type apiFunc struct {
	name     string
	impl     any
	internal bool // Not resolvable by images.
	wrapped  any
}

var (
	apiFuncs []apiFunc
	apiIndex = make(map[string]int)
)

func init() {
	apiFuncs = []apiFunc{
		{name: "core_log", impl: LogFunc(coreLog)},
		{name: "rtio_log", impl: RTIOLogFunc(rtioLog)},
		{name: "now_init", impl: NowInitFunc(nowInit)},
		{name: "now_save", impl: NowSaveFunc(nowSave)},
		{name: "watchdog_set", impl: WatchdogSetFunc(watchdogSet)},
		{name: "watchdog_clear", impl: WatchdogClearFunc(watchdogClear)},
		{name: "cache_get", impl: CacheGetFunc(cacheGet)},
		{name: "cache_put", impl: CachePutFunc(cachePut)},
		{name: "i2c_start", impl: I2CBusFunc(i2cStart)},
		{name: "i2c_stop", impl: I2CBusFunc(i2cStop)},
		{name: "i2c_write", impl: I2CWriteFunc(i2cWrite)},
		{name: "i2c_read", impl: I2CReadFunc(i2cRead)},
		{name: "rtio_output", impl: OutputFunc(rtioOutput)},
		{name: "rtio_output_wide", impl: OutputWideFunc(rtioOutputWide)},
		{name: "rtio_get_counter", impl: CounterFunc(rtioGetCounter)},
		{name: "dma_record_start", impl: DMAStartFunc(dmaRecordStart)},
		{name: "dma_record_stop", impl: DMANameFunc(dmaRecordStop)},
		{name: "dma_erase", impl: DMANameFunc(dmaErase)},
		{name: "dma_playback", impl: DMAPlaybackFunc(dmaPlayback)},
		{name: "rpc_send", impl: RPCSendFunc(rpcSend)},
		{name: "rpc_send_async", impl: RPCSendFunc(rpcSendAsync)},
		{name: "rpc_recv", impl: RPCRecvFunc(rpcRecv)},
		{name: "dma_record_output", impl: OutputFunc(dmaRecordOutput), internal: true},
		{name: "dma_record_output_wide", impl: OutputWideFunc(dmaRecordOutputWide), internal: true},
	}

	for i := range apiFuncs {
		f := &apiFuncs[i]
		f.wrapped = wrapAPI(apiAddress(i), f.impl)
		apiIndex[f.name] = i
	}
}

// wrapAPI makes a function which records its address in the call stack of
// the core passed as the first argument.  The frame is left in place if the
// function raises.
func wrapAPI(addr uint32, impl any) any {
	v := reflect.ValueOf(impl)

	return reflect.MakeFunc(v.Type(), func(args []reflect.Value) []reflect.Value {
		k := args[0].Interface().(*Core)
		k.push(addr)
		results := v.Call(args)
		k.pop()
		return results
	}).Interface()
}

func apiAddress(index int) uint32 {
	return KernelExecAddress + uint32(index)*apiStride
}

func apiAddressOf(name string) uint32 {
	i, found := apiIndex[name]
	if !found {
		panic(name)
	}
	return apiAddress(i)
}

// resolve image imports against the API.
func resolve(name string) (uint32, bool) {
	i, found := apiIndex[name]
	if !found || apiFuncs[i].internal {
		return 0, false
	}
	return apiAddress(i), true
}

// APINames lists the functions which images may import.
func APINames() (names []string) {
	for _, f := range apiFuncs {
		if !f.internal {
			names = append(names, f.name)
		}
	}
	return
}

// Import returns the function which the image's import slot currently points
// to.  F must match the function's signature.
func Import[F any](k *Core, name string) F {
	addr, found := k.lib.Import(name)
	if !found {
		panic(fmt.Sprintf("kernel: image does not import %s", name))
	}

	i := int((addr - KernelExecAddress) / apiStride)
	if addr < KernelExecAddress || addr%apiStride != 0 || i >= len(apiFuncs) {
		panic(fmt.Sprintf("kernel: %s is bound to 0x%08x", name, addr))
	}

	f, ok := apiFuncs[i].wrapped.(F)
	if !ok {
		panic(fmt.Sprintf("kernel: %s is bound to %s which is not a %T", name, apiFuncs[i].name, f))
	}
	return f
}

func coreLog(k *Core, text []byte) {
	if utf8.Valid(text) {
		k.send(message.Log{Text: string(text)})
		return
	}

	n := 0
	for n < len(text) {
		r, size := utf8.DecodeRune(text[n:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		n += size
	}

	k.send(message.Log{Text: string(text[:n])})
	k.send(message.Log{Text: "(invalid utf-8)\n"})
}

func rtioLog(k *Core, timestamp int64, text []byte) {
	rtio.Log(k.config.RTIO, k.config.LogChannel, timestamp, text)
}

func nowInit(k *Core) int64 {
	return k.now
}

// nowSave only updates the core's time; it is reported to the runtime when
// the kernel terminates.
func nowSave(k *Core, now int64) {
	k.now = now
}

func watchdogSet(k *Core, ms int64) int32 {
	if ms < 0 {
		exception.Throw(exception.ValueError, "cannot set a watchdog with a negative timeout")
	}

	k.send(message.WatchdogSetRequest{Milliseconds: uint64(ms)})
	return int32(recv[message.WatchdogSetReply](k).ID)
}

func watchdogClear(k *Core, id int32) {
	k.send(message.WatchdogClear{ID: int(id)})
}

func cacheGet(k *Core, key string) []int32 {
	k.send(message.CacheGetRequest{Key: key})
	return recv[message.CacheGetReply](k).Value
}

func cachePut(k *Core, key string, value []int32) {
	k.send(message.CachePutRequest{Key: key, Value: value})
	if !recv[message.CachePutReply](k).Succeeded {
		exception.Throw(exception.CacheError, "cannot put into a busy cache row")
	}
}

func i2cStart(k *Core, bus int32) {
	k.send(message.I2CStartRequest{Bus: uint8(bus)})
}

func i2cStop(k *Core, bus int32) {
	k.send(message.I2CStopRequest{Bus: uint8(bus)})
}

func i2cWrite(k *Core, bus, data int32) bool {
	k.send(message.I2CWriteRequest{Bus: uint8(bus), Data: uint8(data)})
	return recv[message.I2CWriteReply](k).Ack
}

func i2cRead(k *Core, bus int32, ack bool) int32 {
	k.send(message.I2CReadRequest{Bus: uint8(bus), Ack: ack})
	return int32(recv[message.I2CReadReply](k).Data)
}

func rtioOutput(k *Core, timestamp int64, channel, address, data int32) {
	rtio.Output(k.config.RTIO, timestamp, channel, address, data)
}

func rtioOutputWide(k *Core, timestamp int64, channel, address int32, data []int32) {
	rtio.OutputWide(k.config.RTIO, timestamp, channel, address, data)
}

func rtioGetCounter(k *Core) int64 {
	return rtio.GetCounter(k.config.RTIO)
}
