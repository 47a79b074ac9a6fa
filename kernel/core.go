// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel implements the kernel core: it loads one image per run,
// executes it, and serves its calls to the runtime API.
//
// Every wait on the kernel core is a busy-wait.  The context passed to Main
// models the reset line: when it is done, a waiting core halts.
package kernel

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"amp.computer/exception"
	"amp.computer/loader"
	"amp.computer/mailbox"
	"amp.computer/message"
	"amp.computer/rpcqueue"
	"amp.computer/rtio"

	. "import.name/type/context"
)

type Config struct {
	RTIO rtio.Registers
	DMA  rtio.DMARegisters

	// Machine executes image code.
	Machine Machine

	// Window defaults to the payload window.
	Window *loader.Window

	// LogChannel is the RTIO channel of the analyzer log.
	LogChannel uint32
}

// Core state for one run.
type Core struct {
	config Config
	end    *mailbox.Endpoint
	queue  *rpcqueue.Queue
	window *loader.Window
	done   chan struct{}

	ctx       Context
	lib       *loader.Library
	now       int64
	stack     []uint32 // Call addresses, outermost first.
	recording bool
}

// New kernel core which communicates through the kernel end of the mailbox
// pair and produces into the RPC queue.
func New(end *mailbox.Endpoint, queue *rpcqueue.Queue, config Config) *Core {
	if config.Machine == nil {
		config.Machine = Text(nil)
	}
	if config.Window == nil {
		config.Window = loader.NewPayloadWindow()
	}

	return &Core{
		config: config,
		end:    end,
		queue:  queue,
		window: config.Window,
		done:   make(chan struct{}),
	}
}

// Done is closed when the core has halted.
func (k *Core) Done() <-chan struct{} {
	return k.done
}

// Main waits for an image, runs it and reports the outcome to the runtime
// core.  It returns when the core halts.
func (k *Core) Main(ctx Context) {
	k.ctx = ctx
	defer close(k.done)

	defer func() {
		if x := recover(); x != nil {
			file, line := panicSite()
			k.abort(x, file, line)
		}
	}()

	if e := exception.Catch(k.run); e != nil {
		k.terminate(e)
	}
}

func (k *Core) run() {
	var err error

	k.lib = recvWith(k, func(req message.LoadRequest) *loader.Library {
		var lib *loader.Library
		lib, err = loader.Load(req.Image, k.window, resolve)
		return lib
	})
	k.send(message.LoadReply{Err: err})
	if err != nil {
		halt()
	}

	bssStart := k.lookup("__bss_start")
	end := k.lookup("_end")
	modinit := k.lookup("__modinit__")
	typeinfo, hasTypeinfo := k.lib.Lookup("typeinfo")

	if err := k.window.Zero(bssStart, end); err != nil {
		panic(fmt.Errorf("kernel: bss: %w", err))
	}

	k.send(message.NowInitRequest{})
	k.now = int64(recv[message.NowInitReply](k).Now)

	k.config.Machine.Call(k, modinit)
	k.send(message.NowSave{Now: uint64(k.now)})

	if hasTypeinfo {
		k.writeback(typeinfo)
	}

	k.send(message.RunFinished{})
}

func (k *Core) lookup(name string) uint32 {
	addr, found := k.lib.Lookup(name)
	if !found {
		panic(fmt.Sprintf("kernel: image does not define %s", name))
	}
	return addr
}

// terminate reports an unhandled exception.
func (k *Core) terminate(e *exception.Exception) {
	bt := exception.TranslateBacktrace(k.Backtrace(), k.window.Base())

	k.send(message.NowSave{Now: uint64(k.now)})
	k.send(message.RunException{Exception: *e, Backtrace: bt})
}

// abort reports a fatal fault.
func (k *Core) abort(x any, file string, line int) {
	k.send(message.Log{Text: fmt.Sprintf("panic at %s:%d: %v\n", file, line, x)})
	k.send(message.RunAborted{})
}

// panicSite finds the location which panicked originally.  It must be called
// directly by a deferred function.
func panicSite() (file string, line int) {
	pcs := make([]uintptr, 128)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(2, pcs)])

	file = "<unknown>"
	panicking := false

	for more := true; more; {
		var f runtime.Frame
		f, more = frames.Next()

		switch {
		case f.Function == "runtime.gopanic":
			panicking = true

		case panicking && !strings.HasPrefix(f.Function, "runtime."):
			file, line = f.File, f.Line
			panicking = false
		}
	}

	return
}

// halt the core.  The goroutine exits.
func halt() {
	runtime.Goexit()
}

func (k *Core) send(m message.Message) {
	if k.end.SendContext(k.ctx, m) != nil {
		halt()
	}
}

// recvWith waits for a message of type T and invokes fn with it before
// acknowledging it.  Other message types cause a halt.
func recvWith[T message.Message, R any](k *Core, fn func(T) R) R {
	for {
		var (
			result R
			other  message.Message
		)

		if k.end.TryRecv(func(m message.Message) {
			if reply, ok := m.(T); ok {
				result = fn(reply)
			} else {
				other = m
			}
		}) {
			if other != nil {
				k.send(message.Log{Text: fmt.Sprintf("unexpected reply: %v\n", other)})
				halt()
			}
			return result
		}

		if k.ctx.Err() != nil {
			halt()
		}
		runtime.Gosched()
	}
}

func recv[T message.Message](k *Core) T {
	return recvWith(k, func(m T) T { return m })
}

// Poll halts the core if it has been reset.  Hosted code which runs for a long
// time without calling the runtime API should poll periodically.
func (k *Core) Poll() {
	if k.ctx.Err() != nil {
		halt()
	}
}

// spin until the condition holds.
func (k *Core) spin(cond func() bool) {
	for !cond() {
		if k.ctx.Err() != nil {
			halt()
		}
		runtime.Gosched()
	}
}

// Library which is being run.
func (k *Core) Library() *loader.Library {
	return k.lib
}

// Window of kernel memory.
func (k *Core) Window() *loader.Window {
	return k.window
}

// Now is the logical time cursor in machine units.
func (k *Core) Now() int64 {
	return k.now
}

func (k *Core) SetNow(t int64) {
	k.now = t
}

// Delay advances the logical time cursor.
func (k *Core) Delay(mu int64) {
	k.now += mu
}

// Recording reports if output events are being recorded into a DMA trace.
func (k *Core) Recording() bool {
	return k.recording
}

// Call an image function by name.
func (k *Core) Call(name string) {
	addr, found := k.lib.Lookup(name)
	if !found {
		panic(fmt.Sprintf("kernel: image does not define %s", name))
	}
	k.config.Machine.Call(k, addr)
}

// Try invokes f and returns the exception it raised, if any.  The call stack
// is unwound to its depth at the time of the call.
func (k *Core) Try(f func()) *exception.Exception {
	depth := len(k.stack)

	e := exception.Catch(f)
	if e != nil {
		k.stack = k.stack[:depth]
	}
	return e
}

// Backtrace of the current call stack, innermost first.
func (k *Core) Backtrace() []uint32 {
	bt := slices.Clone(k.stack)
	slices.Reverse(bt)
	return bt
}

func (k *Core) push(addr uint32) {
	k.stack = append(k.stack, addr)
}

func (k *Core) pop() {
	k.stack = k.stack[:len(k.stack)-1]
}
