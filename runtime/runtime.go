// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runtime implements the runtime core's side of kernel execution.  It
// loads kernels, serves their requests and asynchronous remote procedure
// calls, and collects their outcome.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"amp.computer/exception"
	"amp.computer/internal/error/protocol"
	"amp.computer/internal/error/public"
	"amp.computer/internal/error/subsystem"
	"amp.computer/mailbox"
	"amp.computer/message"
	"amp.computer/rpcqueue"
	"amp.computer/runtime/cache"
	"amp.computer/runtime/i2c"
	"amp.computer/runtime/watchdog"
	"amp.computer/tracestore"
	"github.com/google/uuid"

	. "import.name/type/context"
)

// ErrWatchdogExpired is returned when a kernel runs past a watchdog which it
// has set.
var ErrWatchdogExpired = errors.New("watchdog expired")

// LoadError is returned when the kernel core rejects an image.  The manager
// remains usable.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "kernel load failed: " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

// PublicError is the underlying error's public description, if it has one.
func (e *LoadError) PublicError() string {
	return public.ErrorString(e.Err, "kernel load failed")
}

// StartFunc resets the kernel core and starts it.  The core must halt when the
// context is done.  The returned channel must be closed when it has halted.
type StartFunc func(ctx Context) (halted <-chan struct{})

type Config struct {
	// Traces defaults to an in-memory store.
	Traces tracestore.Store

	// Services are copied by New.
	Services *Registry

	// I2C buses are unavailable if not set.
	I2C i2c.Bus

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager of kernel runs.  Runs must not be made concurrently.
type Manager struct {
	config    Config
	end       *mailbox.Endpoint
	queue     *rpcqueue.Queue
	start     StartFunc
	cache     *cache.Cache
	watchdogs *watchdog.Set
	recorder  tracestore.Recorder
	now       uint64
}

// New manager which communicates through the runtime end of the mailbox pair
// and consumes the RPC queue.
func New(end *mailbox.Endpoint, queue *rpcqueue.Queue, start StartFunc, config Config) *Manager {
	if config.Traces == nil {
		config.Traces = tracestore.NewMemory()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Services = config.Services.Clone()

	config.Logger.Debug("RPC services registered", "services", config.Services.Numbers())

	return &Manager{
		config:    config,
		end:       end,
		queue:     queue,
		start:     start,
		cache:     cache.New(),
		watchdogs: watchdog.New(config.Clock),
	}
}

// Now is the logical time which was saved by the latest kernel.
func (m *Manager) Now() uint64 {
	return m.now
}

// SetNow sets the logical time for the next kernel.
func (m *Manager) SetNow(now uint64) {
	m.now = now
}

// Traces store.
func (m *Manager) Traces() tracestore.Store {
	return m.config.Traces
}

// Attribute value written back by a kernel.
type Attribute struct {
	Object uint32
	Name   string
	Value  any
}

// Result of a kernel run.
type Result struct {
	ID         uuid.UUID
	Now        uint64
	Log        string
	Attributes []Attribute

	// Exception which terminated the kernel, and the backtrace as offsets
	// within the image.
	Exception *exception.Exception
	Backtrace []uint32

	// Aborted is set if the kernel core halted due to a fatal fault.
	Aborted bool
}

// Run a kernel image to completion.  The error is a *LoadError if the image
// was rejected, a protocol error if the kernel core misbehaved,
// ErrWatchdogExpired or the context error.
func (m *Manager) Run(ctx Context, image []byte) (*Result, error) {
	r := &run{
		m:      m,
		result: &Result{ID: uuid.New()},
	}
	r.log = m.config.Logger.With("run", r.result.ID.String())

	kernelCtx, reset := context.WithCancel(ctx)
	halted := m.start(kernelCtx)

	defer func() {
		reset()
		<-halted
		if m.recorder.Recording() {
			r.log.WarnContext(ctx, "unfinished DMA recording discarded")
		}
		m.cleanup()
	}()

	r.log.DebugContext(ctx, "kernel loading", "size", len(image))

	if err := m.end.SendContext(ctx, message.LoadRequest{Image: image}); err != nil {
		return nil, err
	}

	reply, err := mailbox.Expect[message.LoadReply](ctx, m.end)
	if err != nil {
		r.log.ErrorContext(ctx, "kernel protocol error", "error", err)
		return nil, err
	}
	if reply.Err != nil {
		r.log.InfoContext(ctx, "kernel load failed", "error", reply.Err)
		return nil, &LoadError{reply.Err}
	}

	if err := r.serve(ctx); err != nil {
		return nil, err
	}
	return r.result, nil
}

// cleanup after the kernel core has halted.
func (m *Manager) cleanup() {
	m.end.Reset()
	m.queue.Reset()
	m.cache.Unborrow()
	m.watchdogs.Reset()
	m.recorder = tracestore.Recorder{}
}

type run struct {
	m       *Manager
	log     *slog.Logger
	result  *Result
	logText strings.Builder
	pending *rpcResult // Return value of the latest synchronous call.
	request message.Message
}

func (r *run) serve(ctx Context) error {
	m := r.m

	for {
		var (
			msg      message.Message
			drainErr error
		)
		// Frames enqueued before the message was posted are consumed before
		// it is acknowledged.
		if m.end.TryRecv(func(x message.Message) {
			msg = x
			drainErr = r.drain(ctx)
		}) {
			if drainErr != nil {
				return drainErr
			}

			done, err := r.handle(ctx, msg)
			if err != nil {
				return err
			}
			if done {
				r.result.Log = r.logText.String()
				return nil
			}
			continue
		}

		if err := r.drain(ctx); err != nil {
			return err
		}

		if m.watchdogs.Expired() {
			r.log.WarnContext(ctx, "kernel watchdog expired")
			return ErrWatchdogExpired
		}

		if err := r.wait(ctx); err != nil {
			return err
		}
	}
}

// wait until the kernel core has posted something or a watchdog deadline is
// reached.
func (r *run) wait(ctx Context) error {
	m := r.m

	var timeout <-chan time.Time
	if deadline, ok := m.watchdogs.Next(); ok {
		timer := time.NewTimer(deadline.Sub(m.config.Clock()))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-m.end.Notify():
	case <-m.queue.Notify():
	case <-timeout:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// reply to the kernel request being handled.
func (r *run) reply(ctx Context, m message.Message) error {
	if !message.Answers(m, r.request) {
		panic(fmt.Sprintf("runtime: %v does not answer %v", m, r.request))
	}
	return r.m.end.SendContext(ctx, m)
}

// handle a kernel request.  Done is true when the kernel has halted.
func (r *run) handle(ctx Context, msg message.Message) (done bool, err error) {
	m := r.m
	r.request = msg

	switch msg := msg.(type) {
	case message.Log:
		r.logText.WriteString(msg.Text)
		r.log.InfoContext(ctx, "kernel log", "text", strings.TrimSuffix(msg.Text, "\n"))

	case message.NowInitRequest:
		err = r.reply(ctx, message.NowInitReply{Now: m.now})

	case message.NowSave:
		m.now = msg.Now
		r.result.Now = msg.Now

	case message.WatchdogSetRequest:
		var id int
		id, err = m.watchdogs.Set(watchdog.Milliseconds(msg.Milliseconds))
		if err != nil {
			return
		}
		err = r.reply(ctx, message.WatchdogSetReply{ID: id})

	case message.WatchdogClear:
		m.watchdogs.Clear(msg.ID)

	case message.CacheGetRequest:
		err = r.reply(ctx, message.CacheGetReply{Value: m.cache.Get(msg.Key)})

	case message.CachePutRequest:
		err = r.reply(ctx, message.CachePutReply{Succeeded: m.cache.Put(msg.Key, msg.Value)})

	case message.I2CStartRequest:
		r.i2cError(ctx, "start", msg.Bus, r.i2c(func(bus i2c.Bus) error { return bus.Start(msg.Bus) }))

	case message.I2CStopRequest:
		r.i2cError(ctx, "stop", msg.Bus, r.i2c(func(bus i2c.Bus) error { return bus.Stop(msg.Bus) }))

	case message.I2CWriteRequest:
		var ack bool
		r.i2cError(ctx, "write", msg.Bus, r.i2c(func(bus i2c.Bus) (err error) {
			ack, err = bus.Write(msg.Bus, msg.Data)
			return
		}))
		err = r.reply(ctx, message.I2CWriteReply{Ack: ack})

	case message.I2CReadRequest:
		data := uint8(0xff)
		r.i2cError(ctx, "read", msg.Bus, r.i2c(func(bus i2c.Bus) (err error) {
			data, err = bus.Read(msg.Bus, msg.Ack)
			return
		}))
		err = r.reply(ctx, message.I2CReadReply{Data: data})

	case message.DMARecordStart:
		m.recorder.Start()

	case message.DMARecordAppend:
		err = r.recordAppend(msg)

	case message.DMARecordStop:
		err = r.recordStop(ctx, msg.Name)

	case message.DMAEraseRequest:
		err = subsystem.Wrap("tracestore", m.config.Traces.Erase(ctx, msg.Name))

	case message.DMAPlaybackRequest:
		err = r.playback(ctx, msg.Name)

	case message.RPCSend:
		if msg.Async {
			r.callAsync(ctx, msg.Service, msg.Tag, msg.Args)
		} else {
			r.pending = r.call(ctx, msg.Service, msg.Tag, msg.Args)
		}

	case message.RPCRecvRequest:
		err = r.recv(ctx, msg.Slot)

	case message.RunFinished:
		r.log.InfoContext(ctx, "kernel finished", "now", m.now)
		done = true

	case message.RunException:
		e := msg.Exception
		r.result.Exception = &e
		r.result.Backtrace = msg.Backtrace
		r.log.InfoContext(ctx, "kernel exception",
			"name", exception.ShortName(e.Name),
			"message", e.Format(),
			"location", e.Location(),
			"backtrace", fmt.Sprintf("%#x", msg.Backtrace))
		done = true

	case message.RunAborted:
		r.result.Aborted = true
		r.log.ErrorContext(ctx, "kernel aborted")
		done = true

	default:
		err = &protocol.Error{Expected: "kernel request", Received: msg}
	}

	if err != nil {
		r.log.ErrorContext(ctx, "kernel request failed", "request", msg.String(), "subsystem", subsystem.Get(err), "error", err)
	}
	return
}

func (r *run) i2c(f func(i2c.Bus) error) error {
	if r.m.config.I2C == nil {
		return subsystem.Wrap("i2c", errors.New("no I2C buses"))
	}
	return subsystem.Wrap("i2c", f(r.m.config.I2C))
}

func (r *run) i2cError(ctx Context, op string, bus uint8, err error) {
	if err != nil {
		r.log.WarnContext(ctx, "kernel I2C "+op+" failed", "bus", bus, "error", err)
	}
}
