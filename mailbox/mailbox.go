// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mailbox implements the acknowledged single-slot message transport
// between the kernel core and the runtime core.
//
// A message is posted by storing its address in the slot.  The receiver
// borrows the message while the slot is occupied, and acknowledges it by
// clearing the slot.  The sender may not reuse the message before that.
package mailbox

import (
	"runtime"
	"sync/atomic"

	"amp.computer/internal/error/protocol"
	"amp.computer/message"
	"import.name/flux"

	. "import.name/type/context"
)

// Mailbox is one direction of the transport.
type Mailbox struct {
	slot  atomic.Pointer[message.Message]
	waker flux.Waker
}

func newMailbox() *Mailbox {
	return &Mailbox{
		waker: flux.MakeWaker(),
	}
}

// Post a message without waiting for acknowledgement.
func (mb *Mailbox) Post(m message.Message) {
	if !mb.slot.CompareAndSwap(nil, &m) {
		panic("mailbox: message posted before previous one was acknowledged")
	}
	mb.waker.Poke()
}

// Acknowledged reports if the slot is vacant.
func (mb *Mailbox) Acknowledged() bool {
	return mb.slot.Load() == nil
}

func (mb *Mailbox) peek() *message.Message {
	return mb.slot.Load()
}

func (mb *Mailbox) acknowledge() {
	mb.slot.Store(nil)
}

// Endpoint is one core's view of a pair of mailboxes.
type Endpoint struct {
	out *Mailbox
	in  *Mailbox
}

// NewPair of connected endpoints.
func NewPair() (kernelEnd, runtimeEnd *Endpoint) {
	k2r := newMailbox()
	r2k := newMailbox()

	kernelEnd = &Endpoint{out: k2r, in: r2k}
	runtimeEnd = &Endpoint{out: r2k, in: k2r}
	return
}

// Send a message and busy-wait until the peer has acknowledged it.
func (e *Endpoint) Send(m message.Message) {
	e.out.Post(m)
	for !e.out.Acknowledged() {
		runtime.Gosched()
	}
}

// SendContext is like Send, but gives up when the context is done.  The
// message stays posted in that case.
func (e *Endpoint) SendContext(ctx Context, m message.Message) error {
	e.out.Post(m)
	for !e.out.Acknowledged() {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// Reset vacates both slots.  It may be used only while the peer is halted.
func (e *Endpoint) Reset() {
	e.in.acknowledge()
	e.out.acknowledge()
}

// Notify channel receives a value after messages have been posted to the
// endpoint.
func (e *Endpoint) Notify() <-chan struct{} {
	return e.in.waker.Chan()
}

// TryRecv invokes fn with a pending message, if any.  The message is
// acknowledged after fn returns.
func (e *Endpoint) TryRecv(fn func(message.Message)) bool {
	p := e.in.peek()
	if p == nil {
		return false
	}

	fn(*p)
	e.in.acknowledge()
	return true
}

// Wait until a message might be available.
func (e *Endpoint) Wait(ctx Context) error {
	if e.in.peek() != nil {
		return nil
	}

	select {
	case <-e.in.waker.Chan():
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv busy-waits for a message and invokes fn with it.  The message is
// acknowledged after fn returns, so it can't be modified by the peer during
// the call.  The result of fn is returned.
func Recv[R any](e *Endpoint, fn func(message.Message) R) R {
	for {
		if p := e.in.peek(); p != nil {
			r := fn(*p)
			e.in.acknowledge()
			return r
		}
		runtime.Gosched()
	}
}

// Expect waits for a message of type T.  A message of another type is
// acknowledged and reported as a protocol error.
func Expect[T message.Message](ctx Context, e *Endpoint) (T, error) {
	for {
		var (
			m  T
			ok bool
			x  message.Message
		)
		if e.TryRecv(func(msg message.Message) {
			x = msg
			m, ok = msg.(T)
		}) {
			if !ok {
				return m, protocol.Unexpected[T](x)
			}
			return m, nil
		}

		if err := e.Wait(ctx); err != nil {
			return m, err
		}
	}
}
