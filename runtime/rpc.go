// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"errors"
	"fmt"

	"amp.computer/exception"
	"amp.computer/internal/error/protocol"
	"amp.computer/message"
	"amp.computer/rpcproto"
	"amp.computer/rpcqueue"

	. "import.name/type/context"
)

type rpcResult struct {
	value     []byte // Encoded.
	exception *exception.Exception
}

// drain the asynchronous calls from the queue.
func (r *run) drain(ctx Context) error {
	for {
		var (
			service uint32
			tag     string
			args    []any
		)

		err := r.m.queue.Dequeue(func(frame []byte) error {
			payload, err := rpcqueue.ReadFrame(frame)
			if err != nil {
				return err
			}
			service, tag, args, err = rpcproto.Unmarshal(payload)
			return err
		})
		if errors.Is(err, rpcqueue.ErrWouldBlock) {
			return nil
		}
		if err != nil {
			r.log.ErrorContext(ctx, "kernel async RPC", "error", err)
			return fmt.Errorf("async RPC: %w", err)
		}

		r.callAsync(ctx, service, tag, args)
	}
}

func (r *run) callAsync(ctx Context, service uint32, tag string, args []any) {
	if res := r.call(ctx, service, tag, args); res.exception != nil {
		r.log.WarnContext(ctx, "kernel async RPC raised",
			"service", service,
			"name", exception.ShortName(res.exception.Name),
			"message", res.exception.Format())
	}
}

// call a service.  The result is encoded according to the tag's return type.
func (r *run) call(ctx Context, service uint32, tag string, args []any) *rpcResult {
	_, ret, err := rpcproto.Split(tag)
	if err != nil {
		return &rpcResult{exception: exception.New(exception.RuntimeError, err.Error())}
	}

	var result any

	if service == WritebackService {
		err = r.writeback(tag, args)
	} else if s, found := r.m.config.Services.lookup(service); found {
		result, err = s.Call(ctx, tag, args)
	} else {
		err = exception.New(exception.RuntimeError, "RPC service {0} not found", int64(service))
	}
	if err != nil {
		var e *exception.Exception
		if !errors.As(err, &e) {
			e = exception.New(exception.RuntimeError, err.Error())
		}
		return &rpcResult{exception: e}
	}

	value, err := rpcproto.MarshalValue(ret, result)
	if err != nil {
		e := exception.New(exception.RuntimeError, "RPC service {0} returned an invalid value", int64(service))
		r.log.ErrorContext(ctx, "kernel RPC service", "service", service, "error", err)
		return &rpcResult{exception: e}
	}

	return &rpcResult{value: value}
}

// writeback records an attribute value.
func (r *run) writeback(tag string, args []any) error {
	if len(args) != 3 {
		return fmt.Errorf("attribute writeback tag %q", tag)
	}

	obj, ok1 := args[0].(rpcproto.Object)
	name, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return fmt.Errorf("attribute writeback tag %q", tag)
	}

	r.result.Attributes = append(r.result.Attributes, Attribute{
		Object: uint32(obj),
		Name:   name,
		Value:  args[2],
	})
	return nil
}

// recv stores the pending return value in the slot.  The kernel is told to
// allocate a larger slot if necessary.
func (r *run) recv(ctx Context, slot []byte) error {
	res := r.pending
	if res == nil {
		return &protocol.Error{
			Expected: "synchronous RPC",
			Received: message.RPCRecvRequest{Slot: slot},
		}
	}

	if res.exception != nil {
		r.pending = nil
		return r.reply(ctx, message.RPCRecvReply{Exception: res.exception})
	}

	if len(slot) < len(res.value) {
		return r.reply(ctx, message.RPCRecvReply{AllocSize: len(res.value)})
	}

	copy(slot, res.value)
	r.pending = nil
	return r.reply(ctx, message.RPCRecvReply{})
}
