// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"errors"
	"fmt"
	"io"

	"amp.computer/exception"
	"amp.computer/message"
	"amp.computer/rpcproto"
	"amp.computer/rpcqueue"
)

func rpcSend(k *Core, service uint32, tag string, args []any) {
	k.spin(k.queue.Empty)
	k.send(message.RPCSend{Service: service, Tag: tag, Args: args})
}

// rpcSendAsync enqueues the call.  A call which doesn't fit in a queue chunk
// is sent through the mailbox after the queue has been drained, so that the
// order of calls is preserved.
func rpcSendAsync(k *Core, service uint32, tag string, args []any) {
	k.spin(func() bool { return !k.queue.Full() })

	err := k.queue.Enqueue(func(frame []byte) error {
		return rpcqueue.WriteFrame(frame, func(payload []byte) (int, error) {
			w := rpcproto.NewWriter(payload)
			err := rpcproto.Marshal(w, service, tag, args)
			return w.Len(), err
		})
	})
	if err == nil {
		return
	}
	if !errors.Is(err, io.ErrShortWrite) {
		panic(fmt.Errorf("kernel: async RPC: %w", err))
	}

	k.spin(k.queue.Empty)
	k.send(message.RPCSend{Async: true, Service: service, Tag: tag, Args: args})
}

// rpcRecv offers a slot for the return value of the latest synchronous call.
// A nonzero result is the slot size needed; the call must be repeated with a
// slot of that size.
func rpcRecv(k *Core, slot []byte) int {
	k.send(message.RPCRecvRequest{Slot: slot})

	reply := recv[message.RPCRecvReply](k)
	if reply.Exception != nil {
		e := *reply.Exception
		exception.Raise(&e)
	}
	return reply.AllocSize
}

// RPC calls a runtime service through the image's imports and waits for the
// result, which is decoded according to the return type of the tag.
func (k *Core) RPC(service uint32, tag string, args ...any) any {
	_, ret, err := rpcproto.Split(tag)
	if err != nil {
		panic(err)
	}

	Import[RPCSendFunc](k, "rpc_send")(k, service, tag, args)

	recvFunc := Import[RPCRecvFunc](k, "rpc_recv")
	var slot []byte
	for size := recvFunc(k, nil); size != 0; size = recvFunc(k, slot) {
		slot = make([]byte, size)
	}

	value, err := rpcproto.UnmarshalValue(ret, slot)
	if err != nil {
		panic(fmt.Errorf("kernel: RPC return value: %w", err))
	}
	return value
}

// RPCAsync calls a runtime service without waiting.
func (k *Core) RPCAsync(service uint32, tag string, args ...any) {
	Import[RPCSendFunc](k, "rpc_send_async")(k, service, tag, args)
}
