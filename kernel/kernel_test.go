// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel_test

import (
	"context"
	"debug/elf"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"amp.computer/exception"
	"amp.computer/internal/error/badimage"
	"amp.computer/internal/test/elfimage"
	"amp.computer/kernel"
	"amp.computer/loader"
	"amp.computer/mailbox"
	"amp.computer/message"
	"amp.computer/rpcproto"
	"amp.computer/rpcqueue"
	"amp.computer/rtio"
	"amp.computer/rtio/rtiosim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "import.name/testing/mustr"
)

const (
	testTimeout    = 10 * time.Second
	testLogChannel = 99
	testNow        = 1000
)

// peer plays the runtime core.
type peer struct {
	t      *testing.T
	ctx    context.Context
	end    *mailbox.Endpoint
	queue  *rpcqueue.Queue
	sim    *rtiosim.Sim
	k      *kernel.Core
	cancel context.CancelFunc
}

func start(t *testing.T, text kernel.Text) *peer {
	t.Helper()

	kernelEnd, runtimeEnd := mailbox.NewPair()
	queue := Must(t, R(rpcqueue.New(make([]byte, 4*rpcqueue.ChunkSize))))
	sim := rtiosim.New()

	k := kernel.New(kernelEnd, queue, kernel.Config{
		RTIO:       sim.Registers(),
		DMA:        sim.DMA(),
		Machine:    text,
		LogChannel: testLogChannel,
	})

	kernelCtx, cancel := context.WithCancel(t.Context())
	go k.Main(kernelCtx)

	t.Cleanup(func() {
		cancel()
		<-k.Done()
	})

	ctx, timeout := context.WithTimeout(t.Context(), testTimeout)
	t.Cleanup(timeout)

	return &peer{t, ctx, runtimeEnd, queue, sim, k, cancel}
}

func expect[T message.Message](p *peer) T {
	p.t.Helper()
	return Must(p.t, R(mailbox.Expect[T](p.ctx, p.end)))
}

func (p *peer) reply(m message.Message) {
	p.t.Helper()
	require.NoError(p.t, p.end.SendContext(p.ctx, m))
}

// load the image and answer the logical time request.
func (p *peer) load(image []byte) {
	p.t.Helper()

	p.reply(message.LoadRequest{Image: image})
	require.NoError(p.t, expect[message.LoadReply](p).Err)
	expect[message.NowInitRequest](p)
	p.reply(message.NowInitReply{Now: testNow})
}

func (p *peer) halted() {
	p.t.Helper()

	select {
	case <-p.k.Done():
	case <-p.ctx.Done():
		p.t.Fatal("kernel core did not halt")
	}
}

func (p *peer) finish() {
	p.t.Helper()

	expect[message.NowSave](p)
	expect[message.RunFinished](p)
	p.halted()
}

func newImage(imports ...string) (*elfimage.Builder, elfimage.Ref) {
	b := elfimage.New()
	modinit := b.Func("__modinit__")
	for _, name := range imports {
		b.Import(name)
	}
	return b, modinit
}

func TestRun(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			kernel.Import[kernel.LogFunc](k, "core_log")(k, []byte("hello\n"))
			k.Delay(5)
		},
	})

	b, _ := newImage("core_log")
	p.load(b.Image())

	assert.Equal(t, "hello\n", expect[message.Log](p).Text)
	assert.Equal(t, uint64(testNow+5), expect[message.NowSave](p).Now)
	expect[message.RunFinished](p)
	p.halted()
}

func TestBSSIsZeroed(t *testing.T) {
	var counter uint32

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			addr, _ := k.Library().Lookup("counter")
			counter = Must(t, R(k.Window().Read32(addr)))
		},
	})

	b, _ := newImage()
	b.Zeros("counter", 4)

	p.load(b.Image())
	p.finish()
	assert.Zero(t, counter)
}

func TestLoadError(t *testing.T) {
	called := false

	p := start(t, kernel.Text{
		"__modinit__": func(*kernel.Core) { called = true },
	})

	b, _ := newImage("no_such_function")

	p.reply(message.LoadRequest{Image: b.Image()})
	err := expect[message.LoadReply](p).Err
	assert.True(t, badimage.Is(err))
	assert.Contains(t, err.Error(), "no_such_function")

	p.halted()
	assert.False(t, called)
}

func TestMissingEntryAborts(t *testing.T) {
	p := start(t, nil)

	b := elfimage.New()
	b.Func("main")

	p.reply(message.LoadRequest{Image: b.Image()})
	require.NoError(t, expect[message.LoadReply](p).Err)

	log := expect[message.Log](p).Text
	assert.True(t, strings.HasPrefix(log, "panic at "), log)
	assert.Contains(t, log, "__modinit__")
	expect[message.RunAborted](p)
	p.halted()
}

func TestPanicAborts(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(*kernel.Core) { panic("boom") },
	})

	b, _ := newImage()
	p.load(b.Image())

	log := expect[message.Log](p).Text
	assert.Contains(t, log, "kernel_test.go")
	assert.True(t, strings.HasSuffix(log, ": boom\n"), log)
	expect[message.RunAborted](p)
	p.halted()
}

func TestUnhandledException(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			k.Delay(10)
			k.Call("helper")
		},
		"helper": func(k *kernel.Core) {
			kernel.Import[kernel.WatchdogSetFunc](k, "watchdog_set")(k, -1)
		},
	})

	b, modinit := newImage("watchdog_set")
	helper := b.Func("helper")
	p.load(b.Image())

	assert.Equal(t, uint64(testNow+10), expect[message.NowSave](p).Now)

	m := expect[message.RunException](p)
	assert.Equal(t, exception.QualifiedName(exception.ValueError), m.Exception.Name)
	assert.Equal(t, "cannot set a watchdog with a negative timeout", m.Exception.Message)
	assert.Equal(t, []uint32{b.Addr(helper), b.Addr(modinit)}, m.Backtrace)
	p.halted()
}

func TestTry(t *testing.T) {
	var (
		caught *exception.Exception
		bt     []uint32
	)

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			caught = k.Try(func() {
				kernel.Import[kernel.WatchdogSetFunc](k, "watchdog_set")(k, -1)
			})
			bt = k.Backtrace()
		},
	})

	b, modinit := newImage("watchdog_set")
	p.load(b.Image())
	p.finish()

	require.NotNil(t, caught)
	assert.ErrorIs(t, caught, exception.New(exception.ValueError, ""))
	assert.Equal(t, []uint32{loader.PayloadAddress + b.Addr(modinit)}, bt)
}

func TestUnexpectedReply(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			kernel.Import[kernel.WatchdogSetFunc](k, "watchdog_set")(k, 100)
		},
	})

	b, _ := newImage("watchdog_set")
	p.load(b.Image())

	assert.Equal(t, uint64(100), expect[message.WatchdogSetRequest](p).Milliseconds)
	p.reply(message.CacheGetReply{})

	assert.Equal(t, "unexpected reply: CacheGetReply([])\n", expect[message.Log](p).Text)
	p.halted()
}

func TestHaltOnReset(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			kernel.Import[kernel.I2CReadFunc](k, "i2c_read")(k, 0, true)
		},
	})

	b, _ := newImage("i2c_read")
	p.load(b.Image())

	expect[message.I2CReadRequest](p)
	p.cancel()
	p.halted()
}

func TestServices(t *testing.T) {
	var (
		id       int32
		row      []int32
		busy     *exception.Exception
		ack      bool
		data     int32
		duration int64
	)

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			id = kernel.Import[kernel.WatchdogSetFunc](k, "watchdog_set")(k, 250)
			kernel.Import[kernel.WatchdogClearFunc](k, "watchdog_clear")(k, id)

			row = kernel.Import[kernel.CacheGetFunc](k, "cache_get")(k, "row")
			busy = k.Try(func() {
				kernel.Import[kernel.CachePutFunc](k, "cache_put")(k, "row", []int32{4})
			})

			kernel.Import[kernel.I2CBusFunc](k, "i2c_start")(k, 1)
			ack = kernel.Import[kernel.I2CWriteFunc](k, "i2c_write")(k, 1, 0xa0)
			data = kernel.Import[kernel.I2CReadFunc](k, "i2c_read")(k, 1, false)
			kernel.Import[kernel.I2CBusFunc](k, "i2c_stop")(k, 1)

			now := kernel.Import[kernel.NowInitFunc](k, "now_init")(k)
			kernel.Import[kernel.NowSaveFunc](k, "now_save")(k, now+1000)
			duration = k.Now() - now
		},
	})

	b, _ := newImage(
		"watchdog_set", "watchdog_clear", "cache_get", "cache_put",
		"i2c_start", "i2c_stop", "i2c_write", "i2c_read", "now_init", "now_save",
	)
	p.load(b.Image())

	assert.Equal(t, uint64(250), expect[message.WatchdogSetRequest](p).Milliseconds)
	p.reply(message.WatchdogSetReply{ID: 3})
	assert.Equal(t, 3, expect[message.WatchdogClear](p).ID)

	assert.Equal(t, "row", expect[message.CacheGetRequest](p).Key)
	p.reply(message.CacheGetReply{Value: []int32{1, 2, 3}})
	assert.Equal(t, message.CachePutRequest{Key: "row", Value: []int32{4}}, expect[message.CachePutRequest](p))
	p.reply(message.CachePutReply{Succeeded: false})

	assert.Equal(t, uint8(1), expect[message.I2CStartRequest](p).Bus)
	assert.Equal(t, message.I2CWriteRequest{Bus: 1, Data: 0xa0}, expect[message.I2CWriteRequest](p))
	p.reply(message.I2CWriteReply{Ack: true})
	assert.Equal(t, message.I2CReadRequest{Bus: 1, Ack: false}, expect[message.I2CReadRequest](p))
	p.reply(message.I2CReadReply{Data: 0x5a})
	assert.Equal(t, uint8(1), expect[message.I2CStopRequest](p).Bus)

	assert.Equal(t, uint64(testNow+1000), expect[message.NowSave](p).Now)
	expect[message.RunFinished](p)
	p.halted()

	assert.Equal(t, int32(3), id)
	assert.Equal(t, []int32{1, 2, 3}, row)
	require.NotNil(t, busy)
	assert.Equal(t, exception.QualifiedName(exception.CacheError), busy.Name)
	assert.Equal(t, "cannot put into a busy cache row", busy.Message)
	assert.True(t, ack)
	assert.Equal(t, int32(0x5a), data)
	assert.Equal(t, int64(1000), duration)
}

func TestInvalidUTF8(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			kernel.Import[kernel.LogFunc](k, "core_log")(k, []byte("ok\xffrest"))
		},
	})

	b, _ := newImage("core_log")
	p.load(b.Image())

	assert.Equal(t, "ok", expect[message.Log](p).Text)
	assert.Equal(t, "(invalid utf-8)\n", expect[message.Log](p).Text)
	p.finish()
}

func TestRTIO(t *testing.T) {
	var counter int64

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			counter = kernel.Import[kernel.CounterFunc](k, "rtio_get_counter")(k)
			kernel.Import[kernel.OutputFunc](k, "rtio_output")(k, 2000, 1, 0, 7)
			kernel.Import[kernel.OutputWideFunc](k, "rtio_output_wide")(k, 2100, 2, 3, []int32{8, 9})
			kernel.Import[kernel.RTIOLogFunc](k, "rtio_log")(k, 2200, []byte("hi"))
		},
	})
	p.sim.SetCounter(1500)

	b, _ := newImage("rtio_get_counter", "rtio_output", "rtio_output_wide", "rtio_log")
	p.load(b.Image())
	p.finish()

	assert.Equal(t, int64(1500), counter)
	assert.Equal(t, []rtiosim.Event{
		{Timestamp: 2000, Channel: 1, Data: []uint32{7}},
		{Timestamp: 2100, Channel: 2, Address: 3, Data: []uint32{8, 9}},
		{Timestamp: 2200, Channel: testLogChannel, Data: []uint32{'h'<<8 | 'i'}},
	}, p.sim.Events())
}

func TestDMARecording(t *testing.T) {
	var (
		again   *exception.Exception
		unknown *exception.Exception
	)

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			record := kernel.Import[kernel.DMAStartFunc](k, "dma_record_start")
			stop := kernel.Import[kernel.DMANameFunc](k, "dma_record_stop")

			record(k)
			assert.True(t, k.Recording())
			again = k.Try(func() { record(k) })

			kernel.Import[kernel.OutputFunc](k, "rtio_output")(k, 100, 5, 0, 1)
			kernel.Import[kernel.OutputWideFunc](k, "rtio_output_wide")(k, 200, 6, 2, []int32{-1, 3})
			stop(k, "pulses")
			assert.False(t, k.Recording())

			unknown = k.Try(func() { stop(k, "pulses") })

			kernel.Import[kernel.OutputFunc](k, "rtio_output")(k, 3000, 5, 0, 1)
			kernel.Import[kernel.DMANameFunc](k, "dma_erase")(k, "pulses")
		},
	})

	b, _ := newImage("dma_record_start", "dma_record_stop", "dma_erase", "rtio_output", "rtio_output_wide")
	p.load(b.Image())

	expect[message.DMARecordStart](p)
	assert.Equal(t, message.DMARecordAppend{Timestamp: 100, Channel: 5, Data: []uint32{1}}, expect[message.DMARecordAppend](p))
	assert.Equal(t, message.DMARecordAppend{Timestamp: 200, Channel: 6, Address: 2, Data: []uint32{0xffffffff, 3}}, expect[message.DMARecordAppend](p))
	assert.Equal(t, "pulses", expect[message.DMARecordStop](p).Name)
	assert.Equal(t, "pulses", expect[message.DMAEraseRequest](p).Name)
	p.finish()

	require.NotNil(t, again)
	assert.Equal(t, exception.QualifiedName(exception.DMAError), again.Name)
	assert.Equal(t, "DMA is already recording", again.Message)

	require.NotNil(t, unknown)
	assert.Equal(t, exception.QualifiedName(exception.DMAError), unknown.Name)
	assert.Equal(t, "DMA is not recording", unknown.Message)

	assert.Equal(t, []rtiosim.Event{{Timestamp: 3000, Channel: 5, Data: []uint32{1}}}, p.sim.Events())
}

func TestDMARecordingTooWide(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			kernel.Import[kernel.DMAStartFunc](k, "dma_record_start")(k)
			kernel.Import[kernel.OutputWideFunc](k, "rtio_output_wide")(k, 0, 1, 0, make([]int32, rtio.MaxWideWords+1))
		},
	})

	b, _ := newImage("dma_record_start", "rtio_output_wide")
	p.load(b.Image())

	expect[message.DMARecordStart](p)
	assert.Contains(t, expect[message.Log](p).Text, "17 data words")
	expect[message.RunAborted](p)
	p.halted()
}

func TestDMAPlaybackNotFound(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			kernel.Import[kernel.DMAPlaybackFunc](k, "dma_playback")(k, 0, "missing")
		},
	})

	b, _ := newImage("dma_playback")
	p.load(b.Image())

	assert.Equal(t, "missing", expect[message.DMAPlaybackRequest](p).Name)
	p.reply(message.DMAPlaybackReply{Found: false})
	assert.Equal(t, "DMA trace called \"missing\" not found\n", expect[message.Log](p).Text)

	expect[message.NowSave](p)
	m := expect[message.RunException](p)
	assert.Equal(t, exception.QualifiedName(exception.DMAError), m.Exception.Name)
	assert.Equal(t, "DMA trace not found", m.Exception.Message)
	p.halted()

	c := p.sim.Counts()
	assert.Zero(t, c.DMARequests)
	assert.Zero(t, c.Playbacks)
}

func TestDMAPlayback(t *testing.T) {
	var underflow *exception.Exception

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			playback := kernel.Import[kernel.DMAPlaybackFunc](k, "dma_playback")
			playback(k, 10000, "pulses")
			underflow = k.Try(func() { playback(k, 500, "pulses") })
		},
	})
	p.sim.SetCounter(1000)

	var trace []byte
	trace = Must(t, R(rtio.AppendRecord(trace, rtio.Record{Timestamp: 0, Channel: 9, Data: []uint32{1}})))
	trace = rtio.FinishTrace(trace)

	b, _ := newImage("dma_playback")
	p.load(b.Image())

	for range 2 {
		assert.Equal(t, "pulses", expect[message.DMAPlaybackRequest](p).Name)
		p.reply(message.DMAPlaybackReply{Trace: trace, Found: true})
	}
	p.finish()

	assert.Equal(t, []rtiosim.Event{{Timestamp: 10000, Channel: 9, Data: []uint32{1}, DMA: true}}, p.sim.Events())

	require.NotNil(t, underflow)
	assert.Equal(t, exception.QualifiedName(exception.RTIOUnderflow), underflow.Name)
	assert.Equal(t, [3]int64{500, 9, 0}, underflow.Param)

	c := p.sim.Counts()
	assert.Equal(t, 2, c.Playbacks)
	assert.Equal(t, 1, c.DMAUnderflowResets)
}

func dequeue(t *testing.T, q *rpcqueue.Queue) (service uint32, tag string, args []any) {
	t.Helper()

	require.NoError(t, q.Dequeue(func(frame []byte) (err error) {
		payload, err := rpcqueue.ReadFrame(frame)
		if err != nil {
			return err
		}
		service, tag, args, err = rpcproto.Unmarshal(payload)
		return err
	}))
	return
}

func TestAsyncRPCOrder(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			for i := range 3 {
				k.RPCAsync(7, "i:n", int32(i))
			}
		},
	})

	b, _ := newImage("rpc_send_async")
	p.load(b.Image())
	p.finish()

	for i := range 3 {
		service, tag, args := dequeue(t, p.queue)
		assert.Equal(t, uint32(7), service)
		assert.Equal(t, "i:n", tag)
		assert.Equal(t, []any{int32(i)}, args)
	}
	assert.True(t, p.queue.Empty())
}

func TestAsyncRPCTooLarge(t *testing.T) {
	large := strings.Repeat("x", rpcqueue.ChunkSize)

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			k.RPCAsync(1, "s:n", "small")
			k.RPCAsync(1, "s:n", large)
		},
	})

	b, _ := newImage("rpc_send_async")
	p.load(b.Image())

	// The large call waits until the queue has been drained.
	for p.queue.Empty() {
		time.Sleep(time.Millisecond)
	}
	_, _, args := dequeue(t, p.queue)
	assert.Equal(t, []any{"small"}, args)

	m := expect[message.RPCSend](p)
	assert.True(t, m.Async)
	assert.Equal(t, uint32(1), m.Service)
	assert.Equal(t, []any{large}, m.Args)
	p.finish()
}

func TestSyncRPC(t *testing.T) {
	var result any

	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			k.RPCAsync(2, "s:n", "before")
			result = k.RPC(5, "ii:I", int32(2), int32(3))
		},
	})

	b, _ := newImage("rpc_send", "rpc_send_async", "rpc_recv")
	p.load(b.Image())

	// The synchronous call waits until the queue has been drained.
	for p.queue.Empty() {
		time.Sleep(time.Millisecond)
	}
	_, _, args := dequeue(t, p.queue)
	assert.Equal(t, []any{"before"}, args)

	send := expect[message.RPCSend](p)
	assert.Equal(t, message.RPCSend{Service: 5, Tag: "ii:I", Args: []any{int32(2), int32(3)}}, send)

	value := Must(t, R(rpcproto.MarshalValue("I", int64(5))))

	assert.Empty(t, expect[message.RPCRecvRequest](p).Slot)
	p.reply(message.RPCRecvReply{AllocSize: len(value)})

	// Fill in the slot before replying.
	m := Must(t, R(mailbox.Expect[message.RPCRecvRequest](p.ctx, p.end)))
	require.Len(t, m.Slot, len(value))
	copy(m.Slot, value)
	p.reply(message.RPCRecvReply{})

	p.finish()
	assert.Equal(t, int64(5), result)
}

func TestSyncRPCException(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			k.RPC(5, ":n")
		},
	})

	b, _ := newImage("rpc_send", "rpc_recv")
	p.load(b.Image())

	expect[message.RPCSend](p)
	expect[message.RPCRecvRequest](p)

	remote := exception.New("ZeroDivisionError", "division by zero")
	p.reply(message.RPCRecvReply{Exception: remote})

	expect[message.NowSave](p)
	m := expect[message.RunException](p)
	assert.Equal(t, *remote, m.Exception)
	p.halted()
}

func TestWriteback(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {},
	})

	b, _ := newImage()
	b.Order = binary.LittleEndian

	content := make([]byte, 12)
	binary.LittleEndian.PutUint32(content[4:], 42)
	obj := b.Object("obj", content)

	b.Typeinfo(elfimage.Type{
		Attrs: []elfimage.Attr{
			{Offset: 0, Tag: "", Name: "hidden"},
			{Offset: 4, Tag: "Osi:n", Name: "x"},
		},
		Objects: []elfimage.Ref{obj},
	})

	p.load(b.Image())
	p.finish()

	service, tag, args := dequeue(t, p.queue)
	assert.Equal(t, uint32(0), service)
	assert.Equal(t, "Osi:n", tag)
	assert.Equal(t, []any{rpcproto.Object(loader.PayloadAddress + b.Addr(obj)), "x", int32(42)}, args)
	assert.True(t, p.queue.Empty())
}

func TestWritebackAggregate(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {},
	})

	b, _ := newImage()

	items := b.Word(5)
	b.Word(6)
	b.Word(7)

	obj := b.Pointer(items)
	b.Word(3)
	b.Word(9)
	b.Put([]byte{1, 0, 0, 0})
	b.Define("obj", obj, 16, elf.STT_OBJECT)

	b.Typeinfo(elfimage.Type{
		Attrs: []elfimage.Attr{
			{Offset: 0, Tag: "Osli:n", Name: "samples"},
			{Offset: 8, Tag: "Ost\x02ib:n", Name: "setting"},
		},
		Objects: []elfimage.Ref{obj},
	})

	p.load(b.Image())
	p.finish()

	objAddr := rpcproto.Object(loader.PayloadAddress + b.Addr(obj))

	_, tag, args := dequeue(t, p.queue)
	assert.Equal(t, "Osli:n", tag)
	assert.Equal(t, []any{objAddr, "samples", []any{int32(5), int32(6), int32(7)}}, args)

	_, tag, args = dequeue(t, p.queue)
	assert.Equal(t, "Ost\x02ib:n", tag)
	assert.Equal(t, []any{objAddr, "setting", rpcproto.Tuple{int32(9), true}}, args)

	assert.True(t, p.queue.Empty())
}

func TestWritebackOutOfBounds(t *testing.T) {
	p := start(t, kernel.Text{
		"__modinit__": func(k *kernel.Core) {},
	})

	b, _ := newImage()
	obj := b.Object("obj", make([]byte, 4))
	b.Typeinfo(elfimage.Type{
		Attrs:   []elfimage.Attr{{Offset: 4, Tag: "OsI:n", Name: "y"}},
		Objects: []elfimage.Ref{obj},
	})

	p.load(b.Image())
	expect[message.NowSave](p)

	assert.Contains(t, expect[message.Log](p).Text, "attribute y at offset 4 exceeds obj")
	expect[message.RunAborted](p)
	p.halted()
	assert.True(t, p.queue.Empty())
}

func TestAPINames(t *testing.T) {
	names := kernel.APINames()
	assert.Contains(t, names, "rpc_send_async")
	assert.Contains(t, names, "dma_playback")
	assert.NotContains(t, names, "dma_record_output")
}
