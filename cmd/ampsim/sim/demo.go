// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"amp.computer/exception"
	"amp.computer/internal/test/elfimage"
	"amp.computer/kernel"
	"amp.computer/runtime"

	. "import.name/type/context"
)

// RPC services of the demo host.
const (
	ServicePrint = 1 // s:n
	ServiceSum   = 2 // ii:i
)

const pulseTrace = "pulses"

type DemoConfig struct {
	Channel  uint32
	Interval int64 // Machine units between pulses.
	Pulses   int
	Repeat   int
}

type demo struct {
	text  func(c *DemoConfig) kernel.Text
	image func() []byte
}

var demos = map[string]demo{
	"pulses": {pulsesText, pulsesImage},
	"rpc":    {rpcText, rpcImage},
	"eeprom": {eepromText, eepromImage},
	"fault":  {faultText, faultImage},
}

// DemoNames in sorted order.
func DemoNames() []string {
	return slices.Sorted(maps.Keys(demos))
}

func services(log *slog.Logger) (*runtime.Registry, error) {
	r := new(runtime.Registry)

	if err := r.RegisterFunc(ServicePrint, func(ctx Context, tag string, args []any) (any, error) {
		log.InfoContext(ctx, "kernel says", "text", args[0])
		return nil, nil
	}); err != nil {
		return nil, err
	}

	if err := r.RegisterFunc(ServiceSum, func(ctx Context, tag string, args []any) (any, error) {
		var sum int32
		for _, x := range args {
			sum += x.(int32)
		}
		return sum, nil
	}); err != nil {
		return nil, err
	}

	return r, nil
}

func newDemoImage(imports ...string) *elfimage.Builder {
	b := elfimage.New()
	b.Order = binary.LittleEndian
	b.Func("__modinit__")
	for _, name := range imports {
		b.Import(name)
	}
	return b
}

func coreLog(k *kernel.Core, format string, args ...any) {
	kernel.Import[kernel.LogFunc](k, "core_log")(k, fmt.Appendf(nil, format, args...))
}

// pulses records a pulse train into a DMA trace once and plays it back on
// every run.  The number of pulses played back is written back as an
// attribute.

func pulsesImage() []byte {
	b := newDemoImage("core_log", "rtio_output", "dma_record_start", "dma_record_stop", "dma_playback")
	stats := b.Zeros("stats", 4)
	b.Typeinfo(elfimage.Type{
		Attrs:   []elfimage.Attr{{Offset: 0, Tag: "Osi:n", Name: "played"}},
		Objects: []elfimage.Ref{stats},
	})
	return b.Image()
}

func pulsesText(c *DemoConfig) kernel.Text {
	return kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			playback := kernel.Import[kernel.DMAPlaybackFunc](k, "dma_playback")

			k.Delay(c.Interval)

			if e := k.Try(func() { playback(k, k.Now(), pulseTrace) }); e != nil {
				kernel.Import[kernel.DMAStartFunc](k, "dma_record_start")(k)
				output := kernel.Import[kernel.OutputFunc](k, "rtio_output")
				for i := range int64(c.Pulses) {
					output(k, i*c.Interval, int32(c.Channel), 0, 1)
					output(k, i*c.Interval+c.Interval/2, int32(c.Channel), 0, 0)
				}
				kernel.Import[kernel.DMANameFunc](k, "dma_record_stop")(k, pulseTrace)
				coreLog(k, "recorded %d pulses\n", c.Pulses)

				playback(k, k.Now(), pulseTrace)
			}

			k.Delay(int64(c.Pulses) * c.Interval)

			addr, _ := k.Library().Lookup("stats")
			if err := k.Window().Write32(addr, uint32(c.Pulses)); err != nil {
				panic(err)
			}
		},
	}
}

// rpc calls the host synchronously and asynchronously, and keeps a
// calibration row in the cache between runs.

func rpcImage() []byte {
	return newDemoImage("core_log", "cache_get", "cache_put", "rpc_send", "rpc_send_async", "rpc_recv").Image()
}

func rpcText(*DemoConfig) kernel.Text {
	return kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			row := kernel.Import[kernel.CacheGetFunc](k, "cache_get")(k, "calibration")
			if len(row) == 0 {
				row = []int32{3, 4}
				kernel.Import[kernel.CachePutFunc](k, "cache_put")(k, "calibration", row)
				coreLog(k, "calibrated\n")
			}

			sum := k.RPC(ServiceSum, "ii:i", row[0], row[1]).(int32)
			k.RPCAsync(ServicePrint, "s:n", fmt.Sprintf("sum of %v is %d", row, sum))
			coreLog(k, "sum %d\n", sum)
		},
	}
}

// eeprom writes a few bytes to the serial memory and reads them back.

// EEPROM is attached to every I2C bus at this address.
const EEPROMAddr = 0x50

const eepromBus = 0

func eepromImage() []byte {
	return newDemoImage("core_log", "i2c_start", "i2c_stop", "i2c_write", "i2c_read").Image()
}

func eepromText(*DemoConfig) kernel.Text {
	return kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			start := kernel.Import[kernel.I2CBusFunc](k, "i2c_start")
			stop := kernel.Import[kernel.I2CBusFunc](k, "i2c_stop")
			write := kernel.Import[kernel.I2CWriteFunc](k, "i2c_write")
			read := kernel.Import[kernel.I2CReadFunc](k, "i2c_read")

			const addr = EEPROMAddr << 1
			data := []int32{0x61, 0x6d, 0x70}

			start(k, eepromBus)
			if !write(k, eepromBus, addr) {
				stop(k, eepromBus)
				exception.Throw(exception.RuntimeError, "EEPROM did not acknowledge address {0}", addr>>1)
			}
			write(k, eepromBus, 0)
			for _, x := range data {
				write(k, eepromBus, x)
			}
			stop(k, eepromBus)

			start(k, eepromBus)
			write(k, eepromBus, addr)
			write(k, eepromBus, 0)
			start(k, eepromBus)
			write(k, eepromBus, addr|1)
			var readback []int32
			for i := range data {
				readback = append(readback, read(k, eepromBus, i < len(data)-1))
			}
			stop(k, eepromBus)

			coreLog(k, "eeprom %#x\n", readback)
		},
	}
}

// fault plays back a trace which doesn't exist from a nested function.

func faultImage() []byte {
	b := newDemoImage("dma_playback")
	b.Func("experiment")
	return b.Image()
}

func faultText(*DemoConfig) kernel.Text {
	return kernel.Text{
		"__modinit__": func(k *kernel.Core) {
			k.Call("experiment")
		},
		"experiment": func(k *kernel.Core) {
			kernel.Import[kernel.DMAPlaybackFunc](k, "dma_playback")(k, k.Now(), "missing")
		},
	}
}
