// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"

	"amp.computer/exception"
	"amp.computer/message"
	"amp.computer/rtio"
)

func dmaRecordStart(k *Core) {
	if k.recording {
		exception.Throw(exception.DMAError, "DMA is already recording")
	}

	k.rebind("rtio_output", "dma_record_output")
	k.rebind("rtio_output_wide", "dma_record_output_wide")

	k.recording = true
	k.send(message.DMARecordStart{})
}

func dmaRecordStop(k *Core, name string) {
	if !k.recording {
		exception.Throw(exception.DMAError, "DMA is not recording")
	}

	k.rebind("rtio_output", "rtio_output")
	k.rebind("rtio_output_wide", "rtio_output_wide")

	k.recording = false
	k.send(message.DMARecordStop{Name: name})
}

// rebind an import of the image to an API function, if the image imports it.
func (k *Core) rebind(name, target string) {
	if _, imported := k.lib.Import(name); !imported {
		return
	}

	if err := k.lib.Rebind(name, apiAddressOf(target)); err != nil {
		panic(fmt.Errorf("kernel: rebinding %s: %w", name, err))
	}
}

func dmaRecordOutput(k *Core, timestamp int64, channel, address, data int32) {
	k.send(message.DMARecordAppend{
		Timestamp: uint64(timestamp),
		Channel:   uint32(channel),
		Address:   uint32(address),
		Data:      []uint32{uint32(data)},
	})
}

func dmaRecordOutputWide(k *Core, timestamp int64, channel, address int32, data []int32) {
	if len(data) > rtio.MaxWideWords {
		panic(fmt.Sprintf("kernel: recording output event with %d data words", len(data)))
	}

	words := make([]uint32, len(data))
	for i, x := range data {
		words[i] = uint32(x)
	}

	k.send(message.DMARecordAppend{
		Timestamp: uint64(timestamp),
		Channel:   uint32(channel),
		Address:   uint32(address),
		Data:      words,
	})
}

func dmaErase(k *Core, name string) {
	k.send(message.DMAEraseRequest{Name: name})
}

func dmaPlayback(k *Core, timestamp int64, name string) {
	k.send(message.DMAPlaybackRequest{Name: name})

	reply := recv[message.DMAPlaybackReply](k)
	if !reply.Found {
		k.send(message.Log{Text: fmt.Sprintf("DMA trace called %q not found\n", name)})
		exception.Throw(exception.DMAError, "DMA trace not found")
	}

	rtio.Playback(k.config.RTIO, k.config.DMA, reply.Trace, timestamp)
}
