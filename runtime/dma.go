// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"errors"
	"fmt"

	"amp.computer/internal/error/subsystem"
	"amp.computer/message"
	"amp.computer/rtio"
	"amp.computer/tracestore"

	. "import.name/type/context"
)

func (r *run) recordAppend(msg message.DMARecordAppend) error {
	if msg.Address > 0xffff {
		return fmt.Errorf("DMA record address %d out of range", msg.Address)
	}

	return r.m.recorder.Append(rtio.Record{
		Timestamp: msg.Timestamp,
		Channel:   msg.Channel,
		Address:   uint16(msg.Address),
		Data:      msg.Data,
	})
}

func (r *run) recordStop(ctx Context, name string) error {
	trace, err := r.m.recorder.Finish()
	if err != nil {
		return err
	}

	if err := r.m.config.Traces.Put(ctx, name, trace); err != nil {
		return fmt.Errorf("storing DMA trace %q: %w", name, subsystem.Wrap("tracestore", err))
	}

	r.log.DebugContext(ctx, "DMA trace recorded", "name", name, "size", len(trace))
	return nil
}

func (r *run) playback(ctx Context, name string) error {
	trace, err := r.m.config.Traces.Get(ctx, name)
	if err != nil {
		if !errors.Is(err, tracestore.ErrNotFound) {
			return fmt.Errorf("loading DMA trace %q: %w", name, subsystem.Wrap("tracestore", err))
		}
		return r.reply(ctx, message.DMAPlaybackReply{Found: false})
	}

	return r.reply(ctx, message.DMAPlaybackReply{Trace: trace, Found: true})
}
