// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package message

import (
	"testing"

	"amp.computer/exception"
	"github.com/stretchr/testify/assert"
)

func TestReplyOf(t *testing.T) {
	for _, pair := range [][2]Message{
		{LoadRequest{}, LoadReply{}},
		{NowInitRequest{}, NowInitReply{}},
		{RPCRecvRequest{}, RPCRecvReply{}},
		{WatchdogSetRequest{}, WatchdogSetReply{}},
		{CacheGetRequest{}, CacheGetReply{}},
		{CachePutRequest{}, CachePutReply{}},
		{I2CWriteRequest{}, I2CWriteReply{}},
		{I2CReadRequest{}, I2CReadReply{}},
		{DMAPlaybackRequest{}, DMAPlaybackReply{}},
	} {
		req, rep := pair[0], pair[1]
		zero, ok := ReplyOf(req)
		assert.True(t, ok, req.String())
		assert.Equal(t, rep, zero)
		assert.True(t, Answers(rep, req))
	}
}

func TestNotAnswered(t *testing.T) {
	for _, m := range []Message{
		NowSave{},
		RunFinished{},
		RunAborted{},
		RunException{},
		RPCSend{},
		WatchdogClear{},
		I2CStartRequest{},
		I2CStopRequest{},
		DMARecordStart{},
		DMARecordStop{},
		DMARecordAppend{},
		DMAEraseRequest{},
		Log{},
	} {
		_, ok := ReplyOf(m)
		assert.False(t, ok, m.String())
	}

	assert.False(t, Answers(CacheGetReply{}, CachePutRequest{}))
}

func TestString(t *testing.T) {
	assert.Equal(t, "RPCSendAsync(3, \"i:n\", 1 args)", RPCSend{Async: true, Service: 3, Tag: "i:n", Args: []any{int32(1)}}.String())
	assert.Equal(t, "DMAPlaybackReply(not found)", DMAPlaybackReply{}.String())
	assert.Equal(t, "LoadRequest(4 bytes)", LoadRequest{Image: make([]byte, 4)}.String())

	e := exception.New(exception.DMAError, "DMA trace not found")
	assert.Equal(t, "RPCRecvReply(DMAError: DMA trace not found)", RPCRecvReply{Exception: e}.String())
}
