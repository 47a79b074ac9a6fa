// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package message

import (
	"reflect"
)

var replies = map[reflect.Type]Message{
	reflect.TypeFor[LoadRequest]():        LoadReply{},
	reflect.TypeFor[NowInitRequest]():     NowInitReply{},
	reflect.TypeFor[RPCRecvRequest]():     RPCRecvReply{},
	reflect.TypeFor[WatchdogSetRequest](): WatchdogSetReply{},
	reflect.TypeFor[CacheGetRequest]():    CacheGetReply{},
	reflect.TypeFor[CachePutRequest]():    CachePutReply{},
	reflect.TypeFor[I2CWriteRequest]():    I2CWriteReply{},
	reflect.TypeFor[I2CReadRequest]():     I2CReadReply{},
	reflect.TypeFor[DMAPlaybackRequest](): DMAPlaybackReply{},
}

// ReplyOf returns the zero value of the reply type which answers req.  False
// is returned for messages which are not answered.
func ReplyOf(req Message) (Message, bool) {
	rep, ok := replies[reflect.TypeOf(req)]
	return rep, ok
}

// Answers reports if rep is the reply type of req.
func Answers(rep, req Message) bool {
	zero, ok := ReplyOf(req)
	return ok && reflect.TypeOf(zero) == reflect.TypeOf(rep)
}
