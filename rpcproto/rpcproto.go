// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpcproto encodes remote procedure calls according to their type
// tags.
//
// A call is encoded as the service number (varint), the tag (length-delimited)
// and the argument values.  Integers are zigzag varints, floats are fixed64,
// objects are fixed32, strings are length-delimited and lists are prefixed
// with a varint element count.  Tuple and none values occupy only the space
// of their elements.
//
// Values are represented by these Go types:
//
//	n  nil
//	b  bool
//	i  int32
//	I  int64
//	f  float64
//	s  string
//	O  Object
//	l  []any
//	t  Tuple
package rpcproto

import (
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Object address in kernel memory.
type Object uint32

// Tuple value.
type Tuple []any

// Marshal a call into w.  If w is a Writer without enough space,
// io.ErrShortWrite is returned.
func Marshal(w io.Writer, service uint32, tag string, args []any) error {
	b, err := Append(nil, service, tag, args)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

// Append a call encoding to b.
func Append(b []byte, service uint32, tag string, args []any) ([]byte, error) {
	types, _, err := Split(tag)
	if err != nil {
		return b, err
	}
	if len(args) != len(types) {
		return b, fmt.Errorf("rpc tag %q specifies %d arguments, got %d", tag, len(types), len(args))
	}

	b = protowire.AppendVarint(b, uint64(service))
	b = protowire.AppendString(b, tag)

	for i, t := range types {
		b, err = AppendValue(b, t, args[i])
		if err != nil {
			return b, fmt.Errorf("rpc argument %d: %w", i, err)
		}
	}

	return b, nil
}

// Unmarshal a call.
func Unmarshal(b []byte) (service uint32, tag string, args []any, err error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		err = protowire.ParseError(n)
		return
	}
	if v > math.MaxUint32 {
		err = fmt.Errorf("rpc service number %d out of range", v)
		return
	}
	service = uint32(v)
	b = b[n:]

	tag, n = protowire.ConsumeString(b)
	if n < 0 {
		err = protowire.ParseError(n)
		return
	}
	b = b[n:]

	types, _, err := Split(tag)
	if err != nil {
		return
	}

	args = make([]any, len(types))
	for i, t := range types {
		args[i], n, err = ConsumeValue(b, t)
		if err != nil {
			err = fmt.Errorf("rpc argument %d: %w", i, err)
			return
		}
		b = b[n:]
	}

	if len(b) != 0 {
		err = fmt.Errorf("rpc call has %d trailing bytes", len(b))
	}
	return
}

// MarshalValue encodes a single value.
func MarshalValue(tag string, value any) ([]byte, error) {
	if n, err := typeLen(tag); err != nil || n != len(tag) {
		return nil, fmt.Errorf("invalid type tag %q", tag)
	}
	return AppendValue(nil, tag, value)
}

// UnmarshalValue decodes a single value which must span all of b.
func UnmarshalValue(tag string, b []byte) (any, error) {
	if n, err := typeLen(tag); err != nil || n != len(tag) {
		return nil, fmt.Errorf("invalid type tag %q", tag)
	}

	v, n, err := ConsumeValue(b, tag)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("%d trailing bytes after %q value", len(b)-n, tag)
	}
	return v, nil
}

// AppendValue of a single type.  The tag must be a valid single type tag.
func AppendValue(b []byte, tag string, value any) ([]byte, error) {
	mismatch := func() ([]byte, error) {
		return b, fmt.Errorf("%T value does not match type tag %q", value, tag)
	}

	switch tag[0] {
	case TagNone:
		if value != nil {
			return mismatch()
		}
		return b, nil

	case TagBool:
		x, ok := value.(bool)
		if !ok {
			return mismatch()
		}
		return protowire.AppendVarint(b, protowire.EncodeBool(x)), nil

	case TagInt32:
		var x int64
		switch v := value.(type) {
		case int32:
			x = int64(v)
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return b, fmt.Errorf("value %d does not fit in int32", v)
			}
			x = int64(v)
		default:
			return mismatch()
		}
		return protowire.AppendVarint(b, protowire.EncodeZigZag(x)), nil

	case TagInt64:
		var x int64
		switch v := value.(type) {
		case int64:
			x = v
		case int:
			x = int64(v)
		default:
			return mismatch()
		}
		return protowire.AppendVarint(b, protowire.EncodeZigZag(x)), nil

	case TagFloat:
		x, ok := value.(float64)
		if !ok {
			return mismatch()
		}
		return protowire.AppendFixed64(b, math.Float64bits(x)), nil

	case TagString:
		x, ok := value.(string)
		if !ok {
			return mismatch()
		}
		return protowire.AppendString(b, x), nil

	case TagObject:
		x, ok := value.(Object)
		if !ok {
			return mismatch()
		}
		return protowire.AppendFixed32(b, uint32(x)), nil

	case TagList:
		x, ok := value.([]any)
		if !ok {
			return mismatch()
		}
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, elt := range x {
			var err error
			if b, err = AppendValue(b, tag[1:], elt); err != nil {
				return b, err
			}
		}
		return b, nil

	case TagTuple:
		x, ok := value.(Tuple)
		if !ok {
			return mismatch()
		}
		elts := Elements(tag)
		if len(x) != len(elts) {
			return b, fmt.Errorf("tuple of %d values does not match type tag %q", len(x), tag)
		}
		for i, t := range elts {
			var err error
			if b, err = AppendValue(b, t, x[i]); err != nil {
				return b, err
			}
		}
		return b, nil
	}

	return b, fmt.Errorf("unknown type tag %q", tag)
}

// ConsumeValue of a single type.  The number of bytes consumed is returned.
func ConsumeValue(b []byte, tag string) (value any, n int, err error) {
	switch tag[0] {
	case TagNone:
		return nil, 0, nil

	case TagBool:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		return protowire.DecodeBool(v), n, nil

	case TagInt32:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		x := protowire.DecodeZigZag(v)
		if x < math.MinInt32 || x > math.MaxInt32 {
			return nil, 0, fmt.Errorf("value %d does not fit in int32", x)
		}
		return int32(x), n, nil

	case TagInt64:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		return protowire.DecodeZigZag(v), n, nil

	case TagFloat:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		return math.Float64frombits(v), n, nil

	case TagString:
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		return v, n, nil

	case TagObject:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		return Object(v), n, nil

	case TagList:
		count, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		if count > uint64(len(b)) {
			return nil, 0, fmt.Errorf("list length %d exceeds input", count)
		}
		list := make([]any, 0, int(count))
		for range count {
			elt, m, err := ConsumeValue(b[n:], tag[1:])
			if err != nil {
				return nil, 0, err
			}
			list = append(list, elt)
			n += m
		}
		return list, n, nil

	case TagTuple:
		elts := Elements(tag)
		tuple := make(Tuple, len(elts))
		for i, t := range elts {
			elt, m, err := ConsumeValue(b[n:], t)
			if err != nil {
				return nil, 0, err
			}
			tuple[i] = elt
			n += m
		}
		return tuple, n, nil
	}

	return nil, 0, fmt.Errorf("unknown type tag %q", tag)
}
