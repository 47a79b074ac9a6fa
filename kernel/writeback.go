// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"math"

	"amp.computer/loader"
	"amp.computer/message"
	"amp.computer/rpcproto"
)

// Type information layout
const (
	typeAttrs   = 0
	typeObjects = 4

	attrOffset  = 0
	attrTag     = 4
	attrName    = 12
	sliceLength = 4
)

// writeback sends the tagged attributes of every object listed in the type
// information to the attribute writeback service.  The type information is a
// null-terminated array of type pointers.
func (k *Core) writeback(typeinfo uint32) {
	for types := typeinfo; ; types += 4 {
		ty := k.read32(types)
		if ty == 0 {
			break
		}

		attrs := k.read32(ty + typeAttrs)
		objects := k.read32(ty + typeObjects)

		for o := objects; ; o += 4 {
			obj := k.read32(o)
			if obj == 0 {
				break
			}

			for a := attrs; ; a += 4 {
				attr := k.read32(a)
				if attr == 0 {
					break
				}

				k.writebackAttr(obj, attr)
			}
		}
	}
}

func (k *Core) writebackAttr(obj, attr uint32) {
	offset := k.read32(attr + attrOffset)
	tag := k.readString(attr + attrTag)
	name := k.readString(attr + attrName)

	if tag == "" {
		return
	}

	types, _, err := rpcproto.Split(tag)
	if err != nil || len(types) != 3 || types[0] != "O" || types[1] != "s" {
		panic(fmt.Sprintf("kernel: attribute %s has invalid tag %q", name, tag))
	}

	size, _ := valueLayout(types[2])
	if size == 0 {
		k.send(message.Log{Text: fmt.Sprintf("attribute %s has unsupported type %q\n", name, types[2])})
		return
	}

	if sym, found := k.lib.SymbolAt(obj); found && sym.Addr == obj && sym.Size > 0 {
		if uint64(offset)+uint64(size) > uint64(sym.Size) {
			panic(fmt.Sprintf("kernel: attribute %s at offset %d exceeds %s", name, offset, sym.Name))
		}
	}

	value := k.readValue(types[2], obj+offset)
	rpcSendAsync(k, 0, tag, []any{rpcproto.Object(obj), name, value})
}

// valueLayout returns the size and alignment of a value in kernel memory.
// Strings and lists are pointer and length pairs; tuple elements are laid out
// inline.
func valueLayout(tag string) (size, align uint32) {
	switch tag[0] {
	case rpcproto.TagBool:
		return 1, 1

	case rpcproto.TagInt32, rpcproto.TagObject:
		return 4, 4

	case rpcproto.TagInt64, rpcproto.TagFloat, rpcproto.TagString, rpcproto.TagList:
		return 8, 4

	case rpcproto.TagTuple:
		align = 1
		for _, elt := range rpcproto.Elements(tag) {
			s, a := valueLayout(elt)
			size = alignUp(size, a) + s
			align = max(align, a)
		}
		return alignUp(size, align), align

	default:
		return 0, 1
	}
}

func alignUp(n, a uint32) uint32 {
	return (n + a - 1) &^ (a - 1)
}

func (k *Core) readValue(tag string, addr uint32) any {
	switch tag[0] {
	case rpcproto.TagNone:
		return nil

	case rpcproto.TagBool:
		b, err := k.window.Read8(addr)
		k.check(err)
		return b != 0

	case rpcproto.TagInt32:
		return int32(k.read32(addr))

	case rpcproto.TagInt64:
		return int64(k.read64(addr))

	case rpcproto.TagFloat:
		return math.Float64frombits(k.read64(addr))

	case rpcproto.TagString:
		return k.readString(addr)

	case rpcproto.TagObject:
		return rpcproto.Object(k.read32(addr))

	case rpcproto.TagList:
		ptr := k.read32(addr)
		n := k.read32(addr + sliceLength)
		stride, _ := valueLayout(tag[1:])
		if uint64(n)*uint64(max(stride, 1)) > uint64(k.window.Size()) {
			k.check(fmt.Errorf("list of %d elements: %w", n, loader.ErrOutOfBounds))
		}

		list := make([]any, n)
		for i := range list {
			list[i] = k.readValue(tag[1:], ptr+uint32(i)*stride)
		}
		return list

	case rpcproto.TagTuple:
		var (
			tuple  rpcproto.Tuple
			offset uint32
		)
		for _, elt := range rpcproto.Elements(tag) {
			size, align := valueLayout(elt)
			offset = alignUp(offset, align)
			tuple = append(tuple, k.readValue(elt, addr+offset))
			offset += size
		}
		return tuple

	default:
		panic(tag)
	}
}

func (k *Core) check(err error) {
	if err != nil {
		panic(fmt.Errorf("kernel: %w", err))
	}
}

func (k *Core) read32(addr uint32) uint32 {
	x, err := k.window.Read32(addr)
	k.check(err)
	return x
}

func (k *Core) read64(addr uint32) uint64 {
	x, err := k.window.Read64(addr)
	k.check(err)
	return x
}

// readString reads a pointer and length pair.
func (k *Core) readString(addr uint32) string {
	ptr := k.read32(addr)
	n := k.read32(addr + sliceLength)
	if n == 0 {
		return ""
	}

	b, err := k.window.Bytes(ptr, n)
	k.check(err)
	return string(b)
}
