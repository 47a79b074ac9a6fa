// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcproto

import (
	"fmt"
	"strings"
)

// Type tags.
const (
	TagNone   = 'n'
	TagBool   = 'b'
	TagInt32  = 'i'
	TagInt64  = 'I'
	TagFloat  = 'f'
	TagString = 's'
	TagObject = 'O'
	TagList   = 'l'
	TagTuple  = 't'
)

// Split a call tag into argument type tags and the return type tag.
func Split(tag string) (args []string, ret string, err error) {
	i := strings.IndexByte(tag, ':')
	if i < 0 {
		err = fmt.Errorf("rpc tag %q has no return type", tag)
		return
	}

	for s := tag[:i]; s != ""; {
		n, e := typeLen(s)
		if e != nil {
			err = fmt.Errorf("rpc tag %q: %w", tag, e)
			return
		}
		args = append(args, s[:n])
		s = s[n:]
	}

	ret = tag[i+1:]
	if n, e := typeLen(ret); e != nil || n != len(ret) {
		err = fmt.Errorf("rpc tag %q has invalid return type", tag)
		return
	}
	return
}

// typeLen returns the length of the type tag at the start of s.
func typeLen(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("truncated type")
	}

	switch s[0] {
	case TagNone, TagBool, TagInt32, TagInt64, TagFloat, TagString, TagObject:
		return 1, nil

	case TagList:
		n, err := typeLen(s[1:])
		return 1 + n, err

	case TagTuple:
		if len(s) < 2 {
			return 0, fmt.Errorf("truncated tuple type")
		}
		count := int(s[1])
		i := 2
		for range count {
			n, err := typeLen(s[i:])
			if err != nil {
				return 0, err
			}
			i += n
		}
		return i, nil

	default:
		return 0, fmt.Errorf("unknown type tag %q", s[0])
	}
}

// Elements of a tuple type tag.  The tag must be a valid tuple type tag.
func Elements(tag string) []string {
	count := int(tag[1])
	elts := make([]string, 0, count)
	for s := tag[2:]; len(elts) < count; {
		n, _ := typeLen(s)
		elts = append(elts, s[:n])
		s = s[n:]
	}
	return elts
}
