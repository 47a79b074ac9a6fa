// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Trace record header
const (
	OffsetRecordLength    = 0
	OffsetRecordChannel   = 1
	OffsetRecordTimestamp = 4
	OffsetRecordAddress   = 12
	RecordHeaderSize      = 14

	// TraceAlignment of a finished trace's length.
	TraceAlignment = 64

	MaxChannel = 1<<24 - 1
)

// Record of an output event in a DMA trace.
type Record struct {
	Timestamp uint64
	Channel   uint32
	Address   uint16
	Data      []uint32
}

// AppendRecord encodes a record.
func AppendRecord(b []byte, rec Record) ([]byte, error) {
	if rec.Channel > MaxChannel {
		return b, fmt.Errorf("channel %d out of range", rec.Channel)
	}
	if len(rec.Data) == 0 || len(rec.Data) > MaxWideWords {
		return b, fmt.Errorf("record with %d data words", len(rec.Data))
	}

	b = append(b, byte(RecordHeaderSize+4*len(rec.Data)))
	b = append(b, byte(rec.Channel), byte(rec.Channel>>8), byte(rec.Channel>>16))
	b = binary.LittleEndian.AppendUint64(b, rec.Timestamp)
	b = binary.LittleEndian.AppendUint16(b, rec.Address)
	for _, word := range rec.Data {
		b = binary.LittleEndian.AppendUint32(b, word)
	}
	return b, nil
}

// FinishTrace appends the terminator and alignment padding.
func FinishTrace(b []byte) []byte {
	b = append(b, 0)
	for len(b)%TraceAlignment != 0 {
		b = append(b, 0)
	}
	return b
}

var errTruncatedTrace = errors.New("truncated DMA trace")

// DecodeTrace parses a finished trace.
func DecodeTrace(b []byte) ([]Record, error) {
	var records []Record

	for {
		if len(b) == 0 {
			return nil, errTruncatedTrace
		}

		n := int(b[OffsetRecordLength])
		if n == 0 {
			return records, nil
		}
		if n < RecordHeaderSize+4 || (n-RecordHeaderSize)%4 != 0 {
			return nil, fmt.Errorf("invalid DMA record length %d", n)
		}
		if n > len(b) {
			return nil, errTruncatedTrace
		}

		rec := Record{
			Channel:   uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16,
			Timestamp: binary.LittleEndian.Uint64(b[OffsetRecordTimestamp:]),
			Address:   binary.LittleEndian.Uint16(b[OffsetRecordAddress:]),
		}
		for off := RecordHeaderSize; off < n; off += 4 {
			rec.Data = append(rec.Data, binary.LittleEndian.Uint32(b[off:]))
		}

		records = append(records, rec)
		b = b[n:]
	}
}
