// Package frame implements the message framer (§4.B): the outer
// {size, type, sender, body} envelope and the tokenizer that splits
// its body into zero or more inner {size, type, payload} sub-messages.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/relaynet/commd/peerid"
)

const (
	outerHeaderSize = 2 + 2 + peerid.Size // u16 size | u16 type | sender identity
	innerHeaderSize = 2 + 2               // u16 size | u16 type
)

// OuterReservedType is always transmitted as 0 (§4.B, §6); whether it
// is ever interpreted by a future transport is an open question the
// source never answers (§9) — commd treats it as opaque.
const OuterReservedType uint16 = 0

// OuterHeaderSize and InnerHeaderSize are exported for callers sizing
// buffers ahead of an encode (e.g. the send queue's msgsize bookkeeping).
const (
	OuterHeaderSize = outerHeaderSize
	InnerHeaderSize = innerHeaderSize
)

// Inner is one demultiplexed sub-message extracted from (or destined
// for) an outer frame's body.
type Inner struct {
	Type uint16
	Body []byte
}

// EncodeInner concatenates inner sub-messages into a single body,
// ready to be wrapped by EncodeOuter.
func EncodeInner(msgs ...Inner) []byte {
	total := 0
	for _, m := range msgs {
		total += innerHeaderSize + len(m.Body)
	}
	buf := make([]byte, total)
	off := 0
	for _, m := range msgs {
		size := innerHeaderSize + len(m.Body)
		binary.BigEndian.PutUint16(buf[off:], uint16(size))
		binary.BigEndian.PutUint16(buf[off+2:], m.Type)
		copy(buf[off+4:], m.Body)
		off += size
	}
	return buf
}

// EncodeOuter wraps body (itself produced by EncodeInner, or empty)
// in the outer frame: size includes the header (§4.B, §6).
func EncodeOuter(sender peerid.ID, body []byte) ([]byte, error) {
	total := outerHeaderSize + len(body)
	if total > 1<<16-1 {
		return nil, fmt.Errorf("frame: framed size %d exceeds u16", total)
	}
	buf := make([]byte, total)
	binary.BigEndian.PutUint16(buf[0:2], uint16(total))
	binary.BigEndian.PutUint16(buf[2:4], OuterReservedType)
	copy(buf[4:4+peerid.Size], sender[:])
	copy(buf[4+peerid.Size:], body)
	return buf, nil
}

// Outer is a decoded outer-frame header plus its still-undemuxed body.
type Outer struct {
	Size   int
	Type   uint16
	Sender peerid.ID
	Body   []byte
}

// DecodeOuter validates and splits a single outer frame out of buf
// (§4.B: "validate header.size ≥ sizeof(header) and header.size ≤
// bytes_available"). It does not tokenize the body.
func DecodeOuter(buf []byte) (Outer, error) {
	if len(buf) < outerHeaderSize {
		return Outer{}, errors.New("frame: buffer shorter than outer header")
	}
	size := int(binary.BigEndian.Uint16(buf[0:2]))
	if size < outerHeaderSize {
		return Outer{}, fmt.Errorf("frame: outer size %d below header size %d", size, outerHeaderSize)
	}
	if size > len(buf) {
		return Outer{}, fmt.Errorf("frame: outer size %d exceeds %d bytes available", size, len(buf))
	}
	typ := binary.BigEndian.Uint16(buf[2:4])
	var sender peerid.ID
	copy(sender[:], buf[4:4+peerid.Size])
	body := buf[4+peerid.Size : size]
	return Outer{Size: size, Type: typ, Sender: sender, Body: body}, nil
}

// TokenizeInner splits a complete, in-memory outer-frame body into its
// inner sub-messages (§4.B: the UNIX datagram case, where the whole
// body is available up front). Each inner size must be >= innerHeaderSize
// and must not exceed the remaining buffer; on the first violation
// tokenization stops and the messages decoded so far are returned
// together with the number of trailing bytes dropped — "the transport
// cannot distinguish truncation from corruption at this layer".
func TokenizeInner(body []byte) (msgs []Inner, truncatedBytes int) {
	off := 0
	for off < len(body) {
		remaining := body[off:]
		if len(remaining) < innerHeaderSize {
			return msgs, len(remaining)
		}
		size := int(binary.BigEndian.Uint16(remaining[0:2]))
		typ := binary.BigEndian.Uint16(remaining[2:4])
		if size < innerHeaderSize || size > len(remaining) {
			return msgs, len(remaining)
		}
		msgs = append(msgs, Inner{Type: typ, Body: append([]byte(nil), remaining[innerHeaderSize:size]...)})
		off += size
	}
	return msgs, 0
}
