// Package bufpool is a size-classed buffer pool standing in for the
// teacher's memsys.MMSA (its slab-allocator source was not part of
// this retrieval pack — see DESIGN.md). Its one user is the UNIX
// communicator's 64 KiB receive buffer (unixcomm.ReceiveOnce); framed
// payloads on the send path are allocated directly, not pooled.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package bufpool

import (
	"github.com/valyala/bytebufferpool"
)

// size classes, loosely mirroring memsys' page/large-page slabs
const (
	SizeSmall  = 4 * 1024   // frame headers, control messages
	SizeMedium = 64 * 1024  // one UNIX datagram (§4.E: recvfrom up to 64 KiB)
	SizeLarge  = 256 * 1024 // PDU-chunked HTTP bodies
)

var (
	small  bytebufferpool.Pool
	medium bytebufferpool.Pool
	large  bytebufferpool.Pool
)

// Get returns a len-0 buffer from the size class that fits `need`. Its
// capacity is whatever the pooled buffer already has and may be below
// `need`; callers grow it themselves. Pair every Get with exactly one Put.
func Get(need int) *bytebufferpool.ByteBuffer {
	switch {
	case need <= SizeSmall:
		return small.Get()
	case need <= SizeMedium:
		return medium.Get()
	default:
		return large.Get()
	}
}

// Put returns a buffer to the pool it was handed out from. Pools are
// sized independently so a Put against the "wrong" pool than the
// original Get merely reduces reuse efficiency, never correctness.
func Put(b *bytebufferpool.ByteBuffer, need int) {
	switch {
	case need <= SizeSmall:
		small.Put(b)
	case need <= SizeMedium:
		medium.Put(b)
	default:
		large.Put(b)
	}
}
