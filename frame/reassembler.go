package frame

import (
	"encoding/binary"
	"errors"
)

// ErrCorrupt is returned by Feed when an inner sub-message header is
// malformed (§4.B: inner size below the header size is a protocol
// violation, not a truncation). Callers must treat this as fatal —
// per-session on HTTP ingress (§7), per-connection on the service
// control channel (§4.H well-formedness checks) — never silently
// continue reading the stream.
var ErrCorrupt = errors.New("frame: malformed inner sub-message header")

// Reassembler tokenizes a byte *stream* into inner sub-messages,
// re-entrantly: each Feed call may deliver a partial header, a partial
// body, several complete messages, or any mix, and state persists
// across calls (§4.B: "the tokenizer must be re-entrant across reads,
// buffering a partial header and partial body across calls").
//
// Used on the HTTP ingress path (§4.G GET), where the body is a
// stream rather than a single datagram and there is no outer frame —
// the session already identifies the sender, so the stream is a bare
// concatenation of inner sub-messages.
type Reassembler struct {
	buf     []byte // accumulated bytes not yet resolved into a complete message
	corrupt bool   // set once a malformed inner header is seen; sticky
}

// Feed appends chunk to the internal buffer and returns every inner
// message that became complete as a result, in order. Remaining
// partial bytes stay buffered for the next Feed call.
//
// If an inner header is malformed, Feed returns the messages decoded
// before the violation along with ErrCorrupt. The Reassembler is
// unusable after that — it discards its buffer and every subsequent
// Feed call returns ErrCorrupt immediately — mirroring §4.H's
// "violations cause the connection to be dropped"; callers must not
// keep tokenizing a stream that has already proven untrustworthy.
func (r *Reassembler) Feed(chunk []byte) ([]Inner, error) {
	if r.corrupt {
		return nil, ErrCorrupt
	}
	r.buf = append(r.buf, chunk...)

	var out []Inner
	off := 0
	for {
		remaining := r.buf[off:]
		if len(remaining) < innerHeaderSize {
			break
		}
		size := int(binary.BigEndian.Uint16(remaining[0:2]))
		typ := binary.BigEndian.Uint16(remaining[2:4])
		_ = typ
		if size < innerHeaderSize {
			r.buf = nil
			r.corrupt = true
			return out, ErrCorrupt
		}
		if size > len(remaining) {
			break // incomplete body; wait for more bytes
		}
		out = append(out, Inner{Type: typ, Body: append([]byte(nil), remaining[innerHeaderSize:size]...)})
		off += size
	}
	r.buf = append([]byte(nil), r.buf[off:]...)
	return out, nil
}

// Pending reports how many unresolved bytes are currently buffered,
// for callers that want to bound memory on a misbehaving peer.
func (r *Reassembler) Pending() int { return len(r.buf) }
