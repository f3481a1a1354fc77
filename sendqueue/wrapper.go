// Package sendqueue implements the per-communicator send queue and
// scheduler (§4.D): a FIFO of pending message wrappers, each carrying
// its own timeout, and the shared bookkeeping (bytes_in_queue,
// msgs_in_queue) both the communicator and its sessions rely on.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package sendqueue

import (
	"container/list"

	"github.com/relaynet/commd/session"
)

// Completion fires exactly once per wrapper: with the number of bytes
// accepted by the transport on success, or 0 and a non-nil err on
// failure (§7: "every send-call... eventually invokes its completion
// exactly once").
type Completion func(sentBytes int, err error)

// Wrapper is a pending send (§3 Message wrapper): an owned framed
// payload plus everything needed to drive and account for its
// transmission. Ownership is exclusive to the queue until the wrapper
// is removed, at which point exactly one of Completion's outcomes has
// already fired.
type Wrapper struct {
	Framed      []byte // includes the outer frame header; FramedSize == len(Framed)
	PayloadSize int    // payload length before framing, for diagnostics
	Session     *session.Session
	Deadline    int64 // mono.NanoTime() absolute; see desired-timeout (§3)
	Priority    int   // opaque, preserved only (§9 open question)
	Completion  Completion

	sendOffset int // how much of Framed has been transmitted (HTTP D.2 partial writes)
	elem       *list.Element
}

func (w *Wrapper) FramedSize() int { return len(w.Framed) }

// Remaining returns the not-yet-sent tail of the framed buffer, used
// by the HTTP egress read-body callback (§4.D.2).
func (w *Wrapper) Remaining() []byte { return w.Framed[w.sendOffset:] }

// Advance records n more bytes as sent; it reports whether the whole
// wrapper has now been transmitted.
func (w *Wrapper) Advance(n int) (done bool) {
	w.sendOffset += n
	return w.sendOffset >= len(w.Framed)
}

func (w *Wrapper) fail(err error) {
	if w.Completion != nil {
		w.Completion(0, err)
	}
}

func (w *Wrapper) succeed(n int) {
	if w.Completion != nil {
		w.Completion(n, nil)
	}
}

// Fail and Succeed let a communicator outside this package fire a
// dequeued wrapper's completion exactly once (§7: "every send-call
// ... eventually invokes its completion exactly once").
func (w *Wrapper) Fail(err error)  { w.fail(err) }
func (w *Wrapper) Succeed(n int)   { w.succeed(n) }
