package sendqueue

import (
	"container/list"

	"github.com/relaynet/commd/internal/debug"
	"github.com/relaynet/commd/internal/mono"
	"github.com/relaynet/commd/session"
)

// Queue is a per-communicator doubly-linked FIFO of pending Wrappers
// (§4.D), plus the byte/message counters the session invariants (§3,
// §8) are defined over.
type Queue struct {
	l            list.List
	BytesInQueue int64
	MsgsInQueue  int
}

func NewQueue() *Queue { return &Queue{} }

// EnqueueTail appends w and attributes its size to both the
// communicator-wide and per-session counters.
func (q *Queue) EnqueueTail(w *Wrapper) {
	w.elem = q.l.PushBack(w)
	q.account(w, +1)
}

// DequeueHead removes and returns the FIFO head, or nil if empty.
func (q *Queue) DequeueHead() *Wrapper {
	front := q.l.Front()
	if front == nil {
		return nil
	}
	w := front.Value.(*Wrapper)
	q.l.Remove(front)
	q.account(w, -1)
	w.elem = nil
	return w
}

// Peek returns the FIFO head without removing it, for the HTTP
// pull-model egress path (§4.D.2) which needs to read from the head
// wrapper repeatedly before it is fully sent.
func (q *Queue) Peek() *Wrapper {
	front := q.l.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Wrapper)
}

// Remove takes w out of the queue from any position, updating the
// counters; it is a no-op for a wrapper that is not queued.
// DrainExpired and RemoveSession unlink their wrappers inline the same
// way.
func (q *Queue) Remove(w *Wrapper) {
	if w.elem == nil {
		return
	}
	q.l.Remove(w.elem)
	q.account(w, -1)
	w.elem = nil
}

func (q *Queue) account(w *Wrapper, sign int) {
	delta := int64(sign) * int64(w.FramedSize())
	q.BytesInQueue += delta
	q.MsgsInQueue += sign
	if w.Session != nil {
		w.Session.BytesInQueue += delta
		w.Session.MsgsInQueue += sign
		debug.Assert(w.Session.BytesInQueue >= 0 && w.Session.MsgsInQueue >= 0, "session queue counters went negative")
	}
	debug.Assert(q.BytesInQueue >= 0 && q.MsgsInQueue >= 0, "queue counters went negative")
}

// DrainExpired removes and fails every wrapper whose deadline has
// passed, per §4.D step 1 ("Drain wrappers whose timeout_deadline <
// now: remove, decrement counters, invoke completion with failure and
// payload-size 0, free").
func (q *Queue) DrainExpired(errTimeout error) {
	now := mono.NanoTime()
	var next *list.Element
	for e := q.l.Front(); e != nil; e = next {
		next = e.Next()
		w := e.Value.(*Wrapper)
		if w.Deadline != 0 && w.Deadline < now {
			q.l.Remove(e)
			q.account(w, -1)
			w.elem = nil
			w.fail(errTimeout)
		}
	}
}

// RemoveSession removes and fails every wrapper belonging to s,
// called during session destruction (§4.F) so no dangling back-reference
// survives the session.
func (q *Queue) RemoveSession(s *session.Session, failErr error) {
	var next *list.Element
	for e := q.l.Front(); e != nil; e = next {
		next = e.Next()
		w := e.Value.(*Wrapper)
		if w.Session == s {
			q.l.Remove(e)
			q.account(w, -1)
			w.elem = nil
			w.fail(failErr)
		}
	}
}

func (q *Queue) Len() int { return q.l.Len() }
