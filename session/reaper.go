package session

import (
	"container/heap"

	"github.com/relaynet/commd/internal/mono"
)

// Reaper is the session state machine's timer (§4.F), modeled closely
// on the teacher's stream collector (transport/collect.go): rather
// than one OS timer per session, sessions sit in a min-heap ordered by
// ticks-until-deadline and a single periodic Tick() call ages them
// all at once. This fits the single-threaded cooperative scheduler of
// §5 — Tick is meant to be called from the owning communicator's one
// event loop, never concurrently.
type Reaper struct {
	idleTimeout int64 // ns; default corresponds to idle_timeout (§3, §8)
	tickNanos   int64
	heap        reaperHeap

	OnReArm   func(s *Session) // monitor UP, "to defeat monitor pessimism" (§4.F)
	OnExpired func(s *Session) // full session destruction (§4.F lifecycle)
}

func NewReaper(idleTimeout, tickInterval int64) *Reaper {
	r := &Reaper{idleTimeout: idleTimeout, tickNanos: tickInterval}
	heap.Init(&r.heap)
	return r
}

// Add enrolls a session in the reaper, computing its initial tick
// count from the time already elapsed since construction.
func (r *Reaper) Add(s *Session) {
	remaining := s.TimeoutAt - mono.NanoTime()
	s.ticksRemaining = ticksFor(remaining, r.tickNanos)
	heap.Push(&r.heap, s)
}

// Remove takes a session out of the reaper, e.g. on explicit
// disconnect so Tick never fires for it again.
func (r *Reaper) Remove(s *Session) {
	if s.heapIndex < 0 || s.heapIndex >= len(r.heap) || r.heap[s.heapIndex] != s {
		return
	}
	heap.Remove(&r.heap, s.heapIndex)
}

// Touch re-arms a session's countdown after activity (§4.F).
func (r *Reaper) Touch(s *Session) {
	s.TimeoutAt = mono.NanoTime() + r.idleTimeout
	if s.heapIndex >= 0 && s.heapIndex < len(r.heap) && r.heap[s.heapIndex] == s {
		r.heap[s.heapIndex].ticksRemaining = ticksFor(r.idleTimeout, r.tickNanos)
		heap.Fix(&r.heap, s.heapIndex)
	}
}

// Tick checks every enrolled session against the current time. A
// session whose deadline (TimeoutAt) has been reached is removed and
// OnExpired fires; every other session has its tick count recomputed
// from TimeoutAt (Touch may have moved the deadline out) and OnReArm
// fires to defeat monitor pessimism.
func (r *Reaper) Tick() {
	now := mono.NanoTime()
	var expired []*Session
	for i := range r.heap {
		s := r.heap[i]
		remaining := s.TimeoutAt - now
		if remaining <= 0 {
			expired = append(expired, s)
		}
	}
	for _, s := range expired {
		if s.heapIndex >= 0 && s.heapIndex < len(r.heap) && r.heap[s.heapIndex] == s {
			heap.Remove(&r.heap, s.heapIndex)
		}
		if r.OnExpired != nil {
			r.OnExpired(s)
		}
	}
	for i := range r.heap {
		s := r.heap[i]
		s.ticksRemaining = ticksFor(s.TimeoutAt-now, r.tickNanos)
		if r.OnReArm != nil {
			r.OnReArm(s)
		}
	}
	heap.Init(&r.heap)
}

func ticksFor(remaining, tickNanos int64) int {
	if tickNanos <= 0 {
		tickNanos = 1
	}
	n := int(remaining / tickNanos)
	if n < 0 {
		n = 0
	}
	return n
}

// reaperHeap implements container/heap ordered by ticksRemaining,
// mirroring transport/collect.go's (gc *collector) heap methods.
type reaperHeap []*Session

func (h reaperHeap) Len() int            { return len(h) }
func (h reaperHeap) Less(i, j int) bool  { return h[i].ticksRemaining < h[j].ticksRemaining }
func (h reaperHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].heapIndex, h[j].heapIndex = i, j }
func (h *reaperHeap) Push(x any) {
	s := x.(*Session)
	s.heapIndex = len(*h)
	*h = append(*h, s)
}
func (h *reaperHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.heapIndex = -1
	*h = old[:n-1]
	return s
}
