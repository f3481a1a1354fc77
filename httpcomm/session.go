package httpcomm

import (
	"sync"
	"time"

	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/sendqueue"
)

// HTTPState is the per-session send queue and state the §4.G
// controller owns,
// stored via session.Session.HTTP (declared as `any` there to avoid a
// session↔httpcomm import cycle) and type-asserted back here.
//
// Unlike the spec's single cooperative-scheduler task, each session's
// PUT and GET halves run as their own goroutine here — the teacher's
// transport package uses the same per-stream-goroutine-plus-channel
// shape (see MsgStream.Read's workCh) rather than a single epoll loop,
// and that shape is what Go naturally rewards. stopCh is this
// session's cancellable handle (§5): closing it tears down both
// goroutines.
type HTTPState struct {
	mu  sync.Mutex
	put PutState
	get GetState

	// Queue holds this session's pending wrappers only: the PUT
	// stream is bound to one peer, so per-session FIFO order (§5
	// point 1) falls out for free without a global scheduler.
	Queue *sendqueue.Queue

	// Reassembler buffers partial inner-message headers/bodies across
	// successive GET responses (§4.B: "the tokenizer must be
	// re-entrant across reads").
	Reassembler frame.Reassembler

	putWake chan struct{} // buffered 1; signals "new data, or unpause"
	putDisc *time.Timer   // never set; the §4.D.2 put-disconnect timer is a local in egressReader.Read
	running bool          // a PUT goroutine is currently alive

	stopCh   chan struct{}
	stopOnce sync.Once
}

// startPut reports whether the caller should launch a new PUT
// goroutine: true exactly once per disconnect/reconnect cycle, so a
// merely-paused PUT (whose goroutine is still alive, blocked on
// putWake) never gets a duplicate.
func (h *HTTPState) startPut() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	return true
}

func (h *HTTPState) putExited() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

func newHTTPState() *HTTPState {
	return &HTTPState{
		put:     PutNotConnected,
		get:     GetNotConnected,
		Queue:   sendqueue.NewQueue(),
		putWake: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

func (h *HTTPState) wake() {
	select {
	case h.putWake <- struct{}{}:
	default:
	}
}

func (h *HTTPState) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *HTTPState) applyPut(ev putEvent) PutState {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.put = transitionPut(h.put, ev)
	return h.put
}

func (h *HTTPState) PutState() PutState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.put
}

func (h *HTTPState) setGet(s GetState) {
	h.mu.Lock()
	h.get = s
	h.mu.Unlock()
}

func (h *HTTPState) GetState() GetState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.get
}
