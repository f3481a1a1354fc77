package unixcomm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/internal/cos"
	"github.com/relaynet/commd/internal/nlog"
	"github.com/relaynet/commd/monitor"
	"github.com/relaynet/commd/peerid"
	"github.com/relaynet/commd/sendqueue"
	"github.com/relaynet/commd/session"
)

// Deliverer hands a tokenized inner sub-message up to the service
// client once its session has been resolved (§4.E, §4.H INCOMING_MSG).
// Defined here rather than imported from package service to avoid an
// import cycle — service depends on unixcomm's Communicator, not the
// reverse.
type Deliverer interface {
	Deliver(sess *session.Session, msg frame.Inner)
}

// Notifier is told when a session is torn down so the service client
// can emit QUEUE_TEARDOWN (§4.F, §4.H).
type Notifier interface {
	QueueTeardown(sess *session.Session)
}

var errTimeout = errors.New("unixcomm: send timed out before transmission")
var errQueueGone = errors.New("unixcomm: session gone")

const recvBufSize = 64 * cos.KiB

// Communicator is one bound UNIX datagram endpoint: its own send
// queue, session table, and idle-session reaper (§4.C, §4.D, §4.F).
// Every method assumes it is called from the single cooperative
// scheduler task that owns it (§5) — none of the state here is
// protected by a lock.
type Communicator struct {
	fd         int
	bound      address.Address
	local      peerid.ID
	idleTimeout int64
	sndbuf     int

	Sessions *session.Table
	Queue    *sendqueue.Queue
	Reaper   *session.Reaper

	monitor   monitor.Sink
	deliverer Deliverer
	notifier  Notifier

	closed bool
}

// New binds a UNIX datagram socket at addr (§6 socket layout) and
// wires up the session table, send queue, and idle reaper.
func New(addr address.Address, local peerid.ID, idleTimeout, tickInterval int64, sink monitor.Sink, deliverer Deliverer, notifier Notifier) (*Communicator, error) {
	fd, err := bind(addr)
	if err != nil {
		return nil, err
	}
	sndbuf, err := getSndbuf(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("unixcomm: getsockopt SO_SNDBUF: %w", err)
	}
	c := &Communicator{
		fd:          fd,
		bound:       addr,
		local:       local,
		idleTimeout: idleTimeout,
		sndbuf:      sndbuf,
		Sessions:    session.NewTable(),
		Queue:       sendqueue.NewQueue(),
		Reaper:      session.NewReaper(idleTimeout, tickInterval),
		monitor:     sink,
		deliverer:   deliverer,
		notifier:    notifier,
	}
	c.Reaper.OnExpired = c.destroySession
	c.Reaper.OnReArm = func(s *session.Session) {
		if c.monitor != nil {
			disp, _ := address.Format(s.Address)
			c.monitor.OnUp(s.Peer, disp)
		}
	}
	return c, nil
}

// Fd exposes the raw descriptor for the caller's poller to watch for
// readable/writable readiness (§5: the scheduler owns the poll loop,
// not this package).
func (c *Communicator) Fd() int { return c.fd }

// SetHandlers wires the deliverer/notifier after construction, for
// the common case where the service client itself needs a reference
// to this communicator before it can be built.
func (c *Communicator) SetHandlers(deliverer Deliverer, notifier Notifier) {
	c.deliverer = deliverer
	c.notifier = notifier
}

func (c *Communicator) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for _, s := range c.Sessions.All() {
		c.Queue.RemoveSession(s, errQueueGone)
		c.destroySession(s)
	}
	return unix.Close(c.fd)
}

// lookupOrCreate resolves the session for (peer, addr), creating and
// enrolling one if none exists yet (§4.E: "look up/create the session
// for (sender, sender-address)").
func (c *Communicator) lookupOrCreate(peer peerid.ID, addr address.Address) *session.Session {
	if s := c.Sessions.Lookup(peer, addr); s != nil {
		return s
	}
	s := session.New(peer, addr, c.idleTimeout)
	s.Unix = &session.UnixState{Live: true}
	if err := c.Sessions.Put(s); err != nil {
		nlog.Errorf("unixcomm: %v", err)
		return s
	}
	c.Reaper.Add(s)
	if c.monitor != nil {
		disp, _ := address.Format(addr)
		c.monitor.OnUp(peer, disp)
	}
	return s
}

// destroySession implements the §4.F destruction sequence: remove
// from the table, release from the reaper, fail every queued wrapper,
// emit monitor DOWN, notify the service.
func (c *Communicator) destroySession(s *session.Session) {
	if s.InTable() {
		_ = c.Sessions.Remove(s.Peer, s)
	}
	c.Reaper.Remove(s)
	c.Queue.RemoveSession(s, errQueueGone)
	if c.monitor != nil {
		disp, _ := address.Format(s.Address)
		c.monitor.OnDown(s.Peer, disp, "idle timeout")
	}
	if c.notifier != nil {
		c.notifier.QueueTeardown(s)
	}
}

// Enqueue frames payload addressed to peer/addr (as one inner
// sub-message inside the outer frame) and appends it to the send
// queue, creating the session if necessary.
func (c *Communicator) Enqueue(peer peerid.ID, addr address.Address, payload []byte, deadline int64, completion sendqueue.Completion) error {
	framed, err := frame.EncodeOuter(c.local, frame.EncodeInner(frame.Inner{Body: payload}))
	if err != nil {
		return err
	}
	s := c.lookupOrCreate(peer, addr)
	c.Queue.EnqueueTail(&sendqueue.Wrapper{
		Framed:      framed,
		PayloadSize: len(payload),
		Session:     s,
		Deadline:    deadline,
		Completion:  completion,
	})
	return nil
}

// Fire is the scheduler tick (§4.D): drain expired wrappers, then
// attempt one send of the FIFO head.
func (c *Communicator) Fire() {
	c.Queue.DrainExpired(errTimeout)
	w := c.Queue.Peek()
	if w == nil {
		return
	}
	done, err := c.trySend(w)
	if !done {
		return // transient: leave in place, retry next fire
	}
	c.Queue.DequeueHead()
	if err != nil {
		w.Fail(err)
	} else {
		if w.Session != nil {
			w.Session.Touch(c.idleTimeout)
			c.Reaper.Touch(w.Session)
		}
		w.Succeed(len(w.Framed))
	}
}
