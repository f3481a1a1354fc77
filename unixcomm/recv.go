package unixcomm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/internal/bufpool"
	"github.com/relaynet/commd/internal/nlog"
)

// ReceiveOnce implements the UNIX half of §4.E: recvfrom() up to
// 64 KiB, extract the sender's address, decode the outer frame,
// tokenize its body, and deliver each inner sub-message after
// resolving (and refreshing) the session. It reports whether a
// datagram was actually read (false on EAGAIN, meaning the caller's
// poller should go back to waiting for readability).
func (c *Communicator) ReceiveOnce() (bool, error) {
	bb := bufpool.Get(recvBufSize)
	defer bufpool.Put(bb, recvBufSize)
	if cap(bb.B) < recvBufSize {
		bb.B = make([]byte, recvBufSize)
	} else {
		bb.B = bb.B[:recvBufSize]
	}
	n, from, err := unix.Recvfrom(c.fd, bb.B, unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("unixcomm: recvfrom: %w", err)
	}
	sa, ok := from.(*unix.SockaddrUnix)
	if !ok {
		return true, errors.New("unixcomm: recvfrom: unexpected sockaddr type")
	}
	senderAddr := address.FromSockaddr(sa)

	outer, err := frame.DecodeOuter(bb.B[:n])
	if err != nil {
		nlog.Warningf("unixcomm: dropping malformed datagram: %v", err)
		return true, nil
	}
	msgs, truncated := frame.TokenizeInner(outer.Body)
	if truncated > 0 {
		nlog.Warningf("unixcomm: dropped %d trailing bytes of undecodable inner data from %s", truncated, outer.Sender)
	}
	if len(msgs) == 0 {
		return true, nil
	}

	s := c.lookupOrCreate(outer.Sender, senderAddr)
	s.Touch(c.idleTimeout)
	c.Reaper.Touch(s)
	if c.deliverer != nil {
		for _, m := range msgs {
			c.deliverer.Deliver(s, m)
		}
	}
	return true, nil
}
