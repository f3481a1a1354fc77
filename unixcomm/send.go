package unixcomm

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/internal/cos"
	"github.com/relaynet/commd/sendqueue"
)

// trySend implements §4.D.1 exactly: one sendto() attempt, with the
// EMSGSIZE-triggered SO_SNDBUF growth retried at most once. done=false
// means "transient, leave the wrapper at the head and retry next
// fire"; done=true means the wrapper is finished, successfully or not.
func (c *Communicator) trySend(w *sendqueue.Wrapper) (done bool, err error) {
	if w.Session == nil {
		return true, errQueueGone
	}
	sa, err := address.ToSockaddr(w.Session.Address)
	if err != nil {
		return true, err
	}
	n, sendErr := unix.Sendto(c.fd, w.Framed, unix.MSG_DONTWAIT, sa)
	if sendErr == nil {
		_ = n
		return true, nil
	}
	if cos.IsRetriableSend(sendErr) {
		return false, nil
	}
	if cos.IsMsgSize(sendErr) {
		return c.retryAfterGrow(w, sa)
	}
	return true, sendErr
}

// retryAfterGrow performs the single permitted SO_SNDBUF growth and
// retry on EMSGSIZE (§4.D.1).
func (c *Communicator) retryAfterGrow(w *sendqueue.Wrapper, sa unix.Sockaddr) (done bool, err error) {
	needed := cos.RoundUpThousand(len(w.Framed))
	if needed <= c.sndbuf {
		return true, errors.New("unixcomm: EMSGSIZE with adequate SO_SNDBUF")
	}
	if err := setSndbuf(c.fd, needed); err != nil {
		return true, err
	}
	c.sndbuf = needed
	_, sendErr := unix.Sendto(c.fd, w.Framed, unix.MSG_DONTWAIT, sa)
	if sendErr != nil {
		return true, sendErr
	}
	return true, nil
}
