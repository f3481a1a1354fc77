package service

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/internal/cos"
	"github.com/relaynet/commd/internal/nlog"
	"github.com/relaynet/commd/peerid"
	"github.com/relaynet/commd/sendqueue"
	"github.com/relaynet/commd/session"
)

// Sender is the subset of unixcomm.Communicator and httpcomm.Communicator
// that the service client needs to carry out a SEND_MSG request.
// Both concrete types satisfy it without either package importing
// this one.
type Sender interface {
	Enqueue(peer peerid.ID, addr address.Address, payload []byte, deadline int64, completion sendqueue.Completion) error
}

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Client is the communicator's side of §4.H: it owns the IPC
// connection to the transport service, re-announces addresses and
// queues on reconnect, and dispatches control-plane messages to and
// from the flow-control tables (§4.I).
type Client struct {
	svcAddr         string
	characteristics uint32
	sender          Sender
	fc              *FlowControl

	mu      sync.Mutex
	conn    net.Conn
	prefix  string
	backoff time.Duration

	nextAID   uint64
	addresses map[uint64]AddAddressMsg

	nextQID    uint64
	queues     map[uint64]QueueSetupMsg
	qidSession map[uint64]*session.Session
	sessionQID map[*session.Session]uint64

	reassembler frame.Reassembler
	closed      bool
}

// NewClient constructs a client bound to svcAddr (a UNIX-domain
// socket path the central transport service listens on).
func NewClient(svcAddr string, characteristics uint32, sender Sender, maxQueueLength int) *Client {
	return &Client{
		svcAddr:         svcAddr,
		characteristics: characteristics,
		sender:          sender,
		fc:              NewFlowControl(maxQueueLength),
		prefix:          uuid.NewString(),
		backoff:         initialBackoff,
		addresses:       make(map[uint64]AddAddressMsg),
		queues:          make(map[uint64]QueueSetupMsg),
		qidSession:      make(map[uint64]*session.Session),
		sessionQID:      make(map[*session.Session]uint64),
	}
}

// Run connects and services the control channel until ctx is
// cancelled, reconnecting with exponential backoff on any error
// (§4.H reconnect policy).
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.connectAndServe(ctx); err != nil {
			if cos.IsRetriableConn(errors.Cause(err)) {
				nlog.Warningf("service: not yet reachable, retrying: %v", err)
			} else {
				nlog.Warningf("service: connection lost: %v", err)
			}
			c.fc.PurgeInbound()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
		c.backoff *= 2
		if c.backoff > maxBackoff {
			c.backoff = maxBackoff
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, err := net.Dial("unix", c.svcAddr)
	if err != nil {
		return errors.Wrap(err, "service: dial")
	}
	c.mu.Lock()
	c.conn = conn
	c.reassembler = frame.Reassembler{}
	c.mu.Unlock()
	defer conn.Close()

	if err := c.send(NewCommunicatorMsg{Characteristics: c.characteristics, Prefix: c.prefix}.Encode()); err != nil {
		return errors.Wrap(err, "service: NEW_COMMUNICATOR")
	}
	c.mu.Lock()
	addrs := make([]AddAddressMsg, 0, len(c.addresses))
	for _, a := range c.addresses {
		addrs = append(addrs, a)
	}
	qs := make([]QueueSetupMsg, 0, len(c.queues))
	for _, q := range c.queues {
		qs = append(qs, q)
	}
	c.mu.Unlock()
	for _, a := range addrs {
		if err := c.send(a.Encode()); err != nil {
			return errors.Wrap(err, "service: re-announce address")
		}
	}
	for _, q := range qs {
		if err := c.send(q.Encode()); err != nil {
			return errors.Wrap(err, "service: re-announce queue")
		}
	}

	c.backoff = initialBackoff // a successful handshake resets backoff
	buf := make([]byte, 16*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := conn.Read(buf)
		if err != nil {
			return errors.Wrap(err, "service: read")
		}
		msgs, feedErr := c.reassembler.Feed(buf[:n])
		if feedErr != nil {
			return errors.Wrap(feedErr, "service: malformed control message")
		}
		for _, m := range msgs {
			if err := c.dispatch(m); err != nil {
				return errors.Wrap(err, "service: malformed control message")
			}
		}
	}
}

func (c *Client) send(inner frame.Inner) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("service: not connected")
	}
	_, err := conn.Write(frame.EncodeInner(inner))
	return err
}

func (c *Client) dispatch(m frame.Inner) error {
	switch m.Type {
	case MsgQueueCreate:
		req, err := DecodeQueueCreate(m.Body)
		if err != nil {
			return err
		}
		c.handleQueueCreate(req)
	case MsgSendMsg:
		req, err := DecodeSendMsg(m.Body)
		if err != nil {
			return err
		}
		c.handleSendMsg(req)
	case MsgIncomingMsgAck:
		ack, err := DecodeIncomingMsgAck(m.Body)
		if err != nil {
			return err
		}
		if err := c.fc.Ack(ack.Sender, ack.FCID); err != nil {
			return err
		}
	case MsgBackchannelIncoming:
		if _, err := DecodeBackchannelIncoming(m.Body); err != nil {
			return err
		}
		// the payload is validated and then dropped: this client has
		// no notify-callback registration, so nothing receives it.
	default:
		return errMalformed
	}
	return nil
}

// handleQueueCreate replies OK immediately: an outbound queue is a
// logical handle managed entirely here, not a separate resource that
// can fail to allocate.
func (c *Client) handleQueueCreate(req QueueCreateMsg) {
	qid := c.AddQueue(req.Peer, req.Addr, 1500, 16, 0, nil)
	_ = c.send(QueueCreateOKMsg{RequestID: req.RequestID, QID: qid}.Encode())
}

func (c *Client) handleSendMsg(req SendMsgMsg) {
	c.mu.Lock()
	q, ok := c.queues[req.QID]
	c.mu.Unlock()
	if !ok {
		_ = c.send(SendMsgAckMsg{OK: false, MID: req.MID, Receiver: req.Receiver}.Encode())
		return
	}
	addr, err := address.Parse(q.Addr)
	if err != nil {
		_ = c.send(SendMsgAckMsg{OK: false, MID: req.MID, Receiver: req.Receiver}.Encode())
		return
	}
	c.fc.RecordOutbound(req.Receiver, req.MID)
	err = c.sender.Enqueue(req.Receiver, addr, req.Boxed, 0, func(_ int, sendErr error) {
		if c.fc.ResolveOutbound(req.Receiver, req.MID) {
			_ = c.send(SendMsgAckMsg{OK: sendErr == nil, MID: req.MID, Receiver: req.Receiver}.Encode())
		}
	})
	if err != nil {
		c.fc.ResolveOutbound(req.Receiver, req.MID)
		_ = c.send(SendMsgAckMsg{OK: false, MID: req.MID, Receiver: req.Receiver}.Encode())
	}
}

// AddAddress registers and (if connected) immediately announces a new
// offered address, returning its aid.
func (c *Client) AddAddress(addr string, netClass uint32, expiration int64) uint64 {
	c.mu.Lock()
	c.nextAID++
	aid := c.nextAID
	msg := AddAddressMsg{AID: aid, NetClass: netClass, Expiration: expiration, Addr: addr}
	c.addresses[aid] = msg
	c.mu.Unlock()
	_ = c.send(msg.Encode())
	return aid
}

func (c *Client) DelAddress(aid uint64) {
	c.mu.Lock()
	delete(c.addresses, aid)
	c.mu.Unlock()
	_ = c.send(DelAddressMsg{AID: aid}.Encode())
}

// AddQueue announces a live queue for sess (may be nil for
// service-initiated queues with no local session yet).
func (c *Client) AddQueue(peer peerid.ID, addr string, mtu, qlen, priority uint32, sess *session.Session) uint64 {
	c.mu.Lock()
	c.nextQID++
	qid := c.nextQID
	msg := QueueSetupMsg{QID: qid, Peer: peer, MTU: mtu, QLen: qlen, Priority: priority, CS: 1, Addr: addr}
	c.queues[qid] = msg
	if sess != nil {
		c.qidSession[qid] = sess
		c.sessionQID[sess] = qid
		sess.QueueID = qid
	}
	c.mu.Unlock()
	_ = c.send(msg.Encode())
	return qid
}

// QueueTeardown implements unixcomm.Notifier / httpcomm.Notifier:
// withdraw sess's queue on session destruction (§4.F, §4.H).
func (c *Client) QueueTeardown(sess *session.Session) {
	c.mu.Lock()
	qid, ok := c.sessionQID[sess]
	if ok {
		delete(c.sessionQID, sess)
		delete(c.qidSession, qid)
		delete(c.queues, qid)
	}
	c.mu.Unlock()
	if ok {
		_ = c.send(QueueTeardownMsg{QID: qid, Peer: sess.Peer}.Encode())
	}
}

// Deliver implements unixcomm.Deliverer / httpcomm.Deliverer: forward
// one tokenized inbound message to the service as INCOMING_MSG, with
// flow control enabled and a default ack callback that just logs
// (§4.H, §4.I).
func (c *Client) Deliver(sess *session.Session, msg frame.Inner) {
	fcID := c.fc.AllocateInbound(sess.Peer, func(ok bool) {
		if !ok {
			nlog.Warningf("service: flow-control entry for %s dropped on disconnect", sess.Peer)
		}
	})
	im := IncomingMsgMsg{
		Sender:               sess.Peer,
		ExpectedAddrValidity: 0,
		FCOn:                 true,
		FCID:                 fcID,
		Framed:               frame.EncodeInner(msg),
	}
	if err := c.send(im.Encode()); err != nil {
		nlog.Warningf("service: failed to deliver INCOMING_MSG: %v", err)
	}
}
