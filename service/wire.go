// Package service implements the communicator-side client of the
// central transport service (§4.H communicator–service protocol) and
// the flow-control correlation tables that sit on top of it (§4.I).
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package service

import (
	"encoding/binary"
	"errors"

	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/peerid"
)

// Message type tags for the length-type-body envelopes the control
// channel exchanges (§4.H, §6: "message-type constants are numeric and
// must be stable across reconnects"). Reuses frame.Inner's
// {u16 size, u16 type, body} shape and frame.Reassembler's re-entrant
// tokenizer — the control channel is exactly the same kind of framed
// byte stream as the HTTP ingress path.
const (
	MsgNewCommunicator     uint16 = 1
	MsgAddAddress          uint16 = 2
	MsgDelAddress          uint16 = 3
	MsgQueueSetup          uint16 = 4
	MsgQueueUpdate         uint16 = 5
	MsgQueueTeardown       uint16 = 6
	MsgIncomingMsg         uint16 = 7
	MsgSendMsgAck          uint16 = 8
	MsgBackchannel         uint16 = 9
	MsgIncomingMsgAck      uint16 = 10
	MsgQueueCreate         uint16 = 11
	MsgQueueCreateOK       uint16 = 12
	MsgQueueCreateFail     uint16 = 13
	MsgSendMsg             uint16 = 14
	MsgBackchannelIncoming uint16 = 15
)

var errMalformed = errors.New("service: malformed control message")

func putString(buf []byte, s string) []byte {
	b := append([]byte(s), 0) // NUL-terminated (§4.H well-formedness)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

func getString(body []byte, off int) (string, int, error) {
	if off+4 > len(body) {
		return "", 0, errMalformed
	}
	n := int(binary.BigEndian.Uint32(body[off:]))
	off += 4
	if n < 1 || off+n > len(body) || body[off+n-1] != 0 {
		return "", 0, errMalformed
	}
	return string(body[off : off+n-1]), off + n, nil
}

// NewCommunicatorMsg is sent first after connect (§4.H).
type NewCommunicatorMsg struct {
	Characteristics uint32
	Prefix          string
}

func (m NewCommunicatorMsg) Encode() frame.Inner {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], m.Characteristics)
	body := putString(hdr[:], m.Prefix)
	return frame.Inner{Type: MsgNewCommunicator, Body: body}
}

func DecodeNewCommunicator(body []byte) (NewCommunicatorMsg, error) {
	if len(body) < 4 {
		return NewCommunicatorMsg{}, errMalformed
	}
	m := NewCommunicatorMsg{Characteristics: binary.BigEndian.Uint32(body)}
	prefix, _, err := getString(body, 4)
	if err != nil {
		return NewCommunicatorMsg{}, err
	}
	m.Prefix = prefix
	return m, nil
}

// AddAddressMsg announces one offered address (§3 Address identifier).
type AddAddressMsg struct {
	AID        uint64
	NetClass   uint32
	Expiration int64
	Addr       string
}

func (m AddAddressMsg) Encode() frame.Inner {
	buf := make([]byte, 0, 20+len(m.Addr))
	buf = appendU64(buf, m.AID)
	buf = appendU32(buf, m.NetClass)
	buf = appendI64(buf, m.Expiration)
	buf = putString(buf, m.Addr)
	return frame.Inner{Type: MsgAddAddress, Body: buf}
}

func DecodeAddAddress(body []byte) (AddAddressMsg, error) {
	if len(body) < 20 {
		return AddAddressMsg{}, errMalformed
	}
	m := AddAddressMsg{
		AID:        binary.BigEndian.Uint64(body[0:8]),
		NetClass:   binary.BigEndian.Uint32(body[8:12]),
		Expiration: int64(binary.BigEndian.Uint64(body[12:20])),
	}
	addr, _, err := getString(body, 20)
	if err != nil {
		return AddAddressMsg{}, err
	}
	m.Addr = addr
	return m, nil
}

// DelAddressMsg withdraws a previously announced address.
type DelAddressMsg struct{ AID uint64 }

func (m DelAddressMsg) Encode() frame.Inner {
	return frame.Inner{Type: MsgDelAddress, Body: appendU64(nil, m.AID)}
}

func DecodeDelAddress(body []byte) (DelAddressMsg, error) {
	if len(body) < 8 {
		return DelAddressMsg{}, errMalformed
	}
	return DelAddressMsg{AID: binary.BigEndian.Uint64(body)}, nil
}

// QueueSetupMsg announces a live queue (§3 Queue handle).
type QueueSetupMsg struct {
	QID      uint64
	Peer     peerid.ID
	NetClass uint32
	MTU      uint32
	QLen     uint32
	Priority uint32
	CS       uint32 // connection-status
	Addr     string
}

func (m QueueSetupMsg) Encode() frame.Inner {
	buf := make([]byte, 0, 8+peerid.Size+20+len(m.Addr))
	buf = appendU64(buf, m.QID)
	buf = append(buf, m.Peer[:]...)
	buf = appendU32(buf, m.NetClass)
	buf = appendU32(buf, m.MTU)
	buf = appendU32(buf, m.QLen)
	buf = appendU32(buf, m.Priority)
	buf = appendU32(buf, m.CS)
	buf = putString(buf, m.Addr)
	return frame.Inner{Type: MsgQueueSetup, Body: buf}
}

func DecodeQueueSetup(body []byte) (QueueSetupMsg, error) {
	const fixed = 8 + peerid.Size + 20
	if len(body) < fixed {
		return QueueSetupMsg{}, errMalformed
	}
	m := QueueSetupMsg{QID: binary.BigEndian.Uint64(body[0:8])}
	copy(m.Peer[:], body[8:8+peerid.Size])
	off := 8 + peerid.Size
	m.NetClass = binary.BigEndian.Uint32(body[off:])
	m.MTU = binary.BigEndian.Uint32(body[off+4:])
	m.QLen = binary.BigEndian.Uint32(body[off+8:])
	m.Priority = binary.BigEndian.Uint32(body[off+12:])
	m.CS = binary.BigEndian.Uint32(body[off+16:])
	addr, _, err := getString(body, off+20)
	if err != nil {
		return QueueSetupMsg{}, err
	}
	m.Addr = addr
	return m, nil
}

// QueueUpdateMsg updates mutable queue attributes.
type QueueUpdateMsg struct {
	QID      uint64
	Peer     peerid.ID
	NetClass uint32
	MTU      uint32
	QLen     uint32
	Priority uint32
	CS       uint32
}

func (m QueueUpdateMsg) Encode() frame.Inner {
	buf := make([]byte, 0, 8+peerid.Size+20)
	buf = appendU64(buf, m.QID)
	buf = append(buf, m.Peer[:]...)
	buf = appendU32(buf, m.NetClass)
	buf = appendU32(buf, m.MTU)
	buf = appendU32(buf, m.QLen)
	buf = appendU32(buf, m.Priority)
	buf = appendU32(buf, m.CS)
	return frame.Inner{Type: MsgQueueUpdate, Body: buf}
}

// QueueTeardownMsg withdraws a queue.
type QueueTeardownMsg struct {
	QID  uint64
	Peer peerid.ID
}

func (m QueueTeardownMsg) Encode() frame.Inner {
	buf := appendU64(nil, m.QID)
	buf = append(buf, m.Peer[:]...)
	return frame.Inner{Type: MsgQueueTeardown, Body: buf}
}

// IncomingMsgMsg delivers one received message to the service.
type IncomingMsgMsg struct {
	Sender              peerid.ID
	ExpectedAddrValidity int64
	FCOn                bool
	FCID                uint64
	Framed              []byte
}

func (m IncomingMsgMsg) Encode() frame.Inner {
	buf := make([]byte, 0, peerid.Size+17+len(m.Framed))
	buf = append(buf, m.Sender[:]...)
	buf = appendI64(buf, m.ExpectedAddrValidity)
	if m.FCOn {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendU64(buf, m.FCID)
	buf = append(buf, m.Framed...)
	return frame.Inner{Type: MsgIncomingMsg, Body: buf}
}

func DecodeIncomingMsg(body []byte) (IncomingMsgMsg, error) {
	const fixed = peerid.Size + 17
	if len(body) < fixed {
		return IncomingMsgMsg{}, errMalformed
	}
	var m IncomingMsgMsg
	copy(m.Sender[:], body[0:peerid.Size])
	off := peerid.Size
	m.ExpectedAddrValidity = int64(binary.BigEndian.Uint64(body[off:]))
	m.FCOn = body[off+8] != 0
	m.FCID = binary.BigEndian.Uint64(body[off+9:])
	m.Framed = body[fixed:]
	return m, nil
}

// SendMsgAckMsg reports the egress result of a prior SEND_MSG.
type SendMsgAckMsg struct {
	OK       bool
	MID      uint64
	Receiver peerid.ID
}

func (m SendMsgAckMsg) Encode() frame.Inner {
	buf := make([]byte, 0, 1+8+peerid.Size)
	if m.OK {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendU64(buf, m.MID)
	buf = append(buf, m.Receiver[:]...)
	return frame.Inner{Type: MsgSendMsgAck, Body: buf}
}

// IncomingMsgAckMsg releases one flow-control entry.
type IncomingMsgAckMsg struct {
	FCID   uint64
	Sender peerid.ID
}

func DecodeIncomingMsgAck(body []byte) (IncomingMsgAckMsg, error) {
	if len(body) < 8+peerid.Size {
		return IncomingMsgAckMsg{}, errMalformed
	}
	m := IncomingMsgAckMsg{FCID: binary.BigEndian.Uint64(body)}
	copy(m.Sender[:], body[8:8+peerid.Size])
	return m, nil
}

// QueueCreateMsg (S→C) asks the communicator to establish an outbound
// queue.
type QueueCreateMsg struct {
	RequestID uint64
	Peer      peerid.ID
	Addr      string
}

func DecodeQueueCreate(body []byte) (QueueCreateMsg, error) {
	if len(body) < 8+peerid.Size {
		return QueueCreateMsg{}, errMalformed
	}
	m := QueueCreateMsg{RequestID: binary.BigEndian.Uint64(body)}
	copy(m.Peer[:], body[8:8+peerid.Size])
	addr, _, err := getString(body, 8+peerid.Size)
	if err != nil {
		return QueueCreateMsg{}, err
	}
	m.Addr = addr
	return m, nil
}

type QueueCreateOKMsg struct {
	RequestID uint64
	QID       uint64
}

func (m QueueCreateOKMsg) Encode() frame.Inner {
	buf := appendU64(nil, m.RequestID)
	buf = appendU64(buf, m.QID)
	return frame.Inner{Type: MsgQueueCreateOK, Body: buf}
}

type QueueCreateFailMsg struct{ RequestID uint64 }

func (m QueueCreateFailMsg) Encode() frame.Inner {
	return frame.Inner{Type: MsgQueueCreateFail, Body: appendU64(nil, m.RequestID)}
}

// SendMsgMsg (S→C) requests a send via an announced queue.
type SendMsgMsg struct {
	QID     uint64
	MID     uint64
	Receiver peerid.ID
	Boxed   []byte
}

func DecodeSendMsg(body []byte) (SendMsgMsg, error) {
	const fixed = 16 + peerid.Size
	if len(body) < fixed {
		return SendMsgMsg{}, errMalformed
	}
	m := SendMsgMsg{
		QID: binary.BigEndian.Uint64(body[0:8]),
		MID: binary.BigEndian.Uint64(body[8:16]),
	}
	copy(m.Receiver[:], body[16:16+peerid.Size])
	m.Boxed = body[fixed:]
	return m, nil
}

// BackchannelMsg (C→S) asks the service to relay to another peer.
type BackchannelMsg struct {
	Peer       peerid.ID
	TargetName string
	Body       []byte
}

func (m BackchannelMsg) Encode() frame.Inner {
	buf := append([]byte(nil), m.Peer[:]...)
	buf = putString(buf, m.TargetName)
	buf = append(buf, m.Body...)
	return frame.Inner{Type: MsgBackchannel, Body: buf}
}

// BackchannelIncomingMsg (S→C) delivers a backchannel payload.
type BackchannelIncomingMsg struct {
	Peer  peerid.ID
	Boxed []byte
}

func DecodeBackchannelIncoming(body []byte) (BackchannelIncomingMsg, error) {
	if len(body) < peerid.Size {
		return BackchannelIncomingMsg{}, errMalformed
	}
	var m BackchannelIncomingMsg
	copy(m.Peer[:], body[:peerid.Size])
	m.Boxed = body[peerid.Size:]
	return m, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}
