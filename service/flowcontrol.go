package service

import (
	"sync"

	"github.com/relaynet/commd/peerid"
)

// AckCallback fires exactly once when an inbound flow-control entry
// is released, with success unless the connection drops first (§4.I).
type AckCallback func(ok bool)

type inboundKey struct {
	sender peerid.ID
	fcID   uint64
}

// FlowControl holds the two correlation tables named in §4.I: inbound
// messages awaiting a service ack, and outbound SEND_MSG requests
// awaiting their post-send notification.
type FlowControl struct {
	mu       sync.Mutex
	nextFCID uint64
	inbound  map[inboundKey]AckCallback

	outbound []outboundEntry

	maxQueueLength int
}

type outboundEntry struct {
	receiver peerid.ID
	mid      uint64
}

func NewFlowControl(maxQueueLength int) *FlowControl {
	return &FlowControl{
		inbound:        make(map[inboundKey]AckCallback),
		maxQueueLength: maxQueueLength,
	}
}

// AllocateInbound registers cb against a fresh fc_id for sender and
// returns the id to stamp into INCOMING_MSG's fc_id field (§4.I: "On
// receive-API entry with a callback, allocate an id, store").
func (f *FlowControl) AllocateInbound(sender peerid.ID, cb AckCallback) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFCID++
	id := f.nextFCID
	f.inbound[inboundKey{sender, id}] = cb
	return id
}

// Ack pops and invokes the callback for (sender, fcID) on
// INCOMING_MSG_ACK. An unknown id is a protocol violation (§4.H
// well-formedness): the caller must force a reconnect.
func (f *FlowControl) Ack(sender peerid.ID, fcID uint64) error {
	f.mu.Lock()
	cb, ok := f.inbound[inboundKey{sender, fcID}]
	if ok {
		delete(f.inbound, inboundKey{sender, fcID})
	}
	f.mu.Unlock()
	if !ok {
		return errMalformed
	}
	if cb != nil {
		cb(true)
	}
	return nil
}

// PurgeInbound fails every outstanding inbound entry, called on
// disconnect (§4.H reconnect policy, §4.I).
func (f *FlowControl) PurgeInbound() {
	f.mu.Lock()
	entries := f.inbound
	f.inbound = make(map[inboundKey]AckCallback)
	f.mu.Unlock()
	for _, cb := range entries {
		if cb != nil {
			cb(false)
		}
	}
}

// OverBackpressureThreshold reports whether the outbound MQ already
// has at least maxQueueLength envelopes pending, used to soft-drop
// receive when the caller supplied no flow-control callback (§4.I).
func (f *FlowControl) OverBackpressureThreshold(pendingEnvelopes int) bool {
	return pendingEnvelopes >= f.maxQueueLength
}

// RecordOutbound adds a SEND_MSG awaiting its post-send notification.
func (f *FlowControl) RecordOutbound(receiver peerid.ID, mid uint64) {
	f.mu.Lock()
	f.outbound = append(f.outbound, outboundEntry{receiver, mid})
	f.mu.Unlock()
}

// ResolveOutbound removes the entry for (receiver, mid), reporting
// whether it was present — absent means the queue already disappeared
// and the caller must reply SEND_MSG_ACK(NO, ...) immediately (§4.I).
func (f *FlowControl) ResolveOutbound(receiver peerid.ID, mid uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.outbound {
		if e.receiver == receiver && e.mid == mid {
			f.outbound[i] = f.outbound[len(f.outbound)-1]
			f.outbound = f.outbound[:len(f.outbound)-1]
			return true
		}
	}
	return false
}
