// Package session implements the session table (§4.C) and the
// per-session idle-timeout state machine (§4.F): a session is the
// live conversation with one peer at one address, exclusively owned
// by its communicator.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package session

import (
	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/internal/mono"
	"github.com/relaynet/commd/peerid"
)

// Session is a currently-live conversation with one peer at one
// address (§3). The session table holds the only strong reference;
// pending send-queue wrappers hold a non-owning back-reference and
// must be removed before a session is destroyed.
type Session struct {
	Peer    peerid.ID
	Address address.Address

	CreatedAt      int64 // mono.NanoTime() at construction
	TimeoutAt      int64 // mono.NanoTime() deadline; refreshed on activity
	ticksRemaining int   // reaper countdown, mirrors the teacher's heap-based collector
	heapIndex      int   // reaper's container/heap slot, -1 when not queued

	BytesInQueue int64
	MsgsInQueue  int

	// QueueID is set once the communicator announces this session to
	// the service as a queue (§4.H QUEUE_SETUP); zero means "not yet
	// announced".
	QueueID uint64

	// NextReceiveNotBefore throttles HTTP ingress (§4.E): while
	// mono.NanoTime() < NextReceiveNotBefore the GET reader must pause.
	NextReceiveNotBefore int64

	// Unix is nil for HTTP sessions; UnixState tracks the datagram
	// communicator's much simpler liveness-only state.
	Unix *UnixState
	// HTTP is nil for UNIX sessions; holds the PUT/GET state machine
	// (§4.G), defined in package httpcomm to avoid a import cycle —
	// stored here as an opaque handle the HTTP communicator type-asserts.
	HTTP any

	inTable bool
}

// UnixState is the entirety of the UNIX communicator's per-session
// state beyond the generic fields above: liveness only (§3: "UNIX:
// just liveness").
type UnixState struct {
	Live bool
}

// New constructs a session with its idle clock started.
func New(peer peerid.ID, addr address.Address, idleTimeout int64) *Session {
	now := mono.NanoTime()
	return &Session{
		Peer:      peer,
		Address:   addr,
		CreatedAt: now,
		TimeoutAt: now + idleTimeout,
	}
}

// Touch refreshes the idle deadline on any successful send or receive
// (§4.F: "Activity ... sets timeout_deadline = now + idle_timeout").
func (s *Session) Touch(idleTimeout int64) {
	s.TimeoutAt = mono.NanoTime() + idleTimeout
}

// InTable reports table membership; by invariant (§3/§8) a session is
// in the table iff this is true.
func (s *Session) InTable() bool { return s.inTable }
