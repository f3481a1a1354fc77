// Package monitor defines the session-monitor sink that the state
// machine (§4.F) notifies on every UP/DOWN transition, and a
// structured-logging implementation of it.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package monitor

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/relaynet/commd/internal/nlog"
	"github.com/relaynet/commd/peerid"
)

// Sink receives session lifecycle events. A communicator may be run
// with no sink at all (nil is a valid, silently-ignored Sink).
type Sink interface {
	OnUp(peer peerid.ID, address string)
	OnDown(peer peerid.ID, address string, reason string)
}

// Event is the structured form of one monitor notification, suitable
// for a log line or an external collector to consume.
type Event struct {
	State   string `json:"state"` // "UP" or "DOWN"
	Peer    string `json:"peer"`
	Address string `json:"address"`
	Reason  string `json:"reason,omitempty"`
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LogSink is the default Sink: it renders each event as a one-line
// JSON object through nlog, the way the teacher renders its own debug
// dumps with jsoniter rather than encoding/json.
type LogSink struct{}

func (LogSink) OnUp(peer peerid.ID, address string) {
	emit(Event{State: "UP", Peer: peer.String(), Address: address})
}

func (LogSink) OnDown(peer peerid.ID, address, reason string) {
	emit(Event{State: "DOWN", Peer: peer.String(), Address: address, Reason: reason})
}

func emit(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		nlog.Warningf("monitor: failed to encode event: %v", err)
		return
	}
	nlog.Infoln(string(b))
}

// Multi fans one event out to several sinks, e.g. LogSink plus a
// test-observer channel.
type Multi []Sink

func (m Multi) OnUp(peer peerid.ID, address string) {
	for _, s := range m {
		s.OnUp(peer, address)
	}
}

func (m Multi) OnDown(peer peerid.ID, address, reason string) {
	for _, s := range m {
		s.OnDown(peer, address, reason)
	}
}
