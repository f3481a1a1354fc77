package service

import (
	"testing"

	"github.com/relaynet/commd/peerid"
)

func TestFlowControlAckReleasesCallback(t *testing.T) {
	fc := NewFlowControl(16)
	var peer peerid.ID
	peer[0] = 1

	var called bool
	var ok bool
	id := fc.AllocateInbound(peer, func(success bool) {
		called = true
		ok = success
	})
	if err := fc.Ack(peer, id); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !called || !ok {
		t.Fatalf("expected callback invoked with success, got called=%v ok=%v", called, ok)
	}
	if err := fc.Ack(peer, id); err == nil {
		t.Fatal("expected error acking an already-released id")
	}
}

func TestFlowControlAckUnknownIDIsMalformed(t *testing.T) {
	fc := NewFlowControl(16)
	var peer peerid.ID
	if err := fc.Ack(peer, 999); err == nil {
		t.Fatal("expected error for unknown fc_id")
	}
}

func TestFlowControlPurgeInboundFailsOutstanding(t *testing.T) {
	fc := NewFlowControl(16)
	var peer peerid.ID
	peer[0] = 2

	results := make(chan bool, 2)
	fc.AllocateInbound(peer, func(ok bool) { results <- ok })
	fc.AllocateInbound(peer, func(ok bool) { results <- ok })
	fc.PurgeInbound()

	for i := 0; i < 2; i++ {
		if <-results {
			t.Fatal("expected purge to report failure, not success")
		}
	}
}

func TestFlowControlOutboundResolve(t *testing.T) {
	fc := NewFlowControl(4)
	var receiver peerid.ID
	receiver[0] = 3

	fc.RecordOutbound(receiver, 100)
	if !fc.ResolveOutbound(receiver, 100) {
		t.Fatal("expected resolve to find the recorded entry")
	}
	if fc.ResolveOutbound(receiver, 100) {
		t.Fatal("expected second resolve of the same entry to fail")
	}
}

func TestFlowControlBackpressureThreshold(t *testing.T) {
	fc := NewFlowControl(4)
	if fc.OverBackpressureThreshold(3) {
		t.Fatal("3 pending with max 4 should not be over threshold")
	}
	if !fc.OverBackpressureThreshold(4) {
		t.Fatal("4 pending with max 4 should be over threshold")
	}
}
