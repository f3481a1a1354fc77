package httpcomm

import "testing"

func TestPutStateMachineHappyPath(t *testing.T) {
	s := PutNotConnected
	s = transitionPut(s, evDataAvailable)
	if s != PutConnected {
		t.Fatalf("NOT_CONNECTED + data -> want CONNECTED, got %s", s)
	}
	s = transitionPut(s, evNoMoreData)
	if s != PutPaused {
		t.Fatalf("CONNECTED + no-data -> want PAUSED, got %s", s)
	}
	s = transitionPut(s, evIdleTimerFired)
	if s != PutTmpDisconnecting {
		t.Fatalf("PAUSED + idle -> want TMP_DISCONNECTING, got %s", s)
	}
	s = transitionPut(s, evTransferEnded)
	if s != PutTmpDisconnected {
		t.Fatalf("TMP_DISCONNECTING + end -> want TMP_DISCONNECTED, got %s", s)
	}
	s = transitionPut(s, evSendArrived)
	if s != PutConnected {
		t.Fatalf("TMP_DISCONNECTED + send -> want CONNECTED, got %s", s)
	}
}

func TestPutStateMachineReconnectRequired(t *testing.T) {
	s := PutTmpDisconnecting
	s = transitionPut(s, evSendArrived)
	if s != PutTmpReconnectRequired {
		t.Fatalf("TMP_DISCONNECTING + send -> want TMP_RECONNECT_REQUIRED, got %s", s)
	}
	s = transitionPut(s, evTransferEnded)
	if s != PutConnected {
		t.Fatalf("TMP_RECONNECT_REQUIRED + end -> want CONNECTED, got %s", s)
	}
}

func TestPutStateMachineFatalErrorFromAnyState(t *testing.T) {
	for _, start := range []PutState{PutNotConnected, PutConnected, PutPaused, PutTmpDisconnecting, PutTmpDisconnected, PutTmpReconnectRequired, PutDisconnected} {
		if got := transitionPut(start, evFatalError); got != PutDisconnected {
			t.Fatalf("%s + fatal -> want DISCONNECTED, got %s", start, got)
		}
	}
}
