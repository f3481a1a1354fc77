package unixcomm

import (
	"path/filepath"
	"testing"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/internal/mono"
	"github.com/relaynet/commd/peerid"
)

// TestEMSGSIZEGrowsSndbufAndRetries reproduces §8 End-to-end scenario
// #2: with SO_SNDBUF starting at 8192, sending payloads of 100, 40000,
// and 500 bytes in sequence must send the first untouched, hit
// EMSGSIZE on the second (40000 bytes plus the 4-byte inner and 36-byte
// outer headers is 40040, well over 8192), grow SO_SNDBUF to exactly
// 42000, retry
// successfully, and then send the third payload with no further growth.
func TestEMSGSIZEGrowsSndbufAndRetries(t *testing.T) {
	dir := t.TempDir()
	aAddr := address.Address{Protocol: address.ProtoUnix, Path: filepath.Join(dir, "a.sock")}
	bAddr := address.Address{Protocol: address.ProtoUnix, Path: filepath.Join(dir, "b.sock")}

	var peerA, peerB peerid.ID
	peerA[0] = 0x10
	peerB[0] = 0x20

	a, err := New(aAddr, peerA, int64(5*1e9), int64(1e9), nil, nil, nil)
	if err != nil {
		t.Fatalf("bind a: %v", err)
	}
	defer a.Close()
	// b only needs to exist so sendto has somewhere to deliver to;
	// this test is about the sender's EMSGSIZE growth bookkeeping, not
	// inbound delivery.
	b, err := New(bAddr, peerB, int64(5*1e9), int64(1e9), nil, nil, nil)
	if err != nil {
		t.Fatalf("bind b: %v", err)
	}
	defer b.Close()

	const startingSndbuf = 8192
	if err := setSndbuf(a.fd, startingSndbuf); err != nil {
		t.Fatalf("lower SO_SNDBUF: %v", err)
	}
	a.sndbuf = startingSndbuf

	sizes := []int{100, 40000, 500}
	for i, size := range sizes {
		payload := make([]byte, size)
		for j := range payload {
			payload[j] = byte(i)
		}
		done := make(chan error, 1)
		err := a.Enqueue(peerB, bAddr, payload, mono.NanoTime()+int64(5*1e9), func(_ int, e error) {
			done <- e
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		a.Fire()
		if i == 1 {
			// the 40040-byte framed message exceeds the 8192-byte
			// SO_SNDBUF: the first Fire attempt must hit EMSGSIZE and
			// grow-and-retry within retryAfterGrow itself, not leave
			// the wrapper at the queue head for another tick.
			if a.sndbuf != 42000 {
				t.Fatalf("expected SO_SNDBUF grown to exactly 42000, got %d", a.sndbuf)
			}
		}
		if err := <-done; err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
		if a.Queue.Len() != 0 {
			t.Fatalf("expected wrapper %d drained after Fire, len=%d", i, a.Queue.Len())
		}
	}
	if a.sndbuf != 42000 {
		t.Fatalf("expected SO_SNDBUF to remain 42000 after the untouched third send, got %d", a.sndbuf)
	}
}
