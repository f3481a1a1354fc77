package session_test

import (
	"testing"
	"time"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/peerid"
	"github.com/relaynet/commd/session"
)

func TestTableEnforcesUniquePerAddress(t *testing.T) {
	tbl := session.NewTable()
	var p peerid.ID
	p[0] = 1
	addr := address.Address{Protocol: address.ProtoUnix, Path: "/tmp/a"}

	s1 := session.New(p, addr, int64(time.Minute))
	if err := tbl.Put(s1); err != nil {
		t.Fatal(err)
	}
	s2 := session.New(p, addr, int64(time.Minute))
	if err := tbl.Put(s2); err == nil {
		t.Fatal("expected error inserting duplicate (peer, address)")
	}

	otherAddr := address.Address{Protocol: address.ProtoUnix, Path: "/tmp/b"}
	s3 := session.New(p, otherAddr, int64(time.Minute))
	if err := tbl.Put(s3); err != nil {
		t.Fatalf("different address for same peer should coexist: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", tbl.Len())
	}
}

func TestTableRemoveAbsentIsError(t *testing.T) {
	tbl := session.NewTable()
	var p peerid.ID
	s := session.New(p, address.Address{Protocol: address.ProtoUnix, Path: "/tmp/x"}, int64(time.Minute))
	if err := tbl.Remove(p, s); err == nil {
		t.Fatal("expected error removing session never inserted")
	}
}

func TestTableGetMultipleTolerantOfRemoval(t *testing.T) {
	tbl := session.NewTable()
	var p peerid.ID
	for i := 0; i < 3; i++ {
		addr := address.Address{Protocol: address.ProtoUnix, Path: string(rune('a' + i))}
		if err := tbl.Put(session.New(p, addr, int64(time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	visited := 0
	tbl.GetMultiple(p, func(s *session.Session) bool {
		visited++
		_ = tbl.Remove(p, s) // must not corrupt iteration
		return true
	})
	if visited != 3 {
		t.Fatalf("expected to visit 3 sessions, got %d", visited)
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected table empty after removal, got %d", tbl.Len())
	}
}

// TestIdleBoundary's "expired at deadline" and "not yet expired"
// subtests exercise the §8 boundary property: idle for exactly
// idle_timeout disconnects, idle for idle_timeout-epsilon does not.
func TestIdleBoundary(t *testing.T) {
	const idleTimeout = int64(100 * time.Millisecond)
	const tick = int64(10 * time.Millisecond)

	t.Run("not yet expired", func(t *testing.T) {
		r := session.NewReaper(idleTimeout, tick)
		s := session.New(peerid.ID{}, address.Address{Protocol: address.ProtoUnix, Path: "/tmp/a"}, idleTimeout)
		// push the deadline one tick further into the future so one tick must not expire it
		s.TimeoutAt += tick
		r.Add(s)
		expired := false
		r.OnExpired = func(*session.Session) { expired = true }
		r.Tick()
		if expired {
			t.Fatal("session should not be expired before its deadline")
		}
	})

	t.Run("expired at deadline", func(t *testing.T) {
		r := session.NewReaper(idleTimeout, tick)
		s := session.New(peerid.ID{}, address.Address{Protocol: address.ProtoUnix, Path: "/tmp/a"}, idleTimeout)
		s.TimeoutAt -= idleTimeout // force immediate expiry
		r.Add(s)
		expired := false
		r.OnExpired = func(*session.Session) { expired = true }
		r.Tick()
		if !expired {
			t.Fatal("session should be expired once its deadline has passed")
		}
	})
}

func TestReaperTouchRearms(t *testing.T) {
	const idleTimeout = int64(time.Second)
	r := session.NewReaper(idleTimeout, int64(10*time.Millisecond))
	s := session.New(peerid.ID{}, address.Address{Protocol: address.ProtoUnix, Path: "/tmp/a"}, idleTimeout)
	r.Add(s)
	before := s.TimeoutAt
	time.Sleep(time.Millisecond)
	r.Touch(s)
	if s.TimeoutAt <= before {
		t.Fatal("Touch should push the deadline forward")
	}
}
