package session

import (
	"fmt"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/peerid"
)

// Table maps a peer identity to zero or more sessions (§4.C). Sessions
// for the same peer at different addresses coexist; at most one
// session per (peer, address) pair is enforced by Put.
type Table struct {
	byPeer map[peerid.ID][]*Session
}

func NewTable() *Table {
	return &Table{byPeer: make(map[peerid.ID][]*Session)}
}

// Put inserts s into the table. It returns an error if a session for
// the same (peer, address) already exists (§3: "enforce at-most-one
// session per address").
func (t *Table) Put(s *Session) error {
	for _, existing := range t.byPeer[s.Peer] {
		if address.Equals(existing.Address, s.Address) {
			return fmt.Errorf("session: already exists for %s at %+v", s.Peer, s.Address)
		}
	}
	t.byPeer[s.Peer] = append(t.byPeer[s.Peer], s)
	s.inTable = true
	return nil
}

// Remove deletes s from the table. Removing an absent session is an
// error (§4.C, §8).
func (t *Table) Remove(peer peerid.ID, s *Session) error {
	sessions := t.byPeer[peer]
	for i, existing := range sessions {
		if existing == s {
			sessions[i] = sessions[len(sessions)-1]
			t.byPeer[peer] = sessions[:len(sessions)-1]
			if len(t.byPeer[peer]) == 0 {
				delete(t.byPeer, peer)
			}
			s.inTable = false
			return nil
		}
	}
	return fmt.Errorf("session: remove of absent session for %s", peer)
}

// ContainsValue reports whether s is currently in the table.
func (t *Table) ContainsValue(s *Session) bool {
	for _, existing := range t.byPeer[s.Peer] {
		if existing == s {
			return true
		}
	}
	return false
}

// GetMultiple calls fn for every session belonging to peer, in
// table order, stopping early if fn returns false. It tolerates fn
// removing the current element from the table (§4.C, §9: "iteration
// must tolerate removal of the current element") by iterating over a
// snapshot slice.
func (t *Table) GetMultiple(peer peerid.ID, fn func(*Session) bool) {
	snapshot := append([]*Session(nil), t.byPeer[peer]...)
	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

// Lookup returns the session for (peer, address), if any.
func (t *Table) Lookup(peer peerid.ID, addr address.Address) *Session {
	var found *Session
	t.GetMultiple(peer, func(s *Session) bool {
		if address.Equals(s.Address, addr) {
			found = s
			return false
		}
		return true
	})
	return found
}

// Len reports the total number of sessions across all peers, for
// tests and stats.
func (t *Table) Len() int {
	n := 0
	for _, sessions := range t.byPeer {
		n += len(sessions)
	}
	return n
}

// All returns every session in the table. Intended for shutdown paths
// that must walk and fail everything.
func (t *Table) All() []*Session {
	var out []*Session
	for _, sessions := range t.byPeer {
		out = append(out, sessions...)
	}
	return out
}
