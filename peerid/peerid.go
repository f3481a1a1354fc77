// Package peerid defines the opaque peer identity that the transport
// core treats as a 32-byte value produced by an external collaborator
// (§3 Peer identity — cryptographic derivation is out of scope per
// §1). commd only needs to compare, hash, and wire-serialize it.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package peerid

import (
	"encoding/hex"
	"errors"
)

// Size is the fixed wire length of a peer identity.
const Size = 32

// ID is an opaque, byte-wise-comparable peer identity.
type ID [Size]byte

var Zero ID

func (id ID) String() string { return hex.EncodeToString(id[:8]) + "…" }

// Equal does a byte-wise comparison (§3: "compared byte-wise").
func (id ID) Equal(other ID) bool { return id == other }

func (id ID) IsZero() bool { return id == Zero }

// FromBytes copies exactly Size bytes into an ID, erroring on any
// other length — the parser that reads this off the wire is a
// security surface and must bound the length (§4.A).
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, errors.New("peerid: wrong length")
	}
	copy(id[:], b)
	return id, nil
}
