// Package unixcomm implements the UNIX-domain-socket datagram
// communicator (§4.D.1 send path, §4.E UNIX receive pipeline, §6
// socket layout): a SOCK_DGRAM endpoint bound at a filesystem or
// Linux abstract-namespace path, exchanging outer-framed (§4.B)
// datagrams with peers at the same protocol.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package unixcomm

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/relaynet/commd/address"
)

// bind creates a non-blocking SOCK_DGRAM socket and binds it at addr,
// returning the raw fd. Non-blocking is required by the cooperative
// scheduler's "no operation holds the loop across a blocking system
// call" rule (§5).
func bind(addr address.Address) (int, error) {
	sa, err := address.ToSockaddr(addr)
	if err != nil {
		return -1, fmt.Errorf("unixcomm: %w", err)
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, fmt.Errorf("unixcomm: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("unixcomm: setnonblock: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("unixcomm: bind %s: %w", address.DisplayPath(addr), err)
	}
	return fd, nil
}

func getSndbuf(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
}

func setSndbuf(fd, size int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, size)
}
