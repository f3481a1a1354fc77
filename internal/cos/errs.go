// Package cos holds small, dependency-free helpers shared by every
// commd package: error classification and byte-size constants.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package cos

import (
	"errors"
	"syscall"
)

// IsRetriableSend reports whether a UNIX sendto() error (§4.D.1) should
// be retried in place rather than promoted to a permanent failure.
func IsRetriableSend(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOBUFS) || errors.Is(err, syscall.EWOULDBLOCK)
}

// IsMsgSize reports the UNIX EMSGSIZE condition that triggers one
// SO_SNDBUF growth-and-retry (§4.D.1, §8 boundary property).
func IsMsgSize(err error) bool {
	return errors.Is(err, syscall.EMSGSIZE)
}

func IsRetriableConn(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
