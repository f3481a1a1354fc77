// Package mono provides the nanosecond clock source for session timers
// and idle-teardown accounting.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package mono

import "time"

// NanoTime returns the wall-clock time as nanoseconds since the Unix
// epoch (time.Now().UnixNano()). It follows the wall clock, so a clock
// step moves it too; it is not a monotonic reading.
func NanoTime() int64 { return time.Now().UnixNano() }
