// Package nlog is commd's logger: leveled, timestamped, safe for
// concurrent use. It deliberately does not buffer or rotate files the
// way a daemon logger would — this repo is a library, not a process,
// and the external collaborator that owns "logging setup" (§1) picks
// the sink via SetOutput.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stderr
)

// SetOutput redirects all subsequent log lines. Safe to call concurrently
// with logging calls.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func logf(sev severity, depth int, format string, args ...any) {
	_ = depth // reserved: call-site depth for future %file:%line support
	line := fmt.Sprintf(format, args...)
	emit(sev, line)
}

func logln(sev severity, args ...any) {
	emit(sev, fmt.Sprint(args...))
}

func emit(sev severity, line string) {
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	mu.Lock()
	fmt.Fprintf(out, "%s %c %s\n", ts, sevLetter(sev), line)
	mu.Unlock()
}

func sevLetter(sev severity) byte {
	switch sev {
	case sevWarn:
		return 'W'
	case sevErr:
		return 'E'
	default:
		return 'I'
	}
}

func Infof(format string, args ...any)    { logf(sevInfo, 0, format, args...) }
func Infoln(args ...any)                  { logln(sevInfo, args...) }
func Warningf(format string, args ...any) { logf(sevWarn, 0, format, args...) }
func Warningln(args ...any)               { logln(sevWarn, args...) }
func Errorf(format string, args ...any)   { logf(sevErr, 0, format, args...) }
func Errorln(args ...any)                 { logln(sevErr, args...) }

// Flush is a no-op placeholder kept for call-site parity with the
// teacher's nlog — there is no buffered writer here to drain.
func Flush(...bool) {}
