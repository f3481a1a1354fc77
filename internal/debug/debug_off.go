//go:build !debug

// Package debug provides cheap, compiled-out-by-default assertions.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package debug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func Func(_ func())                      {}
