// Package config holds the resolved configuration values commd reads
// (§6). Parsing an on-disk file or command line is the external
// collaborator named in §1/§1 non-goals — this package only defines
// the struct those values land in, plus a read-mostly snapshot cache
// in the style of the teacher's cmn.Rom, so hot paths (the scheduler,
// the reaper) don't re-read a config object on every tick.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package config

import "time"

// ProxyType enumerates the §6 PROXY_TYPE values.
type ProxyType string

const (
	ProxyNone           ProxyType = ""
	ProxyHTTP           ProxyType = "HTTP"
	ProxySOCKS4         ProxyType = "SOCKS4"
	ProxySOCKS5         ProxyType = "SOCKS5"
	ProxySOCKS4A        ProxyType = "SOCKS4A"
	ProxySOCKS5Hostname ProxyType = "SOCKS5_HOSTNAME"
)

// Config is the fully resolved set of values named in §6, organized
// by the section/key layout the spec documents.
type Config struct {
	Unix struct {
		Path string // transport-unix/UNIXPATH
	}
	Testing struct {
		UseAbstractSockets bool // testing/USE_ABSTRACT_SOCKETS
	}
	NAT struct {
		DisableV6 bool // nat/DISABLEV6
	}

	// Per-communicator-section values; a process may run one UNIX and
	// one HTTP(S) communicator simultaneously, each with its own section.
	Unixcomm    SectionConfig
	HTTPcomm    SectionConfig
	HTTPScomm   SectionConfig
}

// SectionConfig is the repeated shape of a "<section>/..." block (§6).
type SectionConfig struct {
	MaxQueueLength int // MAX_QUEUE_LENGTH, default 16
	MaxConnections int // MAX_CONNECTIONS, default 128

	Proxy             string
	ProxyUsername     string
	ProxyPassword     string
	ProxyType         ProxyType
	ProxyHTTPTunnel   bool

	EmulateXHR bool // EMULATE_XHR

	BindTo  string // BINDTO
	BindTo6 string // BINDTO6

	IdleTimeout  time.Duration // session idle timeout (§3, default 5 min)
	PutDisconnectDelay time.Duration // §4.D.2 default 1s
}

// DefaultSection returns the §6-documented defaults.
func DefaultSection() SectionConfig {
	return SectionConfig{
		MaxQueueLength:     16,
		MaxConnections:     128,
		IdleTimeout:        5 * time.Minute,
		PutDisconnectDelay: time.Second,
	}
}

// Default returns a Config with every section at its documented
// default.
func Default() *Config {
	c := &Config{}
	c.Unixcomm = DefaultSection()
	c.HTTPcomm = DefaultSection()
	c.HTTPScomm = DefaultSection()
	return c
}

// readMostly is a snapshot of a handful of hot-path values, refreshed
// explicitly via Set and read through IdleTimeoutNanos/MaxQueueLength —
// mirrors the teacher's cmn.Rom pattern of avoiding a full
// config-object dereference per iteration. The scheduler and reaper in
// this module take their values as constructor arguments instead and
// do not read it.
type readMostly struct {
	idleTimeout    int64 // ns
	maxQueueLength int
}

var current readMostly

// Set refreshes the read-mostly snapshot from cfg's unix-communicator
// section; call it once at startup and again on config reload.
func Set(cfg *Config) {
	current.idleTimeout = int64(cfg.Unixcomm.IdleTimeout)
	current.maxQueueLength = cfg.Unixcomm.MaxQueueLength
}

func IdleTimeoutNanos() int64 { return current.idleTimeout }
func MaxQueueLength() int     { return current.maxQueueLength }
