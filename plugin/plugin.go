// Package plugin wires one communicator (UNIX or HTTP(S)), its
// service client, and the scheduler loop that drives both into a
// single runnable process (§5 concurrency model, §6 external
// interfaces, §7 startup-fatal handling).
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/config"
	"github.com/relaynet/commd/httpcomm"
	"github.com/relaynet/commd/internal/mono"
	"github.com/relaynet/commd/internal/nlog"
	"github.com/relaynet/commd/monitor"
	"github.com/relaynet/commd/peerid"
	"github.com/relaynet/commd/service"
	"github.com/relaynet/commd/unixcomm"
)

// Protocol selects which communicator a Plugin runs, mirroring how
// the teacher's backend drivers are chosen by name at startup.
type Protocol string

const (
	ProtocolUnix  Protocol = "unix"
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

const defaultTick = 250 * time.Millisecond

// Plugin ties together exactly one communicator and the service
// client that speaks for it — one OS process per communicator, the
// way the spec's source material runs one communicator binary per
// transport (§2).
type Plugin struct {
	proto Protocol
	cfg   *config.Config
	sink  monitor.Sink

	unix  *unixcomm.Communicator
	htt   *httpcomm.Communicator
	queue *service.Client

	tick time.Duration
}

// New builds and binds the communicator named by proto. It returns a
// non-nil error for every §7 "startup fatal" condition (bind failure,
// missing required config) — the caller is responsible for turning
// that into exit code 1 and logging it, never panicking.
func New(proto Protocol, cfg *config.Config, svcPath string, sink monitor.Sink) (*Plugin, error) {
	if cfg == nil {
		return nil, fmt.Errorf("plugin: missing configuration")
	}
	if svcPath == "" {
		return nil, fmt.Errorf("plugin: missing service socket path")
	}
	config.Set(cfg)

	p := &Plugin{proto: proto, cfg: cfg, sink: sink, tick: defaultTick}
	local := randomLocalID()

	switch proto {
	case ProtocolUnix:
		addr, err := unixAddress(cfg)
		if err != nil {
			return nil, err
		}
		idle := int64(cfg.Unixcomm.IdleTimeout)
		c, err := unixcomm.New(addr, local, idle, int64(p.tick), sink, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("plugin: bind unix communicator: %w", err)
		}
		p.unix = c
		client := service.NewClient(svcPath, 0, c, cfg.Unixcomm.MaxQueueLength)
		c.SetHandlers(client, client)
		p.queue = client
		disp, _ := address.Format(addr)
		client.AddAddress(disp, 0, 0)

	case ProtocolHTTP, ProtocolHTTPS:
		sec := cfg.HTTPcomm
		if proto == ProtocolHTTPS {
			sec = cfg.HTTPScomm
		}
		idle := int64(sec.IdleTimeout)
		c, err := httpcomm.New(proto == ProtocolHTTPS, local, idle, int64(p.tick), sec, 0, true, sink, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("plugin: construct http communicator: %w", err)
		}
		p.htt = c
		client := service.NewClient(svcPath, 0, c, sec.MaxQueueLength)
		c.SetHandlers(client, client)
		p.queue = client

	default:
		return nil, fmt.Errorf("plugin: unknown protocol %q", proto)
	}
	return p, nil
}

func unixAddress(cfg *config.Config) (address.Address, error) {
	if cfg.Unix.Path == "" {
		return address.Address{}, fmt.Errorf("plugin: transport-unix/UNIXPATH is required")
	}
	opts := uint32(0)
	path := cfg.Unix.Path
	if cfg.Testing.UseAbstractSockets {
		opts |= address.OptAbstractSocket
	}
	return address.Address{Protocol: address.ProtoUnix, Options: opts, Path: path}, nil
}

func randomLocalID() peerid.ID {
	var id peerid.ID
	// A real deployment receives its identity from the service on
	// NEW_COMMUNICATOR's response; commd has no identity authority of
	// its own (§3 Peer identity, external collaborator). Stamping the
	// current time into the low bytes is only enough to make distinct
	// same-host test processes distinguishable from one another.
	now := mono.NanoTime()
	for i := 0; i < 8 && i < peerid.Size; i++ {
		id[peerid.Size-1-i] = byte(now >> (8 * uint(i)))
	}
	return id
}

// Run drives the scheduler loop until ctx is cancelled: the service
// client's reconnect loop, the communicator's receive/send pump, and
// the idle-session reaper tick (§5).
func (p *Plugin) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- p.queue.Run(ctx) }()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Close()
			<-done
			return nil
		case <-ticker.C:
			p.pump()
		}
	}
}

// pump is one scheduler tick for the UNIX communicator: drain as many
// readable datagrams as are pending, fire one send attempt, and age
// the idle reaper. For the HTTP communicator only the reaper is aged —
// its sessions send and receive via the PUT/GET goroutine pair started
// at session creation (§4.G).
func (p *Plugin) pump() {
	if p.unix == nil {
		if p.htt != nil {
			p.htt.Reaper.Tick()
		}
		return
	}
	for {
		got, err := p.unix.ReceiveOnce()
		if err != nil {
			nlog.Warningf("plugin: unix receive error: %v", err)
			break
		}
		if !got {
			break
		}
	}
	p.unix.Fire()
	p.unix.Reaper.Tick()
}

// Close releases the bound communicator; safe to call once at
// shutdown after Run's context is cancelled.
func (p *Plugin) Close() error {
	if p.unix != nil {
		return p.unix.Close()
	}
	if p.htt != nil {
		return p.htt.Close()
	}
	return nil
}
