package plugin

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaynet/commd/config"
)

func TestNewRejectsMissingConfig(t *testing.T) {
	if _, err := New(ProtocolUnix, nil, "/tmp/whatever", nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewRejectsMissingUnixPath(t *testing.T) {
	cfg := config.Default()
	if _, err := New(ProtocolUnix, cfg, "/tmp/svc.sock", nil); err == nil {
		t.Fatal("expected error for missing transport-unix/UNIXPATH")
	}
}

func TestNewRejectsUnknownProtocol(t *testing.T) {
	cfg := config.Default()
	cfg.Unix.Path = filepath.Join(t.TempDir(), "commd.sock")
	if _, err := New(Protocol("carrier-pigeon"), cfg, "/tmp/svc.sock", nil); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestPluginBindsAndShutsDownCleanly(t *testing.T) {
	dir := t.TempDir()
	svcPath := filepath.Join(dir, "svc.sock")
	ln, err := net.Listen("unix", svcPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cfg := config.Default()
	cfg.Unix.Path = filepath.Join(dir, "commd.sock")
	p, err := New(ProtocolUnix, cfg, svcPath, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
