package service

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/peerid"
	"github.com/relaynet/commd/sendqueue"
)

type fakeSender struct {
	enqueued chan []byte
}

func (f *fakeSender) Enqueue(_ peerid.ID, _ address.Address, payload []byte, _ int64, completion sendqueue.Completion) error {
	f.enqueued <- payload
	if completion != nil {
		completion(len(payload), nil)
	}
	return nil
}

func TestClientHandshakeAndSendMsg(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "svc.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	defer os.Remove(sockPath)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	sender := &fakeSender{enqueued: make(chan []byte, 1)}
	c := NewClient(sockPath, 0, sender, 16)
	c.AddAddress("unix-@commtest#0", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the client to connect")
	}
	defer conn.Close()

	var reasm frame.Reassembler
	var pending []frame.Inner // decoded but not yet examined; one read may carry several messages
	buf := make([]byte, 4096)
	readUntil := func(want uint16) frame.Inner {
		t.Helper()
		for {
			for len(pending) > 0 {
				m := pending[0]
				pending = pending[1:]
				if m.Type == want {
					return m
				}
			}
			n, err := conn.Read(buf)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			msgs, ferr := reasm.Feed(buf[:n])
			if ferr != nil {
				t.Fatalf("feed: %v", ferr)
			}
			pending = append(pending, msgs...)
		}
	}

	nc := readUntil(MsgNewCommunicator)
	if _, err := DecodeNewCommunicator(nc.Body); err != nil {
		t.Fatalf("decode NEW_COMMUNICATOR: %v", err)
	}
	aa := readUntil(MsgAddAddress)
	got, err := DecodeAddAddress(aa.Body)
	if err != nil {
		t.Fatalf("decode ADD_ADDRESS: %v", err)
	}
	if got.Addr != "unix-@commtest#0" {
		t.Fatalf("unexpected announced address: %q", got.Addr)
	}

	qid := c.AddQueue(peerid.ID{1}, "unix-@peer#0", 1500, 16, 0, nil)
	readUntil(MsgQueueSetup)

	req := SendMsgMsg{QID: qid, MID: 42, Receiver: peerid.ID{1}, Boxed: []byte("payload")}
	if _, err := conn.Write(frame.EncodeInner(frame.Inner{Type: MsgSendMsg, Body: req.encodeForTest()})); err != nil {
		t.Fatalf("write SEND_MSG: %v", err)
	}

	select {
	case got := <-sender.enqueued:
		if string(got) != "payload" {
			t.Fatalf("unexpected payload forwarded to sender: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SEND_MSG to reach the sender")
	}
}
