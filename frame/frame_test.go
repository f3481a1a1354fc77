package frame_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/peerid"
)

func TestOuterRoundTrip(t *testing.T) {
	var sender peerid.ID
	copy(sender[:], bytes.Repeat([]byte{0x42}, peerid.Size))

	body := frame.EncodeInner(frame.Inner{Body: []byte("hello-peer!")})
	buf, err := frame.EncodeOuter(sender, body)
	if err != nil {
		t.Fatal(err)
	}

	outer, err := frame.DecodeOuter(buf)
	if err != nil {
		t.Fatal(err)
	}
	if outer.Sender != sender {
		t.Fatalf("sender mismatch")
	}
	msgs, truncated := frame.TokenizeInner(outer.Body)
	if truncated != 0 {
		t.Fatalf("unexpected truncation: %d", truncated)
	}
	if len(msgs) != 1 || string(msgs[0].Body) != "hello-peer!" {
		t.Fatalf("got %+v", msgs)
	}
}

func TestZeroLengthPayloadSurvivesRoundTrip(t *testing.T) {
	var sender peerid.ID
	body := frame.EncodeInner(frame.Inner{Body: nil})
	buf, err := frame.EncodeOuter(sender, body)
	if err != nil {
		t.Fatal(err)
	}
	outer, err := frame.DecodeOuter(buf)
	if err != nil {
		t.Fatal(err)
	}
	msgs, _ := frame.TokenizeInner(outer.Body)
	if len(msgs) != 1 || len(msgs[0].Body) != 0 {
		t.Fatalf("got %+v", msgs)
	}
}

func TestMultipleInnerMessagesCoalescedInOneDatagram(t *testing.T) {
	var sender peerid.ID
	body := frame.EncodeInner(
		frame.Inner{Body: []byte("p1")},
		frame.Inner{Body: []byte("p2")},
		frame.Inner{Body: []byte("p3")},
	)
	buf, err := frame.EncodeOuter(sender, body)
	if err != nil {
		t.Fatal(err)
	}
	outer, err := frame.DecodeOuter(buf)
	if err != nil {
		t.Fatal(err)
	}
	msgs, truncated := frame.TokenizeInner(outer.Body)
	if truncated != 0 {
		t.Fatalf("unexpected truncation: %d", truncated)
	}
	want := []string{"p1", "p2", "p3"}
	for i, w := range want {
		if string(msgs[i].Body) != w {
			t.Fatalf("msg %d: got %q want %q", i, msgs[i].Body, w)
		}
	}
}

func TestTokenizeInnerStopsOnCorruption(t *testing.T) {
	good := frame.EncodeInner(frame.Inner{Body: []byte("ok")})
	corrupt := append(good, 0x00, 0x01, 0xFF, 0xFF, 'x') // size=1 < innerHeaderSize
	msgs, truncated := frame.TokenizeInner(corrupt)
	if len(msgs) != 1 || string(msgs[0].Body) != "ok" {
		t.Fatalf("expected exactly the first valid message, got %+v", msgs)
	}
	if truncated == 0 {
		t.Fatalf("expected truncation to be reported")
	}
}

func TestDecodeOuterRejectsOversizedHeader(t *testing.T) {
	buf := make([]byte, frame.OuterHeaderSize) // full header, but size field claims 0xFFFF
	buf[0], buf[1] = 0xFF, 0xFF
	if _, err := frame.DecodeOuter(buf); err == nil {
		t.Fatal("expected error for size exceeding buffer")
	}
}

func TestReassemblerAcrossSplitReads(t *testing.T) {
	full := frame.EncodeInner(
		frame.Inner{Body: []byte("Lorem ipsum dolo...")},
		frame.Inner{Body: []byte("Duis aute irure ...")},
	)
	var r frame.Reassembler
	var got []frame.Inner
	// Feed it back one byte at a time, emulating an HTTP body split
	// arbitrarily across TCP reads.
	for i := 0; i < len(full); i++ {
		msgs, err := r.Feed(full[i:i+1])
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		got = append(got, msgs...)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 reassembled messages, got %d: %+v", len(got), got)
	}
	if string(got[0].Body) != "Lorem ipsum dolo..." || string(got[1].Body) != "Duis aute irure ..." {
		t.Fatalf("got %+v", got)
	}
	if r.Pending() != 0 {
		t.Fatalf("expected no pending bytes, got %d", r.Pending())
	}
}

func TestReassemblerRejectsCorruptHeader(t *testing.T) {
	var r frame.Reassembler
	bad := []byte{0, 1, 0, 0} // size=1 is below innerHeaderSize
	if _, err := r.Feed(bad); !errors.Is(err, frame.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	// the Reassembler is dead once corrupt; further Feed calls keep failing.
	if _, err := r.Feed([]byte("anything")); !errors.Is(err, frame.ErrCorrupt) {
		t.Fatalf("expected sticky ErrCorrupt, got %v", err)
	}
}
