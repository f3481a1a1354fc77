package address_test

import (
	"testing"

	"github.com/relaynet/commd/address"
)

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []address.Address{
		{Protocol: address.ProtoUnix, Path: "/tmp/unix-plugin-sock.1"},
		{Protocol: address.ProtoUnix, Path: "commd-sock", Options: address.OptAbstractSocket},
		{Protocol: address.ProtoHTTP, Host: "example.org"},
		{Protocol: address.ProtoHTTP, Host: "example.org", Port: 8080, URIPath: "/p2p"},
		{Protocol: address.ProtoHTTPS, Host: "example.org", Options: address.OptVerifyCert},
		{Protocol: address.ProtoHTTPS, Host: "::1", Port: 443},
	}
	for _, a := range cases {
		s, err := address.Format(a)
		if err != nil {
			t.Fatalf("Format(%+v): %v", a, err)
		}
		got, err := address.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if !address.Equals(a, got) {
			t.Fatalf("round-trip mismatch: %+v -> %q -> %+v", a, s, got)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"noseparatoratall",
		"http://[::1",
		"http://host:notaport",
		"unix-foo#notanumber",
	}
	for _, s := range bad {
		if _, err := address.Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", s)
		}
	}
}

func TestParseDefaultsAndBrackets(t *testing.T) {
	a, err := address.Parse("https://[2001:db8::1]/x")
	if err != nil {
		t.Fatal(err)
	}
	if a.Host != "2001:db8::1" || a.URIPath != "/x" {
		t.Fatalf("got %+v", a)
	}

	a2, err := address.Parse("http://example.org")
	if err != nil {
		t.Fatal(err)
	}
	if a2.Port != 0 {
		t.Fatalf("expected unset port to mean default, got %d", a2.Port)
	}
	if !address.Equals(a2, address.Address{Protocol: address.ProtoHTTP, Host: "example.org", Port: 80}) {
		t.Fatalf("default port 80 should compare equal")
	}
}

func TestAbstractSocketWireNUL(t *testing.T) {
	a := address.Address{Protocol: address.ProtoUnix, Path: "commd", Options: address.OptAbstractSocket}
	sa, err := address.ToSockaddr(a)
	if err != nil {
		t.Fatal(err)
	}
	if sa.Name[0] != 0 {
		t.Fatalf("abstract socket name must start with NUL, got %q", sa.Name)
	}
	if address.DisplayPath(a) != "@commd" {
		t.Fatalf("display path should show leading @, got %q", address.DisplayPath(a))
	}
}

func TestWireBlobRoundTrip(t *testing.T) {
	u := address.Address{Protocol: address.ProtoUnix, Path: "/tmp/s"}
	b, err := address.EncodeUnix(u)
	if err != nil {
		t.Fatal(err)
	}
	got, err := address.DecodeUnix(b)
	if err != nil {
		t.Fatal(err)
	}
	if !address.Equals(u, got) {
		t.Fatalf("unix blob round-trip mismatch: %+v vs %+v", u, got)
	}

	h := address.Address{Protocol: address.ProtoHTTPS, Host: "peer.example", Port: 9000, URIPath: "/a"}
	hb, err := address.EncodeHTTP(h)
	if err != nil {
		t.Fatal(err)
	}
	gotH, err := address.DecodeHTTP(hb)
	if err != nil {
		t.Fatal(err)
	}
	if !address.Equals(h, gotH) {
		t.Fatalf("http blob round-trip mismatch: %+v vs %+v", h, gotH)
	}
}

func TestDecodeUnixRejectsOutOfBoundsLength(t *testing.T) {
	// options=0, addr_len claims 1000 bytes but buffer only has 2 more.
	b := []byte{0, 0, 0, 0, 0, 0, 3, 0xe8, 'x', 0}
	if _, err := address.DecodeUnix(b); err == nil {
		t.Fatal("expected bounds error for oversized addr_len")
	}
}
