// Package address implements the communicator's address codec (§4.A):
// parsing and formatting of human-readable transport addresses, their
// structural equality, and derivation of a UNIX sockaddr. Addresses
// arrive both from local configuration and from peers on the wire, so
// the parser is a security surface: every length is bounded.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package address

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Option bits (§4.A, §6). Interpretation depends on Protocol.
const (
	OptAbstractSocket uint32 = 1 << 0 // UNIX: leading '@' <-> leading NUL on the wire
	OptVerifyCert     uint32 = 1 << 0 // HTTP(S): verify-certificate (same bit, disjoint protocol namespace)
)

const (
	ProtoUnix  = "unix"
	ProtoHTTP  = "http"
	ProtoHTTPS = "https"
)

// maxLen bounds every string field the parser extracts from untrusted
// wire input (§4.A: "it is a security surface and must bound all
// lengths").
const maxLen = 4096

// Address is an immutable value: protocol tag, option flags, and a
// location that is either a UNIX path or an HTTP(S) host[:port][/path].
type Address struct {
	Protocol string
	Options  uint32
	Path     string // UNIX only; abstract-socket name has no leading '@' or NUL here
	Host     string // HTTP(S) only
	Port     uint16 // HTTP(S) only; 0 means "use protocol default" until resolved
	URIPath  string // HTTP(S) only
}

func (a Address) IsAbstract() bool {
	return a.Protocol == ProtoUnix && a.Options&OptAbstractSocket != 0
}

func (a Address) VerifyCert() bool {
	return (a.Protocol == ProtoHTTP || a.Protocol == ProtoHTTPS) && a.Options&OptVerifyCert != 0
}

func defaultPort(protocol string) uint16 {
	switch protocol {
	case ProtoHTTPS:
		return 443
	default:
		return 80
	}
}

// Equals is structural equality (§3: "Equality is structural"), with
// the HTTP default port normalized so that an explicit ":80" and an
// omitted port compare equal.
func Equals(a, b Address) bool {
	if a.Protocol != b.Protocol || a.Options != b.Options {
		return false
	}
	switch a.Protocol {
	case ProtoUnix:
		return a.Path == b.Path
	default:
		ap, bp := a.Port, b.Port
		if ap == 0 {
			ap = defaultPort(a.Protocol)
		}
		if bp == 0 {
			bp = defaultPort(b.Protocol)
		}
		return a.Host == b.Host && ap == bp && a.URIPath == b.URIPath
	}
}

// Format renders the address in its human-readable wire form:
//
//	unix-<path>#<options>          (abstract sockets: unix-@<name>#<options>)
//	<protocol>://<host>[:<port>][<path>][#<options>]
//
// The trailing "#<options>" on HTTP(S) addresses is an extension of
// the form given in §4.A: the spec's grammar has no slot for options
// on HTTP addresses, but Format/Parse must round-trip exactly (§8), so
// the suffix is emitted only when Options != 0 and is otherwise
// invisible on the common case.
func Format(a Address) (string, error) {
	switch a.Protocol {
	case ProtoUnix:
		loc := a.Path
		if a.IsAbstract() {
			loc = "@" + a.Path
		}
		return fmt.Sprintf("%s-%s#%d", a.Protocol, loc, a.Options), nil
	case ProtoHTTP, ProtoHTTPS:
		host := a.Host
		if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
			host = "[" + host + "]" // IPv6 literal
		}
		s := fmt.Sprintf("%s://%s", a.Protocol, host)
		if a.Port != 0 && a.Port != defaultPort(a.Protocol) {
			s += fmt.Sprintf(":%d", a.Port)
		}
		s += a.URIPath
		if a.Options != 0 {
			s += fmt.Sprintf("#%d", a.Options)
		}
		return s, nil
	default:
		return "", fmt.Errorf("address: unknown protocol %q", a.Protocol)
	}
}

// Parse is the inverse of Format. It rejects empty input, a missing
// protocol separator, an unterminated bracketed host, and a
// non-numeric port, per §4.A.
func Parse(s string) (Address, error) {
	if len(s) == 0 {
		return Address{}, errors.New("address: empty input")
	}
	if len(s) > maxLen {
		return Address{}, errors.New("address: input too long")
	}

	if i := strings.Index(s, "://"); i >= 0 {
		return parseHTTP(s[:i], s[i+3:])
	}
	if i := strings.Index(s, "-"); i >= 0 {
		return parseUnix(s[:i], s[i+1:])
	}
	return Address{}, errors.New("address: missing protocol separator")
}

func parseUnix(protocol, rest string) (Address, error) {
	if protocol != ProtoUnix {
		return Address{}, fmt.Errorf("address: unknown protocol %q", protocol)
	}
	loc := rest
	var opts uint64
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		loc = rest[:i]
		var err error
		opts, err = strconv.ParseUint(rest[i+1:], 10, 32)
		if err != nil {
			return Address{}, fmt.Errorf("address: non-numeric options: %w", err)
		}
	}
	if len(loc) == 0 {
		return Address{}, errors.New("address: empty unix path")
	}
	if len(loc) > maxLen {
		return Address{}, errors.New("address: path too long")
	}
	a := Address{Protocol: ProtoUnix, Options: uint32(opts)}
	if strings.HasPrefix(loc, "@") {
		a.Path = loc[1:]
		a.Options |= OptAbstractSocket
	} else {
		a.Path = loc
	}
	return a, nil
}

func parseHTTP(protocol, rest string) (Address, error) {
	if protocol != ProtoHTTP && protocol != ProtoHTTPS {
		return Address{}, fmt.Errorf("address: unknown protocol %q", protocol)
	}
	if len(rest) == 0 {
		return Address{}, errors.New("address: missing host")
	}

	var opts uint64
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		var err error
		opts, err = strconv.ParseUint(rest[i+1:], 10, 32)
		if err != nil {
			return Address{}, fmt.Errorf("address: non-numeric options: %w", err)
		}
		rest = rest[:i]
	}

	hostPort := rest
	uriPath := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostPort, uriPath = rest[:i], rest[i:]
	}
	if len(uriPath) > maxLen {
		return Address{}, errors.New("address: path too long")
	}

	var host string
	var portStr string
	if strings.HasPrefix(hostPort, "[") {
		end := strings.IndexByte(hostPort, ']')
		if end < 0 {
			return Address{}, errors.New("address: unterminated IPv6 host")
		}
		host = hostPort[1:end]
		if rem := hostPort[end+1:]; len(rem) > 0 {
			if rem[0] != ':' {
				return Address{}, errors.New("address: malformed port")
			}
			portStr = rem[1:]
		}
	} else if i := strings.LastIndexByte(hostPort, ':'); i >= 0 {
		host, portStr = hostPort[:i], hostPort[i+1:]
	} else {
		host = hostPort
	}
	if len(host) == 0 {
		return Address{}, errors.New("address: empty host")
	}
	if len(host) > maxLen {
		return Address{}, errors.New("address: host too long")
	}

	var port uint64
	if portStr != "" {
		var err error
		port, err = strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Address{}, fmt.Errorf("address: non-numeric port: %w", err)
		}
	}

	return Address{
		Protocol: protocol,
		Options:  uint32(opts),
		Host:     host,
		Port:     uint16(port),
		URIPath:  uriPath,
	}, nil
}

// ToSockaddr derives the kernel sockaddr for a UNIX address, mapping a
// leading '@' (abstract-socket option set) to a leading NUL byte per
// §6. It is an error to call this on an HTTP(S) address.
func ToSockaddr(a Address) (*unix.SockaddrUnix, error) {
	if a.Protocol != ProtoUnix {
		return nil, fmt.Errorf("address: %s has no sockaddr", a.Protocol)
	}
	name := a.Path
	if a.IsAbstract() {
		name = "\x00" + name
	}
	if len(name) >= 108 { // sizeof(sockaddr_un.sun_path)
		return nil, errors.New("address: unix path too long for sockaddr_un")
	}
	return &unix.SockaddrUnix{Name: name}, nil
}

// FromSockaddr is ToSockaddr's inverse, used by the UNIX receive path
// (§4.E) to turn a peer's recvfrom() sockaddr back into an Address for
// session lookup/creation.
func FromSockaddr(sa *unix.SockaddrUnix) Address {
	name := sa.Name
	a := Address{Protocol: ProtoUnix}
	if len(name) > 0 && name[0] == 0 {
		a.Path = name[1:]
		a.Options |= OptAbstractSocket
	} else {
		a.Path = name
	}
	return a
}

// DisplayPath renders a UNIX path the way a human expects to see it:
// abstract sockets shown with a leading '@' rather than a NUL.
func DisplayPath(a Address) string {
	if a.IsAbstract() {
		return "@" + a.Path
	}
	return a.Path
}
