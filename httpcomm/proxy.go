package httpcomm

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"

	"github.com/relaynet/commd/config"
)

// dialerFor builds the net.Dial-compatible function fasthttp.HostClient
// uses to reach a peer, wrapping it in the configured proxy (§6
// PROXY/PROXY_TYPE/PROXY_USERNAME/PROXY_PASSWORD/PROXY_HTTP_TUNNELING).
// SOCKS4/SOCKS4A have no counterpart in the Go ecosystem's SOCKS
// client (golang.org/x/net/proxy only implements SOCKS5); a request
// for either is rejected rather than silently downgraded.
func dialerFor(sec config.SectionConfig) (func(network, addr string) (net.Conn, error), error) {
	if sec.Proxy == "" || sec.ProxyType == config.ProxyNone {
		return net.Dial, nil
	}
	switch sec.ProxyType {
	case config.ProxySOCKS5, config.ProxySOCKS5Hostname:
		var auth *proxy.Auth
		if sec.ProxyUsername != "" {
			auth = &proxy.Auth{User: sec.ProxyUsername, Password: sec.ProxyPassword}
		}
		d, err := proxy.SOCKS5("tcp", sec.Proxy, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("httpcomm: socks5 dialer: %w", err)
		}
		return func(network, addr string) (net.Conn, error) { return d.Dial(network, addr) }, nil
	case config.ProxyHTTP:
		if !sec.ProxyHTTPTunnel {
			return nil, fmt.Errorf("httpcomm: PROXY_TYPE=HTTP requires PROXY_HTTP_TUNNELING")
		}
		return func(network, addr string) (net.Conn, error) {
			return dialHTTPConnect(network, sec.Proxy, addr, sec.ProxyUsername, sec.ProxyPassword)
		}, nil
	case config.ProxySOCKS4, config.ProxySOCKS4A:
		return nil, fmt.Errorf("httpcomm: PROXY_TYPE %s is not supported", sec.ProxyType)
	default:
		return nil, fmt.Errorf("httpcomm: unknown PROXY_TYPE %q", sec.ProxyType)
	}
}

// dialHTTPConnect implements an HTTP CONNECT tunnel (§6
// PROXY_HTTP_TUNNELING).
func dialHTTPConnect(network, proxyAddr, targetAddr, user, pass string) (net.Conn, error) {
	conn, err := net.Dial(network, proxyAddr)
	if err != nil {
		return nil, err
	}
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Host: targetAddr},
		Host:   targetAddr,
		Header: make(http.Header),
	}
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("httpcomm: proxy CONNECT to %s failed: %s", targetAddr, resp.Status)
	}
	return conn, nil
}
