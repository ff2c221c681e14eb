package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"

	"github.com/corehttp/corehttp/core"
)

// Dialer opens the raw TCP socket for a route's first hop. Tests substitute
// a fake implementation to avoid real sockets.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

var defaultDialer Dialer = &net.Dialer{}

// Dial executes one ConnectPlan to completion: TCP connect, optional
// CONNECT tunnel, TLS handshake, and protocol negotiation — C2 in
// spec.md §2/§4.2. The returned Connection is nil whenever result.Err is
// set; callers (the pool, the fast-fallback racer) hand it off on success.
func Dial(ctx context.Context, dialer Dialer, plan *core.ConnectPlan, listener core.EventListener, callInfo core.CallInfo) (*Connection, *core.ConnectResult) {
	if dialer == nil {
		dialer = defaultDialer
	}
	route := plan.Route

	listener.ConnectStart(callInfo, route)
	var netConn net.Conn
	var err error
	if route.Proxy.Kind == core.ProxySOCKS5 {
		netConn, err = dialSOCKS5(ctx, dialer, route)
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", route.SocketAddr())
	}
	if err != nil {
		listener.ConnectEnd(callInfo, route, "", err)
		return nil, &core.ConnectResult{Plan: plan, Err: core.NewCallError(core.KindTransport, "tcp connect failed", err)}
	}

	if plan.TunnelRequired {
		if err := tunnel(ctx, netConn, route); err != nil {
			netConn.Close()
			listener.ConnectEnd(callInfo, route, "", err)
			return nil, &core.ConnectResult{Plan: plan, Err: core.NewCallError(core.KindTransport, "CONNECT tunnel failed", err)}
		}
	}

	conn := &Connection{
		id:        newConnectionID(),
		route:     route,
		netConn:   netConn,
		state:     core.StateTCPConnected,
		idleSince: time.Now(),
	}

	if !plan.TLSRequired {
		conn.protocol = "http/1.1"
		conn.bufReader = bufio.NewReader(netConn)
		conn.bufWriter = bufio.NewWriter(netConn)
		conn.setState(core.StateReady)
		listener.ConnectEnd(callInfo, route, conn.protocol, nil)
		return conn, &core.ConnectResult{Plan: plan}
	}

	listener.SecureConnectStart(callInfo)
	tlsConfig := route.Address.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	cfg := tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = tlsHost(route.Address)
	}
	cfg.NextProtos = alpnProtocols(route.Address)

	tlsConn := tls.Client(netConn, cfg)
	tlsConn.SetDeadline(time.Now().Add(10 * time.Second))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tlsConn.Close()
		listener.SecureConnectEnd(callInfo, nil, err)
		listener.ConnectEnd(callInfo, route, "", err)
		return nil, &core.ConnectResult{Plan: plan, Err: core.NewCallError(core.KindTransport, "tls handshake failed", err)}
	}
	tlsConn.SetDeadline(time.Time{})

	state := tlsConn.ConnectionState()
	handshake := &core.Handshake{TLSVersion: state.Version, CipherSuite: state.CipherSuite}
	for _, c := range state.PeerCertificates {
		handshake.PeerCertificates = append(handshake.PeerCertificates, c.Raw)
	}
	conn.tlsConn = tlsConn
	conn.netConn = tlsConn
	conn.handshake = handshake
	listener.SecureConnectEnd(callInfo, handshake, nil)

	if state.NegotiatedProtocol == "h2" {
		conn.protocol = "h2"
		t := &http2.Transport{}
		h2conn, err := t.NewClientConn(tlsConn)
		if err != nil {
			tlsConn.Close()
			listener.ConnectEnd(callInfo, route, "", err)
			return nil, &core.ConnectResult{Plan: plan, Err: core.NewCallError(core.KindProtocol, "http/2 preface failed", err)}
		}
		conn.h2 = h2conn
	} else {
		conn.protocol = "http/1.1"
		conn.bufReader = bufio.NewReader(tlsConn)
		conn.bufWriter = bufio.NewWriter(tlsConn)
	}
	conn.setState(core.StateTLSConnected)
	conn.setState(core.StateReady)
	listener.ConnectEnd(callInfo, route, conn.protocol, nil)

	return conn, &core.ConnectResult{Plan: plan}
}

func tunnel(ctx context.Context, netConn net.Conn, route *core.Route) error {
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", tlsHostPort(route.Address), tlsHostPort(route.Address))
	if route.Proxy.Username != "" {
		req += fmt.Sprintf("Proxy-Authorization: Basic %s\r\n", basicAuth(route.Proxy.Username, route.Proxy.Password))
	}
	req += "\r\n"
	if deadline, ok := ctx.Deadline(); ok {
		netConn.SetWriteDeadline(deadline)
		defer netConn.SetWriteDeadline(time.Time{})
	}
	if _, err := netConn.Write([]byte(req)); err != nil {
		return err
	}
	br := bufio.NewReader(netConn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		return err
	}
	if code, ok := connectStatusCode(statusLine); !ok || code != 200 {
		return fmt.Errorf("corehttp: proxy CONNECT failed: %q", strings.TrimSpace(statusLine))
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return err
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return nil
}

// dialSOCKS5 performs the SOCKS5 handshake (RFC 1928) over a TCP connection
// to route's proxy, asking it to relay to the origin Address — spec.md §6's
// "SOCKS5" wire protocol, delegated to golang.org/x/net/proxy rather than
// hand-rolled, the way tunnel() is the hand-rolled branch for HTTP CONNECT.
func dialSOCKS5(ctx context.Context, dialer Dialer, route *core.Route) (net.Conn, error) {
	var auth *proxy.Auth
	if route.Proxy.Username != "" {
		auth = &proxy.Auth{User: route.Proxy.Username, Password: route.Proxy.Password}
	}
	socksDialer, err := proxy.SOCKS5("tcp", route.SocketAddr(), auth, socks5Forward{ctx: ctx, dialer: dialer})
	if err != nil {
		return nil, err
	}
	target := tlsHostPort(route.Address)
	if ctxDialer, ok := socksDialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, "tcp", target)
	}
	return socksDialer.Dial("tcp", target)
}

// socks5Forward adapts a transport.Dialer (DialContext-only) to
// golang.org/x/net/proxy.Dialer and proxy.ContextDialer, the shapes
// proxy.SOCKS5 needs to reach the proxy itself.
type socks5Forward struct {
	ctx    context.Context
	dialer Dialer
}

func (f socks5Forward) Dial(network, addr string) (net.Conn, error) {
	return f.dialer.DialContext(f.ctx, network, addr)
}

func (f socks5Forward) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f.dialer.DialContext(ctx, network, addr)
}

// connectStatusCode parses the status code out of a CONNECT response's
// status line ("HTTP/1.1 200 Connection established\r\n") without relying
// on fmt.Sscanf's C-style suppression verbs, which Go does not support.
func connectStatusCode(statusLine string) (int, bool) {
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

func tlsHost(a *core.Address) string { return a.Host }

func tlsHostPort(a *core.Address) string { return net.JoinHostPort(a.Host, a.Port) }

func alpnProtocols(a *core.Address) []string {
	if len(a.Protocols) > 0 {
		return a.Protocols
	}
	return []string{"h2", "http/1.1"}
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
