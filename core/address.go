package core

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"

	"github.com/corehttp/corehttp/httpurl"
)

// Dns is the injected DNS resolver named in spec.md §1 Non-goals ("DNS is
// an injected interface") and §9 "Global state ... a process-wide default
// DNS resolver ... injectable for tests".
type Dns interface {
	Lookup(ctx context.Context, host string) ([]net.IP, error)
}

// systemDns resolves through the host network stack's resolver.
type systemDns struct{ resolver *net.Resolver }

// SystemDns returns the default injectable Dns, backed by net.DefaultResolver.
func SystemDns() Dns { return systemDns{resolver: net.DefaultResolver} }

func (d systemDns) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	ipAddrs, err := d.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]net.IP, len(ipAddrs))
	for i, a := range ipAddrs {
		out[i] = a.IP
	}
	return out, nil
}

// ProxyKind distinguishes the proxy protocols an Address may route through.
type ProxyKind int

const (
	ProxyDirect ProxyKind = iota
	ProxyHTTP
	ProxySOCKS5
)

// Proxy is a single candidate proxy for a Route.
type Proxy struct {
	Kind     ProxyKind
	Host     string
	Port     string
	Username string
	Password string
}

// ProxySelector chooses candidate proxies for a URL, mirroring the
// Address.proxySelector field in spec.md §3.
type ProxySelector interface {
	Select(u *httpurl.URL) []Proxy
}

// NoProxy always selects ProxyDirect.
type NoProxy struct{}

func (NoProxy) Select(*httpurl.URL) []Proxy { return []Proxy{{Kind: ProxyDirect}} }

// ConnectionSpec pins the TLS versions and cipher suites corehttp is willing
// to negotiate, mirroring OkHttp-family ConnectionSpec objects named in
// spec.md §3 and §9 ("DSL builders ... ConnectionSpec").
type ConnectionSpec struct {
	TLS          bool
	MinVersion   uint16
	MaxVersion   uint16
	CipherSuites []uint16 // nil means "let crypto/tls choose"
}

// ModernTLS requires TLS 1.2+.
var ModernTLS = ConnectionSpec{TLS: true, MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS13}

// CleartextSpec is used for plain http:// addresses.
var CleartextSpec = ConnectionSpec{TLS: false}

// Address is the tuple spec.md §3 defines equality and pool-keying over:
// "(uriHost, uriPort, dns, socketFactory, tlsFactory, hostnameVerifier,
// certificatePinner, proxyAuthenticator, proxies, protocols,
// connectionSpecs, proxySelector)". Equal compares only host, port, TLS
// ServerName, the protocol list and whether a ProxySelector is set; Dns,
// CertificatePinner, ProxyAuthenticator, Proxies and ConnectionSpecs are
// not compared.
type Address struct {
	Host               string
	Port               string
	Dns                Dns
	TLSConfig          *tls.Config
	CertificatePinner  func(chain []*x509.Certificate, host string) error
	ProxyAuthenticator Authenticator
	Proxies            []Proxy // explicit proxy list; nil means "ask ProxySelector"
	Selector           ProxySelector
	Protocols          []string // e.g. []string{"h2", "http/1.1"} in preference order
	ConnectionSpecs    []ConnectionSpec
}

// key is the comparable projection of Address used for pool lookups and
// equality, since funcs/interfaces aren't otherwise comparable.
type addressKey struct {
	host, port   string
	tlsSNI       string
	protocols    string
	selectorType string
}

func (a *Address) key() addressKey {
	sni := ""
	if a.TLSConfig != nil {
		sni = a.TLSConfig.ServerName
	}
	protos := ""
	for _, p := range a.Protocols {
		protos += p + ","
	}
	selType := "direct"
	if a.Selector != nil {
		selType = "custom"
	}
	return addressKey{host: a.Host, port: a.Port, tlsSNI: sni, protocols: protos, selectorType: selType}
}

// Equal compares the key() projection of two addresses. Of the function and
// interface fields only Selector takes part, and only by presence; this is
// sufficient for pool keying since a Client constructs at most one Address
// value per distinct configuration.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.key() == other.key()
}

// IsTLS reports whether connections to this address negotiate TLS.
func (a *Address) IsTLS() bool { return a.TLSConfig != nil }

// Route is a concrete reachable peer: (Address, Proxy, resolved IP), per
// spec.md §3 "Route".
type Route struct {
	Address *Address
	Proxy   Proxy
	IP      net.IP
}

// SocketAddr returns the "ip:port" dial target for this route's first hop.
func (r *Route) SocketAddr() string {
	port := r.Address.Port
	if r.Proxy.Kind != ProxyDirect {
		port = r.Proxy.Port
	}
	return net.JoinHostPort(r.IP.String(), port)
}

// SameHostAndPort reports whether two routes target the same origin host
// and port (their Addresses'; a proxy hop is not compared), per spec.md §3
// "host/port sameness checks".
func (r *Route) SameHostAndPort(other *Route) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Address.Host == other.Address.Host && r.Address.Port == other.Address.Port
}
