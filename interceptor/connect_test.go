package interceptor

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/transport"
)

type connectPipeDialer struct{}

func (connectPipeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		buf := make([]byte, 4096)
		_, _ = server.Read(buf)
	}()
	return client, nil
}

type connectFakeDns struct{}

func (connectFakeDns) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	return []net.IP{net.ParseIP("127.0.0.1")}, nil
}

func TestConnectInterceptorAcquiresConnectionAndProceeds(t *testing.T) {
	req, err := core.NewRequestBuilder("http://example.com/a").Build()
	require.NoError(t, err)

	pool := transport.NewPool(transport.DefaultPoolConfig())
	defer pool.Close()
	planner := transport.NewPlanner(connectFakeDns{})

	var sawConnection core.ConnectionHandle
	terminal := core.InterceptorFunc(func(chain core.Chain) (*core.Response, error) {
		sawConnection = chain.Connection()
		return &core.Response{Request: chain.Request(), StatusCode: 200, Headers: core.NewHeaders()}, nil
	})

	connect := &Connect{
		Pool:      pool,
		Planner:   planner,
		Dialer:    connectPipeDialer{},
		Listener:  core.NopListener{},
		AddressOf: func(r *core.Request) *core.Address { return &core.Address{Host: "example.com", Port: "80"} },
	}

	chain := NewChain([]core.Interceptor{connect, terminal}, 1, &fakeTestCall{}, req)
	resp, err := chain.Proceed(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.NotNil(t, sawConnection)
}

func TestConnectInterceptorSurfacesAcquireFailure(t *testing.T) {
	req, err := core.NewRequestBuilder("http://example.com/a").Build()
	require.NoError(t, err)

	pool := transport.NewPool(transport.DefaultPoolConfig())
	defer pool.Close()
	planner := transport.NewPlanner(connectFakeDns{})

	failingDialer := connectDialerFunc(func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, context.DeadlineExceeded
	})

	terminal := core.InterceptorFunc(func(chain core.Chain) (*core.Response, error) {
		t.Fatal("terminal interceptor must not run when connection acquisition fails")
		return nil, nil
	})

	connect := &Connect{
		Pool:      pool,
		Planner:   planner,
		Dialer:    failingDialer,
		Listener:  core.NopListener{},
		AddressOf: func(r *core.Request) *core.Address { return &core.Address{Host: "example.com", Port: "80"} },
	}

	chain := NewChain([]core.Interceptor{connect, terminal}, 1, &fakeTestCall{}, req)
	_, err = chain.Proceed(req)
	assert.Error(t, err)
}

type connectDialerFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func (f connectDialerFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}
