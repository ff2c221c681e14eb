package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/httpurl"
)

type fakeDns struct{ ip net.IP }

func (d fakeDns) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	return []net.IP{d.ip}, nil
}

func TestAcquireDialsAndPoolsOnFirstCall(t *testing.T) {
	pool := NewPool(PoolConfig{MaxIdleConnections: 5, KeepAliveDuration: time.Hour})
	defer pool.Close()
	planner := NewPlanner(fakeDns{ip: net.ParseIP("127.0.0.1")})
	dialer := pipeDialer{serve: func(c net.Conn) {
		defer c.Close()
		buf := make([]byte, 4096)
		_, _ = c.Read(buf)
	}}

	addr := &core.Address{Host: "example.com", Port: "80"}
	u, err := httpurl.Parse("http://example.com/a")
	require.NoError(t, err)

	conn, err := Acquire(context.Background(), pool, planner, dialer, addr, u, core.NopListener{}, core.CallInfo{})
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, core.StateReady, conn.State())
}

func TestAcquireReusesPooledConnectionWithoutDialing(t *testing.T) {
	pool := NewPool(PoolConfig{MaxIdleConnections: 5, KeepAliveDuration: time.Hour})
	defer pool.Close()
	planner := NewPlanner(fakeDns{ip: net.ParseIP("127.0.0.1")})

	addr := &core.Address{Host: "example.com", Port: "80"}
	pooled := &Connection{id: "pooled", route: &core.Route{Address: addr}, state: core.StateIdle}
	pool.Put(pooled)

	failingDialer := dialerFunc(func(ctx context.Context, network, a string) (net.Conn, error) {
		t.Fatalf("dialer should not be called when a pooled connection is available")
		return nil, nil
	})

	u, err := httpurl.Parse("http://example.com/a")
	require.NoError(t, err)

	conn, err := Acquire(context.Background(), pool, planner, failingDialer, addr, u, core.NopListener{}, core.CallInfo{})
	require.NoError(t, err)
	assert.Equal(t, "pooled", conn.id)
}
