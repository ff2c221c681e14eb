package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/core"
)

// raceDialer dials plan i against fn(i); used to script which candidate
// route succeeds or fails in a Race.
type raceDialer struct {
	fn func(addr string) (net.Conn, error)
}

func (d raceDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.fn(addr)
}

func plainPlan(ip string) *core.ConnectPlan {
	addr := &core.Address{Host: "example.com", Port: "80"}
	route := &core.Route{Address: addr, IP: net.ParseIP(ip)}
	return &core.ConnectPlan{Route: route}
}

func TestRaceReturnsTheFirstPlanToSucceed(t *testing.T) {
	dialer := raceDialer{fn: func(addr string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			buf := make([]byte, 4096)
			server.Read(buf)
		}()
		return client, nil
	}}

	plans := []*core.ConnectPlan{plainPlan("127.0.0.1")}
	conn, err := Race(context.Background(), dialer, plans, core.NopListener{}, core.CallInfo{})
	require.NoError(t, err)
	require.NotNil(t, conn)
	conn.Close()
}

func TestRaceFallsPastAFailingFirstPlanToASecond(t *testing.T) {
	dialer := raceDialer{fn: func(addr string) (net.Conn, error) {
		if addr == net.JoinHostPort("127.0.0.1", "80") {
			return nil, errRefused{}
		}
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			buf := make([]byte, 4096)
			server.Read(buf)
		}()
		return client, nil
	}}

	plans := []*core.ConnectPlan{plainPlan("127.0.0.1"), plainPlan("127.0.0.2")}
	conn, err := Race(context.Background(), dialer, plans, core.NopListener{}, core.CallInfo{})
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "127.0.0.2", conn.Route().IP.String())
	conn.Close()
}

func TestRaceReturnsAggregateErrorWhenEveryPlanFails(t *testing.T) {
	dialer := raceDialer{fn: func(addr string) (net.Conn, error) {
		return nil, errRefused{}
	}}

	plans := []*core.ConnectPlan{plainPlan("127.0.0.1"), plainPlan("127.0.0.2")}
	conn, err := Race(context.Background(), dialer, plans, core.NopListener{}, core.CallInfo{})
	assert.Nil(t, conn)
	require.Error(t, err)
	assert.Equal(t, core.KindTransport, core.KindOf(err))
}

func TestRaceSurfacesCanceledContextWhenNoPlanWinsInTime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	dialer := raceDialer{fn: func(addr string) (net.Conn, error) {
		<-block
		return nil, errRefused{}
	}}

	plans := []*core.ConnectPlan{plainPlan("127.0.0.1"), plainPlan("127.0.0.2")}
	done := make(chan struct{})
	var conn *Connection
	var err error
	go func() {
		conn, err = Race(ctx, dialer, plans, core.NopListener{}, core.CallInfo{})
		close(done)
	}()

	cancel()
	close(block)
	<-done

	assert.Nil(t, conn)
	require.Error(t, err)
	assert.Equal(t, core.KindCanceled, core.KindOf(err))
}
