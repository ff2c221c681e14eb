package interceptor

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/transport"
)

type callServerDialer struct{ canned string }

func (d callServerDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		_, _ = server.Read(buf)
		server.Write([]byte(d.canned))
		server.Close()
	}()
	return client, nil
}

func dialPlaintextConnection(t *testing.T, canned string) *transport.Connection {
	t.Helper()
	addr := &core.Address{Host: "example.com", Port: "80"}
	route := &core.Route{Address: addr, IP: net.ParseIP("127.0.0.1")}
	plan := &core.ConnectPlan{Route: route}

	conn, result := transport.Dial(context.Background(), callServerDialer{canned: canned}, plan, core.NopListener{}, core.CallInfo{})
	require.NoError(t, result.Err)
	require.NotNil(t, conn)
	return conn
}

// connChain is a minimal core.Chain carrying a real acquired connection, for
// testing CallServer in isolation.
type connChain struct {
	request *core.Request
	conn    core.ConnectionHandle
}

func (c *connChain) Request() *core.Request            { return c.request }
func (c *connChain) Call() core.Call                   { return &fakeTestCall{} }
func (c *connChain) Connection() core.ConnectionHandle { return c.conn }
func (c *connChain) IsNetworkPosition() bool           { return true }
func (c *connChain) Proceed(*core.Request) (*core.Response, error) {
	return nil, core.NewCallError(core.KindMisuse, "CallServer must be the terminal interceptor", nil)
}

func TestCallServerRunsExchangeOverAcquiredConnection(t *testing.T) {
	conn := dialPlaintextConnection(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	req, err := core.NewRequestBuilder("http://example.com/a").Build()
	require.NoError(t, err)

	cs := &CallServer{Listener: core.NopListener{}}
	resp, err := cs.Intercept(&connChain{request: req, conn: conn})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 0, conn.ActiveCount())
}

func TestCallServerRequiresAcquiredConnection(t *testing.T) {
	req, err := core.NewRequestBuilder("http://example.com/a").Build()
	require.NoError(t, err)

	cs := &CallServer{Listener: core.NopListener{}}
	_, err = cs.Intercept(&connChain{request: req, conn: nil})
	assert.Error(t, err)
	assert.Equal(t, core.KindMisuse, core.KindOf(err))
}
