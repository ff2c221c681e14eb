package corehttp

import (
	"context"
	"net/http"
	"time"

	ws "github.com/corehttp/corehttp/websocket"
)

// NewWebSocket upgrades rawurl ("ws://" or "wss://") to a WebSocket using
// this Client's configuration, per spec.md §3's WebSocket component (C12).
// corehttp does not route WebSocket upgrades through the interceptor chain
// (Non-goals scope the cache/retry semantics to plain HTTP exchanges). The
// handshake is made by the websocket package's own dialer; the Client's DNS
// resolver, Dialer and TLS settings are not applied to it.
func (c *Client) NewWebSocket(ctx context.Context, rawurl string, header http.Header, listener ws.Listener, pingInterval time.Duration) (*ws.WebSocket, error) {
	conn, _, err := ws.Dial(ctx, rawurl, header, listener, pingInterval)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
