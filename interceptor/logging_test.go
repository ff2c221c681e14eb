package interceptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/corehttp/corehttp/core"
)

func TestLoggingLogsRequestAndResponseOnSuccess(t *testing.T) {
	zcore, logs := observer.New(zap.DebugLevel)
	logger := zap.New(zcore)

	req, err := core.NewRequestBuilder("https://example.com/a").Build()
	require.NoError(t, err)

	chain := &fakeChain{request: req, respond: func(r *core.Request) (*core.Response, error) {
		return &core.Response{Request: r, StatusCode: 200, Protocol: "HTTP/1.1", Headers: core.NewHeaders()}, nil
	}}

	l := &Logging{Log: logger}
	_, err = l.Intercept(chain)
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "request", entries[0].Message)
	assert.Equal(t, "response", entries[1].Message)
}

func TestLoggingLogsFailureWithoutPanickingOnError(t *testing.T) {
	zcore, logs := observer.New(zap.DebugLevel)
	logger := zap.New(zcore)

	req, err := core.NewRequestBuilder("https://example.com/a").Build()
	require.NoError(t, err)

	chain := &fakeChain{request: req, respond: func(r *core.Request) (*core.Response, error) {
		return nil, core.NewCallError(core.KindTransport, "dial failed", nil)
	}}

	l := &Logging{Log: logger}
	_, err = l.Intercept(chain)
	assert.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "request failed", entries[1].Message)
}

func TestLoggingIsNoOpWithoutLogger(t *testing.T) {
	req, err := core.NewRequestBuilder("https://example.com/a").Build()
	require.NoError(t, err)

	called := false
	chain := &fakeChain{request: req, respond: func(r *core.Request) (*core.Response, error) {
		called = true
		return &core.Response{Request: r, StatusCode: 200, Headers: core.NewHeaders()}, nil
	}}

	l := &Logging{}
	_, err = l.Intercept(chain)
	require.NoError(t, err)
	assert.True(t, called)
}
