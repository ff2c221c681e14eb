package interceptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/core"
)

func recordingInterceptor(name string, order *[]string) core.InterceptorFunc {
	return func(chain core.Chain) (*core.Response, error) {
		*order = append(*order, name)
		return chain.Proceed(chain.Request())
	}
}

func TestChainRunsInterceptorsInOrder(t *testing.T) {
	req, err := core.NewRequestBuilder("https://example.com/a").Build()
	require.NoError(t, err)

	var order []string
	terminal := core.InterceptorFunc(func(chain core.Chain) (*core.Response, error) {
		order = append(order, "terminal")
		return &core.Response{Request: chain.Request(), StatusCode: 200, Headers: core.NewHeaders()}, nil
	})

	interceptors := []core.Interceptor{
		recordingInterceptor("first", &order),
		recordingInterceptor("second", &order),
		terminal,
	}

	chain := NewChain(interceptors, 2, &fakeTestCall{}, req)
	resp, err := chain.Proceed(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []string{"first", "second", "terminal"}, order)
}

func TestChainIsNetworkPositionMarksCorrectIndex(t *testing.T) {
	req, err := core.NewRequestBuilder("https://example.com/a").Build()
	require.NoError(t, err)

	var appSeen, networkSeen bool
	app := core.InterceptorFunc(func(chain core.Chain) (*core.Response, error) {
		appSeen = chain.IsNetworkPosition()
		return chain.Proceed(chain.Request())
	})
	network := core.InterceptorFunc(func(chain core.Chain) (*core.Response, error) {
		networkSeen = chain.IsNetworkPosition()
		return &core.Response{Request: chain.Request(), StatusCode: 200, Headers: core.NewHeaders()}, nil
	})

	chain := NewChain([]core.Interceptor{app, network}, 1, &fakeTestCall{}, req)
	_, err = chain.Proceed(req)
	require.NoError(t, err)

	assert.False(t, appSeen)
	assert.True(t, networkSeen)
}

func TestChainProceedPastEndIsAnError(t *testing.T) {
	req, err := core.NewRequestBuilder("https://example.com/a").Build()
	require.NoError(t, err)

	chain := NewChain(nil, 0, &fakeTestCall{}, req)
	_, err = chain.Proceed(req)
	assert.Error(t, err)
}

func TestChainReturnsCanceledErrorWhenCallCanceled(t *testing.T) {
	req, err := core.NewRequestBuilder("https://example.com/a").Build()
	require.NoError(t, err)

	call := &canceledCall{}
	terminal := core.InterceptorFunc(func(chain core.Chain) (*core.Response, error) {
		return &core.Response{Request: chain.Request(), StatusCode: 200, Headers: core.NewHeaders()}, nil
	})
	chain := NewChain([]core.Interceptor{terminal}, 0, call, req)
	_, err = chain.Proceed(req)
	assert.Error(t, err)
	assert.Equal(t, core.KindCanceled, core.KindOf(err))
}

type canceledCall struct{ fakeTestCall }

func (canceledCall) IsCanceled() bool { return true }
