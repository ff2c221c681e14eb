package interceptor

import (
	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/transport"
)

// CallServer is the terminal interceptor: it runs the Exchange against the
// connection Connect acquired and returns the response, per spec.md §4.1
// "CallServer: writes the request and reads the response over the acquired
// connection; the last interceptor in the chain."
type CallServer struct {
	Listener core.EventListener
}

func (cs *CallServer) Intercept(chain core.Chain) (*core.Response, error) {
	conn, ok := chain.Connection().(*transport.Connection)
	if !ok || conn == nil {
		return nil, core.NewCallError(core.KindMisuse, "CallServer reached without an acquired connection", nil)
	}

	call := chain.Call()
	ex := transport.NewExchange(conn, cs.Listener, call.Info())
	resp, err := ex.Run(chain.Request())
	if err != nil {
		ex.Release(0)
		return nil, err
	}

	resp.Body = wrapWithRelease(resp.Body, ex)
	return resp, nil
}

// wrapWithRelease makes the Exchange release its connection the moment the
// body is closed (whether drained fully or abandoned early), satisfying
// spec.md §4.4's "next request waits for the previous body to be consumed or
// closed" without requiring every caller to remember to release explicitly.
func wrapWithRelease(body *core.ResponseBody, ex *transport.Exchange) *core.ResponseBody {
	return &core.ResponseBody{
		Source:        &releasingBody{ResponseBody: body, ex: ex},
		Length:        body.Length,
		ContentType:   body.ContentType,
		TrailerSource: body.TrailerSource,
	}
}

type releasingBody struct {
	*core.ResponseBody
	ex       *transport.Exchange
	read     int64
	released bool
}

func (b *releasingBody) Read(p []byte) (int, error) {
	n, err := b.ResponseBody.Read(p)
	b.read += int64(n)
	return n, err
}

func (b *releasingBody) Close() error {
	err := b.ResponseBody.Close()
	if !b.released {
		b.released = true
		b.ex.Release(b.read)
	}
	return err
}
