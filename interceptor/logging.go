package interceptor

import (
	"time"

	"go.uber.org/zap"

	"github.com/corehttp/corehttp/core"
)

// Logging is an application-level interceptor that wire-dumps each exchange
// at debug level, grounded on the structured, leveled logging style the rest
// of the pack's caddyserver-caddy module uses go.uber.org/zap for. Install
// it as an application interceptor (not a network interceptor) to log once
// per logical call rather than once per retried attempt.
type Logging struct {
	Log *zap.Logger
}

func (l *Logging) Intercept(chain core.Chain) (*core.Response, error) {
	if l.Log == nil {
		return chain.Proceed(chain.Request())
	}

	req := chain.Request()
	start := time.Now()
	l.Log.Debug("request", zap.String("method", req.Method()), zap.String("url", req.URL().String()))

	resp, err := chain.Proceed(req)
	elapsed := time.Since(start)
	if err != nil {
		l.Log.Debug("request failed",
			zap.String("method", req.Method()),
			zap.String("url", req.URL().String()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	l.Log.Debug("response",
		zap.String("method", req.Method()),
		zap.String("url", req.URL().String()),
		zap.Int("status", resp.StatusCode),
		zap.String("protocol", resp.Protocol),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}
