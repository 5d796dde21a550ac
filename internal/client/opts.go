package client

import (
	"time"

	"ekv/internal/common"

	"go.uber.org/zap"
)

type Option func(*ClientCfg)

func WithTrace(t *Trace) Option {
	return func(cc *ClientCfg) {
		cc.trace = t
	}
}

// WithRetry bounds the attempts of one call; at least one attempt is made.
func WithRetry(count int) Option {
	return func(cc *ClientCfg) {
		if count < 1 {
			count = 1
		}
		cc.retry = count
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(cc *ClientCfg) {
		cc.timeout = d
	}
}

func WithLogger(lg *zap.SugaredLogger) Option {
	return func(cc *ClientCfg) {
		cc.lg = common.OrNop(lg)
	}
}

type ClientCfg struct {
	// attempts per call before giving up
	retry int

	// per attempt deadline, applied when the caller's context has none
	timeout time.Duration

	// routing and retry callbacks
	trace *Trace

	lg *zap.SugaredLogger
}

func (cfg *ClientCfg) Init(opts ...Option) {
	cfg.defaultCfg()

	for _, opt := range opts {
		opt(cfg)
	}
}

func (cfg *ClientCfg) defaultCfg() {
	cfg.retry = common.MaxClientRetry
	cfg.timeout = common.DefaultCallTimeout
	cfg.lg = common.OrNop(nil)
}
