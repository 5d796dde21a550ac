package client

import (
	"ekv/types"

	"go.uber.org/zap"
)

// Trace hooks into the request path of a KVClient. Every field is optional.
type Trace struct {
	// request accepted
	Start func(op types.OpID, nargs int)
	// a batch was routed to a chain
	Route func(chain types.ReplicaChain, nargs int)
	// the file's data status was reloaded from the directory
	Refresh func(path string)
	// a batch followed an exporting block to its target
	Redirect func(target []types.BlockID, nargs int)
	// an attempt failed and will be retried
	Retry func(attempt int, err error)
	// request finished
	Done func(op types.OpID, err error)
}

// LogTrace reports every hook at debug level.
func LogTrace(lg *zap.SugaredLogger) *Trace {
	return &Trace{
		Start: func(op types.OpID, n int) {
			lg.Debugf("client %v start, %d args", op, n)
		},
		Route: func(chain types.ReplicaChain, n int) {
			lg.Debugf("route %d args to chain %v", n, chain)
		},
		Refresh: func(path string) {
			lg.Debugf("refresh data status of %v", path)
		},
		Redirect: func(target []types.BlockID, n int) {
			lg.Debugf("redirect %d args to %v", n, target)
		},
		Retry: func(attempt int, err error) {
			lg.Debugf("retry #%d after %v", attempt, err)
		},
		Done: func(op types.OpID, err error) {
			lg.Debugf("client %v done, err %v", op, err)
		},
	}
}

func (t *Trace) start(op types.OpID, n int) {
	if t != nil && t.Start != nil {
		t.Start(op, n)
	}
}

func (t *Trace) route(chain types.ReplicaChain, n int) {
	if t != nil && t.Route != nil {
		t.Route(chain, n)
	}
}

func (t *Trace) refresh(path string) {
	if t != nil && t.Refresh != nil {
		t.Refresh(path)
	}
}

func (t *Trace) redirect(target []types.BlockID, n int) {
	if t != nil && t.Redirect != nil {
		t.Redirect(target, n)
	}
}

func (t *Trace) retry(attempt int, err error) {
	if t != nil && t.Retry != nil {
		t.Retry(attempt, err)
	}
}

func (t *Trace) done(op types.OpID, err error) {
	if t != nil && t.Done != nil {
		t.Done(op, err)
	}
}
