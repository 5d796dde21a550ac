package directory

import (
	"context"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/types"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// LeaseExpiryWorker periodically releases files nobody renewed.
type LeaseExpiryWorker struct {
	tree   *DirectoryTree
	lease  time.Duration
	grace  time.Duration
	epochs atomic.Int64
	lg     *zap.SugaredLogger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewLeaseExpiryWorker(tree *DirectoryTree, lease, grace time.Duration, lg *zap.SugaredLogger) *LeaseExpiryWorker {
	if lease <= 0 {
		lease = common.DefaultLeasePeriod
	}
	if grace < 0 {
		grace = common.DefaultGracePeriod
	}
	return &LeaseExpiryWorker{
		tree:  tree,
		lease: lease,
		grace: grace,
		lg:    common.OrNop(lg),
	}
}

func (w *LeaseExpiryWorker) LeasePeriod() time.Duration {
	return w.lease
}

func (w *LeaseExpiryWorker) GracePeriod() time.Duration {
	return w.grace
}

// NumEpochs counts the finished expiry passes.
func (w *LeaseExpiryWorker) NumEpochs() int64 {
	return w.epochs.Load()
}

// Start runs a pass right away and then once per lease period.
func (w *LeaseExpiryWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(w.stop, w.done)
	w.lg.Infof("lease expiry worker started, lease %v grace %v", w.lease, w.grace)
}

func (w *LeaseExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()
	<-done
	w.lg.Infof("lease expiry worker stopped after %d epochs", w.epochs.Load())
}

func (w *LeaseExpiryWorker) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.lease)
	defer ticker.Stop()
	for {
		w.RemoveExpiredLeases(context.Background())
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// RemoveExpiredLeases runs a single expiry pass over the whole tree.
func (w *LeaseExpiryWorker) RemoveExpiredLeases(ctx context.Context) {
	expired, graced := w.tree.leaseScan(time.Now(), w.lease, w.grace)
	for _, path := range graced {
		w.tree.enterGrace(path, w.lease)
	}
	for _, path := range expired {
		if err := w.tree.expirePath(ctx, path, (w.lease + w.grace).Milliseconds()); err != nil {
			w.lg.Debugf("expire %s skipped %v", path, err)
		}
	}
	w.epochs.Inc()
	w.tree.metrics.epochs.Inc()
}

// UpdateLeases renews, flushes and removes files on behalf of a client.
// Paths that fail are logged and left out of the counts.
func (t *DirectoryTree) UpdateLeases(ctx context.Context, args *types.UpdateLeasesArg) types.UpdateLeasesReply {
	var reply types.UpdateLeasesReply
	for _, path := range args.Renew {
		if err := t.Touch(path); err != nil {
			t.lg.Debugf("renew lease of %s failed %v", path, err)
			continue
		}
		reply.Renewed++
	}
	for _, path := range args.Flush {
		if err := t.Flush(ctx, path); err != nil {
			t.lg.Warnf("flush %s failed %v", path, err)
			continue
		}
		reply.Flushed++
	}
	for _, path := range args.Remove {
		if err := t.RemoveAll(ctx, path); err != nil {
			t.lg.Debugf("remove %s failed %v", path, err)
			continue
		}
		reply.Removed++
	}
	return reply
}
