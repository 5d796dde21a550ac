package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LeaseRenewalWorker keeps the leases of a client's paths alive. Every tick
// it renews the registered paths and hands over queued flushes and removals
// in one UpdateLeases call.
type LeaseRenewalWorker struct {
	sync.Mutex
	dir    *DirectoryClient
	tick   time.Duration
	renew  map[string]struct{}
	flush  map[string]struct{}
	remove map[string]struct{}
	lg     *zap.SugaredLogger

	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewLeaseRenewalWorker(dir *DirectoryClient, tick time.Duration, lg *zap.SugaredLogger) *LeaseRenewalWorker {
	if tick <= 0 {
		tick = common.DefaultLeasePeriod / time.Duration(common.LeaseRenewFraction)
	}
	return &LeaseRenewalWorker{
		dir:    dir,
		tick:   tick,
		renew:  make(map[string]struct{}),
		flush:  make(map[string]struct{}),
		remove: make(map[string]struct{}),
		lg:     common.OrNop(lg),
	}
}

// StartLeaseRenewalWorker asks the directory for its lease period and renews
// a fraction of it ahead of expiry.
func StartLeaseRenewalWorker(ctx context.Context, dir *DirectoryClient, lg *zap.SugaredLogger) (*LeaseRenewalWorker, error) {
	period, err := dir.LeasePeriod(ctx)
	if err != nil {
		return nil, err
	}
	w := NewLeaseRenewalWorker(dir, period/time.Duration(common.LeaseRenewFraction), lg)
	w.Start()
	return w, nil
}

func (w *LeaseRenewalWorker) Tick() time.Duration {
	return w.tick
}

// Add registers paths for renewal.
func (w *LeaseRenewalWorker) Add(paths ...string) {
	w.Lock()
	defer w.Unlock()
	for _, p := range paths {
		w.renew[common.CleanPath(p)] = struct{}{}
	}
}

// Drop stops renewing paths; their leases run out on the directory.
func (w *LeaseRenewalWorker) Drop(paths ...string) {
	w.Lock()
	defer w.Unlock()
	for _, p := range paths {
		delete(w.renew, common.CleanPath(p))
	}
}

// QueueFlush asks for path to be flushed with the next renewal, and stops renewing it.
func (w *LeaseRenewalWorker) QueueFlush(path string) {
	w.Lock()
	defer w.Unlock()
	path = common.CleanPath(path)
	delete(w.renew, path)
	w.flush[path] = struct{}{}
}

// QueueRemove asks for path to be removed with the next renewal, and stops renewing it.
func (w *LeaseRenewalWorker) QueueRemove(path string) {
	w.Lock()
	defer w.Unlock()
	path = common.CleanPath(path)
	delete(w.renew, path)
	delete(w.flush, path)
	w.remove[path] = struct{}{}
}

func (w *LeaseRenewalWorker) Paths() []string {
	w.Lock()
	defer w.Unlock()
	return sortedKeys(w.renew)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Renew runs one round. Queued flushes and removals go back in the queue when the call fails.
func (w *LeaseRenewalWorker) Renew(ctx context.Context) (types.UpdateLeasesReply, error) {
	w.Lock()
	arg := &types.UpdateLeasesArg{
		Renew:  sortedKeys(w.renew),
		Flush:  sortedKeys(w.flush),
		Remove: sortedKeys(w.remove),
	}
	w.flush = make(map[string]struct{})
	w.remove = make(map[string]struct{})
	w.Unlock()

	if len(arg.Renew)+len(arg.Flush)+len(arg.Remove) == 0 {
		return types.UpdateLeasesReply{}, nil
	}
	reply, err := w.dir.UpdateLeases(ctx, arg)
	if err != nil {
		w.Lock()
		for _, p := range arg.Flush {
			w.flush[p] = struct{}{}
		}
		for _, p := range arg.Remove {
			w.remove[p] = struct{}{}
		}
		w.Unlock()
		return reply, errors.WithMessage(err, "update leases")
	}
	w.lg.Debugf("leases renewed %d flushed %d removed %d", reply.Renewed, reply.Flushed, reply.Removed)
	return reply, nil
}

func (w *LeaseRenewalWorker) Start() {
	w.Lock()
	defer w.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(w.stop, w.done)
}

func (w *LeaseRenewalWorker) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.tick)
			if _, err := w.Renew(ctx); err != nil {
				w.lg.Warnf("lease renewal failed %v", err)
			}
			cancel()
		case <-stop:
			return
		}
	}
}

// Stop waits for the renewal loop to exit. Queued requests stay queued.
func (w *LeaseRenewalWorker) Stop() {
	w.Lock()
	if !w.running {
		w.Unlock()
		return
	}
	w.running = false
	stop, done := w.stop, w.done
	w.Unlock()
	close(stop)
	<-done
}
