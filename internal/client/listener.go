package client

import (
	"context"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/types"
)

type subscription struct {
	block types.BlockID
	id    int64
}

// Listener follows the operations applied to a file. Notifications are
// raised by the tail of each chain once an operation is committed there.
type Listener struct {
	path string
	ops  []string
	cfg  ClientCfg
	mu   sync.Mutex
	subs []subscription
}

// NewListener subscribes to ops ("put", "remove", ...) on every chain of path.
func NewListener(ctx context.Context, dir *DirectoryClient, path string, ops []string, opts ...Option) (*Listener, error) {
	l := &Listener{
		path: common.CleanPath(path),
		ops:  ops,
	}
	l.cfg.Init(opts...)
	ds, err := dir.Open(ctx, l.path)
	if err != nil {
		return nil, err
	}
	for _, chain := range ds.Chains {
		if chain.Len() == 0 {
			continue
		}
		tail := chain.Tail()
		var reply types.SubscribeReply
		err := call(ctx, l.cfg.timeout, tail.NotificationAddr(), "Notification.RPCSubscribe",
			&types.SubscribeArg{Block: tail.ID, Ops: ops}, &reply)
		if err != nil {
			l.Close(ctx)
			return nil, err
		}
		l.subs = append(l.subs, subscription{block: tail, id: reply.Subscriber})
	}
	return l, nil
}

func (l *Listener) Path() string {
	return l.path
}

// Poll long-polls every chain for up to wait and returns what arrived, at
// most max per chain. It returns once every chain answered.
func (l *Listener) Poll(ctx context.Context, wait time.Duration, max int) ([]types.Notification, error) {
	l.mu.Lock()
	subs := append([]subscription(nil), l.subs...)
	l.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		out  []types.Notification
		errs = make([]error, len(subs))
	)
	for i, s := range subs {
		wg.Add(1)
		go func(i int, s subscription) {
			defer wg.Done()
			var reply types.PollReply
			err := call(ctx, wait+l.cfg.timeout, s.block.NotificationAddr(), "Notification.RPCPoll", &types.PollArg{
				Block:      s.block.ID,
				Subscriber: s.id,
				WaitMs:     wait.Milliseconds(),
				Max:        max,
			}, &reply)
			if err != nil {
				errs[i] = err
				return
			}
			mu.Lock()
			out = append(out, reply.Notifications...)
			mu.Unlock()
		}(i, s)
	}
	wg.Wait()
	return out, common.JoinErrors(errs...)
}

// Unsubscribe drops ops from every subscription; with no ops the listener is closed.
func (l *Listener) Unsubscribe(ctx context.Context, ops ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, s := range l.subs {
		err := call(ctx, l.cfg.timeout, s.block.NotificationAddr(), "Notification.RPCUnsubscribe",
			&types.UnsubscribeArg{Block: s.block.ID, Subscriber: s.id, Ops: ops}, &types.Ack{})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(ops) == 0 {
		l.subs = nil
	}
	return common.JoinErrors(errs...)
}

func (l *Listener) Close(ctx context.Context) error {
	return l.Unsubscribe(ctx)
}
