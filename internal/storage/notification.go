package storage

import (
	"context"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type subscriber struct {
	id  int64
	ops map[string]bool
	ch  chan types.Notification
}

// subscriptionMap fans operation notifications out to per-subscriber queues.
type subscriptionMap struct {
	sync.RWMutex
	subs map[int64]*subscriber
	lg   *zap.SugaredLogger
}

func newSubscriptionMap(lg *zap.SugaredLogger) *subscriptionMap {
	return &subscriptionMap{
		subs: make(map[int64]*subscriber),
		lg:   lg,
	}
}

func (s *subscriptionMap) subscribe(ops []string) (int64, error) {
	sub := &subscriber{
		id:  common.Nrand(),
		ops: make(map[string]bool),
		ch:  make(chan types.Notification, common.NotificationQueueSize),
	}
	for _, op := range ops {
		if _, ok := types.OpByName(op); !ok {
			return 0, errors.Wrapf(types.ErrInvalidArgument, "unknown op %q", op)
		}
		sub.ops[op] = true
	}
	s.Lock()
	defer s.Unlock()
	s.subs[sub.id] = sub
	return sub.id, nil
}

// unsubscribe drops ops from the subscription, or the whole subscription when ops is empty.
func (s *subscriptionMap) unsubscribe(id int64, ops []string) error {
	s.Lock()
	defer s.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return errors.Wrapf(types.ErrNotFound, "subscriber %d", id)
	}
	for _, op := range ops {
		delete(sub.ops, op)
	}
	if len(ops) == 0 || len(sub.ops) == 0 {
		delete(s.subs, id)
	}
	return nil
}

func (s *subscriptionMap) notify(op types.OpID, args []string) {
	if len(args) == 0 {
		return
	}
	name := op.String()
	n := types.Notification{Op: name, Data: args[0]}
	s.RLock()
	defer s.RUnlock()
	for _, sub := range s.subs {
		if !sub.ops[name] {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			s.lg.Warnf("notification queue of subscriber %d full, dropping %v", sub.id, n)
		}
	}
}

// poll waits up to wait for the first notification, then drains up to max.
func (s *subscriptionMap) poll(ctx context.Context, id int64, wait time.Duration, max int) ([]types.Notification, error) {
	s.RLock()
	sub, ok := s.subs[id]
	s.RUnlock()
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "subscriber %d", id)
	}
	if max <= 0 {
		max = common.NotificationQueueSize
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var out []types.Notification
	select {
	case n := <-sub.ch:
		out = append(out, n)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for len(out) < max {
		select {
		case n := <-sub.ch:
			out = append(out, n)
		default:
			return out, nil
		}
	}
	return out, nil
}

func (s *subscriptionMap) clear() {
	s.Lock()
	defer s.Unlock()
	s.subs = make(map[int64]*subscriber)
}
