package storage

import (
	"context"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type chainOp struct {
	seq  types.SequenceID
	op   types.OpID
	args []string
}

type ackOp struct {
	seq     types.SequenceID
	results []string
}

// ChainModule is a KVBlock taking part in a replica chain.
//
// Mutations enter at the head, which executes them, assigns the next sequence
// number and hands them to its successor. Every other node drains its inbox in
// order on one goroutine. The tail answers through the acknowledgement, which
// travels back to the head where the waiting request picks it up.
type ChainModule struct {
	*KVBlock

	chainMu sync.RWMutex
	role    types.ChainRole
	chain   []types.BlockID
	next    ChainLink
	prev    ChainLink

	reqMu   sync.Mutex
	seqNo   int64
	lastSeq atomic.Int64

	pending *pendingTable
	waiters *responseBuffer
	subs    *subscriptionMap
	inbox   chan chainOp
	acks    chan ackOp
	linker  Linker
	metrics *storageMetrics
	done    chan struct{}
	once    sync.Once
}

func NewChainModule(id types.BlockID, capacity int64, hi, lo float64, linker Linker,
	metrics *storageMetrics, lg *zap.SugaredLogger) *ChainModule {
	b := newKVBlock(id, capacity, hi, lo, lg)
	m := &ChainModule{
		KVBlock: b,
		role:    types.RoleSingleton,
		pending: newPendingTable(),
		waiters: newResponseBuffer(common.ResponseBufferExpire, common.ResponseBufferTick),
		subs:    newSubscriptionMap(b.lg),
		inbox:   make(chan chainOp, common.ChainInboxSize),
		acks:    make(chan ackOp, common.ChainInboxSize),
		linker:  linker,
		metrics: metrics,
		done:    make(chan struct{}),
	}
	go m.processLoop()
	go m.ackLoop()
	return m
}

func (m *ChainModule) Stop() {
	m.once.Do(func() {
		close(m.done)
		m.waiters.stop()
	})
}

func (m *ChainModule) Role() types.ChainRole {
	m.chainMu.RLock()
	defer m.chainMu.RUnlock()
	return m.role
}

func (m *ChainModule) IsHead() bool {
	r := m.Role()
	return r == types.RoleHead || r == types.RoleSingleton
}

func (m *ChainModule) IsTail() bool {
	r := m.Role()
	return r == types.RoleTail || r == types.RoleSingleton
}

func (m *ChainModule) Chain() []types.BlockID {
	m.chainMu.RLock()
	defer m.chainMu.RUnlock()
	return append([]types.BlockID(nil), m.chain...)
}

func (m *ChainModule) links() (types.ChainRole, ChainLink, ChainLink) {
	m.chainMu.RLock()
	defer m.chainMu.RUnlock()
	return m.role, m.next, m.prev
}

func (m *ChainModule) execute(op types.OpID, args []string) ([]string, error) {
	res, err := m.RunCommand(op, args)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.observe(m.id, op, m.StorageSize())
	}
	m.checkScale(op, m.IsTail())
	return res, nil
}

// Request is the entry point of client operations.
func (m *ChainModule) Request(ctx context.Context, op types.OpID, args []string) ([]string, error) {
	if !op.Valid() {
		return nil, errors.Wrapf(types.ErrUnknownOperation, "op id %d", op)
	}
	role, next, _ := m.links()
	if op.IsAccessor() {
		if role != types.RoleTail && role != types.RoleSingleton {
			return nil, errors.Wrapf(types.ErrStaleOperation, "%v on %v block %v", op, role, m.id)
		}
		res, err := m.execute(op, args)
		if err == nil {
			m.subs.notify(op, args)
		}
		return res, err
	}

	switch role {
	case types.RoleSingleton:
		res, err := m.execute(op, args)
		if err == nil {
			m.subs.notify(op, args)
		}
		return res, err
	case types.RoleHead:
		return m.replicate(ctx, next, op, args)
	}
	return nil, errors.Wrapf(types.ErrStaleOperation, "%v on %v block %v", op, role, m.id)
}

func (m *ChainModule) replicate(ctx context.Context, next ChainLink, op types.OpID, args []string) ([]string, error) {
	if next == nil {
		return nil, errors.Wrapf(types.ErrStaleOperation, "head %v has no successor", m.id)
	}
	m.reqMu.Lock()
	local, err := m.execute(op, args)
	if err != nil {
		m.reqMu.Unlock()
		return nil, err
	}
	m.seqNo++
	seq := types.SequenceID{ServerSeq: m.seqNo}
	ch := m.waiters.register(seq.ServerSeq, local)
	m.pending.add(pendingOp{seq: seq, op: op, args: args, results: local})
	err = next.ChainRequest(ctx, seq, op, args)
	m.reqMu.Unlock()
	if err != nil {
		m.waiters.cancel(seq.ServerSeq)
		return nil, errors.WithMessagef(err, "forward seq %d to %v", seq.ServerSeq, next.ID())
	}

	ctx, cancel := context.WithTimeout(ctx, common.ChainResponseTimeout)
	defer cancel()
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		m.waiters.cancel(seq.ServerSeq)
		return nil, errors.Wrapf(types.ErrTimeOut, "response of seq %d", seq.ServerSeq)
	case <-m.done:
		return nil, errors.Wrapf(types.ErrStaleOperation, "block %v stopped", m.id)
	}
}

// ChainRequest queues a sequenced mutation from the predecessor.
func (m *ChainModule) ChainRequest(ctx context.Context, seq types.SequenceID, op types.OpID, args []string) error {
	if !op.IsMutator() {
		return errors.Wrapf(types.ErrUnknownOperation, "chain request with %v", op)
	}
	select {
	case m.inbox <- chainOp{seq: seq, op: op, args: args}:
		return nil
	case <-m.done:
		return errors.Wrapf(types.ErrStaleOperation, "block %v stopped", m.id)
	case <-ctx.Done():
		return errors.Wrap(types.ErrTimeOut, ctx.Err().Error())
	}
}

// ChainAck queues the acknowledgement of seq coming from the successor.
func (m *ChainModule) ChainAck(ctx context.Context, seq types.SequenceID, results []string) error {
	select {
	case m.acks <- ackOp{seq: seq, results: results}:
		return nil
	case <-m.done:
		return errors.Wrapf(types.ErrStaleOperation, "block %v stopped", m.id)
	case <-ctx.Done():
		return errors.Wrap(types.ErrTimeOut, ctx.Err().Error())
	}
}

func (m *ChainModule) processLoop() {
	for {
		select {
		case <-m.done:
			return
		case req := <-m.inbox:
			m.process(req)
		}
	}
}

func (m *ChainModule) process(req chainOp) {
	var res []string
	// replays of already applied sequence numbers are forwarded but not re-executed
	if req.seq.ServerSeq > m.lastSeq.Load() {
		var err error
		if res, err = m.execute(req.op, req.args); err != nil {
			m.lg.Warnf("chain request seq %d failed %v", req.seq.ServerSeq, err)
		}
		m.lastSeq.Store(req.seq.ServerSeq)
	}

	role, next, _ := m.links()
	if role == types.RoleTail || role == types.RoleSingleton {
		m.subs.notify(req.op, req.args)
		m.queueAck(ackOp{seq: req.seq, results: res})
		return
	}

	m.pending.add(pendingOp{seq: req.seq, op: req.op, args: req.args, results: res})
	if next == nil {
		m.lg.Warnf("%v block has no successor, seq %d stays pending", role, req.seq.ServerSeq)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), common.DefaultCallTimeout)
	defer cancel()
	if err := next.ChainRequest(ctx, req.seq, req.op, req.args); err != nil {
		m.lg.Warnf("forward seq %d to %v failed %v, left pending", req.seq.ServerSeq, next.ID(), err)
	}
}

func (m *ChainModule) queueAck(a ackOp) {
	select {
	case m.acks <- a:
	case <-m.done:
	}
}

func (m *ChainModule) ackLoop() {
	for {
		select {
		case <-m.done:
			return
		case a := <-m.acks:
			m.ack(a)
		}
	}
}

func (m *ChainModule) ack(a ackOp) {
	op, had := m.pending.remove(a.seq.ServerSeq)
	results := a.results
	if results == nil && had {
		results = op.results
	}

	role, _, prev := m.links()
	if role == types.RoleHead || role == types.RoleSingleton {
		m.waiters.deliver(a.seq.ServerSeq, results)
		return
	}
	if prev == nil {
		m.lg.Warnf("%v block has no predecessor, dropping ack of seq %d", role, a.seq.ServerSeq)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), common.DefaultCallTimeout)
	defer cancel()
	if err := prev.ChainAck(ctx, a.seq, results); err != nil {
		m.lg.Warnf("ack seq %d to %v failed %v", a.seq.ServerSeq, prev.ID(), err)
	}
}

// Setup (re)places the block in a chain.
func (m *ChainModule) Setup(path string, slots types.SlotRange, chain []types.BlockID, autoScale bool,
	role types.ChainRole, next string) error {
	var (
		nextLink ChainLink
		prevLink ChainLink
		err      error
	)
	if next != "" && next != types.NilBlock {
		id, err := types.ParseBlockID(next)
		if err != nil {
			return err
		}
		if nextLink, err = m.linker.Link(id); err != nil {
			return err
		}
	}
	if (role == types.RoleHead || role == types.RoleMid) && nextLink == nil {
		return errors.Wrapf(types.ErrInvalidArgument, "%v block %v needs a successor", role, m.id)
	}
	if role == types.RoleMid || role == types.RoleTail {
		idx := -1
		for i, b := range chain {
			if b == m.id {
				idx = i
			}
		}
		if idx <= 0 {
			return errors.Wrapf(types.ErrInvalidArgument, "block %v has no predecessor in %v", m.id, chain)
		}
		if prevLink, err = m.linker.Link(chain[idx-1]); err != nil {
			return err
		}
	}

	m.setup(path, slots, autoScale)
	m.chainMu.Lock()
	m.role = role
	m.chain = append([]types.BlockID(nil), chain...)
	m.next = nextLink
	m.prev = prevLink
	m.chainMu.Unlock()

	if role == types.RoleHead || role == types.RoleSingleton {
		m.reqMu.Lock()
		if last := m.lastSeq.Load(); m.seqNo < last {
			m.seqNo = last
		}
		m.reqMu.Unlock()
	}
	m.lg.Debugf("setup %v role %v slots %v next %v", path, role, slots, next)
	return nil
}

// ResendPending replays unacknowledged operations after the successor changed.
// A tail has nobody to replay to and acknowledges them instead.
func (m *ChainModule) ResendPending(ctx context.Context) error {
	role, next, _ := m.links()
	ops := m.pending.ascending()
	if role == types.RoleTail || role == types.RoleSingleton {
		for _, op := range ops {
			m.queueAck(ackOp{seq: op.seq, results: op.results})
		}
		return nil
	}
	if next == nil {
		return errors.Wrapf(types.ErrStaleOperation, "%v block %v has no successor", role, m.id)
	}
	for _, op := range ops {
		if err := next.ChainRequest(ctx, op.seq, op.op, op.args); err != nil {
			return errors.WithMessagef(err, "resend seq %d", op.seq.ServerSeq)
		}
	}
	m.lg.Infof("resent %d pending operations to %v", len(ops), next.ID())
	return nil
}

// ForwardAll copies every resident pair to the successor.
func (m *ChainModule) ForwardAll(ctx context.Context) error {
	_, next, _ := m.links()
	if next == nil {
		return errors.Wrapf(types.ErrStaleOperation, "block %v has no successor", m.id)
	}
	lt := m.table.lockTable()
	defer lt.Unlock()

	var (
		batch []string
		err   error
		n     int
	)
	send := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := next.RunCommand(ctx, types.OpPut, append(batch, types.RedirectedMarker))
		n += len(batch) / 2
		batch = nil
		return err
	}
	lt.Range(func(k, v string) bool {
		batch = append(batch, k, v)
		if len(batch) >= 2*common.ExportBatchSize {
			err = send()
		}
		return err == nil
	})
	if err == nil {
		err = send()
	}
	if err != nil {
		return errors.WithMessagef(err, "forward all to %v", next.ID())
	}
	m.lg.Infof("forwarded %d keys to %v", n, next.ID())
	return nil
}

// ExportSlots moves every key of the export range to the target chain.
// The move is not crash safe: a failure leaves keys on either side.
func (m *ChainModule) ExportSlots(ctx context.Context) error {
	if m.State() != types.BlockExporting {
		return errors.Wrapf(types.ErrStaleOperation, "block %v is not exporting", m.id)
	}
	target, slots := m.ExportTarget()
	if len(target) == 0 {
		return errors.Wrapf(types.ErrInvalidArgument, "block %v has no export target", m.id)
	}
	dst, err := m.linker.Link(target[0])
	if err != nil {
		return err
	}

	moved := 0
	for {
		kvs := m.collect(slots, common.ExportBatchSize)
		if len(kvs) == 0 {
			break
		}
		res, err := dst.Submit(ctx, types.OpPut, append(kvs, types.RedirectedMarker))
		if err != nil {
			return errors.WithMessagef(err, "export %v to %v", slots, target[0])
		}
		for _, r := range res {
			if r == types.ResultBlockMoved || r == types.ResultArgsError {
				return errors.Wrapf(types.ErrStaleOperation, "export %v to %v: %s", slots, target[0], r)
			}
		}

		keys := make([]string, 0, len(kvs)/2+1)
		for i := 0; i < len(kvs); i += 2 {
			keys = append(keys, kvs[i])
		}
		keys = append(keys, types.RedirectedMarker)
		res, err = m.Request(ctx, types.OpRemove, keys)
		if err != nil {
			return errors.WithMessagef(err, "remove exported keys of %v", slots)
		}
		removed := 0
		for _, r := range res {
			if !types.IsOutcome(r) {
				removed++
			}
		}
		if removed == 0 {
			return errors.Wrapf(types.ErrStaleOperation, "export %v made no progress", slots)
		}
		moved += len(kvs) / 2
		if len(kvs)/2 < common.ExportBatchSize {
			break
		}
	}
	if m.metrics != nil {
		m.metrics.exported.Add(float64(moved))
	}
	m.lg.Infof("exported %d keys of %v to %v", moved, slots, target[0])
	return nil
}

func (m *ChainModule) Subscribe(ops []string) (int64, error) {
	return m.subs.subscribe(ops)
}

func (m *ChainModule) Unsubscribe(id int64, ops []string) error {
	return m.subs.unsubscribe(id, ops)
}

func (m *ChainModule) Poll(ctx context.Context, id int64, wait time.Duration, max int) ([]types.Notification, error) {
	return m.subs.poll(ctx, id, wait, max)
}

// Reset drops data, chain placement and subscriptions.
func (m *ChainModule) Reset() {
	m.reset()
	m.chainMu.Lock()
	m.role = types.RoleSingleton
	m.chain = nil
	m.next = nil
	m.prev = nil
	m.chainMu.Unlock()
	m.reqMu.Lock()
	m.seqNo = 0
	m.reqMu.Unlock()
	m.lastSeq.Store(0)
	m.pending.clear()
	m.subs.clear()
}
