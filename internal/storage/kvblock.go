package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/internal/persistent"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Rebalancer receives split and merge requests from blocks that run over or under their thresholds.
type Rebalancer interface {
	SplitSlotRange(ctx context.Context, path string, slots types.SlotRange) error
	MergeSlotRange(ctx context.Context, path string, slots types.SlotRange) error
}

var ScaleRetryBackoff = 5 * time.Second

// KVBlock is the partitioned key/value store of one block.
type KVBlock struct {
	mu              sync.RWMutex
	id              types.BlockID
	path            string
	slots           types.SlotRange
	importSlots     types.SlotRange
	exportSlots     types.SlotRange
	exportTarget    []types.BlockID
	exportTargetStr string
	state           types.BlockState
	autoScale       bool
	rebalancer      Rebalancer

	table       *hashTable
	bytes       atomic.Int64
	capacity    int64
	thresholdHi float64
	thresholdLo float64
	splitting   atomic.Bool
	merging     atomic.Bool
	dirty       atomic.Bool

	lg *zap.SugaredLogger
}

func newKVBlock(id types.BlockID, capacity int64, hi, lo float64, lg *zap.SugaredLogger) *KVBlock {
	return &KVBlock{
		id:          id,
		table:       newHashTable(),
		capacity:    capacity,
		thresholdHi: hi,
		thresholdLo: lo,
		lg:          common.OrNop(lg).With("block", id.String()),
	}
}

func (b *KVBlock) ID() types.BlockID {
	return b.id
}

// owns must be called with mu held.
func (b *KVBlock) owns(slot int32, redirect bool) bool {
	return b.slots.Contains(slot) || (redirect && b.importSlots.Contains(slot))
}

// exporting must be called with mu held.
func (b *KVBlock) exporting(slot int32) (string, bool) {
	if b.state == types.BlockExporting && b.exportSlots.Contains(slot) {
		return b.exportTargetStr, true
	}
	return "", false
}

func (b *KVBlock) exists(key string, redirect bool) string {
	slot := HashSlot(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.owns(slot, redirect) {
		return types.ResultBlockMoved
	}
	if b.table.contains(key) {
		return types.ResultTrue
	}
	if r, ok := b.exporting(slot); ok {
		return r
	}
	return types.ResultKeyNotFound
}

func (b *KVBlock) get(key string, redirect bool) string {
	slot := HashSlot(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.owns(slot, redirect) {
		return types.ResultBlockMoved
	}
	if v, ok := b.table.find(key); ok {
		return v
	}
	if r, ok := b.exporting(slot); ok {
		return r
	}
	return types.ResultKeyNotFound
}

func (b *KVBlock) put(key, value string, redirect bool) string {
	slot := HashSlot(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.owns(slot, redirect) {
		return types.ResultBlockMoved
	}
	if !redirect {
		if r, ok := b.exporting(slot); ok {
			return r
		}
	}
	if b.table.insert(key, value) {
		b.bytes.Add(int64(len(key) + len(value)))
		return types.ResultOK
	}
	return types.ResultDuplicateKey
}

// Mutations of keys under export go to the target chain; only the exporter's
// own redirected removes touch them here.
func (b *KVBlock) update(key, value string, redirect bool) string {
	slot := HashSlot(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.owns(slot, redirect) {
		return types.ResultBlockMoved
	}
	if !redirect {
		if r, ok := b.exporting(slot); ok {
			return r
		}
	}
	if old, ok := b.table.update(key, value); ok {
		b.bytes.Add(int64(len(value) - len(old)))
		return old
	}
	return types.ResultKeyNotFound
}

func (b *KVBlock) remove(key string, redirect bool) string {
	slot := HashSlot(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.owns(slot, redirect) {
		return types.ResultBlockMoved
	}
	if !redirect {
		if r, ok := b.exporting(slot); ok {
			return r
		}
	}
	if old, ok := b.table.erase(key); ok {
		b.bytes.Sub(int64(len(key) + len(old)))
		return old
	}
	return types.ResultKeyNotFound
}

func (b *KVBlock) keys() []string {
	lt := b.table.lockTable()
	defer lt.Unlock()
	keys := make([]string, 0, lt.Len())
	lt.Range(func(k, _ string) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// RunCommand executes op over args against the local table only.
// A trailing types.RedirectedMarker admits keys of the import range.
func (b *KVBlock) RunCommand(op types.OpID, args []string) ([]string, error) {
	redirect := len(args) > 0 && args[len(args)-1] == types.RedirectedMarker
	if redirect {
		args = args[:len(args)-1]
	}
	var res []string
	switch op {
	case types.OpExists, types.OpGet, types.OpRemove:
		if len(args) == 0 {
			return []string{types.ResultArgsError}, nil
		}
		res = make([]string, len(args))
		for i, key := range args {
			switch op {
			case types.OpExists:
				res[i] = b.exists(key, redirect)
			case types.OpGet:
				res[i] = b.get(key, redirect)
			default:
				res[i] = b.remove(key, redirect)
			}
		}
	case types.OpPut, types.OpUpdate:
		if len(args) == 0 || len(args)%2 != 0 {
			return []string{types.ResultArgsError}, nil
		}
		res = make([]string, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			if op == types.OpPut {
				res = append(res, b.put(args[i], args[i+1], redirect))
			} else {
				res = append(res, b.update(args[i], args[i+1], redirect))
			}
		}
	case types.OpNumKeys:
		if len(args) != 0 {
			return []string{types.ResultArgsError}, nil
		}
		res = []string{strconv.Itoa(b.table.size())}
	case types.OpKeys:
		if len(args) != 0 {
			return []string{types.ResultArgsError}, nil
		}
		res = b.keys()
	default:
		return nil, errors.Wrapf(types.ErrUnknownOperation, "op id %d", op)
	}
	if op.IsMutator() {
		b.dirty.Store(true)
	}
	return res, nil
}

func (b *KVBlock) Get(key string) string {
	return b.get(key, false)
}

func (b *KVBlock) Put(key, value string) string {
	return b.put(key, value, false)
}

func (b *KVBlock) Update(key, value string) string {
	return b.update(key, value, false)
}

func (b *KVBlock) Remove(key string) string {
	return b.remove(key, false)
}

func (b *KVBlock) NumKeys() int {
	return b.table.size()
}

// checkScale asks the rebalancer for a split (overload) or merge (underload, removes only).
func (b *KVBlock) checkScale(op types.OpID, isTail bool) {
	if !isTail || !op.IsMutator() {
		return
	}
	b.mu.RLock()
	auto, state, path, slots, rb := b.autoScale, b.state, b.path, b.slots, b.rebalancer
	b.mu.RUnlock()
	if !auto || state != types.BlockRegular || rb == nil || slots.Empty() {
		return
	}

	used := float64(b.bytes.Load())
	capacity := float64(b.capacity)
	if used > capacity*b.thresholdHi && b.splitting.CompareAndSwap(false, true) {
		b.lg.Infof("overloaded block; storage %v capacity %v slots %v", int64(used), b.capacity, slots)
		go func() {
			if err := rb.SplitSlotRange(context.Background(), path, slots); err != nil {
				b.lg.Warnf("split slot range %v of %v failed %v", slots, path, err)
				time.AfterFunc(ScaleRetryBackoff, func() { b.splitting.Store(false) })
			}
		}()
		return
	}
	if op == types.OpRemove && slots.End != types.SlotMax &&
		used < capacity*b.thresholdLo && b.merging.CompareAndSwap(false, true) {
		b.lg.Infof("underloaded block; storage %v capacity %v slots %v", int64(used), b.capacity, slots)
		go func() {
			if err := rb.MergeSlotRange(context.Background(), path, slots); err != nil {
				b.lg.Debugf("merge slot range %v of %v skipped %v", slots, path, err)
				time.AfterFunc(ScaleRetryBackoff, func() { b.merging.Store(false) })
			}
		}()
	}
}

func (b *KVBlock) setup(path string, slots types.SlotRange, autoScale bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = path
	b.slots = slots
	b.autoScale = autoScale
}

func (b *KVBlock) SetExporting(target []types.BlockID, slots types.SlotRange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = types.BlockExporting
	b.exportTarget = append([]types.BlockID(nil), target...)
	b.exportTargetStr = types.ExportingResult(target)
	b.exportSlots = slots
}

func (b *KVBlock) SetImporting(slots types.SlotRange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = types.BlockImporting
	b.importSlots = slots
}

// SetRegular ends an export or import and installs the final slot range.
func (b *KVBlock) SetRegular(slots types.SlotRange) {
	b.mu.Lock()
	b.state = types.BlockRegular
	b.slots = slots
	b.importSlots = types.SlotRange{}
	b.exportSlots = types.SlotRange{}
	b.exportTarget = nil
	b.exportTargetStr = ""
	b.mu.Unlock()
	b.splitting.Store(false)
	b.merging.Store(false)
}

func (b *KVBlock) SetRebalancer(rb Rebalancer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebalancer = rb
}

func (b *KVBlock) SetPath(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = path
}

func (b *KVBlock) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

func (b *KVBlock) SlotRange() types.SlotRange {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slots
}

func (b *KVBlock) State() types.BlockState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *KVBlock) ExportTarget() ([]types.BlockID, types.SlotRange) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]types.BlockID(nil), b.exportTarget...), b.exportSlots
}

func (b *KVBlock) StorageCapacity() int64 {
	return b.capacity
}

// SplitThreshold is the fraction of capacity above which the block asks for a split.
func (b *KVBlock) SplitThreshold() float64 {
	return b.thresholdHi
}

func (b *KVBlock) StorageSize() int64 {
	return b.bytes.Load()
}

// Flush writes the table to backingPath.
func (b *KVBlock) Flush(backingPath string) error {
	lt := b.table.lockTable()
	defer lt.Unlock()
	err := persistent.Dump(backingPath, func(put persistent.PutFunc) error {
		var err error
		lt.Range(func(k, v string) bool {
			err = put(k, v)
			return err == nil
		})
		return err
	})
	if err != nil {
		return err
	}
	b.dirty.Store(false)
	b.lg.Infof("flushed %d keys to %s", lt.Len(), backingPath)
	return nil
}

// Load adds the pairs stored at backingPath to the table.
func (b *KVBlock) Load(backingPath string) error {
	lt := b.table.lockTable()
	defer lt.Unlock()
	n := 0
	err := persistent.Load(backingPath, func(k, v string) error {
		if lt.Insert(k, v) {
			b.bytes.Add(int64(len(k) + len(v)))
			n++
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.dirty.Store(false)
	b.lg.Infof("loaded %d keys from %s", n, backingPath)
	return nil
}

// collect returns up to limit key/value pairs (interleaved) whose slot lies in slots.
func (b *KVBlock) collect(slots types.SlotRange, limit int) []string {
	lt := b.table.lockTable()
	defer lt.Unlock()
	var kvs []string
	lt.Range(func(k, v string) bool {
		if slots.Contains(HashSlot(k)) {
			kvs = append(kvs, k, v)
		}
		return len(kvs) < 2*limit
	})
	return kvs
}

func (b *KVBlock) reset() {
	lt := b.table.lockTable()
	lt.Clear()
	b.bytes.Store(0)
	lt.Unlock()

	b.mu.Lock()
	b.path = ""
	b.slots = types.SlotRange{}
	b.importSlots = types.SlotRange{}
	b.exportSlots = types.SlotRange{}
	b.exportTarget = nil
	b.exportTargetStr = ""
	b.state = types.BlockRegular
	b.autoScale = false
	b.mu.Unlock()

	b.splitting.Store(false)
	b.merging.Store(false)
	b.dirty.Store(false)
}
