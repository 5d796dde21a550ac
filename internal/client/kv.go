package client

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/internal/storage"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// KVClient reads and writes the keys of one file. It caches the file's data
// status and reloads it whenever a block reports that the layout moved on.
type KVClient struct {
	dir  *DirectoryClient
	path string
	cfg  ClientCfg

	clientID int64
	seq      atomic.Int64

	mu     sync.RWMutex
	status types.DataStatus
}

// NewKVClient opens path, loading it back into memory when it was flushed.
func NewKVClient(ctx context.Context, dir *DirectoryClient, path string, opts ...Option) (*KVClient, error) {
	c := &KVClient{
		dir:      dir,
		path:     common.CleanPath(path),
		clientID: common.Nrand(),
	}
	c.cfg.Init(opts...)
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *KVClient) Path() string {
	return c.path
}

// DataStatus returns the cached layout of the file.
func (c *KVClient) DataStatus() types.DataStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Clone()
}

// Refresh reloads the layout from the directory.
func (c *KVClient) Refresh(ctx context.Context) error {
	c.cfg.trace.refresh(c.path)
	ds, err := c.dir.Open(ctx, c.path)
	if err != nil {
		return err
	}
	if ds.Mode == types.OnDisk {
		if ds, err = c.dir.Load(ctx, c.path); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.status = ds
	c.mu.Unlock()
	return nil
}

func (c *KVClient) nextSeq() types.SequenceID {
	return types.SequenceID{ClientID: c.clientID, ClientSeq: c.seq.Inc()}
}

// send runs op on one block through its data endpoint.
func (c *KVClient) send(ctx context.Context, block types.BlockID, op types.OpID, args []string) ([]string, error) {
	var reply types.RunCommandReply
	err := call(ctx, c.cfg.timeout, block.ServiceAddr(), "Storage.RPCRunCommand", &types.RunCommandArg{
		Block: block.ID,
		Seq:   c.nextSeq(),
		Op:    op,
		Args:  args,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return reply.Results, nil
}

// entry picks the block of chain that serves op: the head for mutations, the tail for reads.
func entry(blocks []types.BlockID, op types.OpID) types.BlockID {
	if op.IsMutator() {
		return blocks[0]
	}
	return blocks[len(blocks)-1]
}

func stride(op types.OpID) int {
	if op == types.OpPut || op == types.OpUpdate {
		return 2
	}
	return 1
}

// batch is a group of argument tuples bound for one chain.
type batch struct {
	chain types.ReplicaChain
	idx   []int
}

type redirectBatch struct {
	target []types.BlockID
	idx    []int
}

// Run executes a keyed op (exists, get, put, update, remove) over args and
// returns one result per key, in order. Keys are grouped per chain; keys that
// moved are retried against a fresh layout and keys under export follow the
// exporting block to its target.
func (c *KVClient) Run(ctx context.Context, op types.OpID, args []string) (results []string, err error) {
	c.cfg.trace.start(op, len(args))
	defer func() { c.cfg.trace.done(op, err) }()

	switch op {
	case types.OpExists, types.OpGet, types.OpRemove, types.OpPut, types.OpUpdate:
	default:
		return nil, errors.Wrapf(types.ErrInvalidArgument, "%v is not a keyed operation", op)
	}
	w := stride(op)
	if len(args) == 0 || len(args)%w != 0 {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "%v with %d arguments", op, len(args))
	}

	n := len(args) / w
	results = make([]string, n)
	pending := make([]int, n)
	for i := range pending {
		pending[i] = i
	}
	tuple := func(idx []int, redirected bool) []string {
		out := make([]string, 0, len(idx)*w+1)
		for _, i := range idx {
			out = append(out, args[i*w:i*w+w]...)
		}
		if redirected {
			out = append(out, types.RedirectedMarker)
		}
		return out
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.retry; attempt++ {
		if attempt > 0 {
			c.cfg.trace.retry(attempt, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(common.RedirectBackoff * time.Duration(attempt)):
			}
			if err := c.Refresh(ctx); err != nil {
				return nil, err
			}
		}

		ds := c.DataStatus()
		var batches []*batch
		byChain := make(map[int]*batch)
		var unrouted []int
		for _, i := range pending {
			ci := ds.ChainForSlot(storage.HashSlot(args[i*w]))
			if ci < 0 || ds.Chains[ci].Len() == 0 {
				unrouted = append(unrouted, i)
				continue
			}
			b, ok := byChain[ci]
			if !ok {
				b = &batch{chain: ds.Chains[ci]}
				byChain[ci] = b
				batches = append(batches, b)
			}
			b.idx = append(b.idx, i)
		}
		if len(unrouted) > 0 {
			lastErr = errors.Wrapf(types.ErrStaleOperation, "%d keys of %v have no chain", len(unrouted), c.path)
		}

		next := unrouted
		var redirects []*redirectBatch
		byTarget := make(map[string]*redirectBatch)
		for _, b := range batches {
			c.cfg.trace.route(b.chain, len(b.idx))
			res, err := c.send(ctx, entry(b.chain.Blocks, op), op, tuple(b.idx, false))
			if err == nil && len(res) != len(b.idx) {
				err = errors.Wrapf(types.ErrStaleOperation, "%d results for %d keys", len(res), len(b.idx))
			}
			if err != nil {
				if rerr := c.recover(ctx, b.chain, err); rerr != nil {
					return nil, rerr
				}
				lastErr = err
				next = append(next, b.idx...)
				continue
			}
			for j, r := range res {
				i := b.idx[j]
				if r == types.ResultBlockMoved {
					next = append(next, i)
					lastErr = errors.Wrapf(types.ErrStaleOperation, "layout of %v moved", c.path)
					continue
				}
				if target, ok := types.ParseExporting(r); ok {
					rb, ok := byTarget[r]
					if !ok {
						rb = &redirectBatch{target: target}
						byTarget[r] = rb
						redirects = append(redirects, rb)
					}
					rb.idx = append(rb.idx, i)
					continue
				}
				results[i] = r
			}
		}

		for _, rb := range redirects {
			c.cfg.trace.redirect(rb.target, len(rb.idx))
			res, err := c.send(ctx, entry(rb.target, op), op, tuple(rb.idx, true))
			if err == nil && len(res) != len(rb.idx) {
				err = errors.Wrapf(types.ErrStaleOperation, "%d results for %d keys", len(res), len(rb.idx))
			}
			if err != nil {
				c.cfg.lg.Debugf("redirect to %v failed %v", rb.target, err)
				lastErr = err
				next = append(next, rb.idx...)
				continue
			}
			for j, r := range res {
				i := rb.idx[j]
				if r == types.ResultBlockMoved || strings.HasPrefix(r, types.ResultExportingPrefix) {
					lastErr = errors.Wrapf(types.ErrStaleOperation, "redirect target %v refused", rb.target)
					next = append(next, i)
					continue
				}
				results[i] = r
			}
		}

		if len(next) == 0 {
			return results, nil
		}
		pending = next
	}
	return nil, errors.Wrapf(types.ErrRetryOverSeed, "%v on %v: %v", op, c.path, lastErr)
}

// recover reacts to a failed call on chain. Transport failures ask the
// directory to repair the chain; stale routing only needs a refresh, which the
// next attempt does. Any other error is returned.
func (c *KVClient) recover(ctx context.Context, chain types.ReplicaChain, err error) error {
	switch {
	case retryable(err):
		c.cfg.lg.Infof("chain %v of %v unreachable (%v), resolving", chain, c.path, err)
		if _, rerr := c.dir.ResolveFailures(ctx, c.path, chain); rerr != nil {
			c.cfg.lg.Warnf("resolve failures of %v: %v", chain, rerr)
		}
		return nil
	case errors.Is(err, types.ErrStaleOperation), errors.Is(err, types.ErrBlockNotFound):
		return nil
	}
	return err
}

// each runs a key-less op on the tail of every chain.
func (c *KVClient) each(ctx context.Context, op types.OpID) (out [][]string, err error) {
	c.cfg.trace.start(op, 0)
	defer func() { c.cfg.trace.done(op, err) }()

	var lastErr error
	for attempt := 0; attempt < c.cfg.retry; attempt++ {
		if attempt > 0 {
			c.cfg.trace.retry(attempt, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(common.RedirectBackoff * time.Duration(attempt)):
			}
			if err := c.Refresh(ctx); err != nil {
				return nil, err
			}
		}
		ds := c.DataStatus()
		out = out[:0]
		lastErr = nil
		for _, chain := range ds.Chains {
			if chain.Len() == 0 {
				lastErr = errors.Wrapf(types.ErrStaleOperation, "empty chain %v", chain.Slots)
				break
			}
			c.cfg.trace.route(chain, 0)
			res, err := c.send(ctx, chain.Tail(), op, nil)
			if err != nil {
				if rerr := c.recover(ctx, chain, err); rerr != nil {
					return nil, rerr
				}
				lastErr = err
				break
			}
			out = append(out, res)
		}
		if lastErr == nil {
			return out, nil
		}
	}
	return nil, errors.Wrapf(types.ErrRetryOverSeed, "%v on %v: %v", op, c.path, lastErr)
}

func (c *KVClient) Exists(ctx context.Context, key string) (bool, error) {
	res, err := c.Run(ctx, types.OpExists, []string{key})
	if err != nil {
		return false, err
	}
	return res[0] == types.ResultTrue, nil
}

// Get returns types.ErrNotFound for a missing key.
func (c *KVClient) Get(ctx context.Context, key string) (string, error) {
	res, err := c.Run(ctx, types.OpGet, []string{key})
	if err != nil {
		return "", err
	}
	return value(key, res[0])
}

// Put inserts key; an existing key is left alone and reported as types.ErrDuplicate.
func (c *KVClient) Put(ctx context.Context, key, val string) error {
	res, err := c.Run(ctx, types.OpPut, []string{key, val})
	if err != nil {
		return err
	}
	switch res[0] {
	case types.ResultOK:
		return nil
	case types.ResultDuplicateKey:
		return errors.Wrapf(types.ErrDuplicate, "key %q", key)
	}
	return errors.Errorf("put %q: %s", key, res[0])
}

// Update replaces the value of an existing key and returns the old one.
func (c *KVClient) Update(ctx context.Context, key, val string) (string, error) {
	res, err := c.Run(ctx, types.OpUpdate, []string{key, val})
	if err != nil {
		return "", err
	}
	return value(key, res[0])
}

// Remove deletes key and returns its value.
func (c *KVClient) Remove(ctx context.Context, key string) (string, error) {
	res, err := c.Run(ctx, types.OpRemove, []string{key})
	if err != nil {
		return "", err
	}
	return value(key, res[0])
}

func value(key, r string) (string, error) {
	switch {
	case r == types.ResultKeyNotFound:
		return "", errors.Wrapf(types.ErrNotFound, "key %q", key)
	case r == types.ResultArgsError:
		return "", errors.Wrapf(types.ErrInvalidArgument, "key %q", key)
	}
	return r, nil
}

// NumKeys sums the key counts of every chain.
func (c *KVClient) NumKeys(ctx context.Context) (int64, error) {
	out, err := c.each(ctx, types.OpNumKeys)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, res := range out {
		if len(res) != 1 {
			return 0, errors.Errorf("num_keys returned %v", res)
		}
		n, err := strconv.ParseInt(res[0], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "num_keys returned %q", res[0])
		}
		total += n
	}
	return total, nil
}

// Keys lists every key of the file. A key caught in the middle of an export
// is reported once.
func (c *KVClient) Keys(ctx context.Context) ([]string, error) {
	out, err := c.each(ctx, types.OpKeys)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var keys []string
	for _, res := range out {
		for _, k := range res {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}
