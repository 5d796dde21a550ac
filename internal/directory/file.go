package directory

import (
	"context"
	"time"

	"ekv/internal/common"
	"ekv/internal/persistent"
	"ekv/types"

	"github.com/pkg/errors"
)

// Create makes a file whose slot space is split evenly over numBlocks chains
// of chainLength blocks. Missing parent directories are created.
func (t *DirectoryTree) Create(ctx context.Context, path, prefix string, numBlocks, chainLength int, flags int32) (types.DataStatus, error) {
	if numBlocks <= 0 || numBlocks > types.SlotMax || chainLength <= 0 {
		return types.DataStatus{}, errors.Wrapf(types.ErrInvalidArgument, "%d blocks, chain length %d", numBlocks, chainLength)
	}
	parent, name := common.PartionPath(path)
	if name == "" {
		return types.DataStatus{}, errors.Wrap(types.ErrTypeMismatch, "/ is a directory")
	}
	for i := range parent {
		if err := t.createDir(parent[:i], parent[i]); err != nil {
			return types.DataStatus{}, err
		}
	}

	pl, err := t.lockDir(parent, true)
	if err != nil {
		return types.DataStatus{}, err
	}
	defer pl.unlock()
	dir := pl.node()
	if _, ok := dir.children[name]; ok {
		return types.DataStatus{}, errors.Wrapf(types.ErrPathExists, "%s", path)
	}

	path = common.CleanPath(path)
	ds := types.DataStatus{
		Mode:        types.InMemory,
		Prefix:      prefix,
		ChainLength: chainLength,
		Flags:       flags,
	}
	autoScale := !ds.IsStaticProvisioned()
	spb := int32(types.SlotMax / numBlocks)
	for i := 0; i < numBlocks; i++ {
		slots := types.SlotRange{Begin: int32(i) * spb, End: int32(i+1) * spb}
		if i == numBlocks-1 {
			slots.End = types.SlotMax
		}
		chain, err := t.newChain(ctx, path, slots, chainLength, autoScale)
		if err != nil {
			for _, c := range ds.Chains {
				t.releaseBlocks(ctx, c.Blocks)
			}
			return types.DataStatus{}, err
		}
		ds.Chains = append(ds.Chains, chain)
	}
	dir.children[name] = newFileNode(name, ds)
	t.lg.Infof("created %s with %d chains of %d blocks", path, numBlocks, chainLength)
	return ds.Clone(), nil
}

// newChain allocates and sets up a fresh chain serving slots of path.
func (t *DirectoryTree) newChain(ctx context.Context, path string, slots types.SlotRange, length int, autoScale bool) (types.ReplicaChain, error) {
	blocks, err := t.alloc.Allocate(length, nil)
	if err != nil {
		return types.ReplicaChain{}, err
	}
	chain := types.ReplicaChain{Blocks: blocks, Slots: slots, Status: types.ChainStable}
	if err := setupChain(ctx, t.storage, path, chain, autoScale); err != nil {
		t.releaseBlocks(ctx, blocks)
		return types.ReplicaChain{}, err
	}
	return chain, nil
}

// OpenOrCreate opens path, creating it when it does not exist.
func (t *DirectoryTree) OpenOrCreate(ctx context.Context, path, prefix string, numBlocks, chainLength int, flags int32) (types.DataStatus, error) {
	ds, err := t.Open(path)
	if err == nil {
		return ds, nil
	}
	if !errors.Is(err, types.ErrPathNotFound) {
		return ds, err
	}
	ds, err = t.Create(ctx, path, prefix, numBlocks, chainLength, flags)
	if errors.Is(err, types.ErrPathExists) {
		return t.Open(path)
	}
	return ds, err
}

// AddBlocks registers newly announced storage blocks with the allocator.
func (t *DirectoryTree) AddBlocks(blocks []types.BlockID) int {
	n := t.alloc.AddBlocks(blocks)
	if n > 0 {
		t.lg.Infof("registered %d new blocks, %d free", n, t.alloc.NumFree())
	}
	return n
}

func (t *DirectoryTree) RemoveBlocks(blocks []types.BlockID) error {
	return t.alloc.RemoveBlocks(blocks)
}

func (t *DirectoryTree) alive(ctx context.Context, b types.BlockID) bool {
	for i := 0; i < common.LivenessCheckRetries; i++ {
		pctx, cancel := context.WithTimeout(ctx, common.LivenessCheckTimeout)
		err := t.storage.Ping(pctx, b)
		cancel()
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// ResolveFailures pings every block of chain, drops the dead ones, relinks
// the survivors and tops the chain back up to the file's chain length.
func (t *DirectoryTree) ResolveFailures(ctx context.Context, path string, chain types.ReplicaChain) (types.ReplicaChain, error) {
	path = common.CleanPath(path)
	pl, err := t.lockFile(path, true)
	if err != nil {
		return types.ReplicaChain{}, err
	}
	defer pl.unlock()
	ds := &pl.node().dstatus
	idx := ds.FindChain(chain)
	if idx < 0 {
		return types.ReplicaChain{}, errors.Wrapf(types.ErrNotFound, "chain %v of %s", chain.Names(), path)
	}
	cur := ds.Chains[idx]

	var live []types.BlockID
	for _, b := range cur.Blocks {
		if t.alive(ctx, b) {
			live = append(live, b)
		} else {
			t.lg.Warnf("block %v of %s is dead", b, path)
		}
	}
	if len(live) == 0 {
		return types.ReplicaChain{}, errors.Wrapf(types.ErrUnReachAble, "every block of chain %v failed", cur.Names())
	}

	if len(live) < cur.Len() {
		autoScale := !ds.IsStaticProvisioned()
		n := len(live)
		for i := n - 1; i >= 0; i-- {
			next := types.NilBlock
			if i < n-1 {
				next = live[i+1].String()
			}
			if err := t.storage.Setup(ctx, live[i], path, cur.Slots, live, autoScale, types.RoleAt(i, n), next); err != nil {
				return types.ReplicaChain{}, errors.Wrapf(err, "relink block %v", live[i])
			}
		}
		// survivors whose successor changed replay what it may have lost
		for i := n - 1; i >= 0; i-- {
			if successor(cur.Blocks, live[i]) == successor(live, live[i]) {
				continue
			}
			if err := t.storage.ResendPending(ctx, live[i]); err != nil {
				t.lg.Warnf("resend pending of %v failed %v", live[i], err)
			}
		}
		ds.Chains[idx].Blocks = live
		t.lg.Infof("chain of %s %v rebuilt as %v", path, cur.Names(), ds.Chains[idx].Names())
	}

	for ds.Chains[idx].Len() < ds.ChainLength {
		if err := t.addReplica(ctx, path, ds, idx); err != nil {
			t.lg.Warnf("chain %v of %s stays short: %v", ds.Chains[idx].Names(), path, err)
			break
		}
	}
	return ds.Chains[idx].Clone(), nil
}

func successor(blocks []types.BlockID, b types.BlockID) string {
	for i := range blocks {
		if blocks[i] == b && i < len(blocks)-1 {
			return blocks[i+1].String()
		}
	}
	return types.NilBlock
}

// AddReplicaToChain appends a fresh block at the tail of chain.
func (t *DirectoryTree) AddReplicaToChain(ctx context.Context, path string, chain types.ReplicaChain) (types.ReplicaChain, error) {
	path = common.CleanPath(path)
	pl, err := t.lockFile(path, true)
	if err != nil {
		return types.ReplicaChain{}, err
	}
	defer pl.unlock()
	ds := &pl.node().dstatus
	idx := ds.FindChain(chain)
	if idx < 0 {
		return types.ReplicaChain{}, errors.Wrapf(types.ErrNotFound, "chain %v of %s", chain.Names(), path)
	}
	if ds.Chains[idx].Status != types.ChainStable {
		return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "chain %v is %v", chain.Names(), ds.Chains[idx].Status)
	}
	if err := t.addReplica(ctx, path, ds, idx); err != nil {
		return types.ReplicaChain{}, err
	}
	return ds.Chains[idx].Clone(), nil
}

func (t *DirectoryTree) addReplica(ctx context.Context, path string, ds *types.DataStatus, idx int) error {
	cur := ds.Chains[idx]
	picked, err := t.alloc.Allocate(1, cur.Blocks)
	if err != nil {
		return err
	}
	nb := picked[0]
	blocks := append(append([]types.BlockID(nil), cur.Blocks...), nb)
	n := len(blocks)
	autoScale := !ds.IsStaticProvisioned()
	oldTail := cur.Tail()

	if err := t.storage.Setup(ctx, nb, path, cur.Slots, blocks, autoScale, types.RoleTail, types.NilBlock); err != nil {
		t.releaseBlocks(ctx, picked)
		return err
	}
	if err := t.storage.Setup(ctx, oldTail, path, cur.Slots, blocks, autoScale, types.RoleAt(n-2, n), nb.String()); err != nil {
		t.releaseBlocks(ctx, picked)
		return err
	}
	if err := t.storage.ForwardAll(ctx, oldTail); err != nil {
		// put the old tail back in place
		if rerr := t.storage.Setup(ctx, oldTail, path, cur.Slots, cur.Blocks, autoScale, types.RoleAt(n-2, n-1), types.NilBlock); rerr != nil {
			t.lg.Warnf("restore tail %v failed %v", oldTail, rerr)
		}
		t.releaseBlocks(ctx, picked)
		return errors.Wrapf(err, "forward data to %v", nb)
	}
	ds.Chains[idx].Blocks = blocks
	t.lg.Infof("added replica %v to chain of %s, now %v", nb, path, ds.Chains[idx].Names())
	return nil
}

// AddBlockToFile splits the widest chain of path and returns the new chain.
func (t *DirectoryTree) AddBlockToFile(ctx context.Context, path string) (types.ReplicaChain, error) {
	ds, err := t.DStatus(path)
	if err != nil {
		return types.ReplicaChain{}, err
	}
	if len(ds.Chains) == 0 {
		return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "%s is %v", path, ds.Mode)
	}
	widest := 0
	for i := range ds.Chains {
		if ds.Chains[i].Slots.Len() > ds.Chains[widest].Slots.Len() {
			widest = i
		}
	}
	return t.split(ctx, path, ds.Chains[widest].Slots)
}

// SplitSlotRange moves the upper half of slots to a new chain.
func (t *DirectoryTree) SplitSlotRange(ctx context.Context, path string, slots types.SlotRange) error {
	_, err := t.split(ctx, path, slots)
	return err
}

func chainBySlots(ds *types.DataStatus, slots types.SlotRange) int {
	for i := range ds.Chains {
		if ds.Chains[i].Slots == slots {
			return i
		}
	}
	return -1
}

func inMemory(ds *types.DataStatus) bool {
	return ds.Mode == types.InMemory || ds.Mode == types.InMemoryGrace
}

func (t *DirectoryTree) split(ctx context.Context, path string, slots types.SlotRange) (types.ReplicaChain, error) {
	path = common.CleanPath(path)
	pl, err := t.lockFile(path, true)
	if err != nil {
		return types.ReplicaChain{}, err
	}
	n := pl.node()
	ds := &n.dstatus
	idx := chainBySlots(ds, slots)
	switch {
	case !inMemory(ds):
		pl.unlock()
		return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "%s is %v", path, ds.Mode)
	case idx < 0:
		pl.unlock()
		return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "no chain of %s serves %v", path, slots)
	case ds.Chains[idx].Status != types.ChainStable:
		pl.unlock()
		return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "chain %v is %v", ds.Chains[idx].Names(), ds.Chains[idx].Status)
	case slots.Len() < 2:
		pl.unlock()
		return types.ReplicaChain{}, errors.Wrapf(types.ErrInvalidArgument, "split %v", slots)
	}
	src := ds.Chains[idx].Clone()
	mid := slots.Begin + slots.Len()/2
	lower := types.SlotRange{Begin: slots.Begin, End: mid}
	upper := types.SlotRange{Begin: mid, End: slots.End}
	autoScale := !ds.IsStaticProvisioned()

	dst, err := t.newChain(ctx, path, types.SlotRange{}, ds.ChainLength, autoScale)
	if err == nil {
		err = t.beginExport(ctx, src, dst, upper)
	}
	if err != nil {
		if dst.Len() > 0 {
			for _, b := range src.Blocks {
				if rerr := t.storage.SetRegular(ctx, b, slots); rerr != nil {
					t.lg.Warnf("restore block %v failed %v", b, rerr)
				}
			}
			t.releaseBlocks(ctx, dst.Blocks)
		}
		pl.unlock()
		return types.ReplicaChain{}, err
	}
	ds.Chains[idx].Status = types.ChainExporting
	pl.unlock()
	t.lg.Infof("splitting %v of %s, %v moves to %v", slots, path, upper, dst.Names())

	if err := t.storage.ExportSlots(ctx, src.Head()); err != nil {
		if _, ok := t.find(n); !ok {
			t.releaseBlocks(ctx, dst.Blocks)
			return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "%s vanished during split", path)
		}
		return types.ReplicaChain{}, errors.Wrapf(err, "export %v of %s", upper, path)
	}

	// the file may have been renamed while unlocked
	pl, cur, err := t.relock(n)
	if err != nil {
		t.releaseBlocks(ctx, dst.Blocks)
		return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "%s vanished during split", path)
	}
	defer pl.unlock()
	if cur != path {
		for _, b := range dst.Blocks {
			if err := t.storage.SetPath(ctx, b, cur); err != nil {
				t.lg.Warnf("set path of block %v to %s failed %v", b, cur, err)
			}
		}
		path = cur
	}
	ds = &n.dstatus
	idx = ds.FindChain(src)
	if idx < 0 {
		t.releaseBlocks(ctx, dst.Blocks)
		return types.ReplicaChain{}, errors.Wrapf(types.ErrStaleOperation, "chain %v of %s vanished during split", src.Names(), path)
	}
	src = ds.Chains[idx]
	if err := t.endExport(ctx, src, lower, dst, upper); err != nil {
		return types.ReplicaChain{}, err
	}
	dst.Slots = upper
	dst.Status = types.ChainStable
	ds.Chains[idx].Slots = lower
	ds.Chains[idx].Status = types.ChainStable
	ds.Chains = append(ds.Chains[:idx+1], append([]types.ReplicaChain{dst}, ds.Chains[idx+1:]...)...)
	t.metrics.rebalances.WithLabelValues("split").Inc()
	t.lg.Infof("split %v of %s into %v and %v", slots, path, lower, upper)
	return dst.Clone(), nil
}

// beginExport puts dst in importing and src in exporting state for slots.
func (t *DirectoryTree) beginExport(ctx context.Context, src, dst types.ReplicaChain, slots types.SlotRange) error {
	for _, b := range dst.Blocks {
		if err := t.storage.SetImporting(ctx, b, slots); err != nil {
			return errors.Wrapf(err, "set importing %v", b)
		}
	}
	for _, b := range src.Blocks {
		if err := t.storage.SetExporting(ctx, b, dst.Blocks, slots); err != nil {
			return errors.Wrapf(err, "set exporting %v", b)
		}
	}
	return nil
}

// endExport installs the final slot ranges once the data has moved.
func (t *DirectoryTree) endExport(ctx context.Context, src types.ReplicaChain, srcSlots types.SlotRange, dst types.ReplicaChain, dstSlots types.SlotRange) error {
	for _, b := range dst.Blocks {
		if err := t.storage.SetRegular(ctx, b, dstSlots); err != nil {
			return errors.Wrapf(err, "set regular %v", b)
		}
	}
	for _, b := range src.Blocks {
		if err := t.storage.SetRegular(ctx, b, srcSlots); err != nil {
			return errors.Wrapf(err, "set regular %v", b)
		}
	}
	return nil
}

// MergeSlotRange moves the keys of the chain serving slots into its right
// neighbour and releases the emptied chain.
func (t *DirectoryTree) MergeSlotRange(ctx context.Context, path string, slots types.SlotRange) error {
	path = common.CleanPath(path)
	pl, err := t.lockFile(path, true)
	if err != nil {
		return err
	}
	n := pl.node()
	ds := &n.dstatus
	idx := chainBySlots(ds, slots)
	switch {
	case !inMemory(ds):
		pl.unlock()
		return errors.Wrapf(types.ErrStaleOperation, "%s is %v", path, ds.Mode)
	case idx < 0:
		pl.unlock()
		return errors.Wrapf(types.ErrStaleOperation, "no chain of %s serves %v", path, slots)
	case idx == len(ds.Chains)-1:
		pl.unlock()
		return errors.Wrapf(types.ErrInvalidArgument, "%v has no right neighbour", slots)
	case ds.Chains[idx].Status != types.ChainStable || ds.Chains[idx+1].Status != types.ChainStable:
		pl.unlock()
		return errors.Wrapf(types.ErrStaleOperation, "chains around %v are rebalancing", slots)
	}
	src, dst := ds.Chains[idx].Clone(), ds.Chains[idx+1].Clone()

	srcSize, err := t.storage.StorageSize(ctx, src.Tail())
	if err != nil {
		pl.unlock()
		return err
	}
	dstSize, err := t.storage.StorageSize(ctx, dst.Tail())
	if err != nil {
		pl.unlock()
		return err
	}
	capacity, err := t.storage.StorageCapacity(ctx, dst.Tail())
	if err != nil {
		pl.unlock()
		return err
	}
	hi, err := t.storage.SplitThreshold(ctx, dst.Tail())
	if err != nil {
		pl.unlock()
		return err
	}
	if float64(srcSize+dstSize) >= float64(capacity)*hi {
		pl.unlock()
		return errors.Wrapf(types.ErrNoCapacity, "merging %v into %v overloads it", slots, dst.Slots)
	}

	if err := t.beginExport(ctx, src, dst, src.Slots); err != nil {
		pl.unlock()
		return err
	}
	ds.Chains[idx].Status = types.ChainExporting
	ds.Chains[idx+1].Status = types.ChainImporting
	pl.unlock()
	t.lg.Infof("merging %v of %s into %v", slots, path, dst.Slots)

	if err := t.storage.ExportSlots(ctx, src.Head()); err != nil {
		if _, ok := t.find(n); !ok {
			return errors.Wrapf(types.ErrStaleOperation, "%s vanished during merge", path)
		}
		return errors.Wrapf(err, "export %v of %s", slots, path)
	}

	pl, cur, err := t.relock(n)
	if err != nil {
		return errors.Wrapf(types.ErrStaleOperation, "%s vanished during merge", path)
	}
	defer pl.unlock()
	path = cur
	ds = &n.dstatus
	si, di := ds.FindChain(src), ds.FindChain(dst)
	if si < 0 || di < 0 {
		return errors.Wrapf(types.ErrStaleOperation, "chains of %s changed during merge", path)
	}
	merged := types.SlotRange{Begin: ds.Chains[si].Slots.Begin, End: ds.Chains[di].Slots.End}
	for _, b := range ds.Chains[di].Blocks {
		if err := t.storage.SetRegular(ctx, b, merged); err != nil {
			return errors.Wrapf(err, "set regular %v", b)
		}
	}
	ds.Chains[di].Slots = merged
	ds.Chains[di].Status = types.ChainStable
	released := ds.Chains[si].Blocks
	ds.Chains = append(ds.Chains[:si], ds.Chains[si+1:]...)
	t.releaseBlocks(ctx, released)
	t.metrics.rebalances.WithLabelValues("merge").Inc()
	t.lg.Infof("merged %v of %s, chain now serves %v", slots, path, merged)
	return nil
}

// Flush writes every chain of path to its backing path and releases the
// blocks. The slot layout is kept so Load can restore it.
func (t *DirectoryTree) Flush(ctx context.Context, path string) error {
	path = common.CleanPath(path)
	pl, err := t.lockFile(path, true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	return t.flushLocked(ctx, path, &pl.node().dstatus)
}

func (t *DirectoryTree) flushLocked(ctx context.Context, path string, ds *types.DataStatus) error {
	if ds.Mode == types.OnDisk {
		return nil
	}
	if ds.Prefix == "" {
		return errors.Wrapf(types.ErrInvalidArgument, "%s has no persistent prefix", path)
	}
	prev := ds.Mode
	ds.Mode = types.Flushing
	for _, c := range ds.Chains {
		if c.Status != types.ChainStable {
			ds.Mode = prev
			return errors.Wrapf(types.ErrStaleOperation, "chain %v is %v", c.Names(), c.Status)
		}
	}
	for _, c := range ds.Chains {
		backing := persistent.BackingPath(ds.Prefix, path, c.Slots)
		if err := t.storage.Flush(ctx, c.Tail(), backing); err != nil {
			ds.Mode = prev
			return errors.Wrapf(err, "flush %v to %s", c.Slots, backing)
		}
	}
	for i := range ds.Chains {
		t.releaseBlocks(ctx, ds.Chains[i].Blocks)
		ds.Chains[i].Blocks = nil
	}
	ds.Mode = types.OnDisk
	t.lg.Infof("flushed %s to %s", path, ds.Prefix)
	return nil
}

// Load brings a flushed file back into fresh chains.
func (t *DirectoryTree) Load(ctx context.Context, path string) (types.DataStatus, error) {
	path = common.CleanPath(path)
	pl, err := t.lockFile(path, true)
	if err != nil {
		return types.DataStatus{}, err
	}
	defer pl.unlock()
	n := pl.node()
	ds := &n.dstatus
	if ds.Mode != types.OnDisk {
		return ds.Clone(), nil
	}
	autoScale := !ds.IsStaticProvisioned()
	loaded := make([]types.ReplicaChain, 0, len(ds.Chains))
	release := func() {
		for _, c := range loaded {
			t.releaseBlocks(ctx, c.Blocks)
		}
	}
	for _, c := range ds.Chains {
		chain, err := t.newChain(ctx, path, c.Slots, ds.ChainLength, autoScale)
		if err != nil {
			release()
			return types.DataStatus{}, err
		}
		loaded = append(loaded, chain)
		backing := persistent.BackingPath(ds.Prefix, path, c.Slots)
		// loads bypass the chain, so every replica reads the backing file
		for _, b := range chain.Blocks {
			if err := t.storage.Load(ctx, b, backing); err != nil {
				release()
				return types.DataStatus{}, errors.Wrapf(err, "load %v from %s", c.Slots, backing)
			}
		}
	}
	ds.Chains = loaded
	ds.Mode = types.InMemory
	n.lastWrite.Store(common.NowMs())
	t.lg.Infof("loaded %s from %s", path, ds.Prefix)
	return ds.Clone(), nil
}

// HandleLeaseExpiry releases the storage of path, or of every file below it.
// Pinned files are kept. Mapped files are flushed first and stay in the tree
// on disk; all others are removed. A directory is removed once it is empty.
func (t *DirectoryTree) HandleLeaseExpiry(ctx context.Context, path string) error {
	return t.expirePath(ctx, path, -1)
}

// expirePath expires path when it has not been written for minAge
// milliseconds. A negative minAge expires it unconditionally.
func (t *DirectoryTree) expirePath(ctx context.Context, path string, minAge int64) error {
	parent, name := common.PartionPath(path)
	if name == "" {
		return errors.Wrap(types.ErrInvalidArgument, "expire /")
	}
	pl, err := t.lockDir(parent, true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	dir := pl.node()
	child, ok := dir.children[name]
	if !ok {
		return errors.Wrapf(types.ErrPathNotFound, "%s", path)
	}
	if minAge >= 0 && common.NowMs()-child.lastWrite.Load() < minAge {
		return nil
	}
	if t.expire(ctx, common.CleanPath(path), child) {
		delete(dir.children, name)
	}
	return nil
}

// expire reports whether n may be dropped from its parent.
func (t *DirectoryTree) expire(ctx context.Context, path string, n *node) bool {
	if n.isDir {
		cleared := true
		for name, child := range n.children {
			if t.expire(ctx, path+"/"+name, child) {
				delete(n.children, name)
			} else {
				cleared = false
			}
		}
		return cleared
	}
	ds := &n.dstatus
	switch {
	case ds.IsPinned():
		return false
	case ds.IsMapped():
		if err := t.flushLocked(ctx, path, ds); err != nil {
			t.lg.Warnf("flush expired %s failed %v", path, err)
		}
		return false
	}
	for _, c := range ds.Chains {
		t.releaseBlocks(ctx, c.Blocks)
	}
	ds.Chains = nil
	t.metrics.expired.Inc()
	t.lg.Infof("lease of %s expired", path)
	return true
}

// leaseScan walks the tree and returns the paths whose lease and grace
// period ran out, and the files that just entered their grace period.
func (t *DirectoryTree) leaseScan(now time.Time, lease, grace time.Duration) (expired, graced []string) {
	nowMs := now.UnixMilli()
	leaseMs, graceMs := lease.Milliseconds(), grace.Milliseconds()
	var walk func(dir *node, prefix string)
	walk = func(dir *node, prefix string) {
		for _, name := range dir.sortedChildren() {
			child := dir.children[name]
			path := prefix + "/" + name
			child.RLock()
			age := nowMs - child.lastWrite.Load()
			switch {
			case age >= leaseMs+graceMs:
				if child.isDir || !child.dstatus.IsPinned() {
					expired = append(expired, path)
				}
			case child.isDir:
				walk(child, path)
			case age >= leaseMs && !child.dstatus.IsPinned() && child.dstatus.Mode == types.InMemory:
				graced = append(graced, path)
			}
			child.RUnlock()
		}
	}
	t.root.RLock()
	walk(t.root, "")
	t.root.RUnlock()
	return expired, graced
}

// enterGrace marks an in-memory file as running on borrowed time, unless it
// was touched since the scan.
func (t *DirectoryTree) enterGrace(path string, lease time.Duration) {
	pl, err := t.lockFile(path, true)
	if err != nil {
		return
	}
	defer pl.unlock()
	n := pl.node()
	if n.dstatus.Mode == types.InMemory && common.NowMs()-n.lastWrite.Load() >= lease.Milliseconds() {
		n.dstatus.Mode = types.InMemoryGrace
		t.lg.Debugf("%s entered its grace period", path)
	}
}
