package storage

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"ekv/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlockID(server, id int) types.BlockID {
	base := 21000 + server*10
	return types.BlockID{
		Host:             "127.0.0.1",
		ServicePort:      base,
		ManagementPort:   base + 1,
		NotificationPort: base + 2,
		ChainPort:        base + 3,
		ID:               int32(id),
	}
}

func newFullBlock() *KVBlock {
	b := newKVBlock(testBlockID(0, 0), 1<<20, 0.95, 0.05, nil)
	b.setup("/f", types.FullSlotRange(), false)
	return b
}

// keyInRange returns a key whose slot lies in r.
func keyInRange(t *testing.T, r types.SlotRange, prefix string) string {
	for i := 0; i < 1<<20; i++ {
		k := prefix + strconv.Itoa(i)
		if r.Contains(HashSlot(k)) {
			return k
		}
	}
	t.Fatalf("no key in %v", r)
	return ""
}

func TestKVBlockOps(t *testing.T) {
	b := newFullBlock()

	res, err := b.RunCommand(types.OpPut, []string{"a", "1", "b", "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{types.ResultOK, types.ResultOK}, res)

	res, _ = b.RunCommand(types.OpPut, []string{"a", "3"})
	assert.Equal(t, []string{types.ResultDuplicateKey}, res)

	res, _ = b.RunCommand(types.OpGet, []string{"a", "b", "c"})
	assert.Equal(t, []string{"1", "2", types.ResultKeyNotFound}, res)

	res, _ = b.RunCommand(types.OpExists, []string{"a", "c"})
	assert.Equal(t, []string{types.ResultTrue, types.ResultKeyNotFound}, res)

	res, _ = b.RunCommand(types.OpUpdate, []string{"a", "10", "c", "1"})
	assert.Equal(t, []string{"1", types.ResultKeyNotFound}, res)
	assert.Equal(t, "10", b.Get("a"))

	res, _ = b.RunCommand(types.OpNumKeys, nil)
	assert.Equal(t, []string{"2"}, res)

	res, _ = b.RunCommand(types.OpKeys, nil)
	assert.ElementsMatch(t, []string{"a", "b"}, res)

	res, _ = b.RunCommand(types.OpRemove, []string{"b", "b"})
	assert.Equal(t, []string{"2", types.ResultKeyNotFound}, res)
	assert.Equal(t, 1, b.NumKeys())
}

func TestKVBlockArgs(t *testing.T) {
	b := newFullBlock()

	for _, c := range []struct {
		op   types.OpID
		args []string
	}{
		{types.OpGet, nil},
		{types.OpExists, nil},
		{types.OpRemove, nil},
		{types.OpPut, []string{"a"}},
		{types.OpUpdate, []string{"a", "1", "b"}},
		{types.OpNumKeys, []string{"a"}},
		{types.OpKeys, []string{"a"}},
	} {
		res, err := b.RunCommand(c.op, c.args)
		require.NoError(t, err)
		assert.Equal(t, []string{types.ResultArgsError}, res, c.op.String())
	}

	_, err := b.RunCommand(types.OpID(42), []string{"a"})
	assert.True(t, errors.Is(err, types.ErrUnknownOperation))
	assert.Equal(t, int64(0), b.StorageSize())
}

func TestKVBlockRouting(t *testing.T) {
	b := newKVBlock(testBlockID(0, 0), 1<<20, 0.95, 0.05, nil)
	own := types.SlotRange{Begin: 0, End: types.SlotMax / 2}
	imp := types.SlotRange{Begin: types.SlotMax / 2, End: types.SlotMax}
	b.setup("/f", own, false)

	mine := keyInRange(t, own, "mine")
	other := keyInRange(t, imp, "other")

	assert.Equal(t, types.ResultOK, b.Put(mine, "v"))
	assert.Equal(t, types.ResultBlockMoved, b.Put(other, "v"))
	assert.Equal(t, types.ResultBlockMoved, b.Get(other))

	// import ranges only admit redirected batches
	b.SetImporting(imp)
	assert.Equal(t, types.ResultBlockMoved, b.Put(other, "v"))
	res, err := b.RunCommand(types.OpPut, []string{other, "v", types.RedirectedMarker})
	require.NoError(t, err)
	assert.Equal(t, []string{types.ResultOK}, res)
	res, _ = b.RunCommand(types.OpGet, []string{other, types.RedirectedMarker})
	assert.Equal(t, []string{"v"}, res)

	b.SetRegular(types.FullSlotRange())
	assert.Equal(t, "v", b.Get(other))
	assert.Equal(t, types.BlockRegular, b.State())
}

func TestKVBlockExporting(t *testing.T) {
	b := newFullBlock()
	exp := types.SlotRange{Begin: types.SlotMax / 2, End: types.SlotMax}
	present := keyInRange(t, exp, "present")
	absent := keyInRange(t, exp, "absent")
	stay := keyInRange(t, types.SlotRange{Begin: 0, End: types.SlotMax / 2}, "stay")
	require.Equal(t, types.ResultOK, b.Put(present, "v"))

	target := []types.BlockID{testBlockID(1, 0), testBlockID(2, 0)}
	b.SetExporting(target, exp)
	moved := types.ExportingResult(target)

	assert.Equal(t, "v", b.Get(present))
	assert.Equal(t, moved, b.Get(absent))
	res, _ := b.RunCommand(types.OpExists, []string{present, absent})
	assert.Equal(t, []string{types.ResultTrue, moved}, res)

	assert.Equal(t, moved, b.Put(absent, "v"))
	assert.Equal(t, moved, b.Update(present, "w"))
	assert.Equal(t, moved, b.Remove(present))
	assert.Equal(t, types.ResultOK, b.Put(stay, "v"))

	// the exporter's own removes carry the marker
	res, _ = b.RunCommand(types.OpRemove, []string{present, types.RedirectedMarker})
	assert.Equal(t, []string{"v"}, res)

	gotTarget, gotSlots := b.ExportTarget()
	assert.Equal(t, target, gotTarget)
	assert.Equal(t, exp, gotSlots)
	parsed, ok := types.ParseExporting(moved)
	require.True(t, ok)
	assert.Equal(t, target, parsed)
}

func TestKVBlockByteCounter(t *testing.T) {
	b := newFullBlock()
	b.Put("key", "value")
	assert.Equal(t, int64(8), b.StorageSize())
	b.Update("key", "v")
	assert.Equal(t, int64(4), b.StorageSize())
	b.Put("key", "ignored")
	assert.Equal(t, int64(4), b.StorageSize())
	b.Remove("key")
	assert.Equal(t, int64(0), b.StorageSize())
	assert.Equal(t, int64(1<<20), b.StorageCapacity())
	assert.Equal(t, 0.95, b.SplitThreshold())
}

type fakeRebalancer struct {
	mu     sync.Mutex
	splits []types.SlotRange
	merges []types.SlotRange
	ch     chan string
	err    error
}

func newFakeRebalancer() *fakeRebalancer {
	return &fakeRebalancer{ch: make(chan string, 16)}
}

func (f *fakeRebalancer) SplitSlotRange(ctx context.Context, path string, slots types.SlotRange) error {
	f.mu.Lock()
	f.splits = append(f.splits, slots)
	f.mu.Unlock()
	f.ch <- "split " + path
	return f.err
}

func (f *fakeRebalancer) MergeSlotRange(ctx context.Context, path string, slots types.SlotRange) error {
	f.mu.Lock()
	f.merges = append(f.merges, slots)
	f.mu.Unlock()
	f.ch <- "merge " + path
	return f.err
}

func (f *fakeRebalancer) wait(t *testing.T) string {
	select {
	case ev := <-f.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("rebalancer not called")
	}
	return ""
}

func (f *fakeRebalancer) quiet(t *testing.T) {
	select {
	case ev := <-f.ch:
		t.Fatalf("unexpected rebalance %s", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOverloadSplits(t *testing.T) {
	m := NewChainModule(testBlockID(0, 0), 100, 0.5, 0.05, nil, nil, nil)
	defer m.Stop()
	require.NoError(t, m.Setup("/f", types.FullSlotRange(), []types.BlockID{m.ID()}, true, types.RoleSingleton, types.NilBlock))
	rb := newFakeRebalancer()
	m.SetRebalancer(rb)

	_, err := m.Request(context.Background(), types.OpPut, []string{"k1", "0123456789"})
	require.NoError(t, err)
	rb.quiet(t)

	_, err = m.Request(context.Background(), types.OpPut, []string{"k2", "0123456789012345678901234567890123456789"})
	require.NoError(t, err)
	assert.Equal(t, "split /f", rb.wait(t))

	// one split in flight at a time
	_, err = m.Request(context.Background(), types.OpPut, []string{"k3", "x"})
	require.NoError(t, err)
	rb.quiet(t)

	m.SetRegular(types.FullSlotRange())
	_, err = m.Request(context.Background(), types.OpPut, []string{"k4", "x"})
	require.NoError(t, err)
	assert.Equal(t, "split /f", rb.wait(t))
}

func TestStaticBlockNeverScales(t *testing.T) {
	m := NewChainModule(testBlockID(0, 0), 10, 0.5, 0.05, nil, nil, nil)
	defer m.Stop()
	require.NoError(t, m.Setup("/f", types.FullSlotRange(), nil, false, types.RoleSingleton, types.NilBlock))
	rb := newFakeRebalancer()
	m.SetRebalancer(rb)
	_, err := m.Request(context.Background(), types.OpPut, []string{"key", "a value over capacity"})
	require.NoError(t, err)
	rb.quiet(t)
}

func TestUnderloadMerges(t *testing.T) {
	m := NewChainModule(testBlockID(0, 0), 1000, 0.9, 0.5, nil, nil, nil)
	defer m.Stop()
	half := types.SlotRange{Begin: 0, End: types.SlotMax / 2}
	require.NoError(t, m.Setup("/f", half, nil, true, types.RoleSingleton, types.NilBlock))
	rb := newFakeRebalancer()
	m.SetRebalancer(rb)

	k := keyInRange(t, half, "k")
	_, err := m.Request(context.Background(), types.OpPut, []string{k, "v"})
	require.NoError(t, err)
	rb.quiet(t)
	_, err = m.Request(context.Background(), types.OpRemove, []string{k})
	require.NoError(t, err)
	assert.Equal(t, "merge /f", rb.wait(t))

	// the last range of a file never merges
	m2 := NewChainModule(testBlockID(0, 1), 1000, 0.9, 0.5, nil, nil, nil)
	defer m2.Stop()
	require.NoError(t, m2.Setup("/g", types.FullSlotRange(), nil, true, types.RoleSingleton, types.NilBlock))
	m2.SetRebalancer(rb)
	_, err = m2.Request(context.Background(), types.OpRemove, []string{"absent"})
	require.NoError(t, err)
	rb.quiet(t)
}

func TestFlushLoadReset(t *testing.T) {
	for _, scheme := range []string{"local://", "leveldb://"} {
		b := newFullBlock()
		for i := 0; i < 100; i++ {
			require.Equal(t, types.ResultOK, b.Put("key"+strconv.Itoa(i), "value"+strconv.Itoa(i)))
		}
		size := b.StorageSize()
		path := scheme + filepath.Join(t.TempDir(), "f", "0_65536")
		require.NoError(t, b.Flush(path))

		b.reset()
		assert.Equal(t, 0, b.NumKeys())
		assert.Equal(t, int64(0), b.StorageSize())
		assert.Equal(t, "", b.Path())
		assert.True(t, b.SlotRange().Empty())

		b.setup("/f", types.FullSlotRange(), false)
		require.NoError(t, b.Load(path))
		assert.Equal(t, 100, b.NumKeys())
		assert.Equal(t, size, b.StorageSize())
		assert.Equal(t, "value42", b.Get("key42"))
	}

	b := newFullBlock()
	assert.True(t, errors.Is(b.Load(filepath.Join(t.TempDir(), "missing")), types.ErrNotFound))
}

func TestCollect(t *testing.T) {
	b := newFullBlock()
	for i := 0; i < 500; i++ {
		b.Put("key"+strconv.Itoa(i), "v")
	}
	upper := types.SlotRange{Begin: types.SlotMax / 2, End: types.SlotMax}
	kvs := b.collect(upper, 10)
	assert.Len(t, kvs, 20)
	for i := 0; i < len(kvs); i += 2 {
		assert.True(t, upper.Contains(HashSlot(kvs[i])))
	}
	all := b.collect(types.FullSlotRange(), 1000)
	assert.Len(t, all, 1000)
}
