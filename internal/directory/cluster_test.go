package directory

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"ekv/internal/storage"
	"ekv/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newClusterTree wires a tree to in-process storage servers.
func newClusterTree(t *testing.T, servers, blocks int) (*DirectoryTree, *storage.LocalCluster) {
	c := newLocalCluster(t, servers, blocks)
	alloc := NewBlockAllocator()
	tree := NewDirectoryTree(alloc, c, nil)
	tree.AddBlocks(c.Blocks())
	return tree, c
}

func newLocalCluster(t *testing.T, servers, blocks int) *storage.LocalCluster {
	c := storage.NewLocalCluster()
	for i := 0; i < servers; i++ {
		id := testBlockID(i, 0)
		c.AddServer(storage.ServerConfig{
			Host:             id.Host,
			ServicePort:      id.ServicePort,
			ManagementPort:   id.ManagementPort,
			NotificationPort: id.NotificationPort,
			ChainPort:        id.ChainPort,
			NumBlocks:        blocks,
			Capacity:         64 << 20,
		})
	}
	t.Cleanup(c.Stop)
	return c
}

func putKeys(t *testing.T, c *storage.LocalCluster, ds types.DataStatus, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		k := "key" + strconv.Itoa(i)
		chain := ds.Chains[ds.ChainForSlot(storage.HashSlot(k))]
		res, err := c.Request(ctx, chain.Head(), types.OpPut, []string{k, "value" + strconv.Itoa(i)})
		require.NoError(t, err)
		require.Equal(t, []string{types.ResultOK}, res)
	}
}

// checkKeys reads every key from the tail of its owner, and checks that the
// other chains refuse it.
func checkKeys(t *testing.T, c *storage.LocalCluster, ds types.DataStatus, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		k := "key" + strconv.Itoa(i)
		owner := ds.ChainForSlot(storage.HashSlot(k))
		require.GreaterOrEqual(t, owner, 0)
		for j, chain := range ds.Chains {
			res, err := c.Request(ctx, chain.Tail(), types.OpGet, []string{k})
			require.NoError(t, err)
			if j == owner {
				require.Equal(t, []string{"value" + strconv.Itoa(i)}, res, "key %s", k)
			} else {
				require.Equal(t, []string{types.ResultBlockMoved}, res, "key %s", k)
			}
		}
	}
}

func TestExportCompleteness(t *testing.T) {
	tree, c := newClusterTree(t, 4, 2)
	ctx := context.Background()
	ds, err := tree.Create(ctx, "/kv", "", 1, 2, 0)
	require.NoError(t, err)
	putKeys(t, c, ds, 1000)

	added, err := tree.AddBlockToFile(ctx, "/kv")
	require.NoError(t, err)
	assert.Equal(t, 2, added.Len())

	ds, err = tree.DStatus("/kv")
	require.NoError(t, err)
	require.Len(t, ds.Chains, 2)
	assertPartition(t, ds)
	checkKeys(t, c, ds, 1000)

	// every block learned its final slot range
	for _, chain := range ds.Chains {
		head, err := c.SlotRange(ctx, chain.Head())
		require.NoError(t, err)
		assert.Equal(t, chain.Slots, head)
	}

	require.NoError(t, tree.MergeSlotRange(ctx, "/kv", ds.Chains[0].Slots))
	ds, err = tree.DStatus("/kv")
	require.NoError(t, err)
	require.Len(t, ds.Chains, 1)
	assert.Equal(t, types.FullSlotRange(), ds.Chains[0].Slots)
	checkKeys(t, c, ds, 1000)
	assert.Equal(t, 6, tree.Allocator().NumFree())
}

func TestClusterResolveFailures(t *testing.T) {
	tree, c := newClusterTree(t, 4, 1)
	ctx := context.Background()
	ds, err := tree.Create(ctx, "/kv", "", 1, 3, 0)
	require.NoError(t, err)
	putKeys(t, c, ds, 100)

	chain := ds.Chains[0]
	s, ok := c.Server(chain.Blocks[1].Server())
	require.True(t, ok)
	s.Stop()

	fixed, err := tree.ResolveFailures(ctx, "/kv", chain)
	require.NoError(t, err)
	require.Equal(t, 3, fixed.Len())
	assert.NotContains(t, fixed.Blocks, chain.Blocks[1])

	ds, err = tree.DStatus("/kv")
	require.NoError(t, err)
	checkKeys(t, c, ds, 100)

	// the chain accepts writes end to end again
	res, err := c.Request(ctx, fixed.Head(), types.OpPut, []string{"fresh", "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{types.ResultOK}, res)
	res, err = c.Request(ctx, fixed.Tail(), types.OpGet, []string{"fresh"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, res)
}

func TestClusterFlushLoad(t *testing.T) {
	tree, c := newClusterTree(t, 2, 2)
	ctx := context.Background()
	prefix := "local://" + filepath.ToSlash(t.TempDir())
	ds, err := tree.Create(ctx, "/persist/kv", prefix, 2, 2, 0)
	require.NoError(t, err)
	putKeys(t, c, ds, 200)

	require.NoError(t, tree.Flush(ctx, "/persist/kv"))
	assert.Equal(t, 4, tree.Allocator().NumFree())

	ds, err = tree.Load(ctx, "/persist/kv")
	require.NoError(t, err)
	assert.Equal(t, types.InMemory, ds.Mode)
	assertPartition(t, ds)
	checkKeys(t, c, ds, 200)
	total := 0
	for _, chain := range ds.Chains {
		res, err := c.Request(ctx, chain.Tail(), types.OpNumKeys, nil)
		require.NoError(t, err)
		n, err := strconv.Atoi(res[0])
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 200, total)
}

// exportHookOps runs hook once, right before the next slot export starts.
type exportHookOps struct {
	*storage.LocalCluster
	hook func()
}

func (o *exportHookOps) ExportSlots(ctx context.Context, block types.BlockID) error {
	if hook := o.hook; hook != nil {
		o.hook = nil
		hook()
	}
	return o.LocalCluster.ExportSlots(ctx, block)
}

func TestRenameDuringExport(t *testing.T) {
	c := newLocalCluster(t, 3, 2)
	ops := &exportHookOps{LocalCluster: c}
	tree := NewDirectoryTree(NewBlockAllocator(), ops, nil)
	tree.AddBlocks(c.Blocks())
	ctx := context.Background()

	ds, err := tree.Create(ctx, "/kv", "", 1, 1, 0)
	require.NoError(t, err)
	putKeys(t, c, ds, 200)
	require.NoError(t, tree.CreateDirectories("/moved"))

	ops.hook = func() {
		require.NoError(t, tree.Rename(ctx, "/kv", "/moved/kv"))
	}
	added, err := tree.AddBlockToFile(ctx, "/kv")
	require.NoError(t, err)
	assert.False(t, tree.Exists("/kv"))

	ds, err = tree.DStatus("/moved/kv")
	require.NoError(t, err)
	require.Len(t, ds.Chains, 2)
	assertPartition(t, ds)
	for _, chain := range ds.Chains {
		assert.Equal(t, types.ChainStable, chain.Status)
	}
	checkKeys(t, c, ds, 200)
	path, err := c.Path(ctx, added.Head())
	require.NoError(t, err)
	assert.Equal(t, "/moved/kv", path)

	ops.hook = func() {
		require.NoError(t, tree.Rename(ctx, "/moved/kv", "/kv2"))
	}
	require.NoError(t, tree.MergeSlotRange(ctx, "/moved/kv", ds.Chains[0].Slots))
	ds, err = tree.DStatus("/kv2")
	require.NoError(t, err)
	require.Len(t, ds.Chains, 1)
	assert.Equal(t, types.ChainStable, ds.Chains[0].Status)
	assert.Equal(t, types.FullSlotRange(), ds.Chains[0].Slots)
	checkKeys(t, c, ds, 200)
	assert.Equal(t, 5, tree.Allocator().NumFree())
}

func TestRemoveDuringExport(t *testing.T) {
	c := newLocalCluster(t, 3, 2)
	ops := &exportHookOps{LocalCluster: c}
	tree := NewDirectoryTree(NewBlockAllocator(), ops, nil)
	tree.AddBlocks(c.Blocks())
	ctx := context.Background()

	ds, err := tree.Create(ctx, "/kv", "", 1, 1, 0)
	require.NoError(t, err)
	putKeys(t, c, ds, 50)

	ops.hook = func() {
		require.NoError(t, tree.Remove(ctx, "/kv"))
	}
	_, err = tree.AddBlockToFile(ctx, "/kv")
	assert.True(t, errors.Is(err, types.ErrStaleOperation), "%v", err)
	// both the removed chain and the half built one went back to the pool
	assert.Equal(t, 6, tree.Allocator().NumFree())
}
