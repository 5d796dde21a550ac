package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"ekv/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseExpiry(t *testing.T) {
	tree, ops := newTestTree(t, 4)
	ctx := context.Background()
	create := func(path string, flags int32) types.BlockID {
		ds, err := tree.Create(ctx, path, "local://tmp", 1, 1, flags)
		require.NoError(t, err)
		return ds.Chains[0].Head()
	}
	create("/sandbox/a/b/c/file.txt", 0)
	bFile := create("/sandbox/a/b/file.txt", 0)
	aFile := create("/sandbox/a/file.txt", 0)
	create("/sandbox/a/c/file.txt", types.FlagPinned)

	w := NewLeaseExpiryWorker(tree, 100*time.Millisecond, 100*time.Millisecond, nil)
	w.Start()
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, tree.Touch("/sandbox/a/b/c"))
	time.Sleep(150 * time.Millisecond)

	assert.True(t, tree.Exists("/sandbox/a/b/c/file.txt"))
	assert.False(t, tree.Exists("/sandbox/a/b/file.txt"))
	assert.False(t, tree.Exists("/sandbox/a/file.txt"))
	assert.True(t, tree.Exists("/sandbox/a/c/file.txt"))
	assert.GreaterOrEqual(t, w.NumEpochs(), int64(3))

	var setups, resets []string
	for _, c := range ops.Commands() {
		switch {
		case strings.HasPrefix(c, "setup:"):
			setups = append(setups, c)
		case strings.HasPrefix(c, "reset:"):
			resets = append(resets, c)
		}
	}
	assert.Len(t, setups, 4)
	assert.Equal(t, []string{"reset:" + itoa(bFile.ID), "reset:" + itoa(aFile.ID)}, resets)
	assert.Equal(t, 2, tree.Allocator().NumFree())
}

func TestLeaseGracePeriod(t *testing.T) {
	tree, _ := newTestTree(t, 2)
	ctx := context.Background()
	_, err := tree.Create(ctx, "/f", "local://tmp", 1, 1, 0)
	require.NoError(t, err)

	w := NewLeaseExpiryWorker(tree, 50*time.Millisecond, time.Hour, nil)
	time.Sleep(60 * time.Millisecond)
	w.RemoveExpiredLeases(ctx)
	ds, err := tree.DStatus("/f")
	require.NoError(t, err)
	assert.Equal(t, types.InMemoryGrace, ds.Mode)

	require.NoError(t, tree.Touch("/f"))
	ds, err = tree.DStatus("/f")
	require.NoError(t, err)
	assert.Equal(t, types.InMemory, ds.Mode)
}

func TestLeaseExpiryFlushesMappedFiles(t *testing.T) {
	tree, ops := newTestTree(t, 2)
	ctx := context.Background()
	ds, err := tree.Create(ctx, "/dir/mapped", "local://tmp", 1, 1, types.FlagMapped)
	require.NoError(t, err)

	require.NoError(t, tree.HandleLeaseExpiry(ctx, "/dir"))
	assert.True(t, tree.Exists("/dir/mapped"))
	after, err := tree.DStatus("/dir/mapped")
	require.NoError(t, err)
	assert.Equal(t, types.OnDisk, after.Mode)
	assert.Equal(t, 2, tree.Allocator().NumFree())

	id := itoa(ds.Chains[0].Head().ID)
	assert.Contains(t, ops.Commands(), "flush:"+id+":local://tmp/dir/mapped/0_65536")
	assert.Contains(t, ops.Commands(), "reset:"+id)
}

func TestUpdateLeases(t *testing.T) {
	tree, _ := newTestTree(t, 4)
	ctx := context.Background()
	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := tree.Create(ctx, p, "local://tmp", 1, 1, 0)
		require.NoError(t, err)
	}
	reply := tree.UpdateLeases(ctx, &types.UpdateLeasesArg{
		Renew:  []string{"/a", "/missing"},
		Flush:  []string{"/b"},
		Remove: []string{"/c", "/missing"},
	})
	assert.Equal(t, types.UpdateLeasesReply{Renewed: 1, Flushed: 1, Removed: 1}, reply)
	assert.False(t, tree.Exists("/c"))
	ds, err := tree.DStatus("/b")
	require.NoError(t, err)
	assert.Equal(t, types.OnDisk, ds.Mode)
	assert.Equal(t, 3, tree.Allocator().NumFree())
}
