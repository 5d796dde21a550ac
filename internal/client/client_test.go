package client

import (
	"context"
	"testing"
	"time"

	"ekv/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryClientNamespace(t *testing.T) {
	tc := newTestCluster(t, 2, 2, 0)
	c := tc.client
	ctx := context.Background()

	require.NoError(t, c.CreateDirectories(ctx, "/sandbox/a/b"))
	ds, err := c.Create(ctx, "/sandbox/a/file", "", 2, 1, 0)
	require.NoError(t, err)
	assert.Len(t, ds.Chains, 2)
	assert.Equal(t, types.InMemory, ds.Mode)

	ok, err := c.Exists(ctx, "/sandbox/a/file")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.IsDirectory(ctx, "/sandbox/a/b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.IsRegularFile(ctx, "/sandbox/a/file")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := c.DirectoryEntries(ctx, "/sandbox/a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Name)
	assert.Equal(t, "file", entries[1].Name)

	_, err = c.Create(ctx, "/sandbox/a/file", "", 1, 1, 0)
	assert.True(t, errors.Is(err, types.ErrPathExists), "%v", err)
	err = c.Remove(ctx, "/sandbox/a")
	assert.True(t, errors.Is(err, types.ErrDirNotEmpty), "%v", err)
	_, err = c.Open(ctx, "/nothing")
	assert.True(t, errors.Is(err, types.ErrPathNotFound), "%v", err)

	require.NoError(t, c.SetPermissions(ctx, "/sandbox/a/file", types.PermOwnerRead, types.PermReplace))
	perms, err := c.Permissions(ctx, "/sandbox/a/file")
	require.NoError(t, err)
	assert.Equal(t, types.PermOwnerRead, perms)

	before, err := c.LastWriteTime(ctx, "/sandbox/a/file")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.Touch(ctx, "/sandbox/a/file"))
	after, err := c.LastWriteTime(ctx, "/sandbox/a/file")
	require.NoError(t, err)
	assert.True(t, after.After(before))

	require.NoError(t, c.Rename(ctx, "/sandbox/a/file", "/sandbox/a/b/moved"))
	st, err := c.Status(ctx, "/sandbox/a/b/moved")
	require.NoError(t, err)
	assert.Equal(t, types.TypeRegular, st.Type)

	all, err := c.RecursiveDirectoryEntries(ctx, "/sandbox")
	require.NoError(t, err)
	var names []string
	for _, e := range all {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"a", "a/b", "a/b/moved"}, names)

	stats, err := c.AllocatorStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Allocated)

	require.NoError(t, c.RemoveAll(ctx, "/sandbox"))
	stats, err = c.AllocatorStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Free)
}

func TestDirectoryClientRetriesDeadPeer(t *testing.T) {
	c := NewDirectoryClient(types.Addr("127.0.0.1:"+itoa(freePort(t))), "", WithRetry(2), WithCallTimeout(200*time.Millisecond))
	_, err := c.Exists(context.Background(), "/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRetryOverSeed), "%v", err)

	_, err = c.LeasePeriod(context.Background())
	assert.True(t, errors.Is(err, types.ErrDialHup), "%v", err)
}

func TestLeaseRenewalWorker(t *testing.T) {
	tc := newTestCluster(t, 2, 2, 0)
	ctx := context.Background()
	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := tc.client.Create(ctx, p, "local://"+t.TempDir(), 1, 1, 0)
		require.NoError(t, err)
	}

	period, err := tc.client.LeasePeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, period)

	w := NewLeaseRenewalWorker(tc.client, 20*time.Millisecond, nil)
	w.Add("/a", "b", "/c")
	w.QueueFlush("/b")
	w.QueueRemove("/c")
	assert.Equal(t, []string{"/a"}, w.Paths())

	reply, err := w.Renew(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.UpdateLeasesReply{Renewed: 1, Flushed: 1, Removed: 1}, reply)

	ds, err := tc.client.DStatus(ctx, "/b")
	require.NoError(t, err)
	assert.Equal(t, types.OnDisk, ds.Mode)
	ok, err := tc.client.Exists(ctx, "/c")
	require.NoError(t, err)
	assert.False(t, ok)

	// the loop keeps touching /a
	before, err := tc.client.LastWriteTime(ctx, "/a")
	require.NoError(t, err)
	w.Start()
	defer w.Stop()
	require.Eventually(t, func() bool {
		after, err := tc.client.LastWriteTime(ctx, "/a")
		return err == nil && after.After(before)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLeaseRenewalRequeuesOnFailure(t *testing.T) {
	dead := NewDirectoryClient("", types.Addr("127.0.0.1:"+itoa(freePort(t))), WithRetry(1), WithCallTimeout(200*time.Millisecond))
	w := NewLeaseRenewalWorker(dead, time.Second, nil)
	w.QueueRemove("/x")
	_, err := w.Renew(context.Background())
	require.Error(t, err)

	w.Lock()
	_, queued := w.remove["/x"]
	w.Unlock()
	assert.True(t, queued)
}
