package ekv

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"ekv/config"
	"ekv/internal/client"
	"ekv/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// testConfig is config.Default moved onto free loopback ports.
func testConfig(t *testing.T, servers int) *config.Configuration {
	cc := config.Default()
	cc.Log.Level = "warn"
	cc.Directory.ServicePort = freePort(t)
	cc.Directory.LeasePort = freePort(t)
	cc.Storage = cc.Storage[:0]
	for i := 0; i < servers; i++ {
		cc.Storage = append(cc.Storage, config.Storage{
			Uuid:             int64(i),
			Host:             "127.0.0.1",
			ServicePort:      freePort(t),
			ManagementPort:   freePort(t),
			NotificationPort: freePort(t),
			ChainPort:        freePort(t),
			NumBlocks:        2,
		})
	}
	require.NoError(t, cc.Validate())
	return cc
}

func exercise(t *testing.T, cc *config.Configuration) {
	ctx := context.Background()
	dc := client.NewDirectoryClient(types.Addr(cc.Directory.ServiceAddr()), types.Addr(cc.Directory.LeaseAddr()))
	require.Eventually(t, func() bool {
		st, err := dc.AllocatorStats(ctx)
		return err == nil && st.Total == 2*len(cc.Storage)
	}, 10*time.Second, 20*time.Millisecond)

	_, err := dc.Create(ctx, "/app/table", "", 2, 2, 0)
	require.NoError(t, err)
	kv, err := client.NewKVClient(ctx, dc, "/app/table")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, kv.Put(ctx, "k"+strconv.Itoa(i), strconv.Itoa(i)))
	}
	for i := 0; i < 100; i++ {
		v, err := kv.Get(ctx, "k"+strconv.Itoa(i))
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), v)
	}
	n, err := kv.NumKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestStandalone(t *testing.T) {
	cc := testConfig(t, 3)
	sa, err := NewStandalone(cc)
	require.NoError(t, err)
	defer sa.Stop()
	exercise(t, cc)
	assert.Equal(t, 2, sa.Directory.Tree().Allocator().NumFree())
}

func TestDistributed(t *testing.T) {
	cc := testConfig(t, 3)
	d, err := NewDirectory(cc)
	require.NoError(t, err)
	defer d.Stop()

	for i := 0; i < 2; i++ {
		s, err := NewStorageServer(cc, int64(i))
		require.NoError(t, err)
		defer s.Stop()
	}
	t.Setenv(UuidEnv, "2")
	s, err := NewStorageServer(cc, -1)
	require.NoError(t, err)
	defer s.Stop()

	exercise(t, cc)
}

func TestResolveUuid(t *testing.T) {
	id, err := ResolveUuid(4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)

	t.Setenv(UuidEnv, "x")
	_, err = ResolveUuid(-1)
	assert.Error(t, err)

	_, err = NewStorageServer(testConfig(t, 1), 9)
	assert.Error(t, err)
}
