package client

import (
	"context"
	"net"
	"testing"
	"time"

	"ekv/internal/directory"
	"ekv/internal/storage"
	"ekv/types"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

type testCluster struct {
	dir     *directory.DirectoryServer
	client  *DirectoryClient
	servers []*storage.StorageServer
}

// newTestCluster starts a directory and storage servers talking over loopback rpc.
func newTestCluster(t *testing.T, servers, blocks int, capacity int64) *testCluster {
	d := directory.NewDirectoryServer(directory.ServerConfig{
		Host:        "127.0.0.1",
		ServicePort: freePort(t),
		LeasePort:   freePort(t),
		LeasePeriod: time.Hour,
	}, NewStorageClient())
	require.NoError(t, d.Serve())
	t.Cleanup(d.Stop)

	tc := &testCluster{
		dir:    d,
		client: NewDirectoryClient(d.ServiceAddr(), d.LeaseAddr()),
	}
	for i := 0; i < servers; i++ {
		s := storage.NewStorageServer(storage.ServerConfig{
			Host:             "127.0.0.1",
			ServicePort:      freePort(t),
			ManagementPort:   freePort(t),
			NotificationPort: freePort(t),
			ChainPort:        freePort(t),
			NumBlocks:        blocks,
			Capacity:         capacity,
			Directory:        d.ServiceAddr(),
		}, nil)
		s.SetRebalancer(tc.client)
		require.NoError(t, s.Serve())
		t.Cleanup(s.Stop)
		tc.servers = append(tc.servers, s)
	}

	total := servers * blocks
	require.Eventually(t, func() bool {
		st, err := tc.client.AllocatorStats(context.Background())
		return err == nil && st.Total == total
	}, 10*time.Second, 20*time.Millisecond, "storage servers never registered")
	return tc
}

// server finds the storage server hosting block.
func (tc *testCluster) server(block types.BlockID) *storage.StorageServer {
	for _, s := range tc.servers {
		if s.Name() == block.Server() {
			return s
		}
	}
	return nil
}
