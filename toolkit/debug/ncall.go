package main

import (
	"context"
	"sync"
	"time"

	"ekv/config"
	"ekv/internal/client"
	"ekv/internal/common"
	"ekv/types"

	"github.com/pkg/errors"
)

const checkTimeout = 3 * time.Second

func state(err error) string {
	switch {
	case err == nil:
		return "Alive"
	case errors.Is(err, types.ErrTimeOut):
		return "Partition"
	case errors.Is(err, types.ErrDialHup):
		return "Down"
	}
	return "Unknown Error"
}

type directoryState struct {
	State string
	Stats types.AllocatorStatsReply
	Lease time.Duration
}

// -check d
func DirectoryState(d config.Directory) directoryState {
	dc := client.NewDirectoryClient(types.Addr(d.ServiceAddr()), types.Addr(d.LeaseAddr()),
		client.WithRetry(1), client.WithCallTimeout(checkTimeout))
	ctx := context.Background()

	var st directoryState
	stats, err := dc.AllocatorStats(ctx)
	if err != nil {
		st.State = state(err)
		return st
	}
	st.Stats = stats
	lease, err := dc.LeasePeriod(ctx)
	st.State = state(err)
	st.Lease = lease
	return st
}

type blockState struct {
	Block types.BlockID
	Path  string
	Slots types.SlotRange
	Size  int64
}

type storageState struct {
	State  string
	Blocks []blockState
}

// -check s
func StorageState(nodes []config.Storage) map[int64]*storageState {
	var (
		gm = make(map[int64]*storageState)
		wg = sync.WaitGroup{}
		mu sync.Mutex
		sc = client.NewStorageClient(client.WithCallTimeout(checkTimeout))
	)

	for _, v := range nodes {
		wg.Add(1)
		go func(n config.Storage) {
			defer wg.Done()
			st := inspect(sc, types.BlockID{
				Host:             n.Host,
				ServicePort:      n.ServicePort,
				ManagementPort:   n.ManagementPort,
				NotificationPort: n.NotificationPort,
				ChainPort:        n.ChainPort,
			})
			mu.Lock()
			defer mu.Unlock()
			gm[n.Uuid] = st
		}(v)
	}

	wg.Wait()
	return gm
}

func inspect(sc *client.StorageClient, server types.BlockID) *storageState {
	ctx := context.Background()
	blocks, err := sc.Blocks(ctx, server)
	if err != nil {
		return &storageState{State: state(err)}
	}
	st := &storageState{State: state(nil)}
	for _, b := range blocks {
		bs := blockState{Block: b}
		path, perr := sc.Path(ctx, b)
		slots, serr := sc.SlotRange(ctx, b)
		size, zerr := sc.StorageSize(ctx, b)
		if err := common.JoinErrors(perr, serr, zerr); err != nil {
			st.State = state(err)
		}
		bs.Path, bs.Slots, bs.Size = path, slots, size
		st.Blocks = append(st.Blocks, bs)
	}
	return st
}
