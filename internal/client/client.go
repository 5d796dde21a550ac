package client

import (
	"context"
	"time"

	"ekv/internal/common"
	xrpc "ekv/internal/common/rpc"
	"ekv/types"

	"github.com/pkg/errors"
)

// DirectoryClient talks to the directory server: the namespace and file
// operations on its service port and lease renewal on its lease port.
type DirectoryClient struct {
	addr      types.Addr
	leaseAddr types.Addr
	cfg       ClientCfg
}

// NewDirectoryClient returns a client of the directory at addr. leaseAddr may
// be empty when leases are never renewed through this client.
func NewDirectoryClient(addr, leaseAddr types.Addr, opts ...Option) *DirectoryClient {
	c := &DirectoryClient{
		addr:      addr,
		leaseAddr: leaseAddr,
	}
	c.cfg.Init(opts...)
	return c
}

func (c *DirectoryClient) Addr() types.Addr {
	return c.addr
}

func (c *DirectoryClient) LeaseAddr() types.Addr {
	return c.leaseAddr
}

// retryable reports transport failures worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, types.ErrTimeOut) || errors.Is(err, types.ErrDialHup)
}

// call runs one attempt bounded by the configured timeout.
func call(ctx context.Context, timeout time.Duration, addr types.Addr, service string, arg, reply any) error {
	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return xrpc.CallContext(ctx, addr, service, arg, reply)
}

// do retries transport failures; every other error is the directory's answer.
func (c *DirectoryClient) do(ctx context.Context, addr types.Addr, service string, arg any, reply any) error {
	if addr == "" {
		return errors.Wrapf(types.ErrDialHup, "no endpoint for %v", service)
	}
	times := 0
	for {
		err := call(ctx, c.cfg.timeout, addr, service, arg, reply)
		if err == nil || !retryable(err) {
			return err
		}
		times++
		if times >= c.cfg.retry {
			return errors.Wrapf(types.ErrRetryOverSeed, "%v after %d attempts: %v", service, times, err)
		}
		c.cfg.trace.retry(times, err)
		c.cfg.lg.Debugf("<DirectoryClient> %v failed %v, retry %d", service, err, times)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(common.RedirectBackoff * time.Duration(times)):
		}
	}
}

func (c *DirectoryClient) CreateDirectory(ctx context.Context, path string) error {
	return c.do(ctx, c.addr, "Directory.RPCCreateDirectory", &types.PathArg{Path: path}, &types.Ack{})
}

func (c *DirectoryClient) CreateDirectories(ctx context.Context, path string) error {
	return c.do(ctx, c.addr, "Directory.RPCCreateDirectories", &types.PathArg{Path: path}, &types.Ack{})
}

// Create makes a file of numBlocks chains, each chainLength blocks long.
func (c *DirectoryClient) Create(ctx context.Context, path, prefix string, numBlocks, chainLength int, flags int32) (types.DataStatus, error) {
	var reply types.DataStatusReply
	err := c.do(ctx, c.addr, "Directory.RPCCreate", &types.CreateArg{
		Path:        path,
		Prefix:      prefix,
		NumBlocks:   numBlocks,
		ChainLength: chainLength,
		Flags:       flags,
	}, &reply)
	return reply.Status, err
}

func (c *DirectoryClient) OpenOrCreate(ctx context.Context, path, prefix string, numBlocks, chainLength int, flags int32) (types.DataStatus, error) {
	var reply types.DataStatusReply
	err := c.do(ctx, c.addr, "Directory.RPCOpenOrCreate", &types.CreateArg{
		Path:        path,
		Prefix:      prefix,
		NumBlocks:   numBlocks,
		ChainLength: chainLength,
		Flags:       flags,
	}, &reply)
	return reply.Status, err
}

func (c *DirectoryClient) Open(ctx context.Context, path string) (types.DataStatus, error) {
	var reply types.DataStatusReply
	err := c.do(ctx, c.addr, "Directory.RPCOpen", &types.PathArg{Path: path}, &reply)
	return reply.Status, err
}

func (c *DirectoryClient) DStatus(ctx context.Context, path string) (types.DataStatus, error) {
	var reply types.DataStatusReply
	err := c.do(ctx, c.addr, "Directory.RPCDStatus", &types.PathArg{Path: path}, &reply)
	return reply.Status, err
}

func (c *DirectoryClient) Exists(ctx context.Context, path string) (bool, error) {
	var reply types.BoolReply
	err := c.do(ctx, c.addr, "Directory.RPCExists", &types.PathArg{Path: path}, &reply)
	return reply.Value, err
}

func (c *DirectoryClient) Remove(ctx context.Context, path string) error {
	return c.do(ctx, c.addr, "Directory.RPCRemove", &types.PathArg{Path: path}, &types.Ack{})
}

func (c *DirectoryClient) RemoveAll(ctx context.Context, path string) error {
	return c.do(ctx, c.addr, "Directory.RPCRemoveAll", &types.PathArg{Path: path}, &types.Ack{})
}

func (c *DirectoryClient) Rename(ctx context.Context, oldPath, newPath string) error {
	return c.do(ctx, c.addr, "Directory.RPCRename", &types.RenameArg{Old: oldPath, New: newPath}, &types.Ack{})
}

func (c *DirectoryClient) Status(ctx context.Context, path string) (types.FileStatus, error) {
	var reply types.FileStatusReply
	err := c.do(ctx, c.addr, "Directory.RPCStatus", &types.PathArg{Path: path}, &reply)
	return reply.Status, err
}

func (c *DirectoryClient) DirectoryEntries(ctx context.Context, path string) ([]types.DirectoryEntry, error) {
	var reply types.EntriesReply
	err := c.do(ctx, c.addr, "Directory.RPCDirectoryEntries", &types.PathArg{Path: path}, &reply)
	return reply.Entries, err
}

func (c *DirectoryClient) RecursiveDirectoryEntries(ctx context.Context, path string) ([]types.DirectoryEntry, error) {
	var reply types.EntriesReply
	err := c.do(ctx, c.addr, "Directory.RPCRecursiveDirectoryEntries", &types.PathArg{Path: path}, &reply)
	return reply.Entries, err
}

func (c *DirectoryClient) Permissions(ctx context.Context, path string) (types.Perms, error) {
	var reply types.PermsReply
	err := c.do(ctx, c.addr, "Directory.RPCPermissions", &types.PathArg{Path: path}, &reply)
	return reply.Perms, err
}

func (c *DirectoryClient) SetPermissions(ctx context.Context, path string, perms types.Perms, opts types.PermOptions) error {
	return c.do(ctx, c.addr, "Directory.RPCSetPermissions", &types.SetPermsArg{
		Path:  path,
		Perms: perms,
		Opts:  opts,
	}, &types.Ack{})
}

func (c *DirectoryClient) LastWriteTime(ctx context.Context, path string) (time.Time, error) {
	var reply types.TimeReply
	if err := c.do(ctx, c.addr, "Directory.RPCLastWriteTime", &types.PathArg{Path: path}, &reply); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(reply.Ms), nil
}

func (c *DirectoryClient) IsRegularFile(ctx context.Context, path string) (bool, error) {
	var reply types.BoolReply
	err := c.do(ctx, c.addr, "Directory.RPCIsRegularFile", &types.PathArg{Path: path}, &reply)
	return reply.Value, err
}

func (c *DirectoryClient) IsDirectory(ctx context.Context, path string) (bool, error) {
	var reply types.BoolReply
	err := c.do(ctx, c.addr, "Directory.RPCIsDirectory", &types.PathArg{Path: path}, &reply)
	return reply.Value, err
}

func (c *DirectoryClient) Touch(ctx context.Context, path string) error {
	return c.do(ctx, c.addr, "Directory.RPCTouch", &types.PathArg{Path: path}, &types.Ack{})
}

// ResolveFailures asks the directory to repair chain, which the caller found broken.
func (c *DirectoryClient) ResolveFailures(ctx context.Context, path string, chain types.ReplicaChain) (types.ReplicaChain, error) {
	var reply types.ChainReply
	err := c.do(ctx, c.addr, "Directory.RPCResolveFailures", &types.ChainArg{Path: path, Chain: chain}, &reply)
	return reply.Chain, err
}

func (c *DirectoryClient) AddReplicaToChain(ctx context.Context, path string, chain types.ReplicaChain) (types.ReplicaChain, error) {
	var reply types.ChainReply
	err := c.do(ctx, c.addr, "Directory.RPCAddReplicaToChain", &types.ChainArg{Path: path, Chain: chain}, &reply)
	return reply.Chain, err
}

func (c *DirectoryClient) AddBlockToFile(ctx context.Context, path string) (types.ReplicaChain, error) {
	var reply types.ChainReply
	err := c.do(ctx, c.addr, "Directory.RPCAddBlockToFile", &types.PathArg{Path: path}, &reply)
	return reply.Chain, err
}

// SplitSlotRange also lets a storage server ask for a split when one of its blocks fills up.
func (c *DirectoryClient) SplitSlotRange(ctx context.Context, path string, slots types.SlotRange) error {
	return c.do(ctx, c.addr, "Directory.RPCSplitSlotRange", &types.SlotsPathArg{Path: path, Slots: slots}, &types.Ack{})
}

func (c *DirectoryClient) MergeSlotRange(ctx context.Context, path string, slots types.SlotRange) error {
	return c.do(ctx, c.addr, "Directory.RPCMergeSlotRange", &types.SlotsPathArg{Path: path, Slots: slots}, &types.Ack{})
}

func (c *DirectoryClient) Flush(ctx context.Context, path string) error {
	return c.do(ctx, c.addr, "Directory.RPCFlush", &types.PathArg{Path: path}, &types.Ack{})
}

func (c *DirectoryClient) Load(ctx context.Context, path string) (types.DataStatus, error) {
	var reply types.DataStatusReply
	err := c.do(ctx, c.addr, "Directory.RPCLoad", &types.PathArg{Path: path}, &reply)
	return reply.Status, err
}

func (c *DirectoryClient) HandleLeaseExpiry(ctx context.Context, path string) error {
	return c.do(ctx, c.addr, "Directory.RPCHandleLeaseExpiry", &types.PathArg{Path: path}, &types.Ack{})
}

func (c *DirectoryClient) AddBlocks(ctx context.Context, blocks []types.BlockID) error {
	return c.do(ctx, c.addr, "Directory.RPCAddBlocks", &types.BlocksArg{Blocks: blocks}, &types.Ack{})
}

func (c *DirectoryClient) RemoveBlocks(ctx context.Context, blocks []types.BlockID) error {
	return c.do(ctx, c.addr, "Directory.RPCRemoveBlocks", &types.BlocksArg{Blocks: blocks}, &types.Ack{})
}

func (c *DirectoryClient) AllocatorStats(ctx context.Context) (types.AllocatorStatsReply, error) {
	var reply types.AllocatorStatsReply
	err := c.do(ctx, c.addr, "Directory.RPCAllocatorStats", &types.Ack{}, &reply)
	return reply, err
}

// UpdateLeases renews, flushes and removes paths in one round trip.
func (c *DirectoryClient) UpdateLeases(ctx context.Context, arg *types.UpdateLeasesArg) (types.UpdateLeasesReply, error) {
	var reply types.UpdateLeasesReply
	err := c.do(ctx, c.leaseAddr, "Lease.RPCUpdateLeases", arg, &reply)
	return reply, err
}

func (c *DirectoryClient) LeasePeriod(ctx context.Context) (time.Duration, error) {
	var reply types.LeasePeriodReply
	if err := c.do(ctx, c.leaseAddr, "Lease.RPCLeasePeriod", &types.Ack{}, &reply); err != nil {
		return 0, err
	}
	return time.Duration(reply.Ms) * time.Millisecond, nil
}
