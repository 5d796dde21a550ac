package directory

import (
	"context"

	"ekv/types"
)

type directoryService struct {
	t *DirectoryTree
}

func (s *directoryService) RPCCreateDirectory(ctx context.Context, args *types.PathArg, reply *types.Ack) error {
	return s.t.CreateDirectory(args.Path)
}

func (s *directoryService) RPCCreateDirectories(ctx context.Context, args *types.PathArg, reply *types.Ack) error {
	return s.t.CreateDirectories(args.Path)
}

func (s *directoryService) RPCCreate(ctx context.Context, args *types.CreateArg, reply *types.DataStatusReply) (err error) {
	reply.Status, err = s.t.Create(ctx, args.Path, args.Prefix, args.NumBlocks, args.ChainLength, args.Flags)
	return
}

func (s *directoryService) RPCOpenOrCreate(ctx context.Context, args *types.CreateArg, reply *types.DataStatusReply) (err error) {
	reply.Status, err = s.t.OpenOrCreate(ctx, args.Path, args.Prefix, args.NumBlocks, args.ChainLength, args.Flags)
	return
}

func (s *directoryService) RPCOpen(ctx context.Context, args *types.PathArg, reply *types.DataStatusReply) (err error) {
	reply.Status, err = s.t.Open(args.Path)
	return
}

func (s *directoryService) RPCDStatus(ctx context.Context, args *types.PathArg, reply *types.DataStatusReply) (err error) {
	reply.Status, err = s.t.DStatus(args.Path)
	return
}

func (s *directoryService) RPCExists(ctx context.Context, args *types.PathArg, reply *types.BoolReply) error {
	reply.Value = s.t.Exists(args.Path)
	return nil
}

func (s *directoryService) RPCRemove(ctx context.Context, args *types.PathArg, reply *types.Ack) error {
	return s.t.Remove(ctx, args.Path)
}

func (s *directoryService) RPCRemoveAll(ctx context.Context, args *types.PathArg, reply *types.Ack) error {
	return s.t.RemoveAll(ctx, args.Path)
}

func (s *directoryService) RPCRename(ctx context.Context, args *types.RenameArg, reply *types.Ack) error {
	return s.t.Rename(ctx, args.Old, args.New)
}

func (s *directoryService) RPCStatus(ctx context.Context, args *types.PathArg, reply *types.FileStatusReply) (err error) {
	reply.Status, err = s.t.Status(args.Path)
	return
}

func (s *directoryService) RPCDirectoryEntries(ctx context.Context, args *types.PathArg, reply *types.EntriesReply) (err error) {
	reply.Entries, err = s.t.DirectoryEntries(args.Path)
	return
}

func (s *directoryService) RPCRecursiveDirectoryEntries(ctx context.Context, args *types.PathArg, reply *types.EntriesReply) (err error) {
	reply.Entries, err = s.t.RecursiveDirectoryEntries(args.Path)
	return
}

func (s *directoryService) RPCPermissions(ctx context.Context, args *types.PathArg, reply *types.PermsReply) (err error) {
	reply.Perms, err = s.t.Permissions(args.Path)
	return
}

func (s *directoryService) RPCSetPermissions(ctx context.Context, args *types.SetPermsArg, reply *types.Ack) error {
	return s.t.SetPermissions(args.Path, args.Perms, args.Opts)
}

func (s *directoryService) RPCLastWriteTime(ctx context.Context, args *types.PathArg, reply *types.TimeReply) (err error) {
	reply.Ms, err = s.t.LastWriteTime(args.Path)
	return
}

func (s *directoryService) RPCIsRegularFile(ctx context.Context, args *types.PathArg, reply *types.BoolReply) (err error) {
	reply.Value, err = s.t.IsRegularFile(args.Path)
	return
}

func (s *directoryService) RPCIsDirectory(ctx context.Context, args *types.PathArg, reply *types.BoolReply) (err error) {
	reply.Value, err = s.t.IsDirectory(args.Path)
	return
}

func (s *directoryService) RPCTouch(ctx context.Context, args *types.PathArg, reply *types.Ack) error {
	return s.t.Touch(args.Path)
}

func (s *directoryService) RPCResolveFailures(ctx context.Context, args *types.ChainArg, reply *types.ChainReply) (err error) {
	reply.Chain, err = s.t.ResolveFailures(ctx, args.Path, args.Chain)
	return
}

func (s *directoryService) RPCAddReplicaToChain(ctx context.Context, args *types.ChainArg, reply *types.ChainReply) (err error) {
	reply.Chain, err = s.t.AddReplicaToChain(ctx, args.Path, args.Chain)
	return
}

func (s *directoryService) RPCAddBlockToFile(ctx context.Context, args *types.PathArg, reply *types.ChainReply) (err error) {
	reply.Chain, err = s.t.AddBlockToFile(ctx, args.Path)
	return
}

// split and merge requests come from overloaded or underloaded blocks
func (s *directoryService) RPCSplitSlotRange(ctx context.Context, args *types.SlotsPathArg, reply *types.Ack) error {
	return s.t.SplitSlotRange(ctx, args.Path, args.Slots)
}

func (s *directoryService) RPCMergeSlotRange(ctx context.Context, args *types.SlotsPathArg, reply *types.Ack) error {
	return s.t.MergeSlotRange(ctx, args.Path, args.Slots)
}

func (s *directoryService) RPCFlush(ctx context.Context, args *types.PathArg, reply *types.Ack) error {
	return s.t.Flush(ctx, args.Path)
}

func (s *directoryService) RPCLoad(ctx context.Context, args *types.PathArg, reply *types.DataStatusReply) (err error) {
	reply.Status, err = s.t.Load(ctx, args.Path)
	return
}

func (s *directoryService) RPCHandleLeaseExpiry(ctx context.Context, args *types.PathArg, reply *types.Ack) error {
	return s.t.HandleLeaseExpiry(ctx, args.Path)
}

func (s *directoryService) RPCAddBlocks(ctx context.Context, args *types.BlocksArg, reply *types.Ack) error {
	s.t.AddBlocks(args.Blocks)
	reply.Ok = true
	return nil
}

func (s *directoryService) RPCRemoveBlocks(ctx context.Context, args *types.BlocksArg, reply *types.Ack) error {
	return s.t.RemoveBlocks(args.Blocks)
}

func (s *directoryService) RPCAllocatorStats(ctx context.Context, args *types.Ack, reply *types.AllocatorStatsReply) error {
	a := s.t.Allocator()
	reply.Free, reply.Allocated, reply.Total = a.NumFree(), a.NumAllocated(), a.NumTotal()
	return nil
}

type leaseService struct {
	t *DirectoryTree
	w *LeaseExpiryWorker
}

func (s *leaseService) RPCUpdateLeases(ctx context.Context, args *types.UpdateLeasesArg, reply *types.UpdateLeasesReply) error {
	*reply = s.t.UpdateLeases(ctx, args)
	return nil
}

func (s *leaseService) RPCLeasePeriod(ctx context.Context, args *types.Ack, reply *types.LeasePeriodReply) error {
	reply.Ms = s.w.LeasePeriod().Milliseconds()
	return nil
}
