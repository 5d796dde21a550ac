package client

import (
	"context"

	"ekv/types"
)

// StorageClient drives blocks through the management endpoint of their servers.
// It makes a single attempt per call: the directory decides what a failure means.
type StorageClient struct {
	cfg ClientCfg
}

func NewStorageClient(opts ...Option) *StorageClient {
	c := &StorageClient{}
	c.cfg.Init(opts...)
	return c
}

func (c *StorageClient) manage(ctx context.Context, block types.BlockID, method string, arg, reply any) error {
	return call(ctx, c.cfg.timeout, block.ManagementAddr(), "Management."+method, arg, reply)
}

func (c *StorageClient) Ping(ctx context.Context, block types.BlockID) error {
	return c.manage(ctx, block, "RPCPing", &types.BlockArg{Block: block.ID}, &types.Ack{})
}

// Blocks lists every block hosted by the server of block.
func (c *StorageClient) Blocks(ctx context.Context, block types.BlockID) ([]types.BlockID, error) {
	var reply types.BlocksReply
	err := c.manage(ctx, block, "RPCBlocks", &types.Ack{}, &reply)
	return reply.Blocks, err
}

func (c *StorageClient) Setup(ctx context.Context, block types.BlockID, path string, slots types.SlotRange,
	chain []types.BlockID, autoScale bool, role types.ChainRole, next string) error {
	return c.manage(ctx, block, "RPCSetup", &types.SetupArg{
		Block:     block.ID,
		Path:      path,
		Slots:     slots,
		Chain:     chain,
		AutoScale: autoScale,
		Role:      role,
		Next:      next,
	}, &types.Ack{})
}

func (c *StorageClient) SetExporting(ctx context.Context, block types.BlockID, target []types.BlockID, slots types.SlotRange) error {
	return c.manage(ctx, block, "RPCSetExporting", &types.SetExportingArg{
		Block:  block.ID,
		Target: target,
		Slots:  slots,
	}, &types.Ack{})
}

func (c *StorageClient) SetImporting(ctx context.Context, block types.BlockID, slots types.SlotRange) error {
	return c.manage(ctx, block, "RPCSetImporting", &types.SlotsArg{Block: block.ID, Slots: slots}, &types.Ack{})
}

func (c *StorageClient) SetRegular(ctx context.Context, block types.BlockID, slots types.SlotRange) error {
	return c.manage(ctx, block, "RPCSetRegular", &types.SlotsArg{Block: block.ID, Slots: slots}, &types.Ack{})
}

// ExportSlots moves every key of the export range; it runs without the call timeout.
func (c *StorageClient) ExportSlots(ctx context.Context, block types.BlockID) error {
	return call(ctx, 0, block.ManagementAddr(), "Management.RPCExportSlots", &types.BlockArg{Block: block.ID}, &types.Ack{})
}

func (c *StorageClient) Flush(ctx context.Context, block types.BlockID, backingPath string) error {
	return c.manage(ctx, block, "RPCFlush", &types.PersistArg{Block: block.ID, BackingPath: backingPath}, &types.Ack{})
}

func (c *StorageClient) Load(ctx context.Context, block types.BlockID, backingPath string) error {
	return c.manage(ctx, block, "RPCLoad", &types.PersistArg{Block: block.ID, BackingPath: backingPath}, &types.Ack{})
}

func (c *StorageClient) Reset(ctx context.Context, block types.BlockID) error {
	return c.manage(ctx, block, "RPCReset", &types.BlockArg{Block: block.ID}, &types.Ack{})
}

func (c *StorageClient) StorageCapacity(ctx context.Context, block types.BlockID) (int64, error) {
	var reply types.SizeReply
	err := c.manage(ctx, block, "RPCStorageCapacity", &types.BlockArg{Block: block.ID}, &reply)
	return reply.Bytes, err
}

func (c *StorageClient) SplitThreshold(ctx context.Context, block types.BlockID) (float64, error) {
	var reply types.ThresholdReply
	err := c.manage(ctx, block, "RPCSplitThreshold", &types.BlockArg{Block: block.ID}, &reply)
	return reply.Threshold, err
}

func (c *StorageClient) StorageSize(ctx context.Context, block types.BlockID) (int64, error) {
	var reply types.SizeReply
	err := c.manage(ctx, block, "RPCStorageSize", &types.BlockArg{Block: block.ID}, &reply)
	return reply.Bytes, err
}

func (c *StorageClient) ResendPending(ctx context.Context, block types.BlockID) error {
	return c.manage(ctx, block, "RPCResendPending", &types.BlockArg{Block: block.ID}, &types.Ack{})
}

func (c *StorageClient) ForwardAll(ctx context.Context, block types.BlockID) error {
	return call(ctx, 0, block.ManagementAddr(), "Management.RPCForwardAll", &types.BlockArg{Block: block.ID}, &types.Ack{})
}

func (c *StorageClient) Path(ctx context.Context, block types.BlockID) (string, error) {
	var reply types.PathReply
	err := c.manage(ctx, block, "RPCPath", &types.BlockArg{Block: block.ID}, &reply)
	return reply.Path, err
}

func (c *StorageClient) SetPath(ctx context.Context, block types.BlockID, path string) error {
	return c.manage(ctx, block, "RPCSetPath", &types.SetPathArg{Block: block.ID, Path: path}, &types.Ack{})
}

func (c *StorageClient) SlotRange(ctx context.Context, block types.BlockID) (types.SlotRange, error) {
	var reply types.SlotRangeReply
	err := c.manage(ctx, block, "RPCSlotRange", &types.BlockArg{Block: block.ID}, &reply)
	return reply.Slots, err
}
