package directory

import (
	"context"

	"ekv/types"
)

// StorageOps is how the directory manages blocks on storage servers.
type StorageOps interface {
	Setup(ctx context.Context, block types.BlockID, path string, slots types.SlotRange,
		chain []types.BlockID, autoScale bool, role types.ChainRole, next string) error
	SetExporting(ctx context.Context, block types.BlockID, target []types.BlockID, slots types.SlotRange) error
	SetImporting(ctx context.Context, block types.BlockID, slots types.SlotRange) error
	SetRegular(ctx context.Context, block types.BlockID, slots types.SlotRange) error
	ExportSlots(ctx context.Context, block types.BlockID) error
	Flush(ctx context.Context, block types.BlockID, backingPath string) error
	Load(ctx context.Context, block types.BlockID, backingPath string) error
	Reset(ctx context.Context, block types.BlockID) error
	StorageCapacity(ctx context.Context, block types.BlockID) (int64, error)
	SplitThreshold(ctx context.Context, block types.BlockID) (float64, error)
	StorageSize(ctx context.Context, block types.BlockID) (int64, error)
	ResendPending(ctx context.Context, block types.BlockID) error
	ForwardAll(ctx context.Context, block types.BlockID) error
	Path(ctx context.Context, block types.BlockID) (string, error)
	SetPath(ctx context.Context, block types.BlockID, path string) error
	SlotRange(ctx context.Context, block types.BlockID) (types.SlotRange, error)
	Ping(ctx context.Context, block types.BlockID) error
}

// setupChain places every block of chain, tail first so each successor exists before it is linked.
func setupChain(ctx context.Context, ops StorageOps, path string, chain types.ReplicaChain, autoScale bool) error {
	n := chain.Len()
	for i := n - 1; i >= 0; i-- {
		next := types.NilBlock
		if i < n-1 {
			next = chain.Blocks[i+1].String()
		}
		if err := ops.Setup(ctx, chain.Blocks[i], path, chain.Slots, chain.Blocks, autoScale, types.RoleAt(i, n), next); err != nil {
			return err
		}
	}
	return nil
}

func resetBlocks(ctx context.Context, ops StorageOps, blocks []types.BlockID) error {
	var first error
	for _, b := range blocks {
		if err := ops.Reset(ctx, b); err != nil && first == nil {
			first = err
		}
	}
	return first
}
