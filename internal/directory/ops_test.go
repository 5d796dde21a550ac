package directory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"ekv/types"

	"github.com/pkg/errors"
)

// recordingOps stands in for the storage servers and logs every management call.
type recordingOps struct {
	mu       sync.Mutex
	commands []string
	dead     map[types.BlockID]bool
	sizes    map[types.BlockID]int64
	hi       float64
}

func newRecordingOps() *recordingOps {
	return &recordingOps{
		dead:  make(map[types.BlockID]bool),
		sizes: make(map[types.BlockID]int64),
		hi:    0.95,
	}
}

func (r *recordingOps) record(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, fmt.Sprintf(format, args...))
	return nil
}

func (r *recordingOps) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func (r *recordingOps) kill(b types.BlockID) {
	r.mu.Lock()
	r.dead[b] = true
	r.mu.Unlock()
}

func (r *recordingOps) Setup(ctx context.Context, block types.BlockID, path string, slots types.SlotRange,
	chain []types.BlockID, autoScale bool, role types.ChainRole, next string) error {
	return r.record("setup:%d:%s:%s:%v:%s", block.ID, path, slots, role, next)
}

func (r *recordingOps) SetExporting(ctx context.Context, block types.BlockID, target []types.BlockID, slots types.SlotRange) error {
	return r.record("set_exporting:%d:%s", block.ID, slots)
}

func (r *recordingOps) SetImporting(ctx context.Context, block types.BlockID, slots types.SlotRange) error {
	return r.record("set_importing:%d:%s", block.ID, slots)
}

func (r *recordingOps) SetRegular(ctx context.Context, block types.BlockID, slots types.SlotRange) error {
	return r.record("set_regular:%d:%s", block.ID, slots)
}

func (r *recordingOps) ExportSlots(ctx context.Context, block types.BlockID) error {
	return r.record("export_slots:%d", block.ID)
}

func (r *recordingOps) Flush(ctx context.Context, block types.BlockID, backingPath string) error {
	return r.record("flush:%d:%s", block.ID, backingPath)
}

func (r *recordingOps) Load(ctx context.Context, block types.BlockID, backingPath string) error {
	return r.record("load:%d:%s", block.ID, backingPath)
}

func (r *recordingOps) Reset(ctx context.Context, block types.BlockID) error {
	return r.record("reset:%d", block.ID)
}

func (r *recordingOps) StorageCapacity(ctx context.Context, block types.BlockID) (int64, error) {
	return 1 << 20, nil
}

func (r *recordingOps) SplitThreshold(ctx context.Context, block types.BlockID) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hi, nil
}

func (r *recordingOps) StorageSize(ctx context.Context, block types.BlockID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sizes[block], nil
}

func (r *recordingOps) ResendPending(ctx context.Context, block types.BlockID) error {
	return r.record("resend_pending:%d", block.ID)
}

func (r *recordingOps) ForwardAll(ctx context.Context, block types.BlockID) error {
	return r.record("forward_all:%d", block.ID)
}

func (r *recordingOps) Path(ctx context.Context, block types.BlockID) (string, error) {
	return "", nil
}

func (r *recordingOps) SetPath(ctx context.Context, block types.BlockID, path string) error {
	return r.record("set_path:%d:%s", block.ID, path)
}

func (r *recordingOps) SlotRange(ctx context.Context, block types.BlockID) (types.SlotRange, error) {
	return types.SlotRange{}, nil
}

func (r *recordingOps) Ping(ctx context.Context, block types.BlockID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead[block] {
		return errors.Wrapf(types.ErrDialHup, "block %v", block)
	}
	return nil
}

// newTestTree returns a tree over n single-block servers, block i living on server i.
func newTestTree(t *testing.T, n int) (*DirectoryTree, *recordingOps) {
	ops := newRecordingOps()
	alloc := NewBlockAllocator()
	for i := 0; i < n; i++ {
		alloc.AddBlocks([]types.BlockID{testBlockID(i, i)})
	}
	return NewDirectoryTree(alloc, ops, nil), ops
}

func itoa(id int32) string {
	return strconv.Itoa(int(id))
}
