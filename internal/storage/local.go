package storage

import (
	"context"
	"sort"
	"sync"

	"ekv/types"

	"github.com/pkg/errors"
)

// LocalCluster runs storage servers inside one process. Blocks reach each
// other with plain method calls, and the cluster manages them the same way
// the rpc storage client does.
type LocalCluster struct {
	mu      sync.RWMutex
	servers map[string]*StorageServer
}

func NewLocalCluster() *LocalCluster {
	return &LocalCluster{servers: make(map[string]*StorageServer)}
}

// AddServer creates a server whose blocks link through the cluster. It does not listen.
func (c *LocalCluster) AddServer(cfg ServerConfig) *StorageServer {
	s := NewStorageServer(cfg, c)
	c.mu.Lock()
	c.servers[s.Name()] = s
	c.mu.Unlock()
	return s
}

func (c *LocalCluster) Servers() []*StorageServer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	servers := make([]*StorageServer, 0, len(c.servers))
	for _, s := range c.servers {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name() < servers[j].Name() })
	return servers
}

func (c *LocalCluster) Blocks() []types.BlockID {
	var ids []types.BlockID
	for _, s := range c.Servers() {
		ids = append(ids, s.BlockIDs()...)
	}
	return ids
}

func (c *LocalCluster) Server(name string) (*StorageServer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.servers[name]
	return s, ok
}

func (c *LocalCluster) SetRebalancer(rb Rebalancer) {
	for _, s := range c.Servers() {
		s.SetRebalancer(rb)
	}
}

// Stop shuts every server down.
func (c *LocalCluster) Stop() {
	for _, s := range c.Servers() {
		s.Stop()
	}
}

func (c *LocalCluster) block(id types.BlockID) (*ChainModule, error) {
	s, ok := c.Server(id.Server())
	if !ok {
		return nil, errors.Wrapf(types.ErrDialHup, "no server %v", id.Server())
	}
	return s.Block(id.ID)
}

func (c *LocalCluster) Link(id types.BlockID) (ChainLink, error) {
	if _, ok := c.Server(id.Server()); !ok {
		return nil, errors.Wrapf(types.ErrDialHup, "no server %v", id.Server())
	}
	return localLink{c: c, id: id}, nil
}

// localLink resolves its block on every call so a stopped server shows up as unreachable.
type localLink struct {
	c  *LocalCluster
	id types.BlockID
}

func (l localLink) ID() types.BlockID {
	return l.id
}

func (l localLink) ChainRequest(ctx context.Context, seq types.SequenceID, op types.OpID, args []string) error {
	b, err := l.c.block(l.id)
	if err != nil {
		return err
	}
	return b.ChainRequest(ctx, seq, op, args)
}

func (l localLink) ChainAck(ctx context.Context, seq types.SequenceID, results []string) error {
	b, err := l.c.block(l.id)
	if err != nil {
		return err
	}
	return b.ChainAck(ctx, seq, results)
}

func (l localLink) RunCommand(ctx context.Context, op types.OpID, args []string) ([]string, error) {
	b, err := l.c.block(l.id)
	if err != nil {
		return nil, err
	}
	return b.RunCommand(op, args)
}

func (l localLink) Submit(ctx context.Context, op types.OpID, args []string) ([]string, error) {
	b, err := l.c.block(l.id)
	if err != nil {
		return nil, err
	}
	return b.Request(ctx, op, args)
}

// Request runs a client operation on block.
func (c *LocalCluster) Request(ctx context.Context, block types.BlockID, op types.OpID, args []string) ([]string, error) {
	b, err := c.block(block)
	if err != nil {
		return nil, err
	}
	return b.Request(ctx, op, args)
}

func (c *LocalCluster) Ping(ctx context.Context, block types.BlockID) error {
	_, err := c.block(block)
	return err
}

func (c *LocalCluster) Setup(ctx context.Context, block types.BlockID, path string, slots types.SlotRange,
	chain []types.BlockID, autoScale bool, role types.ChainRole, next string) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	return b.Setup(path, slots, chain, autoScale, role, next)
}

func (c *LocalCluster) SetExporting(ctx context.Context, block types.BlockID, target []types.BlockID, slots types.SlotRange) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	b.SetExporting(target, slots)
	return nil
}

func (c *LocalCluster) SetImporting(ctx context.Context, block types.BlockID, slots types.SlotRange) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	b.SetImporting(slots)
	return nil
}

func (c *LocalCluster) SetRegular(ctx context.Context, block types.BlockID, slots types.SlotRange) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	b.SetRegular(slots)
	return nil
}

func (c *LocalCluster) ExportSlots(ctx context.Context, block types.BlockID) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	return b.ExportSlots(ctx)
}

func (c *LocalCluster) Flush(ctx context.Context, block types.BlockID, backingPath string) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	return b.Flush(backingPath)
}

func (c *LocalCluster) Load(ctx context.Context, block types.BlockID, backingPath string) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	return b.Load(backingPath)
}

func (c *LocalCluster) Reset(ctx context.Context, block types.BlockID) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	b.Reset()
	return nil
}

func (c *LocalCluster) StorageCapacity(ctx context.Context, block types.BlockID) (int64, error) {
	b, err := c.block(block)
	if err != nil {
		return 0, err
	}
	return b.StorageCapacity(), nil
}

func (c *LocalCluster) SplitThreshold(ctx context.Context, block types.BlockID) (float64, error) {
	b, err := c.block(block)
	if err != nil {
		return 0, err
	}
	return b.SplitThreshold(), nil
}

func (c *LocalCluster) StorageSize(ctx context.Context, block types.BlockID) (int64, error) {
	b, err := c.block(block)
	if err != nil {
		return 0, err
	}
	return b.StorageSize(), nil
}

func (c *LocalCluster) ResendPending(ctx context.Context, block types.BlockID) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	return b.ResendPending(ctx)
}

func (c *LocalCluster) ForwardAll(ctx context.Context, block types.BlockID) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	return b.ForwardAll(ctx)
}

func (c *LocalCluster) Path(ctx context.Context, block types.BlockID) (string, error) {
	b, err := c.block(block)
	if err != nil {
		return "", err
	}
	return b.Path(), nil
}

func (c *LocalCluster) SetPath(ctx context.Context, block types.BlockID, path string) error {
	b, err := c.block(block)
	if err != nil {
		return err
	}
	b.SetPath(path)
	return nil
}

func (c *LocalCluster) SlotRange(ctx context.Context, block types.BlockID) (types.SlotRange, error) {
	b, err := c.block(block)
	if err != nil {
		return types.SlotRange{}, err
	}
	return b.SlotRange(), nil
}
