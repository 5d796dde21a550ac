package storage

import (
	"context"

	xrpc "ekv/internal/common/rpc"
	"ekv/types"
)

// ChainLink is the way one block reaches another.
type ChainLink interface {
	ID() types.BlockID
	// ChainRequest hands a sequenced mutation to the block; it returns once queued.
	ChainRequest(ctx context.Context, seq types.SequenceID, op types.OpID, args []string) error
	// ChainAck carries the acknowledgement (and the tail's results) upstream.
	ChainAck(ctx context.Context, seq types.SequenceID, results []string) error
	// RunCommand executes on the block alone, without replication.
	RunCommand(ctx context.Context, op types.OpID, args []string) ([]string, error)
	// Submit enters the block's chain the way a client does.
	Submit(ctx context.Context, op types.OpID, args []string) ([]string, error)
}

type Linker interface {
	Link(id types.BlockID) (ChainLink, error)
}

// RPCLinker reaches blocks through their chain and data services.
type RPCLinker struct{}

func (RPCLinker) Link(id types.BlockID) (ChainLink, error) {
	return rpcLink{id: id}, nil
}

type rpcLink struct {
	id types.BlockID
}

func (l rpcLink) ID() types.BlockID {
	return l.id
}

func (l rpcLink) ChainRequest(ctx context.Context, seq types.SequenceID, op types.OpID, args []string) error {
	return xrpc.CallContext(ctx, l.id.ChainAddr(), "Chain.RPCChainRequest", &types.ChainRequestArg{
		Block: l.id.ID,
		Seq:   seq,
		Op:    op,
		Args:  args,
	}, &types.Ack{})
}

func (l rpcLink) ChainAck(ctx context.Context, seq types.SequenceID, results []string) error {
	return xrpc.CallContext(ctx, l.id.ChainAddr(), "Chain.RPCChainAck", &types.ChainAckArg{
		Block:   l.id.ID,
		Seq:     seq,
		Results: results,
	}, &types.Ack{})
}

func (l rpcLink) RunCommand(ctx context.Context, op types.OpID, args []string) ([]string, error) {
	var reply types.RunCommandReply
	err := xrpc.CallContext(ctx, l.id.ChainAddr(), "Chain.RPCRunCommand", &types.RunCommandArg{
		Block: l.id.ID,
		Op:    op,
		Args:  args,
	}, &reply)
	return reply.Results, err
}

func (l rpcLink) Submit(ctx context.Context, op types.OpID, args []string) ([]string, error) {
	var reply types.RunCommandReply
	err := xrpc.CallContext(ctx, l.id.ServiceAddr(), "Storage.RPCRunCommand", &types.RunCommandArg{
		Block: l.id.ID,
		Op:    op,
		Args:  args,
	}, &reply)
	return reply.Results, err
}
