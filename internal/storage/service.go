package storage

import (
	"context"
	"time"

	"ekv/types"
)

// dataService is the client facing "Storage" endpoint.
type dataService struct {
	s *StorageServer
}

func (d *dataService) RPCRunCommand(ctx context.Context, args *types.RunCommandArg, reply *types.RunCommandReply) error {
	b, err := d.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Results, err = b.Request(ctx, args.Op, args.Args)
	return err
}

// chainService carries traffic between the members of a chain.
type chainService struct {
	s *StorageServer
}

func (c *chainService) RPCChainRequest(ctx context.Context, args *types.ChainRequestArg, reply *types.Ack) error {
	b, err := c.s.Block(args.Block)
	if err != nil {
		return err
	}
	if err = b.ChainRequest(ctx, args.Seq, args.Op, args.Args); err != nil {
		return err
	}
	reply.Ok = true
	return nil
}

func (c *chainService) RPCChainAck(ctx context.Context, args *types.ChainAckArg, reply *types.Ack) error {
	b, err := c.s.Block(args.Block)
	if err != nil {
		return err
	}
	if err = b.ChainAck(ctx, args.Seq, args.Results); err != nil {
		return err
	}
	reply.Ok = true
	return nil
}

// RPCRunCommand executes on the block only, bypassing its chain.
func (c *chainService) RPCRunCommand(ctx context.Context, args *types.RunCommandArg, reply *types.RunCommandReply) error {
	b, err := c.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Results, err = b.RunCommand(args.Op, args.Args)
	return err
}

type managementService struct {
	s *StorageServer
}

func (m *managementService) RPCPing(ctx context.Context, args *types.BlockArg, reply *types.Ack) error {
	_, err := m.s.Block(args.Block)
	reply.Ok = err == nil
	return err
}

func (m *managementService) RPCBlocks(ctx context.Context, args *types.Ack, reply *types.BlocksReply) error {
	reply.Blocks = m.s.BlockIDs()
	return nil
}

func (m *managementService) RPCSetup(ctx context.Context, args *types.SetupArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	return b.Setup(args.Path, args.Slots, args.Chain, args.AutoScale, args.Role, args.Next)
}

func (m *managementService) RPCSetExporting(ctx context.Context, args *types.SetExportingArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	b.SetExporting(args.Target, args.Slots)
	return nil
}

func (m *managementService) RPCSetImporting(ctx context.Context, args *types.SlotsArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	b.SetImporting(args.Slots)
	return nil
}

func (m *managementService) RPCSetRegular(ctx context.Context, args *types.SlotsArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	b.SetRegular(args.Slots)
	return nil
}

func (m *managementService) RPCExportSlots(ctx context.Context, args *types.BlockArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	return b.ExportSlots(ctx)
}

func (m *managementService) RPCFlush(ctx context.Context, args *types.PersistArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	return b.Flush(args.BackingPath)
}

func (m *managementService) RPCLoad(ctx context.Context, args *types.PersistArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	return b.Load(args.BackingPath)
}

func (m *managementService) RPCReset(ctx context.Context, args *types.BlockArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	b.Reset()
	return nil
}

func (m *managementService) RPCStorageCapacity(ctx context.Context, args *types.BlockArg, reply *types.SizeReply) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Bytes = b.StorageCapacity()
	return nil
}

func (m *managementService) RPCSplitThreshold(ctx context.Context, args *types.BlockArg, reply *types.ThresholdReply) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Threshold = b.SplitThreshold()
	return nil
}

func (m *managementService) RPCStorageSize(ctx context.Context, args *types.BlockArg, reply *types.SizeReply) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Bytes = b.StorageSize()
	return nil
}

func (m *managementService) RPCResendPending(ctx context.Context, args *types.BlockArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	return b.ResendPending(ctx)
}

func (m *managementService) RPCForwardAll(ctx context.Context, args *types.BlockArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	return b.ForwardAll(ctx)
}

func (m *managementService) RPCPath(ctx context.Context, args *types.BlockArg, reply *types.PathReply) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Path = b.Path()
	return nil
}

func (m *managementService) RPCSetPath(ctx context.Context, args *types.SetPathArg, reply *types.Ack) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	b.SetPath(args.Path)
	return nil
}

func (m *managementService) RPCSlotRange(ctx context.Context, args *types.BlockArg, reply *types.SlotRangeReply) error {
	b, err := m.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Slots = b.SlotRange()
	return nil
}

type notificationService struct {
	s *StorageServer
}

func (n *notificationService) RPCSubscribe(ctx context.Context, args *types.SubscribeArg, reply *types.SubscribeReply) error {
	b, err := n.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Subscriber, err = b.Subscribe(args.Ops)
	return err
}

func (n *notificationService) RPCUnsubscribe(ctx context.Context, args *types.UnsubscribeArg, reply *types.Ack) error {
	b, err := n.s.Block(args.Block)
	if err != nil {
		return err
	}
	return b.Unsubscribe(args.Subscriber, args.Ops)
}

func (n *notificationService) RPCPoll(ctx context.Context, args *types.PollArg, reply *types.PollReply) error {
	b, err := n.s.Block(args.Block)
	if err != nil {
		return err
	}
	reply.Notifications, err = b.Poll(ctx, args.Subscriber, time.Duration(args.WaitMs)*time.Millisecond, args.Max)
	return err
}
