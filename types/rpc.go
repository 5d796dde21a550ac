package types

// Ack is the reply (or argument) of calls that carry nothing back.
type Ack struct {
	Ok bool
}

/* storage: data service */

type RunCommandArg struct {
	Block int32
	Seq   SequenceID
	Op    OpID
	Args  []string
}

type RunCommandReply struct {
	Results []string
}

/* storage: chain service */

type ChainRequestArg struct {
	Block int32
	Seq   SequenceID
	Op    OpID
	Args  []string
}

type ChainAckArg struct {
	Block   int32
	Seq     SequenceID
	Results []string
}

/* storage: management service */

type BlockArg struct {
	Block int32
}

type SetupArg struct {
	Block     int32
	Path      string
	Slots     SlotRange
	Chain     []BlockID
	AutoScale bool
	Role      ChainRole
	Next      string
}

type SetExportingArg struct {
	Block  int32
	Target []BlockID
	Slots  SlotRange
}

type SlotsArg struct {
	Block int32
	Slots SlotRange
}

type PersistArg struct {
	Block       int32
	BackingPath string
}

type SetPathArg struct {
	Block int32
	Path  string
}

type SizeReply struct {
	Bytes int64
}

type ThresholdReply struct {
	Threshold float64
}

type PathReply struct {
	Path string
}

type SlotRangeReply struct {
	Slots SlotRange
}

type BlocksReply struct {
	Blocks []BlockID
}

/* storage: notification service */

type SubscribeArg struct {
	Block int32
	Ops   []string
}

type SubscribeReply struct {
	Subscriber int64
}

type UnsubscribeArg struct {
	Block      int32
	Subscriber int64
	Ops        []string
}

type PollArg struct {
	Block      int32
	Subscriber int64
	WaitMs     int64
	Max        int
}

type PollReply struct {
	Notifications []Notification
}

/* directory service */

type PathArg struct {
	Path string
}

type CreateArg struct {
	Path        string
	Prefix      string
	NumBlocks   int
	ChainLength int
	Flags       int32
}

type DataStatusReply struct {
	Status DataStatus
}

type BoolReply struct {
	Value bool
}

type TimeReply struct {
	Ms int64
}

type PermsReply struct {
	Perms Perms
}

type SetPermsArg struct {
	Path  string
	Perms Perms
	Opts  PermOptions
}

type RenameArg struct {
	Old string
	New string
}

type FileStatusReply struct {
	Status FileStatus
}

type EntriesReply struct {
	Entries []DirectoryEntry
}

type ChainArg struct {
	Path  string
	Chain ReplicaChain
}

type ChainReply struct {
	Chain ReplicaChain
}

type SlotsPathArg struct {
	Path  string
	Slots SlotRange
}

type BlocksArg struct {
	Blocks []BlockID
}

type AllocatorStatsReply struct {
	Free      int
	Allocated int
	Total     int
}

/* lease service */

type UpdateLeasesArg struct {
	Renew  []string
	Flush  []string
	Remove []string
}

type UpdateLeasesReply struct {
	Renewed int64
	Flushed int64
	Removed int64
}

type LeasePeriodReply struct {
	Ms int64
}
