package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Path string
type Addr string

// SlotMax is the size of the hash slot space shared by every file.
const SlotMax = 65536

// NilBlock names "no block", e.g. the successor of a tail.
const NilBlock = "nil"

// BlockID addresses one block on one storage server.
type BlockID struct {
	Host             string
	ServicePort      int
	ManagementPort   int
	NotificationPort int
	ChainPort        int
	ID               int32
}

// String formats as host:service:management:notification:chain:id.
func (b BlockID) String() string {
	return fmt.Sprintf("%s:%d:%d:%d:%d:%d", b.Host, b.ServicePort, b.ManagementPort,
		b.NotificationPort, b.ChainPort, b.ID)
}

// Server identifies the storage server hosting the block.
func (b BlockID) Server() string {
	return fmt.Sprintf("%s:%d:%d:%d:%d", b.Host, b.ServicePort, b.ManagementPort,
		b.NotificationPort, b.ChainPort)
}

func (b BlockID) ServiceAddr() Addr {
	return Addr(b.Host + ":" + strconv.Itoa(b.ServicePort))
}

func (b BlockID) ManagementAddr() Addr {
	return Addr(b.Host + ":" + strconv.Itoa(b.ManagementPort))
}

func (b BlockID) NotificationAddr() Addr {
	return Addr(b.Host + ":" + strconv.Itoa(b.NotificationPort))
}

func (b BlockID) ChainAddr() Addr {
	return Addr(b.Host + ":" + strconv.Itoa(b.ChainPort))
}

func (b BlockID) IsZero() bool {
	return b == BlockID{}
}

// ParseBlockID is the inverse of BlockID.String.
func ParseBlockID(s string) (BlockID, error) {
	tokens := strings.Split(s, ":")
	if len(tokens) != 6 {
		return BlockID{}, errors.Wrapf(ErrInvalidArgument, "malformed block id %q", s)
	}
	var (
		b    = BlockID{Host: tokens[0]}
		nums [5]int64
	)
	for i := range nums {
		n, err := strconv.ParseInt(tokens[i+1], 10, 32)
		if err != nil {
			return BlockID{}, errors.Wrapf(ErrInvalidArgument, "malformed block id %q", s)
		}
		nums[i] = n
	}
	b.ServicePort = int(nums[0])
	b.ManagementPort = int(nums[1])
	b.NotificationPort = int(nums[2])
	b.ChainPort = int(nums[3])
	b.ID = int32(nums[4])
	return b, nil
}

func MustParseBlockID(s string) BlockID {
	b, err := ParseBlockID(s)
	if err != nil {
		panic(err)
	}
	return b
}

// SlotRange is the half open interval [Begin, End).
type SlotRange struct {
	Begin int32
	End   int32
}

func FullSlotRange() SlotRange {
	return SlotRange{0, SlotMax}
}

func (r SlotRange) Contains(slot int32) bool {
	return slot >= r.Begin && slot < r.End
}

func (r SlotRange) Len() int32 {
	if r.End <= r.Begin {
		return 0
	}
	return r.End - r.Begin
}

func (r SlotRange) Empty() bool {
	return r.Len() == 0
}

func (r SlotRange) String() string {
	return fmt.Sprintf("%d_%d", r.Begin, r.End)
}

// ParseSlotRange is the inverse of SlotRange.String.
func ParseSlotRange(s string) (SlotRange, error) {
	b, e, ok := strings.Cut(s, "_")
	if !ok {
		return SlotRange{}, errors.Wrapf(ErrInvalidArgument, "slot range %q", s)
	}
	begin, err1 := strconv.ParseInt(b, 10, 32)
	end, err2 := strconv.ParseInt(e, 10, 32)
	if err1 != nil || err2 != nil || begin < 0 || end > SlotMax || begin > end {
		return SlotRange{}, errors.Wrapf(ErrInvalidArgument, "slot range %q", s)
	}
	return SlotRange{int32(begin), int32(end)}, nil
}

type ChainStatus int32

const (
	ChainStable ChainStatus = iota
	ChainExporting
	ChainImporting
)

func (s ChainStatus) String() string {
	switch s {
	case ChainStable:
		return "stable"
	case ChainExporting:
		return "exporting"
	case ChainImporting:
		return "importing"
	}
	return "unknown"
}

// ReplicaChain is an ordered list of blocks, head first.
type ReplicaChain struct {
	Blocks []BlockID
	Slots  SlotRange
	Status ChainStatus
}

func (c ReplicaChain) Head() BlockID {
	return c.Blocks[0]
}

func (c ReplicaChain) Tail() BlockID {
	return c.Blocks[len(c.Blocks)-1]
}

func (c ReplicaChain) Len() int {
	return len(c.Blocks)
}

func (c ReplicaChain) Names() []string {
	names := make([]string, len(c.Blocks))
	for i, b := range c.Blocks {
		names[i] = b.String()
	}
	return names
}

// SameBlocks reports whether both chains list the same blocks in the same order.
func (c ReplicaChain) SameBlocks(o ReplicaChain) bool {
	if len(c.Blocks) != len(o.Blocks) {
		return false
	}
	for i := range c.Blocks {
		if c.Blocks[i] != o.Blocks[i] {
			return false
		}
	}
	return true
}

func (c ReplicaChain) Clone() ReplicaChain {
	nc := c
	nc.Blocks = append([]BlockID(nil), c.Blocks...)
	return nc
}

func (c ReplicaChain) String() string {
	return fmt.Sprintf("%s[%s]@%s", strings.Join(c.Names(), ","), c.Slots, c.Status)
}

type StorageMode int32

const (
	InMemory StorageMode = iota
	InMemoryGrace
	Flushing
	OnDisk
)

func (m StorageMode) String() string {
	switch m {
	case InMemory:
		return "in_memory"
	case InMemoryGrace:
		return "in_memory_grace"
	case Flushing:
		return "flushing"
	case OnDisk:
		return "on_disk"
	}
	return "unknown"
}

const (
	FlagPinned            int32 = 1 << 0
	FlagStaticProvisioned int32 = 1 << 1
	FlagMapped            int32 = 1 << 2
)

// DataStatus is the storage side of a file.
type DataStatus struct {
	Mode        StorageMode
	Prefix      string
	ChainLength int
	Chains      []ReplicaChain
	Flags       int32
}

func (d DataStatus) IsPinned() bool            { return d.Flags&FlagPinned != 0 }
func (d DataStatus) IsStaticProvisioned() bool { return d.Flags&FlagStaticProvisioned != 0 }
func (d DataStatus) IsMapped() bool            { return d.Flags&FlagMapped != 0 }

// FindChain returns the index of the chain with the same blocks as c, or -1.
func (d DataStatus) FindChain(c ReplicaChain) int {
	for i := range d.Chains {
		if d.Chains[i].SameBlocks(c) {
			return i
		}
	}
	return -1
}

// ChainForSlot returns the index of the chain owning slot, or -1.
func (d DataStatus) ChainForSlot(slot int32) int {
	for i := range d.Chains {
		if d.Chains[i].Slots.Contains(slot) {
			return i
		}
	}
	return -1
}

func (d DataStatus) Clone() DataStatus {
	nd := d
	nd.Chains = make([]ReplicaChain, len(d.Chains))
	for i := range d.Chains {
		nd.Chains[i] = d.Chains[i].Clone()
	}
	return nd
}

type FileType int32

const (
	TypeNone FileType = iota
	TypeRegular
	TypeDirectory
)

func (t FileType) String() string {
	switch t {
	case TypeRegular:
		return "regular"
	case TypeDirectory:
		return "directory"
	}
	return "none"
}

type Perms uint16

const (
	PermNone        Perms = 0
	PermOwnerRead   Perms = 0400
	PermOwnerWrite  Perms = 0200
	PermOwnerExec   Perms = 0100
	PermOwnerAll    Perms = 0700
	PermGroupRead   Perms = 040
	PermGroupWrite  Perms = 020
	PermGroupExec   Perms = 010
	PermGroupAll    Perms = 070
	PermOthersRead  Perms = 04
	PermOthersWrite Perms = 02
	PermOthersExec  Perms = 01
	PermOthersAll   Perms = 07
	PermAll         Perms = 0777
	PermSetUID      Perms = 04000
	PermSetGID      Perms = 02000
	PermStickyBit   Perms = 01000
	PermMask        Perms = 07777
	PermDefault     Perms = PermAll
)

func (p Perms) String() string {
	const rwx = "rwxrwxrwx"
	b := []byte("---------")
	for i := 0; i < 9; i++ {
		if p&(1<<uint(8-i)) != 0 {
			b[i] = rwx[i]
		}
	}
	return string(b)
}

type PermOptions int32

const (
	PermReplace PermOptions = iota
	PermAdd
	PermRemove
)

type FileStatus struct {
	Type          FileType
	Perms         Perms
	LastWriteTime int64
}

type DirectoryEntry struct {
	Name   string
	Status FileStatus
}
