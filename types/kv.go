package types

import "strings"

type OpID int32

const (
	OpExists OpID = iota
	OpGet
	OpKeys
	OpNumKeys
	OpPut
	OpRemove
	OpUpdate
)

type OpType int32

const (
	Accessor OpType = iota
	Mutator
)

type OpInfo struct {
	ID   OpID
	Type OpType
	Name string
}

var KVOps = []OpInfo{
	{OpExists, Accessor, "exists"},
	{OpGet, Accessor, "get"},
	{OpKeys, Accessor, "keys"},
	{OpNumKeys, Accessor, "num_keys"},
	{OpPut, Mutator, "put"},
	{OpRemove, Mutator, "remove"},
	{OpUpdate, Mutator, "update"},
}

func (op OpID) Valid() bool {
	return op >= 0 && int(op) < len(KVOps)
}

func (op OpID) IsMutator() bool {
	return op.Valid() && KVOps[op].Type == Mutator
}

func (op OpID) IsAccessor() bool {
	return op.Valid() && KVOps[op].Type == Accessor
}

func (op OpID) String() string {
	if !op.Valid() {
		return "unknown"
	}
	return KVOps[op].Name
}

// OpByName resolves a notification/op name such as "put".
func OpByName(name string) (OpID, bool) {
	for _, info := range KVOps {
		if info.Name == name {
			return info.ID, true
		}
	}
	return 0, false
}

// Outcomes of KV operations. Routing outcomes travel as values, not errors.
const (
	ResultOK              = "!ok"
	ResultKeyNotFound     = "!key_not_found"
	ResultDuplicateKey    = "!duplicate_key"
	ResultBlockMoved      = "!block_moved"
	ResultArgsError       = "!args_error"
	ResultExportingPrefix = "!exporting!"
	ResultTrue            = "true"
	ResultFalse           = "false"

	// RedirectedMarker is appended to the arguments of a redirected batch.
	RedirectedMarker = "!redirected"
)

// ExportingResult formats the outcome naming the chain a key moved to.
func ExportingResult(target []BlockID) string {
	names := make([]string, len(target))
	for i, b := range target {
		names[i] = b.String()
	}
	return ResultExportingPrefix + strings.Join(names, "!")
}

// ParseExporting extracts the target chain from an exporting outcome.
func ParseExporting(result string) ([]BlockID, bool) {
	if !strings.HasPrefix(result, ResultExportingPrefix) {
		return nil, false
	}
	names := strings.Split(result[len(ResultExportingPrefix):], "!")
	blocks := make([]BlockID, 0, len(names))
	for _, n := range names {
		b, err := ParseBlockID(n)
		if err != nil {
			return nil, false
		}
		blocks = append(blocks, b)
	}
	return blocks, len(blocks) > 0
}

// IsOutcome reports whether r is a routing/status outcome rather than a value.
func IsOutcome(r string) bool {
	return strings.HasPrefix(r, "!")
}

type ChainRole int32

const (
	RoleSingleton ChainRole = iota
	RoleHead
	RoleMid
	RoleTail
)

func (r ChainRole) String() string {
	switch r {
	case RoleSingleton:
		return "singleton"
	case RoleHead:
		return "head"
	case RoleMid:
		return "mid"
	case RoleTail:
		return "tail"
	}
	return "unknown"
}

// RoleAt returns the role of position i in a chain of length n.
func RoleAt(i, n int) ChainRole {
	switch {
	case n == 1:
		return RoleSingleton
	case i == 0:
		return RoleHead
	case i == n-1:
		return RoleTail
	}
	return RoleMid
}

type BlockState int32

const (
	BlockRegular BlockState = iota
	BlockImporting
	BlockExporting
)

func (s BlockState) String() string {
	switch s {
	case BlockRegular:
		return "regular"
	case BlockImporting:
		return "importing"
	case BlockExporting:
		return "exporting"
	}
	return "unknown"
}

// SequenceID tags a mutation travelling down a chain.
type SequenceID struct {
	ClientID  int64
	ClientSeq int64
	ServerSeq int64
}

type Notification struct {
	Op   string
	Data string
}
