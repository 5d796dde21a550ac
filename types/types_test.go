package types

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIDString(t *testing.T) {
	b := BlockID{Host: "10.0.0.1", ServicePort: 9093, ManagementPort: 9094, NotificationPort: 9095, ChainPort: 9096, ID: 7}
	assert.Equal(t, "10.0.0.1:9093:9094:9095:9096:7", b.String())
	assert.Equal(t, "10.0.0.1:9093:9094:9095:9096", b.Server())
	assert.Equal(t, Addr("10.0.0.1:9096"), b.ChainAddr())

	p, err := ParseBlockID(b.String())
	require.NoError(t, err)
	assert.Equal(t, b, p)

	for _, bad := range []string{"", NilBlock, "h:1:2:3:4", "h:1:2:3:4:x"} {
		_, err := ParseBlockID(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
}

func TestSlotRange(t *testing.T) {
	r := SlotRange{10, 20}
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(19))
	assert.False(t, r.Contains(20))
	assert.False(t, r.Contains(9))
	assert.Equal(t, int32(10), r.Len())
	assert.True(t, SlotRange{5, 5}.Empty())
	assert.Equal(t, "10_20", r.String())
	assert.Equal(t, int32(SlotMax), FullSlotRange().Len())

	parsed, err := ParseSlotRange("10_20")
	assert.NoError(t, err)
	assert.Equal(t, r, parsed)
	for _, bad := range []string{"", "10", "20_10", "a_b", "0_70000"} {
		_, err := ParseSlotRange(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
}

func TestExportingResult(t *testing.T) {
	target := []BlockID{
		{Host: "a", ServicePort: 1, ManagementPort: 2, NotificationPort: 3, ChainPort: 4, ID: 0},
		{Host: "b", ServicePort: 1, ManagementPort: 2, NotificationPort: 3, ChainPort: 4, ID: 1},
	}
	r := ExportingResult(target)
	assert.Equal(t, "!exporting!a:1:2:3:4:0!b:1:2:3:4:1", r)

	got, ok := ParseExporting(r)
	require.True(t, ok)
	assert.Equal(t, target, got)

	_, ok = ParseExporting(ResultBlockMoved)
	assert.False(t, ok)
	assert.True(t, IsOutcome(ResultKeyNotFound))
	assert.False(t, IsOutcome("value"))
}

func TestOps(t *testing.T) {
	assert.True(t, OpPut.IsMutator())
	assert.True(t, OpGet.IsAccessor())
	assert.False(t, OpID(42).Valid())
	op, ok := OpByName("update")
	require.True(t, ok)
	assert.Equal(t, OpUpdate, op)

	assert.Equal(t, RoleSingleton, RoleAt(0, 1))
	assert.Equal(t, RoleHead, RoleAt(0, 3))
	assert.Equal(t, RoleMid, RoleAt(1, 3))
	assert.Equal(t, RoleTail, RoleAt(2, 3))
}

func TestPerms(t *testing.T) {
	assert.Equal(t, "rwxr-x---", (PermOwnerAll | PermGroupRead | PermGroupExec).String())
	assert.Equal(t, "---------", PermNone.String())
}

func TestErrorCode(t *testing.T) {
	err := errors.Wrap(ErrTypeMismatch, "/a/b")
	assert.Equal(t, ErrTypeMismatchCode, ErrorCode(err))
	assert.Equal(t, ErrTypeMismatch, ErrorOf(ErrTypeMismatchCode))
	assert.Equal(t, 0, ErrorCode(errors.New("other")))
	assert.True(t, ErrEqual(err, ErrTypeMismatch))
	assert.True(t, ErrEqual(nil, nil))
}
