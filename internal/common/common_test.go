package common

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrc16(t *testing.T) {
	assert.Equal(t, uint16(0x31C3), Crc16([]byte("123456789")))
	assert.Equal(t, Crc16([]byte("foo")), Crc16String("foo"))
	assert.Equal(t, uint16(0), Crc16(nil))
}

func TestPartionPath(t *testing.T) {
	parent, name := PartionPath("/a/b/c")
	assert.Equal(t, []string{"a", "b"}, parent)
	assert.Equal(t, "c", name)

	parent, name = PartionPath("/")
	assert.Empty(t, parent)
	assert.Equal(t, "", name)

	assert.Equal(t, []string{"x", "y"}, PathTokens("x//y/"))
	assert.Equal(t, "/a", ParentPath("/a/b"))
	assert.Equal(t, "/", ParentPath("/a"))
	assert.Equal(t, "/a/b", JoinPath("/a", "b"))
}

func TestIsSubPath(t *testing.T) {
	assert.True(t, IsSubPath("/a", "/a/b"))
	assert.True(t, IsSubPath("/a", "/a"))
	assert.True(t, IsSubPath("/", "/x"))
	assert.False(t, IsSubPath("/a", "/ab"))
}

func TestJoinErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	assert.Nil(t, JoinErrors(nil, nil))
	assert.Equal(t, e1, JoinErrors(nil, e1))
	err := JoinErrors(e1, e2)
	require.Error(t, err)
	assert.ErrorIs(t, err, e1)
	assert.Contains(t, err.Error(), "two")
}

func TestNewLogger(t *testing.T) {
	lg, err := NewLogger(LogConfig{Level: "debug"})
	require.NoError(t, err)
	lg.Debugw("hello", "k", 1)

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
	assert.NotNil(t, OrNop(nil))
}
