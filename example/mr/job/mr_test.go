package mr

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"unicode"

	"ekv"
	"ekv/config"
	"ekv/internal/client"
	"ekv/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func wcMap(_ string, contents string) []KeyValue {
	words := strings.FieldsFunc(contents, func(r rune) bool { return !unicode.IsLetter(r) })
	kva := make([]KeyValue, 0, len(words))
	for _, w := range words {
		kva = append(kva, KeyValue{Key: strings.ToLower(w), Value: "1"})
	}
	return kva
}

func wcReduce(_ string, values []string) string {
	return strconv.Itoa(len(values))
}

func TestWordCount(t *testing.T) {
	cc := config.Default()
	cc.Log.Level = "error"
	cc.Directory.ServicePort = freePort(t)
	cc.Directory.LeasePort = freePort(t)
	for i := range cc.Storage {
		cc.Storage[i].ServicePort = freePort(t)
		cc.Storage[i].ManagementPort = freePort(t)
		cc.Storage[i].NotificationPort = freePort(t)
		cc.Storage[i].ChainPort = freePort(t)
		cc.Storage[i].NumBlocks = 4
	}
	require.NoError(t, cc.Validate())
	sa, err := ekv.NewStandalone(cc)
	require.NoError(t, err)
	defer sa.Stop()

	ctx := context.Background()
	dc := client.NewDirectoryClient(types.Addr(cc.Directory.ServiceAddr()), types.Addr(cc.Directory.LeaseAddr()))
	m := NewMaster(dc, TaskConfig{Root: "/jobs/wc", NReduce: 3, Limits: 2}, nil)

	res, err := m.Run(ctx, map[string]string{
		"a.txt": "the quick brown fox",
		"b.txt": "The lazy dog, the end.",
		"c.txt": "fox fox",
	}, wcMap, wcReduce)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"the": "3", "quick": "1", "brown": "1", "fox": "3",
		"lazy": "1", "dog": "1", "end": "1",
	}, res)

	require.NoError(t, m.Clean(ctx))
	ok, err := dc.Exists(ctx, "/jobs/wc")
	require.NoError(t, err)
	assert.False(t, ok)
}
