package storage

import (
	"context"
	"testing"

	"ekv/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageMetrics(t *testing.T) {
	c := newTestCluster(t, 1, 1)
	ctx := context.Background()
	id := testBlockID(0, 0)
	setupChain(t, c, "/f", types.FullSlotRange(), id)

	_, err := c.Request(ctx, id, types.OpPut, []string{"a", "1", "b", "2"})
	require.NoError(t, err)
	_, err = c.Request(ctx, id, types.OpGet, []string{"a"})
	require.NoError(t, err)

	m := c.Servers()[0].metrics
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ops.WithLabelValues("put")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ops.WithLabelValues("get")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.bytes.WithLabelValues(id.String())))
}
