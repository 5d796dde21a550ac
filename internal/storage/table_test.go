package storage

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"ekv/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTable(t *testing.T) {
	tb := newHashTable()
	assert.True(t, tb.insert("a", "1"))
	assert.False(t, tb.insert("a", "2"))

	v, ok := tb.find("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	old, ok := tb.update("a", "3")
	assert.True(t, ok)
	assert.Equal(t, "1", old)
	_, ok = tb.update("b", "3")
	assert.False(t, ok)

	old, ok = tb.erase("a")
	assert.True(t, ok)
	assert.Equal(t, "3", old)
	assert.False(t, tb.contains("a"))
	assert.Equal(t, 0, tb.size())
}

func TestHashTableConcurrent(t *testing.T) {
	tb := newHashTable()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tb.insert(strconv.Itoa(w)+"-"+strconv.Itoa(i), "v")
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			lt := tb.lockTable()
			n := 0
			lt.Range(func(_, _ string) bool {
				n++
				return true
			})
			assert.Equal(t, lt.Len(), n)
			lt.Unlock()
		}
	}()
	wg.Wait()
	assert.Equal(t, 8000, tb.size())

	lt := tb.lockTable()
	lt.Clear()
	lt.Unlock()
	assert.Equal(t, 0, tb.size())
}

func TestHashSlotRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s := HashSlot("key" + strconv.Itoa(i))
		require.True(t, types.FullSlotRange().Contains(s))
	}
	assert.Equal(t, int32(0x31C3), HashSlot("123456789"))
}

func TestPendingTable(t *testing.T) {
	p := newPendingTable()
	for _, seq := range []int64{5, 1, 3} {
		p.add(pendingOp{seq: types.SequenceID{ServerSeq: seq}, op: types.OpPut})
	}
	ops := p.ascending()
	require.Len(t, ops, 3)
	assert.Equal(t, int64(1), ops[0].seq.ServerSeq)
	assert.Equal(t, int64(5), ops[2].seq.ServerSeq)

	_, ok := p.get(3)
	assert.True(t, ok)
	_, ok = p.remove(3)
	assert.True(t, ok)
	_, ok = p.remove(3)
	assert.False(t, ok)
	assert.Equal(t, 2, p.len())
	p.clear()
	assert.Equal(t, 0, p.len())
}

func TestResponseBuffer(t *testing.T) {
	buf := newResponseBuffer(50*time.Millisecond, 10*time.Millisecond)
	defer buf.stop()

	ch := buf.register(1, []string{"local"})
	assert.True(t, buf.deliver(1, []string{"tail"}))
	assert.Equal(t, []string{"tail"}, <-ch)
	assert.False(t, buf.deliver(1, []string{"again"}))

	ch = buf.register(2, []string{"local"})
	assert.True(t, buf.deliver(2, nil))
	assert.Equal(t, []string{"local"}, <-ch)

	buf.register(3, nil)
	buf.cancel(3)
	assert.Equal(t, 0, buf.len())

	buf.register(4, nil)
	assert.Eventually(t, func() bool { return buf.len() == 0 }, time.Second, 10*time.Millisecond)
}
