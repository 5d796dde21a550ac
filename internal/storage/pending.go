package storage

import (
	"sync"

	"ekv/types"

	"github.com/google/btree"
)

type pendingOp struct {
	seq     types.SequenceID
	op      types.OpID
	args    []string
	results []string
}

func pendingLess(a, b pendingOp) bool {
	return a.seq.ServerSeq < b.seq.ServerSeq
}

// pendingTable holds forwarded but unacknowledged operations ordered by chain sequence.
type pendingTable struct {
	mu   sync.Mutex
	tree *btree.BTreeG[pendingOp]
}

func newPendingTable() *pendingTable {
	return &pendingTable{tree: btree.NewG[pendingOp](8, pendingLess)}
}

func (p *pendingTable) add(op pendingOp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree.ReplaceOrInsert(op)
}

func (p *pendingTable) remove(seq int64) (pendingOp, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree.Delete(pendingOp{seq: types.SequenceID{ServerSeq: seq}})
}

func (p *pendingTable) get(seq int64) (pendingOp, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree.Get(pendingOp{seq: types.SequenceID{ServerSeq: seq}})
}

// ascending returns a snapshot in sequence order.
func (p *pendingTable) ascending() []pendingOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]pendingOp, 0, p.tree.Len())
	p.tree.Ascend(func(op pendingOp) bool {
		ops = append(ops, op)
		return true
	})
	return ops
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree.Len()
}

func (p *pendingTable) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree.Clear(false)
}
