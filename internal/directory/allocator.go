package directory

import (
	"math/rand"
	"sync"
	"time"

	"ekv/types"

	"github.com/google/btree"
	"github.com/pkg/errors"
)

// BlockAllocator hands out free blocks, each allocation spread over distinct storage servers.
type BlockAllocator struct {
	sync.Mutex
	free      *btree.BTreeG[string]
	allocated map[string]types.BlockID
	blocks    map[string]types.BlockID
	rnd       *rand.Rand
}

func NewBlockAllocator() *BlockAllocator {
	return &BlockAllocator{
		free:      btree.NewG[string](16, func(a, b string) bool { return a < b }),
		allocated: make(map[string]types.BlockID),
		blocks:    make(map[string]types.BlockID),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Allocate picks count free blocks on count distinct servers, none of them a
// server hosting a block in exclude.
func (a *BlockAllocator) Allocate(count int, exclude []types.BlockID) ([]types.BlockID, error) {
	if count <= 0 {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "allocate %d blocks", count)
	}
	a.Lock()
	defer a.Unlock()

	if a.free.Len() < count {
		return nil, errors.Wrapf(types.ErrNoCapacity, "want %d blocks, %d free", count, a.free.Len())
	}
	used := make(map[string]bool, len(exclude)+count)
	for _, b := range exclude {
		used[b.Server()] = true
	}

	// walk the ordered pool from a random pivot, wrapping around once
	pivot := a.randomFree()
	var picked []types.BlockID
	visit := func(name string) bool {
		b := a.blocks[name]
		if !used[b.Server()] {
			used[b.Server()] = true
			picked = append(picked, b)
		}
		return len(picked) < count
	}
	a.free.AscendGreaterOrEqual(pivot, visit)
	if len(picked) < count {
		a.free.AscendLessThan(pivot, visit)
	}
	if len(picked) < count {
		return nil, errors.Wrapf(types.ErrNoCapacity, "want %d blocks on distinct servers, found %d", count, len(picked))
	}

	for _, b := range picked {
		name := b.String()
		a.free.Delete(name)
		a.allocated[name] = b
	}
	return picked, nil
}

func (a *BlockAllocator) randomFree() string {
	n := a.rnd.Intn(a.free.Len())
	var pivot string
	a.free.Ascend(func(name string) bool {
		if n == 0 {
			pivot = name
			return false
		}
		n--
		return true
	})
	return pivot
}

// Free returns allocated blocks to the pool. Nothing is freed when one of them is not allocated.
func (a *BlockAllocator) Free(blocks []types.BlockID) error {
	a.Lock()
	defer a.Unlock()
	for _, b := range blocks {
		if _, ok := a.allocated[b.String()]; !ok {
			return errors.Wrapf(types.ErrBlockNotFound, "free unallocated block %v", b)
		}
	}
	for _, b := range blocks {
		name := b.String()
		delete(a.allocated, name)
		if _, ok := a.blocks[name]; ok {
			a.free.ReplaceOrInsert(name)
		}
	}
	return nil
}

// AddBlocks registers blocks as free; already known blocks are left alone.
func (a *BlockAllocator) AddBlocks(blocks []types.BlockID) int {
	a.Lock()
	defer a.Unlock()
	added := 0
	for _, b := range blocks {
		name := b.String()
		if _, ok := a.blocks[name]; ok {
			continue
		}
		a.blocks[name] = b
		a.free.ReplaceOrInsert(name)
		added++
	}
	return added
}

// RemoveBlocks forgets free blocks. Allocated or unknown blocks fail the whole call.
func (a *BlockAllocator) RemoveBlocks(blocks []types.BlockID) error {
	a.Lock()
	defer a.Unlock()
	for _, b := range blocks {
		name := b.String()
		if _, ok := a.allocated[name]; ok {
			return errors.Wrapf(types.ErrInvalidArgument, "remove allocated block %v", b)
		}
		if _, ok := a.blocks[name]; !ok {
			return errors.Wrapf(types.ErrBlockNotFound, "remove unknown block %v", b)
		}
	}
	for _, b := range blocks {
		name := b.String()
		delete(a.blocks, name)
		a.free.Delete(name)
	}
	return nil
}

func (a *BlockAllocator) NumFree() int {
	a.Lock()
	defer a.Unlock()
	return a.free.Len()
}

func (a *BlockAllocator) NumAllocated() int {
	a.Lock()
	defer a.Unlock()
	return len(a.allocated)
}

func (a *BlockAllocator) NumTotal() int {
	a.Lock()
	defer a.Unlock()
	return len(a.blocks)
}
