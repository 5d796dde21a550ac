package storage

import (
	"sync"
)

const tableStripes = 64

type stripe struct {
	sync.RWMutex
	m map[string]string
}

// hashTable is a striped map. Point operations share the table and lock one
// stripe; lockTable takes the whole table exclusively.
type hashTable struct {
	global  sync.RWMutex
	stripes [tableStripes]stripe
}

func newHashTable() *hashTable {
	t := &hashTable{}
	for i := range t.stripes {
		t.stripes[i].m = make(map[string]string)
	}
	return t
}

func (t *hashTable) stripe(key string) *stripe {
	return &t.stripes[uint32(HashSlot(key))%tableStripes]
}

func (t *hashTable) insert(key, value string) bool {
	t.global.RLock()
	defer t.global.RUnlock()
	s := t.stripe(key)
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = value
	return true
}

func (t *hashTable) find(key string) (string, bool) {
	t.global.RLock()
	defer t.global.RUnlock()
	s := t.stripe(key)
	s.RLock()
	defer s.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (t *hashTable) contains(key string) bool {
	_, ok := t.find(key)
	return ok
}

// update replaces the value of an existing key and returns the previous one.
func (t *hashTable) update(key, value string) (string, bool) {
	t.global.RLock()
	defer t.global.RUnlock()
	s := t.stripe(key)
	s.Lock()
	defer s.Unlock()
	old, ok := s.m[key]
	if !ok {
		return "", false
	}
	s.m[key] = value
	return old, true
}

func (t *hashTable) erase(key string) (string, bool) {
	t.global.RLock()
	defer t.global.RUnlock()
	s := t.stripe(key)
	s.Lock()
	defer s.Unlock()
	old, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return old, ok
}

func (t *hashTable) size() int {
	t.global.RLock()
	defer t.global.RUnlock()
	n := 0
	for i := range t.stripes {
		t.stripes[i].RLock()
		n += len(t.stripes[i].m)
		t.stripes[i].RUnlock()
	}
	return n
}

// lockTable blocks every point operation until Unlock.
func (t *hashTable) lockTable() *lockedTable {
	t.global.Lock()
	return &lockedTable{t: t}
}

type lockedTable struct {
	t *hashTable
}

func (lt *lockedTable) Range(fn func(key, value string) bool) {
	for i := range lt.t.stripes {
		for k, v := range lt.t.stripes[i].m {
			if !fn(k, v) {
				return
			}
		}
	}
}

func (lt *lockedTable) Insert(key, value string) bool {
	s := lt.t.stripe(key)
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = value
	return true
}

func (lt *lockedTable) Len() int {
	n := 0
	for i := range lt.t.stripes {
		n += len(lt.t.stripes[i].m)
	}
	return n
}

func (lt *lockedTable) Clear() {
	for i := range lt.t.stripes {
		lt.t.stripes[i].m = make(map[string]string)
	}
}

func (lt *lockedTable) Unlock() {
	lt.t.global.Unlock()
}
