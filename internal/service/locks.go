package service

import (
	"sort"
	"sync"
)

// lockTable serializes balance mutations per account. Multi-account
// operations acquire their locks in ascending id order, so two concurrent
// transfers over the same pair in opposite directions cannot deadlock.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*sync.Mutex)}
}

func (t *lockTable) lockFor(id int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// acquire locks the given account ids and returns the release function.
// Duplicate ids are collapsed so deposit/withdraw (sender == receiver) take
// a single lock.
func (t *lockTable) acquire(ids ...int64) func() {
	seen := make(map[int64]struct{}, len(ids))
	ordered := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, id := range ordered {
		l := t.lockFor(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
