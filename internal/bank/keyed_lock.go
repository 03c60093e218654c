package bank

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// keyedLocks provides one mutex per account id, created lazily. It is the
// single serialization point for check-then-mutate sequences on an
// account; different accounts never contend.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *keyedLocks) get(id uuid.UUID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	return m
}

// lockAccounts acquires the locks for the given ids in a fixed global
// order (lexicographic by id) so concurrent transfers moving funds in
// opposite directions cannot deadlock. The returned function releases
// the locks in reverse order.
func (k *keyedLocks) lockAccounts(ids ...uuid.UUID) func() {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		m := k.get(id)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
