// Package settlement holds the pending-transaction queue and the batch
// worker that drains it.
package settlement

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/atlasbank/settlement-core/internal/domain"
)

// Queue is a FIFO of transactions awaiting settlement plus a side table
// keyed by transaction id for O(1) membership checks. Both structures are
// mutated under the same mutex so they cannot diverge: an id in the
// pending table is always reachable through the queue body.
//
// The queue is unbounded; enqueue never blocks.
type Queue struct {
	mu      sync.Mutex
	items   []*domain.Transaction
	pending map[uuid.UUID]*domain.Transaction
	signal  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		pending: make(map[uuid.UUID]*domain.Transaction),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends tx to the tail and registers it as pending.
func (q *Queue) Enqueue(tx *domain.Transaction) {
	q.mu.Lock()
	q.items = append(q.items, tx)
	q.pending[tx.ID] = tx
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head, blocking until an item is
// available or ctx is cancelled. Cancellation returns ctx.Err(); callers
// treat it as a shutdown outcome, not a failure.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Transaction, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			tx := q.items[0]
			q.items = q.items[1:]
			delete(q.pending, tx.ID)
			remaining := len(q.items)
			q.mu.Unlock()
			// Wake the next waiter if work is left; the signal channel
			// holds at most one token.
			if remaining > 0 {
				q.notify()
			}
			return tx, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (*domain.Transaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// MarkProcessed drops the transaction from the pending table without
// touching the queue body. Used by consumers that settle drained batches
// off to the side.
func (q *Queue) MarkProcessed(txID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, txID)
}

// DrainAll atomically removes everything from the queue and the pending
// table and returns the removed items in FIFO order.
func (q *Queue) DrainAll() []*domain.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.items
	q.items = nil
	for _, tx := range drained {
		delete(q.pending, tx.ID)
	}
	return drained
}

// DrainTo atomically removes up to max items from the head, removing each
// from the pending table in the same step.
func (q *Queue) DrainTo(max int) []*domain.Transaction {
	if max <= 0 {
		return nil
	}
	q.mu.Lock()
	n := min(max, len(q.items))
	drained := make([]*domain.Transaction, n)
	copy(drained, q.items[:n])
	q.items = q.items[n:]
	for _, tx := range drained {
		delete(q.pending, tx.ID)
	}
	remaining := len(q.items)
	q.mu.Unlock()
	if remaining > 0 {
		q.notify()
	}
	return drained
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) IsPending(txID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[txID]
	return ok
}

// PendingTransactions returns a snapshot of the pending table.
func (q *Queue) PendingTransactions() []*domain.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.Transaction, 0, len(q.pending))
	for _, tx := range q.pending {
		out = append(out, tx)
	}
	return out
}

// Clear empties both structures.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.pending = make(map[uuid.UUID]*domain.Transaction)
}
