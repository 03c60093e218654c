package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlasbank/settlement-core/internal/domain"
)

type fakeSettler struct {
	mu      sync.Mutex
	settled []uuid.UUID
	failIDs map[uuid.UUID]int // id -> remaining failures
}

func (f *fakeSettler) Settle(_ context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if remaining := f.failIDs[tx.ID]; remaining > 0 {
		f.failIDs[tx.ID] = remaining - 1
		return errors.New("clearing house unavailable")
	}
	f.settled = append(f.settled, tx.ID)
	return nil
}

func (f *fakeSettler) settledIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.settled...)
}

type nopAudit struct{}

func (nopAudit) Success(context.Context, string, string, string, string, string, map[string]any) {}
func (nopAudit) Failure(context.Context, string, string, string, string, string, string)        {}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestWorkerDrainsBatch(t *testing.T) {
	q := NewQueue()
	settler := &fakeSettler{failIDs: map[uuid.UUID]int{}}
	w := NewWorker(q, settler, nopAudit{}, testLogger(), time.Hour, 10, 3)

	txs := make([]*domain.Transaction, 3)
	for i := range txs {
		txs[i] = pendingDeposit(t, int64(i+1))
		q.Enqueue(txs[i])
	}

	w.drainBatch(context.Background(), 10)

	require.True(t, q.IsEmpty())
	settled := settler.settledIDs()
	require.Len(t, settled, 3)
	for i, tx := range txs {
		require.Equal(t, tx.ID, settled[i])
	}
}

func TestWorkerRetriesThenAbandons(t *testing.T) {
	q := NewQueue()
	tx := pendingDeposit(t, 100)
	settler := &fakeSettler{failIDs: map[uuid.UUID]int{tx.ID: 99}}
	w := NewWorker(q, settler, nopAudit{}, testLogger(), time.Hour, 10, 3)
	q.Enqueue(tx)

	// first two attempts re-enqueue
	w.drainBatch(context.Background(), 10)
	require.Equal(t, 1, q.Size())
	w.drainBatch(context.Background(), 10)
	require.Equal(t, 1, q.Size())

	// third attempt abandons
	w.drainBatch(context.Background(), 10)
	require.True(t, q.IsEmpty())
	require.Empty(t, settler.settledIDs())
}

func TestWorkerRetrySucceeds(t *testing.T) {
	q := NewQueue()
	tx := pendingDeposit(t, 100)
	settler := &fakeSettler{failIDs: map[uuid.UUID]int{tx.ID: 1}}
	w := NewWorker(q, settler, nopAudit{}, testLogger(), time.Hour, 10, 3)
	q.Enqueue(tx)

	w.drainBatch(context.Background(), 10)
	require.Equal(t, 1, q.Size(), "failed item should be back in the queue")

	w.drainBatch(context.Background(), 10)
	require.True(t, q.IsEmpty())
	require.Equal(t, []uuid.UUID{tx.ID}, settler.settledIDs())
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	q := NewQueue()
	settler := &fakeSettler{failIDs: map[uuid.UUID]int{}}
	w := NewWorker(q, settler, nopAudit{}, testLogger(), 5*time.Millisecond, 10, 3)

	tx := pendingDeposit(t, 1)
	q.Enqueue(tx)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(settler.settledIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	// the final drain on shutdown picks up late arrivals
	late := pendingDeposit(t, 2)
	q.Enqueue(late)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	require.True(t, q.IsEmpty())
	require.Len(t, settler.settledIDs(), 2)
}
