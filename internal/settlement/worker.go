package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlasbank/settlement-core/internal/domain"
	"github.com/atlasbank/settlement-core/internal/metrics"
)

// Settler applies the external side effects of settling one transaction:
// clearing-house calls, snapshot persistence, notifications. The worker
// itself never does I/O beyond what the settler performs.
type Settler interface {
	Settle(ctx context.Context, tx *domain.Transaction) error
}

type auditRecorder interface {
	Success(ctx context.Context, actor, action, entityType, entityID, description string, details map[string]any)
	Failure(ctx context.Context, actor, action, entityType, entityID, description, errDetail string)
}

// Worker drains the queue in batches on a fixed interval. Retry policy
// lives here, not in the queue: a failed item is re-enqueued until it
// runs out of attempts, then dropped with a failure audit record.
type Worker struct {
	queue       *Queue
	settler     Settler
	audit       auditRecorder
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int

	// touched only from the Run goroutine
	attempts map[uuid.UUID]int
}

func NewWorker(queue *Queue, settler Settler, audit auditRecorder, logger *slog.Logger, interval time.Duration, batchSize, maxAttempts int) *Worker {
	return &Worker{
		queue:       queue,
		settler:     settler,
		audit:       audit,
		logger:      logger,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		attempts:    make(map[uuid.UUID]int),
	}
}

// Run blocks until ctx is cancelled, then makes one final drain pass so a
// clean shutdown does not strand items that were already queued.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("settlement worker started",
		"interval", w.interval,
		"batch_size", w.batchSize,
		"max_attempts", w.maxAttempts,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settlement worker stopping, draining remaining items")
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			w.drainBatch(flushCtx, w.queue.Size())
			cancel()
			w.logger.Info("settlement worker stopped")
			return
		case <-ticker.C:
			w.drainBatch(ctx, w.batchSize)
		}
	}
}

func (w *Worker) drainBatch(ctx context.Context, limit int) {
	batch := w.queue.DrainTo(limit)
	if len(batch) == 0 {
		metrics.QueueDepth.Set(float64(w.queue.Size()))
		return
	}

	metrics.SettlementBatches.Inc()

	var settled, failed, retried int
	for _, tx := range batch {
		if err := w.settler.Settle(ctx, tx); err != nil {
			w.attempts[tx.ID]++
			if w.attempts[tx.ID] < w.maxAttempts {
				retried++
				w.queue.Enqueue(tx)
				w.logger.Warn("settlement attempt failed, re-enqueued",
					"transaction_id", tx.ID,
					"attempt", w.attempts[tx.ID],
					"error", err,
				)
				continue
			}

			failed++
			delete(w.attempts, tx.ID)
			metrics.SettlementsFailed.Inc()
			w.logger.Error("settlement abandoned after max attempts",
				"transaction_id", tx.ID,
				"attempts", w.maxAttempts,
				"error", err,
			)
			w.audit.Failure(ctx, "system", "SETTLEMENT", "TRANSACTION", tx.ID.String(),
				"settlement abandoned after max attempts", err.Error())
			continue
		}

		settled++
		delete(w.attempts, tx.ID)
		metrics.SettlementsCompleted.Inc()
	}

	metrics.QueueDepth.Set(float64(w.queue.Size()))

	w.logger.Info("settlement batch complete",
		"batch", len(batch),
		"settled", settled,
		"retried", retried,
		"failed", failed,
	)
	w.audit.Success(ctx, "system", "BATCH_SETTLEMENT", "SETTLEMENT", "batch",
		"settlement batch complete", map[string]any{
			"batch":   len(batch),
			"settled": settled,
			"retried": retried,
			"failed":  failed,
		})
}
