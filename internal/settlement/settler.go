package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/atlasbank/settlement-core/internal/domain"
)

type transactionMarker interface {
	MarkSettled(ctx context.Context, id uuid.UUID) error
}

// SnapshotSettler settles a transaction by stamping its durable snapshot.
// The in-memory entry is already completed when it reaches the queue, so
// settlement here is confirmation, not state change.
type SnapshotSettler struct {
	transactions transactionMarker
}

func NewSnapshotSettler(transactions transactionMarker) *SnapshotSettler {
	return &SnapshotSettler{transactions: transactions}
}

func (s *SnapshotSettler) Settle(ctx context.Context, tx *domain.Transaction) error {
	if err := s.transactions.MarkSettled(ctx, tx.ID); err != nil {
		return fmt.Errorf("Settle: %w", err)
	}
	return nil
}
