package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeInterest   TransactionType = "interest"
	TransactionTypeFee        TransactionType = "fee"
	TransactionTypeRefund     TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// Transaction is a single ledger entry. Status moves one way:
// pending -> completed | failed | cancelled, and completed -> reversed
// for reversible types. Invalid transitions are rejected, never coerced.
type Transaction struct {
	ID              uuid.UUID
	Reference       string
	Type            TransactionType
	Amount          decimal.Decimal
	SourceAccountID uuid.UUID
	DestAccountID   *uuid.UUID
	Description     string
	Status          TransactionStatus
	Remarks         *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var referencePrefixes = map[TransactionType]string{
	TransactionTypeDeposit:    "DEP",
	TransactionTypeWithdrawal: "WTH",
	TransactionTypeTransfer:   "TRF",
	TransactionTypeInterest:   "INT",
	TransactionTypeFee:        "FEE",
	TransactionTypeRefund:     "RFD",
}

// NewTransaction builds a pending ledger entry. The destination account is
// required for transfers and forbidden for every other type.
func NewTransaction(txType TransactionType, amount decimal.Decimal, sourceAccountID uuid.UUID, destAccountID *uuid.UUID, description string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("NewTransaction: %w", ErrInvalidAmount)
	}
	if txType == TransactionTypeTransfer && destAccountID == nil {
		return nil, fmt.Errorf("NewTransaction: %w", ErrMissingDestination)
	}
	if txType != TransactionTypeTransfer && destAccountID != nil {
		return nil, fmt.Errorf("NewTransaction: %w", ErrUnexpectedDestination)
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:              uuid.New(),
		Reference:       newReference(txType, now),
		Type:            txType,
		Amount:          amount,
		SourceAccountID: sourceAccountID,
		DestAccountID:   destAccountID,
		Description:     description,
		Status:          TransactionStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func newReference(t TransactionType, now time.Time) string {
	prefix, ok := referencePrefixes[t]
	if !ok {
		prefix = "TXN"
	}
	return fmt.Sprintf("%s%d%s", prefix, now.UnixMilli(), uuid.NewString()[:8])
}

func (t *Transaction) IsTransfer() bool {
	return t.Type == TransactionTypeTransfer && t.DestAccountID != nil
}

// IsReversible reports whether the entry can still be reversed: it must be
// completed and of a type that moves money symmetrically.
func (t *Transaction) IsReversible() bool {
	return t.Status == TransactionStatusCompleted && reversibleType(t.Type)
}

func reversibleType(t TransactionType) bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

// MarkCompleted transitions pending -> completed.
func (t *Transaction) MarkCompleted() error {
	if t.Status != TransactionStatusPending {
		return t.transitionError(TransactionStatusCompleted)
	}
	t.Status = TransactionStatusCompleted
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed transitions pending -> failed and records the reason.
func (t *Transaction) MarkFailed(reason string) error {
	if t.Status != TransactionStatusPending {
		return t.transitionError(TransactionStatusFailed)
	}
	t.Status = TransactionStatusFailed
	t.Remarks = &reason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCancelled transitions pending -> cancelled and records the reason.
func (t *Transaction) MarkCancelled(reason string) error {
	if t.Status != TransactionStatusPending {
		return t.transitionError(TransactionStatusCancelled)
	}
	t.Status = TransactionStatusCancelled
	t.Remarks = &reason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkReversed transitions completed -> reversed. Only deposit, withdrawal
// and transfer entries qualify.
func (t *Transaction) MarkReversed(reason string) error {
	if t.Status != TransactionStatusCompleted {
		return t.transitionError(TransactionStatusReversed)
	}
	if !reversibleType(t.Type) {
		return fmt.Errorf("MarkReversed: type %s: %w", t.Type, ErrNotReversible)
	}
	t.Status = TransactionStatusReversed
	t.Remarks = &reason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkReinstated transitions reversed -> completed when a reversal is
// itself rolled back (redo). This is the only backward edge in the
// machine; pending remains unreachable from every later state.
func (t *Transaction) MarkReinstated(reason string) error {
	if t.Status != TransactionStatusReversed {
		return t.transitionError(TransactionStatusCompleted)
	}
	t.Status = TransactionStatusCompleted
	t.Remarks = &reason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *Transaction) transitionError(target TransactionStatus) error {
	return fmt.Errorf("transaction %s: %s -> %s: %w", t.ID, t.Status, target, ErrInvalidTransition)
}
