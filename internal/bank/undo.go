package bank

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/atlasbank/settlement-core/internal/domain"
	"github.com/atlasbank/settlement-core/internal/logging"
)

// Undo reverses the account's most recent completed transaction. The
// second return is false when there is nothing to undo, which is a benign
// outcome, not an error.
//
// A transfer sits on both accounts' histories; whichever side undoes it
// first reverses the balances, and the stale sibling entry becomes a
// stack-only move. The status check and the reversal run as one step
// under the account locks, so concurrent undos of the same transfer
// cannot both apply.
func (s *Service) Undo(ctx context.Context, accountID uuid.UUID) (*domain.Transaction, bool, error) {
	tx, ok := s.history.PopUndo(accountID)
	if !ok {
		return nil, false, nil
	}

	applied, err := s.applyReverse(tx, "reversed by undo")
	if err != nil {
		// put the entry back where it was
		s.history.PopRedo(accountID)
		s.audit.Failure(ctx, actorFrom(ctx), "UNDO", "TRANSACTION", tx.ID.String(), "undo rejected", err.Error())
		return nil, false, fmt.Errorf("Undo: %w", err)
	}
	if !applied {
		logging.FromContext(ctx).Info("undo skipped, entry no longer reversible", "transaction_id", tx.ID)
		return tx, true, nil
	}
	s.persistUndoRedo(ctx, tx)

	logging.FromContext(ctx).Info("transaction undone", "transaction_id", tx.ID, "type", tx.Type, "amount", tx.Amount)
	s.audit.Success(ctx, actorFrom(ctx), "UNDO", "TRANSACTION", tx.ID.String(),
		fmt.Sprintf("reversed %s of %s", tx.Type, tx.Amount), nil)

	return tx, true, nil
}

// Redo re-applies the account's most recently undone transaction.
func (s *Service) Redo(ctx context.Context, accountID uuid.UUID) (*domain.Transaction, bool, error) {
	tx, ok := s.history.PopRedo(accountID)
	if !ok {
		return nil, false, nil
	}

	applied, err := s.applyForward(tx, "reinstated by redo")
	if err != nil {
		s.history.PopUndo(accountID)
		s.audit.Failure(ctx, actorFrom(ctx), "REDO", "TRANSACTION", tx.ID.String(), "redo rejected", err.Error())
		return nil, false, fmt.Errorf("Redo: %w", err)
	}
	if !applied {
		logging.FromContext(ctx).Info("redo skipped, entry not in reversed state", "transaction_id", tx.ID)
		return tx, true, nil
	}
	s.persistUndoRedo(ctx, tx)

	logging.FromContext(ctx).Info("transaction redone", "transaction_id", tx.ID, "type", tx.Type, "amount", tx.Amount)
	s.audit.Success(ctx, actorFrom(ctx), "REDO", "TRANSACTION", tx.ID.String(),
		fmt.Sprintf("re-applied %s of %s", tx.Type, tx.Amount), nil)

	return tx, true, nil
}

// applyReverse applies the inverse balance movement of tx under the
// affected account locks and flips the entry to reversed in the same
// critical section. Returns false without error when the entry is no
// longer reversible (a stale sibling of an already undone transfer).
// All-or-nothing: a guard refusal leaves every balance untouched.
func (s *Service) applyReverse(tx *domain.Transaction, reason string) (bool, error) {
	source, err := s.accounts.GetByID(tx.SourceAccountID)
	if err != nil {
		return false, fmt.Errorf("applyReverse: %w", err)
	}

	switch tx.Type {
	case domain.TransactionTypeDeposit:
		unlock := s.locks.lockAccounts(source.ID)
		defer unlock()
		if !tx.IsReversible() {
			return false, nil
		}
		if !source.CanWithdraw(tx.Amount) {
			return false, fmt.Errorf("applyReverse: deposit reversal: %w", domain.ErrInsufficientFunds)
		}
		source.Withdraw(tx.Amount)
		return true, tx.MarkReversed(reason)

	case domain.TransactionTypeWithdrawal:
		unlock := s.locks.lockAccounts(source.ID)
		defer unlock()
		if !tx.IsReversible() {
			return false, nil
		}
		if !source.IsActive() {
			return false, fmt.Errorf("applyReverse: withdrawal reversal: %w", domain.ErrAccountNotActive)
		}
		source.Deposit(tx.Amount)
		return true, tx.MarkReversed(reason)

	case domain.TransactionTypeTransfer:
		dest, err := s.accounts.GetByID(*tx.DestAccountID)
		if err != nil {
			return false, fmt.Errorf("applyReverse: %w", err)
		}
		unlock := s.locks.lockAccounts(source.ID, dest.ID)
		defer unlock()
		if !tx.IsReversible() {
			return false, nil
		}
		if !dest.CanWithdraw(tx.Amount) {
			return false, fmt.Errorf("applyReverse: transfer reversal: %w", domain.ErrInsufficientFunds)
		}
		dest.Withdraw(tx.Amount)
		source.Deposit(tx.Amount)
		return true, tx.MarkReversed(reason)

	default:
		return false, nil
	}
}

// applyForward re-applies the original balance movement of tx, flipping
// it back to completed in the same critical section. Returns false
// without error when the entry is not in the reversed state.
func (s *Service) applyForward(tx *domain.Transaction, reason string) (bool, error) {
	source, err := s.accounts.GetByID(tx.SourceAccountID)
	if err != nil {
		return false, fmt.Errorf("applyForward: %w", err)
	}

	switch tx.Type {
	case domain.TransactionTypeDeposit:
		unlock := s.locks.lockAccounts(source.ID)
		defer unlock()
		if tx.Status != domain.TransactionStatusReversed {
			return false, nil
		}
		if !source.IsActive() {
			return false, fmt.Errorf("applyForward: %w", domain.ErrAccountNotActive)
		}
		source.Deposit(tx.Amount)
		return true, tx.MarkReinstated(reason)

	case domain.TransactionTypeWithdrawal:
		unlock := s.locks.lockAccounts(source.ID)
		defer unlock()
		if tx.Status != domain.TransactionStatusReversed {
			return false, nil
		}
		if !source.CanWithdraw(tx.Amount) {
			return false, fmt.Errorf("applyForward: %w", domain.ErrInsufficientFunds)
		}
		source.Withdraw(tx.Amount)
		return true, tx.MarkReinstated(reason)

	case domain.TransactionTypeTransfer:
		dest, err := s.accounts.GetByID(*tx.DestAccountID)
		if err != nil {
			return false, fmt.Errorf("applyForward: %w", err)
		}
		unlock := s.locks.lockAccounts(source.ID, dest.ID)
		defer unlock()
		if tx.Status != domain.TransactionStatusReversed {
			return false, nil
		}
		if !source.CanWithdraw(tx.Amount) {
			return false, fmt.Errorf("applyForward: %w", domain.ErrInsufficientFunds)
		}
		source.Withdraw(tx.Amount)
		dest.Deposit(tx.Amount)
		return true, tx.MarkReinstated(reason)

	default:
		return false, nil
	}
}

func (s *Service) persistUndoRedo(ctx context.Context, tx *domain.Transaction) {
	accounts := []uuid.UUID{tx.SourceAccountID}
	if tx.DestAccountID != nil {
		accounts = append(accounts, *tx.DestAccountID)
	}

	log := logging.FromContext(ctx)
	for _, id := range accounts {
		a, err := s.accounts.GetByID(id)
		if err != nil {
			continue
		}
		if err := s.persister.SaveAccount(ctx, a); err != nil {
			log.Error("account snapshot failed", "account_id", id, "error", err)
		}
	}
	if err := s.persister.SaveTransaction(ctx, tx); err != nil {
		log.Error("transaction snapshot failed", "transaction_id", tx.ID, "error", err)
	}
}

// ClearHistory drops the undo/redo record for one account, typically on
// account reset.
func (s *Service) ClearHistory(accountID uuid.UUID) {
	s.history.Clear(accountID)
}

// CanUndo reports whether the account has anything to undo.
func (s *Service) CanUndo(accountID uuid.UUID) bool {
	return s.history.CanUndo(accountID)
}

// CanRedo reports whether the account has anything to redo.
func (s *Service) CanRedo(accountID uuid.UUID) bool {
	return s.history.CanRedo(accountID)
}
