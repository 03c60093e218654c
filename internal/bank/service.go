// Package bank orchestrates deposits, withdrawals, transfers and
// undo/redo over the in-memory core: balance guard, undo/redo history and
// settlement queue. Persistence and audit are external collaborators
// invoked after a mutation succeeds, outside any account lock.
package bank

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlasbank/settlement-core/internal/domain"
	"github.com/atlasbank/settlement-core/internal/history"
	"github.com/atlasbank/settlement-core/internal/logging"
	"github.com/atlasbank/settlement-core/internal/metrics"
	"github.com/atlasbank/settlement-core/internal/settlement"
)

// Persister snapshots accounts and transactions to durable storage.
// Snapshot failures are logged and audited but never roll back an applied
// mutation: the in-memory core is the source of truth.
type Persister interface {
	SaveAccount(ctx context.Context, a *domain.Account) error
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
}

type auditRecorder interface {
	Success(ctx context.Context, actor, action, entityType, entityID, description string, details map[string]any)
	Failure(ctx context.Context, actor, action, entityType, entityID, description, errDetail string)
}

type Service struct {
	accounts  *Registry
	history   *history.History
	queue     *settlement.Queue
	persister Persister
	audit     auditRecorder
	locks     *keyedLocks
}

func NewService(accounts *Registry, hist *history.History, queue *settlement.Queue, persister Persister, audit auditRecorder) *Service {
	return &Service{
		accounts:  accounts,
		history:   hist,
		queue:     queue,
		persister: persister,
		audit:     audit,
		locks:     newKeyedLocks(),
	}
}

// ProcessDeposit credits amount to the account, records the completed
// ledger entry, pushes it onto the undo history and queues it for batch
// settlement.
func (s *Service) ProcessDeposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	account, err := s.accounts.GetByNumber(accountNumber)
	if err != nil {
		s.audit.Failure(ctx, actorFrom(ctx), "DEPOSIT", "ACCOUNT", accountNumber, "deposit rejected", err.Error())
		return nil, fmt.Errorf("ProcessDeposit: %w", err)
	}
	if !amount.IsPositive() {
		s.audit.Failure(ctx, actorFrom(ctx), "DEPOSIT", "ACCOUNT", accountNumber, "deposit rejected", domain.ErrInvalidAmount.Error())
		return nil, fmt.Errorf("ProcessDeposit: %w", domain.ErrInvalidAmount)
	}

	tx, err := domain.NewTransaction(domain.TransactionTypeDeposit, amount, account.ID, nil, description)
	if err != nil {
		return nil, fmt.Errorf("ProcessDeposit: %w", err)
	}

	unlock := s.locks.lockAccounts(account.ID)
	if !account.IsActive() {
		unlock()
		s.audit.Failure(ctx, actorFrom(ctx), "DEPOSIT", "ACCOUNT", accountNumber, "deposit rejected", domain.ErrAccountNotActive.Error())
		return nil, fmt.Errorf("ProcessDeposit: %w", domain.ErrAccountNotActive)
	}
	account.Deposit(amount)
	if err := tx.MarkCompleted(); err != nil {
		unlock()
		return nil, fmt.Errorf("ProcessDeposit: %w", err)
	}
	newBalance := account.Balance
	unlock()

	s.finishMutation(ctx, tx, account)

	logging.FromContext(ctx).Info("deposit completed",
		"transaction_id", tx.ID,
		"account", accountNumber,
		"amount", amount,
		"new_balance", newBalance,
	)
	s.audit.Success(ctx, actorFrom(ctx), "DEPOSIT", "ACCOUNT", account.ID.String(),
		fmt.Sprintf("deposit of %s to account %s", amount, accountNumber),
		map[string]any{"transaction_id": tx.ID, "amount": amount, "new_balance": newBalance})
	metrics.TransactionsProcessed.WithLabelValues(string(tx.Type), "completed").Inc()

	return tx, nil
}

// ProcessWithdrawal debits amount from the account iff the balance guard
// permits it. The guard's silent no-op is never relied upon: preconditions
// are re-checked under the account lock and surfaced as errors.
func (s *Service) ProcessWithdrawal(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	account, err := s.accounts.GetByNumber(accountNumber)
	if err != nil {
		s.audit.Failure(ctx, actorFrom(ctx), "WITHDRAWAL", "ACCOUNT", accountNumber, "withdrawal rejected", err.Error())
		return nil, fmt.Errorf("ProcessWithdrawal: %w", err)
	}
	if !amount.IsPositive() {
		s.audit.Failure(ctx, actorFrom(ctx), "WITHDRAWAL", "ACCOUNT", accountNumber, "withdrawal rejected", domain.ErrInvalidAmount.Error())
		return nil, fmt.Errorf("ProcessWithdrawal: %w", domain.ErrInvalidAmount)
	}

	tx, err := domain.NewTransaction(domain.TransactionTypeWithdrawal, amount, account.ID, nil, description)
	if err != nil {
		return nil, fmt.Errorf("ProcessWithdrawal: %w", err)
	}

	unlock := s.locks.lockAccounts(account.ID)
	if !account.IsActive() {
		unlock()
		s.audit.Failure(ctx, actorFrom(ctx), "WITHDRAWAL", "ACCOUNT", accountNumber, "withdrawal rejected", domain.ErrAccountNotActive.Error())
		return nil, fmt.Errorf("ProcessWithdrawal: %w", domain.ErrAccountNotActive)
	}
	if !account.CanWithdraw(amount) {
		unlock()
		s.audit.Failure(ctx, actorFrom(ctx), "WITHDRAWAL", "ACCOUNT", accountNumber, "withdrawal rejected", domain.ErrInsufficientFunds.Error())
		return nil, fmt.Errorf("ProcessWithdrawal: %w", domain.ErrInsufficientFunds)
	}
	account.Withdraw(amount)
	if err := tx.MarkCompleted(); err != nil {
		unlock()
		return nil, fmt.Errorf("ProcessWithdrawal: %w", err)
	}
	newBalance := account.Balance
	unlock()

	s.finishMutation(ctx, tx, account)

	logging.FromContext(ctx).Info("withdrawal completed",
		"transaction_id", tx.ID,
		"account", accountNumber,
		"amount", amount,
		"new_balance", newBalance,
	)
	s.audit.Success(ctx, actorFrom(ctx), "WITHDRAWAL", "ACCOUNT", account.ID.String(),
		fmt.Sprintf("withdrawal of %s from account %s", amount, accountNumber),
		map[string]any{"transaction_id": tx.ID, "amount": amount, "new_balance": newBalance})
	metrics.TransactionsProcessed.WithLabelValues(string(tx.Type), "completed").Inc()

	return tx, nil
}

// ProcessTransfer atomically debits the source and credits the
// destination. Both account locks are taken in a fixed global order, so
// concurrent opposite-direction transfers cannot deadlock. Either both
// balances change or neither does.
func (s *Service) ProcessTransfer(ctx context.Context, sourceNumber, destNumber string, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if sourceNumber == destNumber {
		s.audit.Failure(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", sourceNumber, "transfer rejected", domain.ErrSameAccountTransfer.Error())
		return nil, fmt.Errorf("ProcessTransfer: %w", domain.ErrSameAccountTransfer)
	}
	source, err := s.accounts.GetByNumber(sourceNumber)
	if err != nil {
		s.audit.Failure(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", sourceNumber, "transfer rejected", err.Error())
		return nil, fmt.Errorf("ProcessTransfer: source: %w", err)
	}
	dest, err := s.accounts.GetByNumber(destNumber)
	if err != nil {
		s.audit.Failure(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", destNumber, "transfer rejected", err.Error())
		return nil, fmt.Errorf("ProcessTransfer: destination: %w", err)
	}
	if !amount.IsPositive() {
		s.audit.Failure(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", sourceNumber, "transfer rejected", domain.ErrInvalidAmount.Error())
		return nil, fmt.Errorf("ProcessTransfer: %w", domain.ErrInvalidAmount)
	}

	tx, err := domain.NewTransaction(domain.TransactionTypeTransfer, amount, source.ID, &dest.ID, description)
	if err != nil {
		return nil, fmt.Errorf("ProcessTransfer: %w", err)
	}

	unlock := s.locks.lockAccounts(source.ID, dest.ID)
	if !source.IsActive() {
		unlock()
		s.audit.Failure(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", sourceNumber, "transfer rejected", domain.ErrAccountNotActive.Error())
		return nil, fmt.Errorf("ProcessTransfer: source: %w", domain.ErrAccountNotActive)
	}
	if !dest.IsActive() {
		unlock()
		s.audit.Failure(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", destNumber, "transfer rejected", domain.ErrAccountNotActive.Error())
		return nil, fmt.Errorf("ProcessTransfer: destination: %w", domain.ErrAccountNotActive)
	}
	if !source.CanWithdraw(amount) {
		unlock()
		s.audit.Failure(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", sourceNumber, "transfer rejected", domain.ErrInsufficientFunds.Error())
		return nil, fmt.Errorf("ProcessTransfer: %w", domain.ErrInsufficientFunds)
	}
	source.Withdraw(amount)
	dest.Deposit(amount)
	if err := tx.MarkCompleted(); err != nil {
		unlock()
		return nil, fmt.Errorf("ProcessTransfer: %w", err)
	}
	sourceBalance, destBalance := source.Balance, dest.Balance
	unlock()

	s.history.PushUndo(source.ID, tx)
	s.history.PushUndo(dest.ID, tx)
	s.queue.Enqueue(tx)
	s.persist(ctx, tx, source, dest)

	logging.FromContext(ctx).Info("transfer completed",
		"transaction_id", tx.ID,
		"source", sourceNumber,
		"destination", destNumber,
		"amount", amount,
		"source_balance", sourceBalance,
		"destination_balance", destBalance,
	)
	s.audit.Success(ctx, actorFrom(ctx), "TRANSFER", "ACCOUNT", source.ID.String(),
		fmt.Sprintf("transfer of %s from %s to %s", amount, sourceNumber, destNumber),
		map[string]any{"transaction_id": tx.ID, "amount": amount, "source_balance": sourceBalance, "destination_balance": destBalance})
	metrics.TransactionsProcessed.WithLabelValues(string(tx.Type), "completed").Inc()

	return tx, nil
}

// finishMutation does the post-lock bookkeeping shared by deposits and
// withdrawals: history push, settlement enqueue, snapshot persistence.
func (s *Service) finishMutation(ctx context.Context, tx *domain.Transaction, account *domain.Account) {
	s.history.PushUndo(account.ID, tx)
	s.queue.Enqueue(tx)
	s.persist(ctx, tx, account)
}

// persist snapshots the accounts before the transaction so the ledger
// row's account references always resolve.
func (s *Service) persist(ctx context.Context, tx *domain.Transaction, accounts ...*domain.Account) {
	log := logging.FromContext(ctx)
	for _, a := range accounts {
		if err := s.persister.SaveAccount(ctx, a); err != nil {
			log.Error("account snapshot failed", "account_id", a.ID, "error", err)
		}
	}
	if err := s.persister.SaveTransaction(ctx, tx); err != nil {
		log.Error("transaction snapshot failed", "transaction_id", tx.ID, "error", err)
	}
}

type actorKey struct{}

// WithActor tags the context with the identity audited for subsequent
// operations; "system" is recorded when absent.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
