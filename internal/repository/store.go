package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlasbank/settlement-core/internal/domain"
)

// Store bundles the snapshot repositories behind the single persister
// surface the service layer depends on.
type Store struct {
	Accounts     *AccountRepository
	Transactions *TransactionRepository
	Audit        *AuditRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Accounts:     NewAccountRepository(db),
		Transactions: NewTransactionRepository(db),
		Audit:        NewAuditRepository(db),
	}
}

func (s *Store) SaveAccount(ctx context.Context, a *domain.Account) error {
	if err := s.Accounts.Save(ctx, a); err != nil {
		return fmt.Errorf("SaveAccount: %w", err)
	}
	return nil
}

func (s *Store) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := s.Transactions.Save(ctx, tx); err != nil {
		return fmt.Errorf("SaveTransaction: %w", err)
	}
	return nil
}
