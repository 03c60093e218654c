package testutil

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlasbank/settlement-core/internal/domain"
)

// SeedAccount inserts an active account row and returns the domain value.
func SeedAccount(t *testing.T, db *sql.DB, number, holderName string, balance int64) *domain.Account {
	t.Helper()

	a := domain.NewAccount(number, holderName, domain.AccountTypeSavings)
	a.Balance = decimal.NewFromInt(balance)

	_, err := db.Exec(
		`INSERT INTO accounts (id, account_number, holder_name, account_type, balance, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Number, a.HolderName, a.AccountType, a.Balance, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", number, err)
	}
	return a
}

// GetAccountBalance reads the stored balance for one account.
func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

// GetTransactionStatus reads the stored status for one ledger entry.
func GetTransactionStatus(t *testing.T, db *sql.DB, txID uuid.UUID) string {
	t.Helper()

	var status string
	err := db.QueryRow(`SELECT status FROM transactions WHERE id = $1`, txID).Scan(&status)
	if err != nil {
		t.Fatalf("get transaction status %s: %v", txID, err)
	}
	return status
}

// IsSettled reports whether the ledger entry carries a settlement stamp.
func IsSettled(t *testing.T, db *sql.DB, txID uuid.UUID) bool {
	t.Helper()

	var settled bool
	err := db.QueryRow(`SELECT settled_at IS NOT NULL FROM transactions WHERE id = $1`, txID).Scan(&settled)
	if err != nil {
		t.Fatalf("check settlement stamp %s: %v", txID, err)
	}
	return settled
}

// CountAuditRecords counts trail entries for one entity.
func CountAuditRecords(t *testing.T, db *sql.DB, entityType, entityID string) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM audit_records WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count audit records %s/%s: %v", entityType, entityID, err)
	}
	return count
}
