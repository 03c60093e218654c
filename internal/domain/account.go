package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeSavings          AccountType = "savings"
	AccountTypeCurrent          AccountType = "current"
	AccountTypeFixedDeposit     AccountType = "fixed_deposit"
	AccountTypeRecurringDeposit AccountType = "recurring_deposit"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusInactive  AccountStatus = "inactive"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

// Account is the balance-bearing entity. Its balance never goes negative
// and is only mutated through Deposit/Withdraw, which the service layer
// serializes per account id.
type Account struct {
	ID                uuid.UUID
	Number            string
	HolderName        string
	AccountType       AccountType
	Balance           decimal.Decimal
	Status            AccountStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastTransactionAt *time.Time
}

func NewAccount(number, holderName string, accountType AccountType) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:          uuid.New(),
		Number:      number,
		HolderName:  holderName,
		AccountType: accountType,
		Balance:     decimal.Zero,
		Status:      AccountStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanWithdraw reports whether a withdrawal of amount is permitted: the
// account is active, the amount positive, and the balance sufficient.
// Pure predicate, no side effects.
func (a *Account) CanWithdraw(amount decimal.Decimal) bool {
	return a.Status == AccountStatusActive &&
		amount.IsPositive() &&
		a.Balance.GreaterThanOrEqual(amount)
}

// Deposit adds amount to the balance. Non-positive amounts are a silent
// no-op; callers that need a failure signal must validate up front.
func (a *Account) Deposit(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	a.Balance = a.Balance.Add(amount)
	a.touch()
}

// Withdraw subtracts amount from the balance iff CanWithdraw holds,
// otherwise it is a silent no-op. Callers detect the no-op by re-checking
// state; the guard itself returns nothing.
func (a *Account) Withdraw(amount decimal.Decimal) {
	if !a.CanWithdraw(amount) {
		return
	}
	a.Balance = a.Balance.Sub(amount)
	a.touch()
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

func (a *Account) touch() {
	now := time.Now().UTC()
	a.LastTransactionAt = &now
	a.UpdatedAt = now
}
