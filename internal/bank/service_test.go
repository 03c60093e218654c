package bank

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlasbank/settlement-core/internal/domain"
	"github.com/atlasbank/settlement-core/internal/history"
	"github.com/atlasbank/settlement-core/internal/settlement"
)

type nopPersister struct{}

func (nopPersister) SaveAccount(context.Context, *domain.Account) error         { return nil }
func (nopPersister) SaveTransaction(context.Context, *domain.Transaction) error { return nil }

type nopAudit struct{}

func (nopAudit) Success(context.Context, string, string, string, string, string, map[string]any) {}
func (nopAudit) Failure(context.Context, string, string, string, string, string, string)        {}

type fixture struct {
	svc   *Service
	queue *settlement.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	q := settlement.NewQueue()
	svc := NewService(NewRegistry(), history.New(), q, nopPersister{}, nopAudit{})
	return &fixture{svc: svc, queue: q}
}

func (f *fixture) seedAccount(t *testing.T, number string, balance int64) *domain.Account {
	t.Helper()

	a := domain.NewAccount(number, "Test Holder", domain.AccountTypeSavings)
	a.Balance = decimal.NewFromInt(balance)
	require.NoError(t, f.svc.accounts.Register(a))
	return a
}

func amt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestProcessDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("increases balance by exactly the amount", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		tx, err := f.svc.ProcessDeposit(ctx, "ACC-1", amt(40), "salary")

		require.NoError(t, err)
		require.Equal(t, domain.TransactionStatusCompleted, tx.Status)
		require.True(t, a.Balance.Equal(amt(140)))
		require.Equal(t, domain.AccountStatusActive, a.Status)
		require.True(t, f.svc.CanUndo(a.ID))
		require.Equal(t, 1, f.queue.PendingCount())
		require.True(t, f.queue.IsPending(tx.ID))
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.ProcessDeposit(ctx, "ACC-MISSING", amt(10), "x")

		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		_, err := f.svc.ProcessDeposit(ctx, "ACC-1", amt(0), "x")
		require.ErrorIs(t, err, domain.ErrInvalidAmount)

		_, err = f.svc.ProcessDeposit(ctx, "ACC-1", amt(-5), "x")
		require.ErrorIs(t, err, domain.ErrInvalidAmount)

		require.True(t, a.Balance.Equal(amt(100)))
		require.True(t, f.queue.IsEmpty())
	})

	t.Run("suspended account", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)
		a.Status = domain.AccountStatusSuspended

		_, err := f.svc.ProcessDeposit(ctx, "ACC-1", amt(10), "x")

		require.ErrorIs(t, err, domain.ErrAccountNotActive)
		require.True(t, a.Balance.Equal(amt(100)))
	})
}

func TestProcessWithdrawal(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds up to the full balance", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		tx, err := f.svc.ProcessWithdrawal(ctx, "ACC-1", amt(100), "rent")

		require.NoError(t, err)
		require.Equal(t, domain.TransactionStatusCompleted, tx.Status)
		require.True(t, a.Balance.IsZero())
	})

	t.Run("insufficient balance leaves state untouched", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		_, err := f.svc.ProcessWithdrawal(ctx, "ACC-1", amt(101), "too much")

		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		require.True(t, a.Balance.Equal(amt(100)))
		require.False(t, f.svc.CanUndo(a.ID))
		require.True(t, f.queue.IsEmpty())
	})

	t.Run("closed account", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)
		a.Status = domain.AccountStatusClosed

		_, err := f.svc.ProcessWithdrawal(ctx, "ACC-1", amt(10), "x")

		require.ErrorIs(t, err, domain.ErrAccountNotActive)
		require.True(t, a.Balance.Equal(amt(100)))
	})
}

func TestProcessTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds atomically", func(t *testing.T) {
		f := newFixture(t)
		src := f.seedAccount(t, "ACC-1", 300)
		dst := f.seedAccount(t, "ACC-2", 50)

		tx, err := f.svc.ProcessTransfer(ctx, "ACC-1", "ACC-2", amt(120), "invoice")

		require.NoError(t, err)
		require.Equal(t, domain.TransactionStatusCompleted, tx.Status)
		require.True(t, tx.IsTransfer())
		require.True(t, src.Balance.Equal(amt(180)))
		require.True(t, dst.Balance.Equal(amt(170)))
		require.True(t, f.svc.CanUndo(src.ID))
		require.True(t, f.svc.CanUndo(dst.ID))
	})

	t.Run("insufficient funds changes neither balance", func(t *testing.T) {
		f := newFixture(t)
		src := f.seedAccount(t, "ACC-1", 100)
		dst := f.seedAccount(t, "ACC-2", 50)

		_, err := f.svc.ProcessTransfer(ctx, "ACC-1", "ACC-2", amt(101), "x")

		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		require.True(t, src.Balance.Equal(amt(100)))
		require.True(t, dst.Balance.Equal(amt(50)))
	})

	t.Run("same account rejected", func(t *testing.T) {
		f := newFixture(t)
		f.seedAccount(t, "ACC-1", 100)

		_, err := f.svc.ProcessTransfer(ctx, "ACC-1", "ACC-1", amt(10), "x")

		require.ErrorIs(t, err, domain.ErrSameAccountTransfer)
	})

	t.Run("inactive destination changes neither balance", func(t *testing.T) {
		f := newFixture(t)
		src := f.seedAccount(t, "ACC-1", 100)
		dst := f.seedAccount(t, "ACC-2", 50)
		dst.Status = domain.AccountStatusInactive

		_, err := f.svc.ProcessTransfer(ctx, "ACC-1", "ACC-2", amt(10), "x")

		require.ErrorIs(t, err, domain.ErrAccountNotActive)
		require.True(t, src.Balance.Equal(amt(100)))
		require.True(t, dst.Balance.Equal(amt(50)))
	})
}

func TestUndoRedo(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit round trip", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		tx, err := f.svc.ProcessDeposit(ctx, "ACC-1", amt(40), "salary")
		require.NoError(t, err)

		undone, ok, err := f.svc.Undo(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Same(t, tx, undone)
		require.True(t, a.Balance.Equal(amt(100)))
		require.Equal(t, domain.TransactionStatusReversed, tx.Status)
		require.False(t, f.svc.CanUndo(a.ID))
		require.True(t, f.svc.CanRedo(a.ID))

		redone, ok, err := f.svc.Redo(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Same(t, tx, redone)
		require.True(t, a.Balance.Equal(amt(140)))
		require.Equal(t, domain.TransactionStatusCompleted, tx.Status)
		require.True(t, f.svc.CanUndo(a.ID))
		require.False(t, f.svc.CanRedo(a.ID))
	})

	t.Run("withdrawal round trip", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		_, err := f.svc.ProcessWithdrawal(ctx, "ACC-1", amt(30), "rent")
		require.NoError(t, err)
		require.True(t, a.Balance.Equal(amt(70)))

		_, ok, err := f.svc.Undo(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, a.Balance.Equal(amt(100)))

		_, ok, err = f.svc.Redo(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, a.Balance.Equal(amt(70)))
	})

	t.Run("transfer undo restores both balances", func(t *testing.T) {
		f := newFixture(t)
		src := f.seedAccount(t, "ACC-1", 300)
		dst := f.seedAccount(t, "ACC-2", 50)

		_, err := f.svc.ProcessTransfer(ctx, "ACC-1", "ACC-2", amt(120), "invoice")
		require.NoError(t, err)

		_, ok, err := f.svc.Undo(ctx, src.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, src.Balance.Equal(amt(300)))
		require.True(t, dst.Balance.Equal(amt(50)))
	})

	t.Run("transfer already undone from the other side is a stack-only move", func(t *testing.T) {
		f := newFixture(t)
		src := f.seedAccount(t, "ACC-1", 300)
		dst := f.seedAccount(t, "ACC-2", 50)

		_, err := f.svc.ProcessTransfer(ctx, "ACC-1", "ACC-2", amt(120), "invoice")
		require.NoError(t, err)

		_, ok, err := f.svc.Undo(ctx, dst.ID)
		require.NoError(t, err)
		require.True(t, ok)

		// the entry is still on the source stack but must not reverse twice
		_, ok, err = f.svc.Undo(ctx, src.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, src.Balance.Equal(amt(300)))
		require.True(t, dst.Balance.Equal(amt(50)))
	})

	t.Run("empty history is a benign no-op", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		tx, ok, err := f.svc.Undo(ctx, a.ID)
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, tx)

		tx, ok, err = f.svc.Redo(ctx, a.ID)
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, tx)
	})

	t.Run("new mutation invalidates redo", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 100)

		_, err := f.svc.ProcessDeposit(ctx, "ACC-1", amt(40), "first")
		require.NoError(t, err)
		_, ok, err := f.svc.Undo(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, f.svc.CanRedo(a.ID))

		_, err = f.svc.ProcessDeposit(ctx, "ACC-1", amt(10), "second")
		require.NoError(t, err)

		require.False(t, f.svc.CanRedo(a.ID))
	})

	t.Run("undo blocked by spent funds restores the stack", func(t *testing.T) {
		f := newFixture(t)
		a := f.seedAccount(t, "ACC-1", 0)

		_, err := f.svc.ProcessDeposit(ctx, "ACC-1", amt(100), "deposit")
		require.NoError(t, err)

		// drain most of the funds outside the history, as an external
		// sweep would
		a.Withdraw(amt(80))

		// deposit undo needs 100 but only 20 remains
		_, _, err = f.svc.Undo(ctx, a.ID)
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		require.True(t, a.Balance.Equal(amt(20)))
		require.True(t, f.svc.CanUndo(a.ID), "failed undo must leave the entry on the undo stack")
		require.False(t, f.svc.CanRedo(a.ID))
	})
}

func TestConcurrentUndoOfSharedTransfer(t *testing.T) {
	ctx := context.Background()

	// the same transfer sits on both accounts' undo stacks; undoing it
	// from both sides at once must reverse the balances exactly once
	for range 500 {
		f := newFixture(t)
		src := f.seedAccount(t, "ACC-A", 300)
		dst := f.seedAccount(t, "ACC-B", 50)

		tx, err := f.svc.ProcessTransfer(ctx, "ACC-A", "ACC-B", amt(120), "invoice")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = f.svc.Undo(ctx, src.ID)
		}()
		go func() {
			defer wg.Done()
			_, _, _ = f.svc.Undo(ctx, dst.ID)
		}()
		wg.Wait()

		require.True(t, src.Balance.Equal(amt(300)), "source balance %s after double undo", src.Balance)
		require.True(t, dst.Balance.Equal(amt(50)), "destination balance %s after double undo", dst.Balance)
		require.Equal(t, domain.TransactionStatusReversed, tx.Status)
	}
}

func TestConcurrentOppositeTransfers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.seedAccount(t, "ACC-A", 10_000)
	b := f.seedAccount(t, "ACC-B", 10_000)

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range rounds {
			_, _ = f.svc.ProcessTransfer(ctx, "ACC-A", "ACC-B", amt(7), "a to b")
		}
	}()
	go func() {
		defer wg.Done()
		for range rounds {
			_, _ = f.svc.ProcessTransfer(ctx, "ACC-B", "ACC-A", amt(7), "b to a")
		}
	}()
	wg.Wait()

	total := a.Balance.Add(b.Balance)
	require.True(t, total.Equal(amt(20_000)), "funds must be conserved, got %s", total)
	require.False(t, a.Balance.IsNegative())
	require.False(t, b.Balance.IsNegative())
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.seedAccount(t, "ACC-1", 100)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.ProcessWithdrawal(ctx, "ACC-1", amt(7), "race")
		}()
	}
	wg.Wait()

	require.False(t, a.Balance.IsNegative())
	// 14 withdrawals of 7 fit into 100; the 15th must have been rejected
	require.True(t, a.Balance.Equal(amt(2)), "got %s", a.Balance)
}
