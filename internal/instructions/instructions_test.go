package instructions

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlasbank/settlement-core/internal/bank"
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

func newApplier(t *testing.T, balances map[string]int64) (*Applier, *bank.Registry) {
	t.Helper()

	registry := bank.NewRegistry()
	for number, balance := range balances {
		a := domain.NewAccount(number, "Holder "+number, domain.AccountTypeSavings)
		a.Balance = decimal.NewFromInt(balance)
		require.NoError(t, registry.Register(a))
	}
	svc := bank.NewService(registry, history.New(), settlement.NewQueue(), nopPersister{}, nopAudit{})
	return NewApplier(svc, registry), registry
}

func TestApplyFeed(t *testing.T) {
	applier, registry := newApplier(t, map[string]int64{"ACC-1": 100, "ACC-2": 0})

	feed := strings.Join([]string{
		`# morning batch`,
		`{"op":"deposit","account":"ACC-1","amount":"50","description":"salary","actor":"teller-7"}`,
		``,
		`{"op":"transfer","account":"ACC-1","dest":"ACC-2","amount":"30","description":"rent"}`,
		`{"op":"withdraw","account":"ACC-2","amount":"10"}`,
	}, "\n")

	res, err := applier.Apply(context.Background(), strings.NewReader(feed))
	require.NoError(t, err)
	require.Equal(t, Result{Applied: 3}, res)

	a1, err := registry.GetByNumber("ACC-1")
	require.NoError(t, err)
	require.True(t, a1.Balance.Equal(decimal.NewFromInt(120)))

	a2, err := registry.GetByNumber("ACC-2")
	require.NoError(t, err)
	require.True(t, a2.Balance.Equal(decimal.NewFromInt(20)))
}

func TestApplyUndoRedo(t *testing.T) {
	applier, registry := newApplier(t, map[string]int64{"ACC-1": 100})

	feed := strings.Join([]string{
		`{"op":"deposit","account":"ACC-1","amount":"40"}`,
		`{"op":"undo","account":"ACC-1"}`,
		`{"op":"redo","account":"ACC-1"}`,
	}, "\n")

	res, err := applier.Apply(context.Background(), strings.NewReader(feed))
	require.NoError(t, err)
	require.Equal(t, Result{Applied: 3}, res)

	a, err := registry.GetByNumber("ACC-1")
	require.NoError(t, err)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(140)))
}

func TestApplyCountsRejectionsAndMalformedLines(t *testing.T) {
	applier, registry := newApplier(t, map[string]int64{"ACC-1": 10})

	feed := strings.Join([]string{
		`{"op":"withdraw","account":"ACC-1","amount":"999"}`,
		`not json at all`,
		`{"op":"freeze","account":"ACC-1"}`,
		`{"op":"deposit","account":"ACC-MISSING","amount":"5"}`,
		`{"op":"deposit","account":"ACC-1","amount":"5"}`,
	}, "\n")

	res, err := applier.Apply(context.Background(), strings.NewReader(feed))
	require.NoError(t, err)
	require.Equal(t, Result{Applied: 1, Rejected: 3, Malformed: 1}, res)

	a, err := registry.GetByNumber("ACC-1")
	require.NoError(t, err)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(15)))
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	applier, _ := newApplier(t, map[string]int64{"ACC-1": 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := applier.Apply(ctx, strings.NewReader(`{"op":"deposit","account":"ACC-1","amount":"5"}`))
	require.ErrorIs(t, err, context.Canceled)
}
