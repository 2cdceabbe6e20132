package store_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/punchamoorthee/refledger/internal/service"
	"github.com/punchamoorthee/refledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// openStore connects to TEST_DB_SOURCE and applies the migrations. Tests
// create their own uniquely named rows, so a shared database is fine.
func openStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("TEST_DB_SOURCE not set; skipping Postgres tests")
	}
	require.NoError(t, store.Migrate(dsn))

	s, err := store.NewStore(context.Background(), dsn, 32)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newAccount(t *testing.T, s *store.Store, balance string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	acc := &domain.Account{
		Username:     "it_" + uuid.NewString(),
		ReferralCode: uuid.NewString()[:12],
	}
	require.NoError(t, s.CreateAccount(ctx, acc))

	if b := decimal.RequireFromString(balance); b.IsPositive() {
		require.NoError(t, s.InTx(ctx, func(q domain.Repository) error {
			_, err := service.AccountStore{}.AdjustWithLedger(ctx, q, acc.ID, b, service.EntryFields{
				Kind:        domain.EntryAdminAdjustment,
				Status:      domain.EntryCompleted,
				Description: "Opening balance",
			})
			return err
		}))
	}
	return acc
}

func TestPostgres_ConcurrentApprovalAppliesOnce(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	admin := newAccount(t, s, "0")
	user := newAccount(t, s, "0")
	svc := service.NewLedgerService(s, nil, nil, zap.NewNop())

	req, err := svc.CreateDeposit(ctx, domain.Principal{AccountID: user.ID, Role: domain.RoleUser},
		service.CreateRequest{Amount: decimal.RequireFromString("250.12345678")})
	require.NoError(t, err)

	const racers = 12
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Transition(ctx, domain.Principal{AccountID: admin.ID, Role: domain.RoleAdmin},
				domain.KindDeposit, req.ID, service.Decision{Status: domain.StatusApproved})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var applied, already int
	for err := range errs {
		if err == nil {
			applied++
			continue
		}
		require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
		already++
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, racers-1, already)

	acc, err := s.GetAccount(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "250.12345678", acc.Balance.String())

	entries, err := s.ListEntries(ctx, user.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryDeposit, entries[0].Kind)
	assert.True(t, entries[0].BalanceAfter.Equal(entries[0].BalanceBefore.Add(entries[0].Amount)))
}

func TestPostgres_GuardedAdjustRejectsOverdraft(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	acc := newAccount(t, s, "10.5")

	err := s.InTx(ctx, func(q domain.Repository) error {
		_, err := service.AccountStore{}.AdjustWithLedger(ctx, q, acc.ID, decimal.RequireFromString("-10.50000001"), service.EntryFields{
			Kind:        domain.EntryWithdrawal,
			Status:      domain.EntryPending,
			Description: "overdraft",
		})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.5", got.Balance.String())
	entries, err := s.ListEntries(ctx, acc.ID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the opening entry")

	_, _, err = s.AdjustBalance(ctx, -1, decimal.NewFromInt(1), false)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestPostgres_AdjustReturnsExactSnapshot(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	acc := newAccount(t, s, "1")

	before, after, err := s.AdjustBalance(ctx, acc.ID, decimal.RequireFromString("-0.00000001"), false)
	require.NoError(t, err)
	assert.Equal(t, "1", before.String())
	assert.Equal(t, "0.99999999", after.String())
}

func TestPostgres_LedgerEntriesAreAppendOnly(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	acc := newAccount(t, s, "100")

	entries, err := s.ListEntries(ctx, acc.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	id := entries[0].ID

	_, err = s.Db.Exec(ctx, "UPDATE ledger_entries SET amount = amount + 1, balance_after = balance_after + 1 WHERE id = $1", id)
	assert.ErrorContains(t, err, "only the status")

	_, err = s.Db.Exec(ctx, "DELETE FROM ledger_entries WHERE id = $1", id)
	assert.ErrorContains(t, err, "append-only")

	_, err = s.Db.Exec(ctx, "UPDATE ledger_entries SET status = 'approved' WHERE id = $1", id)
	assert.NoError(t, err)

	_, err = s.Db.Exec(ctx,
		`INSERT INTO ledger_entries (account_id, kind, amount, balance_before, balance_after, status)
		 VALUES ($1, 'admin_adjustment', 5, 100, 104, 'completed')`, acc.ID)
	assert.ErrorContains(t, err, "ledger_entries_balance_check")
}

func TestPostgres_HoldEntrySettles(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	acc := newAccount(t, s, "500")
	svc := service.NewLedgerService(s, nil, nil, zap.NewNop())

	req, err := svc.CreateWithdrawal(ctx, domain.Principal{AccountID: acc.ID, Role: domain.RoleUser},
		service.CreateRequest{Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, domain.Principal{AccountID: acc.ID, Role: domain.RoleAdmin},
		domain.KindWithdrawal, req.ID, service.Decision{Status: domain.StatusRejected})
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "500", got.Balance.String())

	entries, err := s.ListEntries(ctx, acc.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.EntryRefund, entries[0].Kind)
	assert.Equal(t, domain.EntryWithdrawal, entries[1].Kind)
	assert.Equal(t, domain.EntryRejected, entries[1].Status)
}

func TestPostgres_ConcurrentCreateEdgeSums(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	referrer := newAccount(t, s, "0")
	referred := newAccount(t, s, "0")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.CreateEdge(ctx, &domain.ReferralEdge{
				ReferrerID:       referrer.ID,
				ReferredID:       referred.ID,
				Level:            1,
				CommissionEarned: decimal.RequireFromString("5.00000001"),
			}))
		}()
	}
	wg.Wait()

	edges, err := s.ListEdges(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "10.00000002", edges[0].CommissionEarned.String())

	touched, err := s.IncrementEdgeCommission(ctx, referrer.ID, referred.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, touched)
}
