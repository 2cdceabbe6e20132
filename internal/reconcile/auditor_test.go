package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) EntryArithmeticViolations(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockSource) BalanceDrifts(ctx context.Context) ([]domain.BalanceDrift, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BalanceDrift), args.Error(1)
}

func (m *MockSource) UnpairedDeposits(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockSource) PendingHolds(ctx context.Context) (domain.HoldSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.HoldSummary), args.Error(1)
}

func (m *MockSource) CommissionMintedSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func TestAuditor_Run(t *testing.T) {
	src := new(MockSource)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAuditor(src, time.Hour, zap.NewNop())
	a.now = func() time.Time { return now }

	drift := domain.BalanceDrift{AccountID: 7, Balance: decimal.NewFromInt(10), LastEntryID: 99, SnapshotAfter: decimal.NewFromInt(12)}
	src.On("EntryArithmeticViolations", mock.Anything).Return([]int64{}, nil)
	src.On("BalanceDrifts", mock.Anything).Return([]domain.BalanceDrift{drift}, nil)
	src.On("UnpairedDeposits", mock.Anything).Return([]int64{4}, nil)
	src.On("PendingHolds", mock.Anything).Return(domain.HoldSummary{Count: 2, Amount: decimal.NewFromInt(300)}, nil)
	src.On("CommissionMintedSince", mock.Anything, now.Add(-time.Hour)).Return(decimal.RequireFromString("12.5"), nil)

	report, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, 2, report.FindingCount())
	assert.Equal(t, now, report.StartedAt)
	assert.Equal(t, []domain.BalanceDrift{drift}, report.Drifts)
	assert.Equal(t, int64(2), report.PendingHolds.Count)
	assert.True(t, decimal.RequireFromString("12.5").Equal(report.CommissionMintedWindow))
	src.AssertExpectations(t)
}

func TestAuditor_RunClean(t *testing.T) {
	src := new(MockSource)
	a := NewAuditor(src, 0, zap.NewNop())

	src.On("EntryArithmeticViolations", mock.Anything).Return([]int64{}, nil)
	src.On("BalanceDrifts", mock.Anything).Return([]domain.BalanceDrift{}, nil)
	src.On("UnpairedDeposits", mock.Anything).Return([]int64{}, nil)
	src.On("PendingHolds", mock.Anything).Return(domain.HoldSummary{Amount: decimal.Zero}, nil)
	src.On("CommissionMintedSince", mock.Anything, mock.AnythingOfType("time.Time")).Return(decimal.Zero, nil)

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 24*time.Hour, a.window)

	// RunAndLog must not panic on a clean pass.
	a.RunAndLog()
}

func TestAuditor_RunStopsOnError(t *testing.T) {
	src := new(MockSource)
	a := NewAuditor(src, time.Hour, zap.NewNop())
	boom := errors.New("db down")

	src.On("EntryArithmeticViolations", mock.Anything).Return([]int64{}, nil)
	src.On("BalanceDrifts", mock.Anything).Return(nil, boom)

	_, err := a.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	src.AssertNotCalled(t, "UnpairedDeposits", mock.Anything)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(NewAuditor(new(MockSource), time.Hour, zap.NewNop()), "not a cron spec", zap.NewNop())
	assert.Error(t, s.Start())
}
