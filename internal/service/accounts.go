package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntryFields describes the ledger entry written together with a balance
// adjustment.
type EntryFields struct {
	Kind        domain.EntryKind
	Status      domain.EntryStatus
	RequestID   *int64
	Description string
}

// AccountStore is the only path through which balances move. Both methods
// run on the repository they are given; callers pass a transaction so the
// adjustment and its ledger entry commit or roll back together.
type AccountStore struct{}

// Adjust atomically adds delta to the account and returns the balance
// before and after. Balances may not go negative.
func (AccountStore) Adjust(ctx context.Context, q domain.Repository, accountID int64, delta decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Zero, decimal.Zero, domain.NewValidationError("amount", "adjustment must be non-zero")
	}
	if err := domain.CheckMoney("amount", delta); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return q.AdjustBalance(ctx, accountID, delta, false)
}

// AdjustWithLedger applies delta and appends the matching ledger entry whose
// snapshot is exactly the (before, after) pair of the adjustment.
func (s AccountStore) AdjustWithLedger(ctx context.Context, q domain.Repository, accountID int64, delta decimal.Decimal, f EntryFields) (*domain.LedgerEntry, error) {
	before, after, err := s.Adjust(ctx, q, accountID, delta)
	if err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		AccountID:     accountID,
		Kind:          f.Kind,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        f.Status,
		RequestID:     f.RequestID,
		Description:   f.Description,
	}
	if err := q.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	balanceAdjustments.WithLabelValues(string(f.Kind)).Inc()
	return entry, nil
}

// NewAccount is the provisioning input used by the external auth service.
type NewAccount struct {
	Username   string
	ReferredBy string
}

// CreateAccount provisions an account with a fresh referral code. The upline
// is fixed at creation, which keeps the referral graph acyclic.
func (s *LedgerService) CreateAccount(ctx context.Context, p domain.Principal, in NewAccount) (*domain.Account, error) {
	if !p.IsAdmin() {
		return nil, domain.ErrAccessDenied
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, domain.NewValidationError("username", "is required")
	}

	acc := &domain.Account{
		Username:     username,
		ReferralCode: newReferralCode(),
	}
	if code := strings.TrimSpace(in.ReferredBy); code != "" {
		if _, err := s.store.GetAccountByReferralCode(ctx, code); err != nil {
			return nil, err
		}
		acc.ReferredBy = &code
	}

	if err := s.store.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) || errors.Is(err, domain.ErrReferralCodeUnknown) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account provisioned",
		zap.Int64("account_id", acc.ID),
		zap.String("referral_code", acc.ReferralCode),
		zap.Stringp("referred_by", acc.ReferredBy),
	)
	return acc, nil
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
