package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
)

// EdgePolicy decides at which commission levels a missing referral edge is
// created. Existing edges are always incremented.
type EdgePolicy interface {
	PersistsEdge(level int) bool
}

// DirectReferralPolicy persists edges for levels 1..MaxLevel. The zero value
// persists direct referrals only.
type DirectReferralPolicy struct {
	MaxLevel int
}

func (p DirectReferralPolicy) PersistsEdge(level int) bool {
	max := p.MaxLevel
	if max < 1 {
		max = 1
	}
	return level >= 1 && level <= max
}

// ReferralGraph is the read side of referral linkage plus edge bookkeeping.
type ReferralGraph struct {
	policy EdgePolicy
}

func NewReferralGraph(policy EdgePolicy) *ReferralGraph {
	if policy == nil {
		policy = DirectReferralPolicy{}
	}
	return &ReferralGraph{policy: policy}
}

// Upline resolves the account that referred acc. A missing or dangling
// referral code means no upline.
func (g *ReferralGraph) Upline(ctx context.Context, q domain.Repository, acc *domain.Account) (*domain.Account, error) {
	if acc.ReferredBy == nil || *acc.ReferredBy == "" {
		return nil, nil
	}
	up, err := q.GetAccountByReferralCode(ctx, *acc.ReferredBy)
	if errors.Is(err, domain.ErrReferralCodeUnknown) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve upline of account %d: %w", acc.ID, err)
	}
	return up, nil
}

// RecordCommission adds amount to the (referrer, referred) edge, creating it
// when the policy allows for this level. It reports whether an edge was
// touched.
func (g *ReferralGraph) RecordCommission(ctx context.Context, q domain.Repository, referrerID, referredID int64, level int, amount decimal.Decimal) (bool, error) {
	found, err := q.IncrementEdgeCommission(ctx, referrerID, referredID, amount)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}
	if !g.policy.PersistsEdge(level) {
		return false, nil
	}

	edge := &domain.ReferralEdge{
		ReferrerID:       referrerID,
		ReferredID:       referredID,
		Level:            level,
		CommissionEarned: amount,
		Status:           "active",
	}
	if err := q.CreateEdge(ctx, edge); err != nil {
		return false, err
	}
	return true, nil
}
