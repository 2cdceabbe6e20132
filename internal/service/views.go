package service

import (
	"context"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
)

func canRead(p domain.Principal, accountID int64) bool {
	return p.IsAdmin() || p.AccountID == accountID
}

func (s *LedgerService) GetRequest(ctx context.Context, p domain.Principal, kind domain.RequestKind, id int64) (*domain.Request, error) {
	if !kind.Valid() {
		return nil, domain.NewValidationError("kind", "must be deposit or withdrawal")
	}
	req, err := s.store.GetRequest(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	// Other users' requests are reported as missing.
	if !canRead(p, req.AccountID) {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

// ListRequests returns requests matching f. Non-admins only see their own.
func (s *LedgerService) ListRequests(ctx context.Context, p domain.Principal, f domain.RequestFilter) ([]domain.Request, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, domain.NewValidationError("kind", "must be deposit or withdrawal")
	}
	switch f.Status {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		return nil, domain.NewValidationError("status", "must be pending, approved or rejected")
	}
	if !p.IsAdmin() {
		f.AccountID = p.AccountID
	}
	reqs, err := s.store.ListRequests(ctx, f)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []domain.Request{}
	}
	return reqs, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, p domain.Principal, id int64) (*domain.Account, error) {
	if !canRead(p, id) {
		return nil, domain.ErrAccessDenied
	}
	return s.store.GetAccount(ctx, id)
}

// ListEntries returns an account's ledger, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, p domain.Principal, accountID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	if !canRead(p, accountID) {
		return nil, domain.ErrAccessDenied
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return entries, nil
}

// ReferralSummary is a referrer's edges and the commission earned across them.
type ReferralSummary struct {
	ReferrerID  int64                 `json:"referrer_id"`
	Edges       []domain.ReferralEdge `json:"referrals"`
	TotalEarned decimal.Decimal       `json:"total_commission_earned"`
}

func (s *LedgerService) ListReferrals(ctx context.Context, p domain.Principal, referrerID int64) (*ReferralSummary, error) {
	if !canRead(p, referrerID) {
		return nil, domain.ErrAccessDenied
	}
	edges, err := s.store.ListEdges(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	sum := &ReferralSummary{ReferrerID: referrerID, Edges: edges, TotalEarned: decimal.Zero}
	if sum.Edges == nil {
		sum.Edges = []domain.ReferralEdge{}
	}
	for _, e := range edges {
		sum.TotalEarned = sum.TotalEarned.Add(e.CommissionEarned)
	}
	return sum, nil
}
