package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory domain.Store. InTx holds the lock for the whole
// callback and restores the previous state when the callback fails, which
// mirrors a serialized Postgres transaction closely enough for service tests.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	accounts map[int64]domain.Account
	requests map[int64]domain.Request
	entries  []domain.LedgerEntry
	edges    []domain.ReferralEdge
	rules    []domain.CommissionRule
	seq      int64

	// failAdjust makes AdjustBalance fail for the given account.
	failAdjust map[int64]error
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		accounts:   map[int64]domain.Account{},
		requests:   map[int64]domain.Request{},
		failAdjust: map[int64]error{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:   make(map[int64]domain.Account, len(s.accounts)),
		requests:   make(map[int64]domain.Request, len(s.requests)),
		entries:    append([]domain.LedgerEntry(nil), s.entries...),
		edges:      append([]domain.ReferralEdge(nil), s.edges...),
		rules:      append([]domain.CommissionRule(nil), s.rules...),
		seq:        s.seq,
		failAdjust: s.failAdjust,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	return c
}

func (s *memState) next() int64 {
	s.seq++
	return s.seq
}

// test helpers

func (m *memStore) addAccount(username string, balance int64, referredBy string) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := domain.Account{
		ID:           m.state.next(),
		Username:     username,
		Balance:      decimal.NewFromInt(balance),
		ReferralCode: "REF-" + username,
		CreatedAt:    time.Now(),
	}
	if referredBy != "" {
		acc.ReferredBy = &referredBy
	}
	m.state.accounts[acc.ID] = acc
	return &acc
}

func (m *memStore) setRules(pcts ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.rules = nil
	for i, p := range pcts {
		m.state.rules = append(m.state.rules, domain.CommissionRule{
			ID:         int64(i + 1),
			SystemType: domain.SystemTypeDeposit,
			Level:      i + 1,
			Percentage: decimal.NewFromInt(p),
			Active:     true,
		})
	}
}

func (m *memStore) failAdjustFor(accountID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.failAdjust[accountID] = err
}

func (m *memStore) balance(id int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.accounts[id].Balance
}

func (m *memStore) allEntries() []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LedgerEntry(nil), m.state.entries...)
}

func (m *memStore) entriesFor(accountID int64) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, e := range m.allEntries() {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) allEdges() []domain.ReferralEdge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ReferralEdge(nil), m.state.edges...)
}

// domain.Store

func (m *memStore) InTx(ctx context.Context, fn func(domain.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetAccount(ctx, id)
}

func (m *memStore) GetAccountByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetAccountByReferralCode(ctx, code)
}

func (m *memStore) CreateAccount(ctx context.Context, acc *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateAccount(ctx, acc)
}

func (m *memStore) AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal, overdraft bool) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AdjustBalance(ctx, id, delta, overdraft)
}

func (m *memStore) InsertRequest(ctx context.Context, r *domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertRequest(ctx, r)
}

func (m *memStore) GetRequest(ctx context.Context, kind domain.RequestKind, id int64) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetRequest(ctx, kind, id)
}

func (m *memStore) ListRequests(ctx context.Context, f domain.RequestFilter) ([]domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListRequests(ctx, f)
}

func (m *memStore) TransitionRequest(ctx context.Context, kind domain.RequestKind, id int64, status domain.RequestStatus, notes *string, adminID int64) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TransitionRequest(ctx, kind, id, status, notes, adminID)
}

func (m *memStore) InsertEntry(ctx context.Context, e *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertEntry(ctx, e)
}

func (m *memStore) SetRequestEntryStatus(ctx context.Context, requestID int64, kind domain.EntryKind, status domain.EntryStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetRequestEntryStatus(ctx, requestID, kind, status)
}

func (m *memStore) ListEntries(ctx context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListEntries(ctx, accountID, limit, offset)
}

func (m *memStore) IncrementEdgeCommission(ctx context.Context, referrerID, referredID int64, amount decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IncrementEdgeCommission(ctx, referrerID, referredID, amount)
}

func (m *memStore) CreateEdge(ctx context.Context, e *domain.ReferralEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateEdge(ctx, e)
}

func (m *memStore) ListEdges(ctx context.Context, referrerID int64) ([]domain.ReferralEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListEdges(ctx, referrerID)
}

func (m *memStore) ListCommissionRules(ctx context.Context, systemType string) ([]domain.CommissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListCommissionRules(ctx, systemType)
}

// domain.Repository on the unlocked state

func (s *memState) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &acc, nil
}

func (s *memState) GetAccountByReferralCode(_ context.Context, code string) (*domain.Account, error) {
	for _, acc := range s.accounts {
		if acc.ReferralCode == code {
			a := acc
			return &a, nil
		}
	}
	return nil, domain.ErrReferralCodeUnknown
}

func (s *memState) CreateAccount(_ context.Context, acc *domain.Account) error {
	for _, a := range s.accounts {
		if a.Username == acc.Username {
			return domain.ErrUsernameTaken
		}
	}
	acc.ID = s.next()
	acc.Balance = decimal.Zero
	acc.CreatedAt = time.Now()
	acc.UpdatedAt = acc.CreatedAt
	s.accounts[acc.ID] = *acc
	return nil
}

func (s *memState) AdjustBalance(_ context.Context, id int64, delta decimal.Decimal, overdraft bool) (decimal.Decimal, decimal.Decimal, error) {
	if err := s.failAdjust[id]; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	acc, ok := s.accounts[id]
	if !ok {
		return decimal.Zero, decimal.Zero, domain.ErrAccountNotFound
	}
	before := acc.Balance
	after := before.Add(delta)
	if !overdraft && after.IsNegative() {
		return decimal.Zero, decimal.Zero, domain.ErrInsufficientBalance
	}
	acc.Balance = after
	acc.UpdatedAt = time.Now()
	s.accounts[id] = acc
	return before, after, nil
}

func (s *memState) InsertRequest(_ context.Context, r *domain.Request) error {
	r.ID = s.next()
	r.Status = domain.StatusPending
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	s.requests[r.ID] = *r
	return nil
}

func (s *memState) GetRequest(_ context.Context, kind domain.RequestKind, id int64) (*domain.Request, error) {
	r, ok := s.requests[id]
	if !ok || r.Kind != kind {
		return nil, domain.ErrRequestNotFound
	}
	return &r, nil
}

func (s *memState) ListRequests(_ context.Context, f domain.RequestFilter) ([]domain.Request, error) {
	var out []domain.Request
	for _, r := range s.requests {
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.AccountID != 0 && r.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memState) TransitionRequest(_ context.Context, kind domain.RequestKind, id int64, status domain.RequestStatus, notes *string, adminID int64) (*domain.Request, error) {
	r, ok := s.requests[id]
	if !ok || r.Kind != kind {
		return nil, domain.ErrRequestNotFound
	}
	if r.Status != domain.StatusPending {
		return nil, domain.ErrAlreadyProcessed
	}
	now := time.Now()
	r.Status = status
	r.AdminNotes = notes
	r.ProcessedBy = &adminID
	r.ProcessedAt = &now
	r.UpdatedAt = now
	s.requests[id] = r
	return &r, nil
}

func (s *memState) InsertEntry(_ context.Context, e *domain.LedgerEntry) error {
	e.ID = s.next()
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *memState) SetRequestEntryStatus(_ context.Context, requestID int64, kind domain.EntryKind, status domain.EntryStatus) (int64, error) {
	var n int64
	for i, e := range s.entries {
		if e.RequestID != nil && *e.RequestID == requestID && e.Kind == kind && e.Status == domain.EntryPending {
			s.entries[i].Status = status
			n++
		}
	}
	return n, nil
}

func (s *memState) ListEntries(_ context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID == accountID {
			out = append(out, s.entries[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memState) IncrementEdgeCommission(_ context.Context, referrerID, referredID int64, amount decimal.Decimal) (bool, error) {
	for i, e := range s.edges {
		if e.ReferrerID == referrerID && e.ReferredID == referredID {
			s.edges[i].CommissionEarned = e.CommissionEarned.Add(amount)
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) CreateEdge(ctx context.Context, e *domain.ReferralEdge) error {
	if found, err := s.IncrementEdgeCommission(ctx, e.ReferrerID, e.ReferredID, e.CommissionEarned); found || err != nil {
		return err
	}
	e.ID = s.next()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	s.edges = append(s.edges, *e)
	return nil
}

func (s *memState) ListEdges(_ context.Context, referrerID int64) ([]domain.ReferralEdge, error) {
	var out []domain.ReferralEdge
	for _, e := range s.edges {
		if e.ReferrerID == referrerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memState) ListCommissionRules(_ context.Context, systemType string) ([]domain.CommissionRule, error) {
	var out []domain.CommissionRule
	for _, r := range s.rules {
		if r.SystemType == systemType && r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}
