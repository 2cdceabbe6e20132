package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository is the set of persistence operations available to the core,
// either on the connection pool or inside a transaction.
type Repository interface {
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*Account, error)
	CreateAccount(ctx context.Context, acc *Account) error

	// AdjustBalance atomically adds delta to the account balance and returns
	// the balance before and after. Unless allowOverdraft is set, an adjustment
	// that would leave the balance negative fails with ErrInsufficientBalance.
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal, allowOverdraft bool) (before, after decimal.Decimal, err error)

	InsertRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, kind RequestKind, id int64) (*Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]Request, error)
	// TransitionRequest moves a pending request to status. It fails with
	// ErrAlreadyProcessed when the request is no longer pending.
	TransitionRequest(ctx context.Context, kind RequestKind, id int64, status RequestStatus, notes *string, adminID int64) (*Request, error)

	InsertEntry(ctx context.Context, e *LedgerEntry) error
	// SetRequestEntryStatus flips the pending entry of the given kind paired
	// with a request and returns the number of entries changed.
	SetRequestEntryStatus(ctx context.Context, requestID int64, kind EntryKind, status EntryStatus) (int64, error)
	ListEntries(ctx context.Context, accountID int64, limit, offset int) ([]LedgerEntry, error)

	IncrementEdgeCommission(ctx context.Context, referrerID, referredID int64, amount decimal.Decimal) (bool, error)
	CreateEdge(ctx context.Context, e *ReferralEdge) error
	ListEdges(ctx context.Context, referrerID int64) ([]ReferralEdge, error)

	// ListCommissionRules returns active rules for systemType ordered by level.
	ListCommissionRules(ctx context.Context, systemType string) ([]CommissionRule, error)
}

// Store is a Repository that can also run a function inside one
// database transaction. fn's error rolls the transaction back.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}
