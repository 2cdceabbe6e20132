package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceDrift is an account whose stored balance disagrees with the
// balance_after snapshot of its most recent ledger entry.
type BalanceDrift struct {
	AccountID     int64           `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	LastEntryID   int64           `json:"last_entry_id"`
	SnapshotAfter decimal.Decimal `json:"snapshot_after"`
}

// HoldSummary aggregates withdrawal funds reserved but not yet decided.
type HoldSummary struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// AuditReport is the outcome of one reconciliation pass.
type AuditReport struct {
	StartedAt              time.Time       `json:"started_at"`
	ArithmeticViolations   []int64         `json:"arithmetic_violations"`
	Drifts                 []BalanceDrift  `json:"drifts"`
	UnpairedDeposits       []int64         `json:"unpaired_deposits"`
	PendingHolds           HoldSummary     `json:"pending_holds"`
	CommissionMintedWindow decimal.Decimal `json:"commission_minted_window"`
}

// Clean reports whether the pass found no inconsistency.
func (r *AuditReport) Clean() bool {
	return len(r.ArithmeticViolations) == 0 && len(r.Drifts) == 0 && len(r.UnpairedDeposits) == 0
}

func (r *AuditReport) FindingCount() int {
	return len(r.ArithmeticViolations) + len(r.Drifts) + len(r.UnpairedDeposits)
}
