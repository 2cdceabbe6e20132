package store

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
)

func (q *Queries) collectIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EntryArithmeticViolations returns entries whose snapshot does not add up.
// The CHECK constraint prevents new ones; rows predating it may exist.
func (q *Queries) EntryArithmeticViolations(ctx context.Context) ([]int64, error) {
	ids, err := q.collectIDs(ctx,
		`SELECT id FROM ledger_entries WHERE balance_after <> balance_before + amount ORDER BY id LIMIT 1000`)
	if err != nil {
		return nil, fmt.Errorf("query arithmetic violations: %w", err)
	}
	return ids, nil
}

func (q *Queries) BalanceDrifts(ctx context.Context) ([]domain.BalanceDrift, error) {
	rows, err := q.db.Query(ctx,
		`SELECT a.id, a.balance::text, e.id, e.balance_after::text
		 FROM accounts a
		 JOIN LATERAL (
		     SELECT id, balance_after FROM ledger_entries
		     WHERE account_id = a.id ORDER BY id DESC LIMIT 1
		 ) e ON TRUE
		 WHERE a.balance <> e.balance_after
		 ORDER BY a.id
		 LIMIT 1000`)
	if err != nil {
		return nil, fmt.Errorf("query balance drifts: %w", err)
	}
	defer rows.Close()

	drifts := []domain.BalanceDrift{}
	for rows.Next() {
		var d domain.BalanceDrift
		var balance, snapshot string
		if err := rows.Scan(&d.AccountID, &balance, &d.LastEntryID, &snapshot); err != nil {
			return nil, fmt.Errorf("scan balance drift: %w", err)
		}
		if err := parseNumerics([]string{balance, snapshot}, &d.Balance, &d.SnapshotAfter); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// UnpairedDeposits returns approved deposits with no credit entry.
func (q *Queries) UnpairedDeposits(ctx context.Context) ([]int64, error) {
	ids, err := q.collectIDs(ctx,
		`SELECT r.id FROM requests r
		 WHERE r.kind = 'deposit' AND r.status = 'approved'
		   AND NOT EXISTS (
		       SELECT 1 FROM ledger_entries e WHERE e.request_id = r.id AND e.kind = 'deposit'
		   )
		 ORDER BY r.id LIMIT 1000`)
	if err != nil {
		return nil, fmt.Errorf("query unpaired deposits: %w", err)
	}
	return ids, nil
}

func (q *Queries) PendingHolds(ctx context.Context) (domain.HoldSummary, error) {
	var s domain.HoldSummary
	var amount string
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(-amount), 0)::text
		 FROM ledger_entries WHERE kind = 'withdrawal' AND status = 'pending'`,
	).Scan(&s.Count, &amount)
	if err != nil {
		return s, fmt.Errorf("query pending holds: %w", err)
	}
	s.Amount, err = parseNumeric(amount)
	return s, err
}

// CommissionMintedSince sums referral commissions credited since the given
// time. Commissions are not debited from anyone, so this is new money.
func (q *Queries) CommissionMintedSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var total string
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text
		 FROM ledger_entries WHERE kind = 'referral_commission' AND created_at >= $1`, since,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query commission minted: %w", err)
	}
	return parseNumeric(total)
}
