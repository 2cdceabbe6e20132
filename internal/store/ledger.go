package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/refledger/internal/domain"
)

const entryColumns = `id, account_id, kind, amount::text, balance_before::text, balance_after::text,
	status, request_id, description, created_at`

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var amount, before, after string
	if err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &amount, &before, &after,
		&e.Status, &e.RequestID, &e.Description, &e.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseNumerics([]string{amount, before, after}, &e.Amount, &e.BalanceBefore, &e.BalanceAfter); err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertEntry appends a ledger entry. The table's CHECK constraint rejects
// snapshots where balance_after != balance_before + amount.
func (q *Queries) InsertEntry(ctx context.Context, e *domain.LedgerEntry) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO ledger_entries (account_id, kind, amount, balance_before, balance_after, status, request_id, description)
		 VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)
		 RETURNING id, created_at`,
		e.AccountID, string(e.Kind), e.Amount.String(), e.BalanceBefore.String(), e.BalanceAfter.String(),
		string(e.Status), e.RequestID, e.Description,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger entry insert failed: %w", err)
	}
	return nil
}

func (q *Queries) SetRequestEntryStatus(ctx context.Context, requestID int64, kind domain.EntryKind, status domain.EntryStatus) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE ledger_entries SET status = $3
		 WHERE request_id = $1 AND kind = $2 AND status = 'pending'`,
		requestID, string(kind), string(status),
	)
	if err != nil {
		return 0, fmt.Errorf("update entry status for request %d: %w", requestID, err)
	}
	return tag.RowsAffected(), nil
}

// ListEntries retrieves ledger entries for a specific account, newest first.
func (q *Queries) ListEntries(ctx context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	limit, offset = pageArgs(limit, offset)
	rows, err := q.db.Query(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE account_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3",
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
