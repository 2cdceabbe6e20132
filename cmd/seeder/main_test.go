package main

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/refledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFundSeeded_WritesOpeningEntries(t *testing.T) {
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("TEST_DB_SOURCE not set; skipping Postgres tests")
	}
	require.NoError(t, store.Migrate(dsn))

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	stamp := time.Now().UnixNano()
	now := time.Now()
	rows := [][]interface{}{}
	for i := 0; i < 3; i++ {
		rows = append(rows, []interface{}{fmt.Sprintf("seed_%d_%06d", stamp, i), int64(0), fmt.Sprintf("T%d-%d", stamp, i), nil, now, now})
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"accounts"},
		[]string{"username", "balance", "referral_code", "referred_by", "created_at", "updated_at"},
		pgx.CopyFromRows(rows))
	require.NoError(t, err)

	funded, err := fundSeeded(ctx, tx, stamp, decimal.NewFromInt(InitialBalance))
	require.NoError(t, err)
	assert.Equal(t, int64(3), funded)

	// Every seeded balance equals the sum of its ledger entries.
	var mismatched int
	require.NoError(t, tx.QueryRow(ctx,
		`SELECT count(*) FROM accounts a
		 WHERE a.username LIKE $1
		   AND a.balance <> (SELECT coalesce(sum(amount), 0) FROM ledger_entries e WHERE e.account_id = a.id)`,
		fmt.Sprintf("seed\\_%d\\_%%", stamp)).Scan(&mismatched))
	assert.Zero(t, mismatched)
}
