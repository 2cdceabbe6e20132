package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, username, balance::text, referral_code, referred_by, created_at, updated_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var acc domain.Account
	var balance string
	if err := row.Scan(&acc.ID, &acc.Username, &balance, &acc.ReferralCode, &acc.ReferredBy, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := parseNumeric(balance)
	if err != nil {
		return nil, err
	}
	acc.Balance = b
	return &acc, nil
}

// GetAccount retrieves a single account by ID.
func (q *Queries) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := scanAccount(q.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return acc, nil
}

func (q *Queries) GetAccountByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	acc, err := scanAccount(q.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE referral_code = $1", code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReferralCodeUnknown
		}
		return nil, fmt.Errorf("get account by referral code: %w", err)
	}
	return acc, nil
}

// CreateAccount inserts an account with a zero balance.
func (q *Queries) CreateAccount(ctx context.Context, acc *domain.Account) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO accounts (username, balance, referral_code, referred_by)
		 VALUES ($1, 0, $2, $3)
		 RETURNING id, balance::text, created_at, updated_at`,
		acc.Username, acc.ReferralCode, acc.ReferredBy,
	).Scan(&acc.ID, new(string), &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "23505" && pgErr.ConstraintName == "accounts_username_key":
				return domain.ErrUsernameTaken
			case pgErr.Code == "23503":
				return domain.ErrReferralCodeUnknown
			}
		}
		return fmt.Errorf("insert account: %w", err)
	}
	acc.Balance = decimal.Zero
	return nil
}

// AdjustBalance is the only statement that writes accounts.balance. The
// UPDATE takes the row lock, so the returned pair is consistent with every
// other adjustment on the same account.
func (q *Queries) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal, allowOverdraft bool) (decimal.Decimal, decimal.Decimal, error) {
	var before, after string
	err := q.db.QueryRow(ctx,
		`UPDATE accounts
		 SET balance = balance + $2::numeric, updated_at = now()
		 WHERE id = $1 AND ($3 OR balance + $2::numeric >= 0)
		 RETURNING (balance - $2::numeric)::text, balance::text`,
		accountID, delta.String(), allowOverdraft,
	).Scan(&before, &after)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("adjust balance of account %d: %w", accountID, err)
		}
		var exists bool
		if err := q.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID).Scan(&exists); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("check account %d: %w", accountID, err)
		}
		if !exists {
			return decimal.Zero, decimal.Zero, domain.ErrAccountNotFound
		}
		return decimal.Zero, decimal.Zero, domain.ErrInsufficientBalance
	}

	var b, a decimal.Decimal
	if err := parseNumerics([]string{before, after}, &b, &a); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return b, a, nil
}
