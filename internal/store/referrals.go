package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
)

func (q *Queries) IncrementEdgeCommission(ctx context.Context, referrerID, referredID int64, amount decimal.Decimal) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE referral_edges
		 SET commission_earned = commission_earned + $3::numeric, updated_at = now()
		 WHERE referrer_id = $1 AND referred_id = $2`,
		referrerID, referredID, amount.String(),
	)
	if err != nil {
		return false, fmt.Errorf("increment referral edge %d->%d: %w", referrerID, referredID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateEdge inserts an edge; if another writer created it first the
// commission is added to the existing row instead.
func (q *Queries) CreateEdge(ctx context.Context, e *domain.ReferralEdge) error {
	if e.Status == "" {
		e.Status = "active"
	}
	var earned string
	err := q.db.QueryRow(ctx,
		`INSERT INTO referral_edges (referrer_id, referred_id, level, commission_earned, status)
		 VALUES ($1, $2, $3, $4::numeric, $5)
		 ON CONFLICT (referrer_id, referred_id) DO UPDATE
		 SET commission_earned = referral_edges.commission_earned + EXCLUDED.commission_earned, updated_at = now()
		 RETURNING id, commission_earned::text, created_at, updated_at`,
		e.ReferrerID, e.ReferredID, e.Level, e.CommissionEarned.String(), e.Status,
	).Scan(&e.ID, &earned, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create referral edge %d->%d: %w", e.ReferrerID, e.ReferredID, err)
	}
	d, err := parseNumeric(earned)
	if err != nil {
		return err
	}
	e.CommissionEarned = d
	return nil
}

func (q *Queries) ListEdges(ctx context.Context, referrerID int64) ([]domain.ReferralEdge, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, referrer_id, referred_id, level, commission_earned::text, status, created_at, updated_at
		 FROM referral_edges WHERE referrer_id = $1 ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referral edges: %w", err)
	}
	defer rows.Close()

	edges := []domain.ReferralEdge{}
	for rows.Next() {
		var e domain.ReferralEdge
		var earned string
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.ReferredID, &e.Level, &earned, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan referral edge: %w", err)
		}
		if e.CommissionEarned, err = parseNumeric(earned); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (q *Queries) ListCommissionRules(ctx context.Context, systemType string) ([]domain.CommissionRule, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, system_type, level_number, percentage::text, active
		 FROM commission_rules
		 WHERE system_type = $1 AND active
		 ORDER BY level_number ASC`, systemType)
	if err != nil {
		return nil, fmt.Errorf("list commission rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.CommissionRule
	for rows.Next() {
		var r domain.CommissionRule
		var pct string
		if err := rows.Scan(&r.ID, &r.SystemType, &r.Level, &pct, &r.Active); err != nil {
			return nil, fmt.Errorf("scan commission rule: %w", err)
		}
		if r.Percentage, err = parseNumeric(pct); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
