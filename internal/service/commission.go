package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/punchamoorthee/refledger/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Schedule indexes active commission rules by level.
type Schedule struct {
	rules    map[int]domain.CommissionRule
	maxLevel int
}

func NewSchedule(rules []domain.CommissionRule) Schedule {
	s := Schedule{rules: make(map[int]domain.CommissionRule, len(rules))}
	for _, r := range rules {
		if !r.Active || r.Level < 1 {
			continue
		}
		s.rules[r.Level] = r
		if r.Level > s.maxLevel {
			s.maxLevel = r.Level
		}
	}
	return s
}

func (s Schedule) MaxLevel() int { return s.maxLevel }

func (s Schedule) Rule(level int) (domain.CommissionRule, bool) {
	r, ok := s.rules[level]
	return r, ok
}

// CommissionFor returns amount * percentage / 100 rounded to 8 places.
func CommissionFor(amount, percentage decimal.Decimal) decimal.Decimal {
	return amount.Mul(percentage).Div(hundred).Round(8)
}

// Payout is one credited commission level.
type Payout struct {
	Level       int             `json:"level"`
	AccountID   int64           `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	EntryID     int64           `json:"entry_id"`
	EdgeTouched bool            `json:"edge_touched"`
}

// Distributor walks the referral upline of an approved deposit and credits
// each configured level. Every level commits in its own transaction, so a
// failure leaves the levels already paid in place.
type Distributor struct {
	store    domain.Store
	accounts AccountStore
	graph    *ReferralGraph
	notifier Notifier
	logger   *zap.Logger
}

func NewDistributor(store domain.Store, graph *ReferralGraph, notifier Notifier, logger *zap.Logger) *Distributor {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Distributor{store: store, graph: graph, notifier: notifier, logger: logger}
}

// Distribute pays commissions for deposit, which must already be approved
// and credited. The walk is bounded by the highest configured level.
func (d *Distributor) Distribute(ctx context.Context, deposit *domain.Request) ([]Payout, error) {
	rules, err := d.store.ListCommissionRules(ctx, domain.SystemTypeDeposit)
	if err != nil {
		return nil, fmt.Errorf("load commission schedule: %w", err)
	}
	schedule := NewSchedule(rules)
	if schedule.MaxLevel() == 0 {
		return nil, nil
	}

	depositor, err := d.store.GetAccount(ctx, deposit.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load depositor: %w", err)
	}

	var payouts []Payout
	current := depositor
	seen := map[int64]bool{depositor.ID: true}

	for level := 1; level <= schedule.MaxLevel(); level++ {
		upline, err := d.graph.Upline(ctx, d.store, current)
		if err != nil {
			return payouts, d.fail(deposit, level, err)
		}
		if upline == nil {
			break
		}
		if seen[upline.ID] {
			d.logger.Warn("referral cycle detected; stopping commission walk",
				zap.Int64("request_id", deposit.ID),
				zap.Int64("account_id", upline.ID),
				zap.Int("level", level),
			)
			break
		}
		seen[upline.ID] = true

		if rule, ok := schedule.Rule(level); ok {
			commission := CommissionFor(deposit.FinalAmount, rule.Percentage)
			if commission.IsPositive() {
				payout, err := d.payLevel(ctx, deposit, depositor, upline, level, commission)
				if err != nil {
					return payouts, d.fail(deposit, level, err)
				}
				payouts = append(payouts, *payout)
			}
		}

		current = upline
	}

	return payouts, nil
}

func (d *Distributor) payLevel(ctx context.Context, deposit *domain.Request, depositor, upline *domain.Account, level int, commission decimal.Decimal) (*Payout, error) {
	payout := &Payout{Level: level, AccountID: upline.ID, Amount: commission}

	err := d.store.InTx(ctx, func(q domain.Repository) error {
		entry, err := d.accounts.AdjustWithLedger(ctx, q, upline.ID, commission, EntryFields{
			Kind:        domain.EntryReferralCommission,
			Status:      domain.EntryCompleted,
			RequestID:   &deposit.ID,
			Description: fmt.Sprintf("Level %d referral commission from %s's deposit", level, depositor.Username),
		})
		if err != nil {
			return err
		}
		payout.EntryID = entry.ID

		touched, err := d.graph.RecordCommission(ctx, q, upline.ID, depositor.ID, level, commission)
		if err != nil {
			return err
		}
		payout.EdgeTouched = touched
		return nil
	})
	if err != nil {
		return nil, err
	}

	commissionPayouts.WithLabelValues(fmt.Sprint(level)).Inc()
	commissionPaidAmount.Add(commission.InexactFloat64())
	d.logger.Info("referral commission paid",
		zap.Int64("request_id", deposit.ID),
		zap.Int("level", level),
		zap.Int64("account_id", upline.ID),
		zap.String("amount", commission.String()),
	)
	d.notifier.Notify(events.Event{
		Type:      events.CommissionPaid,
		AccountID: upline.ID,
		RequestID: &deposit.ID,
		Amount:    commission,
		Level:     level,
	})
	return payout, nil
}

func (d *Distributor) fail(deposit *domain.Request, level int, err error) error {
	commissionFailures.Inc()
	d.logger.Error("commission distribution failed; paid levels are kept for reconciliation",
		zap.Int64("request_id", deposit.ID),
		zap.Int64("account_id", deposit.AccountID),
		zap.Int("level", level),
		zap.Error(err),
	)
	return fmt.Errorf("commission level %d: %w", level, err)
}
