package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/punchamoorthee/refledger/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateRequest is the owner's input for a deposit or withdrawal.
// A zero FinalAmount defaults to Amount - Fee.
type CreateRequest struct {
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	FinalAmount decimal.Decimal
	Payload     json.RawMessage
}

func (c *CreateRequest) normalize() error {
	if !c.Amount.IsPositive() {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	if c.Fee.IsNegative() {
		return domain.NewValidationError("fee", "must not be negative")
	}
	for _, m := range []struct {
		field string
		value decimal.Decimal
	}{{"amount", c.Amount}, {"fee", c.Fee}, {"final_amount", c.FinalAmount}} {
		if err := domain.CheckMoney(m.field, m.value); err != nil {
			return err
		}
	}
	if c.FinalAmount.IsZero() {
		c.FinalAmount = c.Amount.Sub(c.Fee)
	}
	if !c.FinalAmount.IsPositive() {
		return domain.NewValidationError("final_amount", "must be greater than zero")
	}
	if c.FinalAmount.GreaterThan(c.Amount) {
		return domain.NewValidationError("final_amount", "must not exceed amount")
	}
	if len(c.Payload) > 0 && !json.Valid(c.Payload) {
		return domain.NewValidationError("payload", "must be valid JSON")
	}
	return nil
}

// Decision is an admin's disposition of a pending request.
type Decision struct {
	Status     domain.RequestStatus
	AdminNotes *string
}

// Outcome is the result of a transition: the updated request, the ledger
// entries written in its transaction and any commissions paid afterwards.
type Outcome struct {
	Request *domain.Request      `json:"request"`
	Entries []domain.LedgerEntry `json:"entries"`
	Payouts []Payout             `json:"commissions,omitempty"`
}

// CommissionError reports a commission walk that stopped partway. The
// deposit itself is approved and credited; Payouts lists the levels that
// were paid and stay paid.
type CommissionError struct {
	Request *domain.Request
	Payouts []Payout
	Err     error
}

func (e *CommissionError) Error() string {
	return fmt.Sprintf("deposit %d approved but commission distribution failed after %d level(s): %v",
		e.Request.ID, len(e.Payouts), e.Err)
}

func (e *CommissionError) Unwrap() error { return e.Err }

// CreateDeposit records a pending deposit. Nothing is credited until an
// admin approves it.
func (s *LedgerService) CreateDeposit(ctx context.Context, p domain.Principal, in CreateRequest) (*domain.Request, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetAccount(ctx, p.AccountID); err != nil {
		return nil, err
	}

	req := &domain.Request{
		Kind:        domain.KindDeposit,
		AccountID:   p.AccountID,
		Amount:      in.Amount,
		Fee:         in.Fee,
		FinalAmount: in.FinalAmount,
		Payload:     in.Payload,
	}
	if err := s.store.InsertRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("deposit requested",
		zap.Int64("request_id", req.ID),
		zap.Int64("account_id", req.AccountID),
		zap.String("amount", req.Amount.String()),
	)
	s.notifier.Notify(events.Event{Type: events.DepositRequested, AccountID: req.AccountID, RequestID: &req.ID, Amount: req.FinalAmount})
	return req, nil
}

// CreateWithdrawal reserves the funds immediately: the request, the debit
// and its pending ledger entry commit together or not at all.
func (s *LedgerService) CreateWithdrawal(ctx context.Context, p domain.Principal, in CreateRequest) (*domain.Request, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	req := &domain.Request{
		Kind:        domain.KindWithdrawal,
		AccountID:   p.AccountID,
		Amount:      in.Amount,
		Fee:         in.Fee,
		FinalAmount: in.FinalAmount,
		Payload:     in.Payload,
	}
	var hold *domain.LedgerEntry

	err := s.store.InTx(ctx, func(q domain.Repository) error {
		if err := q.InsertRequest(ctx, req); err != nil {
			return err
		}
		entry, err := s.accounts.AdjustWithLedger(ctx, q, p.AccountID, req.Amount.Neg(), EntryFields{
			Kind:        domain.EntryWithdrawal,
			Status:      domain.EntryPending,
			RequestID:   &req.ID,
			Description: fmt.Sprintf("Withdrawal #%d requested", req.ID),
		})
		if err != nil {
			return err
		}
		hold = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested; funds held",
		zap.Int64("request_id", req.ID),
		zap.Int64("account_id", req.AccountID),
		zap.String("amount", req.Amount.String()),
		zap.String("balance_after", hold.BalanceAfter.String()),
	)
	s.notifier.Notify(events.Event{
		Type:         events.WithdrawalRequested,
		AccountID:    req.AccountID,
		RequestID:    &req.ID,
		Amount:       req.Amount,
		BalanceAfter: &hold.BalanceAfter,
	})
	return req, nil
}

// Transition moves a pending request to approved or rejected. The status
// flip is a compare-and-set and is the first statement of the transaction,
// so a request is acted on at most once. For an approved deposit the credit
// commits before the commission walk starts.
func (s *LedgerService) Transition(ctx context.Context, admin domain.Principal, kind domain.RequestKind, id int64, d Decision) (*Outcome, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrAccessDenied
	}
	if !kind.Valid() {
		return nil, domain.NewValidationError("kind", "must be deposit or withdrawal")
	}
	if d.Status != domain.StatusApproved && d.Status != domain.StatusRejected {
		return nil, domain.NewValidationError("status", "must be approved or rejected")
	}
	if d.AdminNotes != nil {
		trimmed := strings.TrimSpace(*d.AdminNotes)
		d.AdminNotes = &trimmed
	}

	// Once admitted the transition runs to completion.
	ctx = context.WithoutCancel(ctx)

	out := &Outcome{Entries: []domain.LedgerEntry{}}
	err := s.store.InTx(ctx, func(q domain.Repository) error {
		out.Entries = out.Entries[:0]

		req, err := q.TransitionRequest(ctx, kind, id, d.Status, d.AdminNotes, admin.AccountID)
		if err != nil {
			return err
		}
		out.Request = req

		switch {
		case kind == domain.KindDeposit && d.Status == domain.StatusApproved:
			entry, err := s.accounts.AdjustWithLedger(ctx, q, req.AccountID, req.FinalAmount, EntryFields{
				Kind:        domain.EntryDeposit,
				Status:      domain.EntryApproved,
				RequestID:   &req.ID,
				Description: fmt.Sprintf("Deposit #%d approved", req.ID),
			})
			if err != nil {
				return err
			}
			out.Entries = append(out.Entries, *entry)

		case kind == domain.KindWithdrawal && d.Status == domain.StatusApproved:
			// Funds were held at request time; only the hold entry settles.
			if err := s.settleHold(ctx, q, req, domain.EntryApproved); err != nil {
				return err
			}

		case kind == domain.KindWithdrawal && d.Status == domain.StatusRejected:
			if err := s.settleHold(ctx, q, req, domain.EntryRejected); err != nil {
				return err
			}
			entry, err := s.accounts.AdjustWithLedger(ctx, q, req.AccountID, req.Amount, EntryFields{
				Kind:        domain.EntryRefund,
				Status:      domain.EntryCompleted,
				RequestID:   &req.ID,
				Description: fmt.Sprintf("Refund for rejected withdrawal #%d", req.ID),
			})
			if err != nil {
				return err
			}
			out.Entries = append(out.Entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req := out.Request
	requestTransitions.WithLabelValues(string(kind), string(d.Status)).Inc()
	s.logger.Info("request processed",
		zap.String("kind", string(kind)),
		zap.Int64("request_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.Int64("admin_id", admin.AccountID),
	)
	s.notifyTransition(req, out.Entries)

	if kind == domain.KindDeposit && d.Status == domain.StatusApproved && s.distributor != nil {
		payouts, err := s.distributor.Distribute(ctx, req)
		out.Payouts = payouts
		if err != nil {
			return out, &CommissionError{Request: req, Payouts: payouts, Err: err}
		}
	}
	return out, nil
}

func (s *LedgerService) settleHold(ctx context.Context, q domain.Repository, req *domain.Request, status domain.EntryStatus) error {
	n, err := q.SetRequestEntryStatus(ctx, req.ID, domain.EntryWithdrawal, status)
	if err != nil {
		return err
	}
	if n == 0 {
		s.logger.Warn("withdrawal has no pending hold entry",
			zap.Int64("request_id", req.ID),
			zap.String("status", string(status)),
		)
	}
	return nil
}

func (s *LedgerService) notifyTransition(req *domain.Request, entries []domain.LedgerEntry) {
	e := events.Event{AccountID: req.AccountID, RequestID: &req.ID, Amount: req.Amount}
	switch {
	case req.Kind == domain.KindDeposit && req.Status == domain.StatusApproved:
		e.Type, e.Amount = events.DepositApproved, req.FinalAmount
	case req.Kind == domain.KindDeposit:
		e.Type = events.DepositRejected
	case req.Status == domain.StatusApproved:
		e.Type = events.WithdrawalApproved
	default:
		e.Type = events.WithdrawalRejected
	}
	if len(entries) > 0 {
		after := entries[len(entries)-1].BalanceAfter
		e.BalanceAfter = &after
	}
	s.notifier.Notify(e)
}

// AdminAdjustment is a manual credit or debit.
type AdminAdjustment struct {
	AccountID int64
	Amount    decimal.Decimal
	Type      string
	Reason    string
}

const (
	AdjustAdd      = "add"
	AdjustSubtract = "subtract"
)

// AdjustBalance applies a manual adjustment with an admin_adjustment entry.
func (s *LedgerService) AdjustBalance(ctx context.Context, admin domain.Principal, in AdminAdjustment) (*domain.LedgerEntry, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrAccessDenied
	}
	if !in.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be greater than zero")
	}
	if err := domain.CheckMoney("amount", in.Amount); err != nil {
		return nil, err
	}

	delta := in.Amount
	switch in.Type {
	case AdjustAdd:
	case AdjustSubtract:
		delta = delta.Neg()
	default:
		return nil, domain.NewValidationError("type", "must be add or subtract")
	}

	desc := "Admin adjustment"
	if reason := strings.TrimSpace(in.Reason); reason != "" {
		desc += ": " + reason
	}

	ctx = context.WithoutCancel(ctx)
	var entry *domain.LedgerEntry
	err := s.store.InTx(ctx, func(q domain.Repository) error {
		var err error
		entry, err = s.accounts.AdjustWithLedger(ctx, q, in.AccountID, delta, EntryFields{
			Kind:        domain.EntryAdminAdjustment,
			Status:      domain.EntryCompleted,
			Description: desc,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("balance adjusted by admin",
		zap.Int64("account_id", in.AccountID),
		zap.Int64("admin_id", admin.AccountID),
		zap.String("delta", delta.String()),
		zap.String("balance_after", entry.BalanceAfter.String()),
	)
	s.notifier.Notify(events.Event{
		Type:         events.BalanceAdjusted,
		AccountID:    in.AccountID,
		Amount:       delta,
		BalanceAfter: &entry.BalanceAfter,
	})
	return entry, nil
}
