package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	DepositRequested    Type = "deposit.requested"
	DepositApproved     Type = "deposit.approved"
	DepositRejected     Type = "deposit.rejected"
	WithdrawalRequested Type = "withdrawal.requested"
	WithdrawalApproved  Type = "withdrawal.approved"
	WithdrawalRejected  Type = "withdrawal.rejected"
	CommissionPaid      Type = "commission.paid"
	BalanceAdjusted     Type = "balance.adjusted"
)

// Event is the payload published after a money-movement commit.
type Event struct {
	ID           string           `json:"id"`
	Type         Type             `json:"type"`
	AccountID    int64            `json:"account_id"`
	RequestID    *int64           `json:"request_id,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	BalanceAfter *decimal.Decimal `json:"balance_after,omitempty"`
	Level        int              `json:"level,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// RoutingKey is the topic routing key the event is published under.
func (e Event) RoutingKey() string {
	return string(e.Type)
}
