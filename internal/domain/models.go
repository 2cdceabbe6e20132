package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind discriminates deposit and withdrawal requests sharing one table.
type RequestKind string

const (
	KindDeposit    RequestKind = "deposit"
	KindWithdrawal RequestKind = "withdrawal"
)

func (k RequestKind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type EntryKind string

const (
	EntryDeposit            EntryKind = "deposit"
	EntryWithdrawal         EntryKind = "withdrawal"
	EntryRefund             EntryKind = "refund"
	EntryReferralCommission EntryKind = "referral_commission"
	EntryAdminAdjustment    EntryKind = "admin_adjustment"
)

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryApproved  EntryStatus = "approved"
	EntryRejected  EntryStatus = "rejected"
	EntryCompleted EntryStatus = "completed"
)

// Role is the caller role carried by the auth token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal identifies the caller of a service operation.
type Principal struct {
	AccountID int64
	Role      Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Account holds a user's balance and referral linkage.
// Balance is written only through Repository.AdjustBalance.
type Account struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	Balance      decimal.Decimal `json:"balance"`
	ReferralCode string          `json:"referral_code"`
	ReferredBy   *string         `json:"referred_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Request is a deposit or withdrawal awaiting admin disposition.
type Request struct {
	ID          int64           `json:"id"`
	Kind        RequestKind     `json:"kind"`
	AccountID   int64           `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      RequestStatus   `json:"status"`
	AdminNotes  *string         `json:"admin_notes,omitempty"`
	ProcessedBy *int64          `json:"processed_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LedgerEntry is one balance-affecting event. Amount is signed and
// BalanceAfter always equals BalanceBefore + Amount.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	Kind          EntryKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        EntryStatus     `json:"status"`
	RequestID     *int64          `json:"request_id,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReferralEdge is the persisted (referrer, referred) relationship.
type ReferralEdge struct {
	ID               int64           `json:"id"`
	ReferrerID       int64           `json:"referrer_id"`
	ReferredID       int64           `json:"referred_id"`
	Level            int             `json:"level"`
	CommissionEarned decimal.Decimal `json:"commission_earned"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

const SystemTypeDeposit = "deposit"

// CommissionRule is one level of the commission schedule.
type CommissionRule struct {
	ID         int64           `json:"id"`
	SystemType string          `json:"system_type"`
	Level      int             `json:"level_number"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     bool            `json:"active"`
}

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	Kind      RequestKind
	AccountID int64
	Status    RequestStatus
	Limit     int
	Offset    int
}
