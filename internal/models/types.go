package models

import (
	"encoding/json"

	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateRequestBody is the payload for a new deposit or withdrawal.
type CreateRequestBody struct {
	Amount      decimal.Decimal  `json:"amount"`
	Fee         *decimal.Decimal `json:"fee,omitempty"`
	FinalAmount *decimal.Decimal `json:"final_amount,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty" validate:"omitempty,max=8192"`
}

// TransitionBody is an admin's decision on a pending request.
type TransitionBody struct {
	Status     string  `json:"status" validate:"required,oneof=approved rejected"`
	AdminNotes *string `json:"admin_notes,omitempty" validate:"omitempty,max=1000"`
}

type AdjustBalanceBody struct {
	AccountID int64           `json:"user_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type" validate:"required,oneof=add subtract"`
	Reason    string          `json:"reason" validate:"max=255"`
}

// CreateAccountBody provisions an account on behalf of the auth service.
type CreateAccountBody struct {
	Username   string `json:"username" validate:"required,min=3,max=64"`
	ReferredBy string `json:"referred_by,omitempty" validate:"omitempty,max=32"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CommissionFailureResponse is returned when a deposit was approved but the
// commission walk stopped partway.
type CommissionFailureResponse struct {
	ErrorResponse
	Request    *domain.Request `json:"request"`
	LevelsPaid int             `json:"levels_paid"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
