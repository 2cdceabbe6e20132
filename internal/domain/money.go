package domain

import "github.com/shopspring/decimal"

// Money columns are NUMERIC(20, 8): 8 fractional and 12 integral digits.
const MoneyScale = 8

var MaxMoney = decimal.New(1, 12)

// CheckMoney reports a ValidationError for field when d carries more than
// MoneyScale fractional digits or does not fit the column.
func CheckMoney(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(MoneyScale)) {
		return NewValidationError(field, "must have at most 8 decimal places")
	}
	if d.Abs().GreaterThanOrEqual(MaxMoney) {
		return NewValidationError(field, "must be less than 1000000000000")
	}
	return nil
}
