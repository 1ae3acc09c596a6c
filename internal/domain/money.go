package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents), stored as BIGINT to avoid floating point errors.
// It travels over JSON as a fixed two-digit decimal string ("90.00").
type Money int64

// Commission rates are stored as INTEGER basis points (1/10000).
const (
	MinorUnitDigits = 2
	bpsPerUnit      = 10_000
)

// maxMoney bounds a single amount.
const maxMoney = 1 << 53

var minorUnitFactor = decimal.New(1, MinorUnitDigits)

// MoneyFromDecimal converts a major-unit decimal (12.50) to Money (1250).
// It rejects values finer than the minor unit; sign checks belong to the caller.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	scaled := d.Mul(minorUnitFactor)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount has more than %d decimal places", ErrValidation, MinorUnitDigits)
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(maxMoney)) {
		return 0, fmt.Errorf("%w: amount is too large", ErrValidation)
	}
	return Money(scaled.IntPart()), nil
}

// PositiveMoney is MoneyFromDecimal plus the amount > 0 rule used by every movement.
func PositiveMoney(d decimal.Decimal) (Money, error) {
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return MoneyFromDecimal(d)
}

// Decimal returns the major-unit value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MinorUnitDigits)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(MinorUnitDigits)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both JSON numbers and decimal strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: invalid amount", ErrValidation)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// CommissionRateToBps converts a fractional rate in [0,1] (0.10) to basis points (1000).
func CommissionRateToBps(rate decimal.Decimal) (int32, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("%w: commission rate must be between 0 and 1", ErrValidation)
	}
	bps := rate.Mul(decimal.NewFromInt(bpsPerUnit))
	if !bps.Equal(bps.Truncate(0)) {
		return 0, fmt.Errorf("%w: commission rate has more than 4 decimal places", ErrValidation)
	}
	return int32(bps.IntPart()), nil
}

// BpsToCommissionRate converts basis points back to a fractional rate.
func BpsToCommissionRate(bps int32) decimal.Decimal {
	return decimal.New(int64(bps), -4)
}

// Earnings returns the fulfiller payout for an order: amount * (1 - rate),
// rounded down to the minor unit.
func Earnings(amount Money, commissionBps int32) Money {
	payoutShare := decimal.NewFromInt(int64(bpsPerUnit - commissionBps))
	return Money(decimal.NewFromInt(int64(amount)).
		Mul(payoutShare).
		Div(decimal.NewFromInt(bpsPerUnit)).
		Floor().
		IntPart())
}
