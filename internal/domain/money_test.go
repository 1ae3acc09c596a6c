package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositiveMoney(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Money
		ok   bool
	}{
		{name: "whole", in: "100", want: 10_000, ok: true},
		{name: "cents", in: "12.34", want: 1_234, ok: true},
		{name: "one_cent", in: "0.01", want: 1, ok: true},
		{name: "zero", in: "0", ok: false},
		{name: "negative", in: "-5", ok: false},
		{name: "sub_cent", in: "1.005", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PositiveMoney(decimal.RequireFromString(tc.in))
			if !tc.ok {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		Balance Money `json:"balance"`
	}{Balance: 9_000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"90.00"}`, string(out))

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"40.5","b":12}`), &in))
	assert.Equal(t, Money(4_050), in.A)
	assert.Equal(t, Money(1_200), in.B)

	err = json.Unmarshal([]byte(`{"a":"0.001"}`), &in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCommissionRateToBps(t *testing.T) {
	bps, err := CommissionRateToBps(decimal.RequireFromString("0.10"))
	require.NoError(t, err)
	assert.Equal(t, int32(1000), bps)

	bps, err = CommissionRateToBps(decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int32(0), bps)

	bps, err = CommissionRateToBps(decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, int32(10_000), bps)

	_, err = CommissionRateToBps(decimal.RequireFromString("1.01"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = CommissionRateToBps(decimal.RequireFromString("-0.1"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = CommissionRateToBps(decimal.RequireFromString("0.12345"))
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, "0.1", BpsToCommissionRate(1000).String())
}

func TestEarnings(t *testing.T) {
	// 100.00 at 10% -> 90.00
	assert.Equal(t, Money(9_000), Earnings(10_000, 1000))
	assert.Equal(t, Money(10_000), Earnings(10_000, 0))
	assert.Equal(t, Money(0), Earnings(10_000, 10_000))
	// 0.99 at 12.5% = 0.86625 -> 0.86
	assert.Equal(t, Money(86), Earnings(99, 1250))
}
