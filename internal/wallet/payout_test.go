package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPayoutQuote(t *testing.T) {
	calc := NewPayoutCalculator(decimal.NewFromInt(5), decimal.RequireFromString("0.2"))

	tests := []struct {
		name      string
		coins     int64
		wantGross int64
		wantFee   int64
		wantNet   int64
	}{
		{name: "round numbers", coins: 100, wantGross: 500, wantFee: 100, wantNet: 400},
		{name: "single coin", coins: 1, wantGross: 5, wantFee: 1, wantNet: 4},
		{name: "fee rounds up", coins: 3, wantGross: 15, wantFee: 3, wantNet: 12},
		{name: "large payout", coins: 1_000_000, wantGross: 5_000_000, wantFee: 1_000_000, wantNet: 4_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := calc.Quote(tt.coins)
			require.NoError(t, err)
			require.Equal(t, tt.coins, q.Coins)
			require.Equal(t, tt.wantGross, q.GrossCents)
			require.Equal(t, tt.wantFee, q.FeeCents)
			require.Equal(t, tt.wantNet, q.NetCents)
		})
	}
}

func TestPayoutQuoteFractionalRate(t *testing.T) {
	// rate of 2.5 cents per coin: gross floors, fee ceils
	calc := NewPayoutCalculator(decimal.RequireFromString("2.5"), decimal.RequireFromString("0.1"))

	q, err := calc.Quote(3)
	require.NoError(t, err)
	require.Equal(t, int64(7), q.GrossCents) // 7.5 floored
	require.Equal(t, int64(1), q.FeeCents)   // 0.7 ceiled
	require.Equal(t, int64(6), q.NetCents)
}

func TestPayoutQuoteRejectsNonPositive(t *testing.T) {
	calc := NewPayoutCalculator(decimal.NewFromInt(5), decimal.RequireFromString("0.2"))

	_, err := calc.Quote(0)
	require.ErrorIs(t, err, ErrInvalidPayoutAmount)

	_, err = calc.Quote(-10)
	require.ErrorIs(t, err, ErrInvalidPayoutAmount)
}
