package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidPayoutAmount = errors.New("payout amount must be positive")

// PayoutCalculator converts creator coins into payout cents at a fixed rate,
// minus the platform fee. Rates are policy, injected from config.
type PayoutCalculator struct {
	CoinRateCents   decimal.Decimal // cash value of one coin, in cents
	PlatformFeeRate decimal.Decimal // fraction of gross kept by the platform, 0..1
}

type PayoutQuote struct {
	Coins      int64 `json:"coins"`
	GrossCents int64 `json:"gross_cents"`
	FeeCents   int64 `json:"fee_cents"`
	NetCents   int64 `json:"net_cents"`
}

func NewPayoutCalculator(coinRateCents, platformFeeRate decimal.Decimal) PayoutCalculator {
	return PayoutCalculator{CoinRateCents: coinRateCents, PlatformFeeRate: platformFeeRate}
}

// Quote rounds the gross down and the fee up, so rounding never favors the payee.
func (c PayoutCalculator) Quote(coins int64) (*PayoutQuote, error) {
	if coins <= 0 {
		return nil, ErrInvalidPayoutAmount
	}
	gross := decimal.NewFromInt(coins).Mul(c.CoinRateCents).Floor()
	fee := gross.Mul(c.PlatformFeeRate).Ceil()
	net := gross.Sub(fee)
	if net.IsNegative() {
		net = decimal.Zero
	}
	return &PayoutQuote{
		Coins:      coins,
		GrossCents: gross.IntPart(),
		FeeCents:   fee.IntPart(),
		NetCents:   net.IntPart(),
	}, nil
}

func (q *PayoutQuote) Description() string {
	return fmt.Sprintf("payout of %d coins (net %d cents after %d cents fee)", q.Coins, q.NetCents, q.FeeCents)
}
