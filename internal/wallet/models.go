package wallet

import (
	"time"
)

const (
	TypeCoinPurchase         = "coin_purchase"
	TypeTip                  = "tip"
	TypeGift                 = "gift"
	TypeCallPayment          = "call_payment"
	TypeCallEarnings         = "call_earnings"
	TypeMessageEarnings      = "message_earnings"
	TypeStreamTip            = "stream_tip"
	TypeSubscriptionEarnings = "subscription_earnings"
	TypePPVUnlock            = "ppv_unlock"
	TypeCreatorPayout        = "creator_payout"
	TypeRefund               = "refund"
)

const StatusCompleted = "completed"

type Wallet struct {
	WalletID    string    `gorm:"column:wallet_id;primaryKey;type:uuid"`
	UserID      string    `gorm:"column:user_id;type:uuid;uniqueIndex;not null"`
	Balance     int64     `gorm:"column:balance;not null;default:0"`
	HeldBalance int64     `gorm:"column:held_balance;not null;default:0"`
	Version     int       `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// AvailableBalance is the portion of the balance not reserved by active holds.
func (w *Wallet) AvailableBalance() int64 {
	return w.Balance - w.HeldBalance
}

type Transaction struct {
	TransactionID  string    `gorm:"column:transaction_id;primaryKey;type:uuid"`
	UserID         string    `gorm:"column:user_id;type:uuid;index;not null"`
	Amount         int64     `gorm:"column:amount;not null"` // negative = debit, positive = credit
	Type           string    `gorm:"column:type;type:varchar(30);not null"`
	Description    string    `gorm:"column:description;type:varchar(255)"`
	Status         string    `gorm:"column:status;type:varchar(20);not null"`
	IdempotencyKey string    `gorm:"column:idempotency_key;type:varchar(128);uniqueIndex;not null"`
	BalanceBefore  int64     `gorm:"column:balance_before;not null"`
	BalanceAfter   int64     `gorm:"column:balance_after;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;default:now()"`
}

type TransactionRequest struct {
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Balance is the read model returned to display callers.
type Balance struct {
	Balance          int64 `json:"balance"`
	HeldBalance      int64 `json:"held_balance"`
	AvailableBalance int64 `json:"available_balance"`
}
