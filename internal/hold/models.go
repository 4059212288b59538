package hold

import (
	"time"
)

const (
	StatusActive   = "active"
	StatusReleased = "released"
)

// SpendHold reserves coins for a paid interaction whose final cost is not yet
// known (a per-minute call, a ticketed show). An active hold counts against the
// wallet's held balance until it is released or converted into a real debit.
type SpendHold struct {
	HoldID     string     `gorm:"column:hold_id;primaryKey;type:uuid"`
	UserID     string     `gorm:"column:user_id;type:uuid;index:idx_holds_user_status;not null"`
	Amount     int64      `gorm:"column:amount;not null"`
	Status     string     `gorm:"column:status;type:varchar(20);index:idx_holds_user_status;index:idx_holds_created_status;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;index:idx_holds_created_status;not null;default:now()"`
	ReleasedAt *time.Time `gorm:"column:released_at"`
}

type HoldRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}
