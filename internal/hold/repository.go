package hold

import (
	"context"
	"errors"
	"time"

	"coinwallet/internal/wallet"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrHoldNotFound  = errors.New("hold not found")
	ErrHoldNotActive = errors.New("hold is not active")
	ErrInvalidAmount = errors.New("hold amount must be positive")
)

type HoldRepository interface {
	GetHold(ctx context.Context, holdId string) (*SpendHold, error)
	CreateHold(ctx context.Context, userId string, amount int64) (*SpendHold, error)
	ReleaseHold(ctx context.Context, holdId string) error
	ConvertHold(ctx context.Context, holdId string, tx *wallet.Transaction) error
	ActiveHolds(ctx context.Context, userId string) ([]SpendHold, error)
	StaleHolds(ctx context.Context, cutoff time.Time) ([]SpendHold, error)
	ReleaseBatch(ctx context.Context, holds []SpendHold) (released int, affectedUsers int, err error)
}

type HoldRepositoryImpl struct {
	db *gorm.DB
}

func NewHoldRepositoryImpl(db *gorm.DB) HoldRepository {
	return &HoldRepositoryImpl{db: db}
}

func (r *HoldRepositoryImpl) GetHold(ctx context.Context, holdId string) (*SpendHold, error) {
	var h SpendHold
	err := r.db.WithContext(ctx).Where("hold_id = ?", holdId).First(&h).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	return &h, nil
}

// CreateHold checks available balance and increments the wallet's held balance
// in the same database transaction that inserts the hold row. Holds contend for
// availableBalance with regular debits, so the same version guard applies.
func (r *HoldRepositoryImpl) CreateHold(ctx context.Context, userId string, amount int64) (*SpendHold, error) {
	h := &SpendHold{
		HoldID: uuid.NewString(),
		UserID: userId,
		Amount: amount,
		Status: StatusActive,
	}

	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var w wallet.Wallet
		err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userId).First(&w).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return &wallet.InsufficientBalanceError{Required: amount}
		}

		if w.AvailableBalance() < amount {
			return &wallet.InsufficientBalanceError{
				Required:  amount,
				Available: w.AvailableBalance(),
				Total:     w.Balance,
				Held:      w.HeldBalance,
			}
		}

		result := dbtx.Model(&wallet.Wallet{}).Where("wallet_id = ? AND version = ?", w.WalletID, w.Version).
			Updates(map[string]interface{}{
				"held_balance": w.HeldBalance + amount,
				"version":      gorm.Expr("version + 1"),
				"updated_at":   time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return wallet.ErrOptimisticLock
		}

		return dbtx.Create(h).Error
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ReleaseHold is idempotent: the active -> released status flip is the claim, so
// a hold can only ever decrement the held balance once. The decrement is floored
// at zero in SQL to absorb drift.
func (r *HoldRepositoryImpl) ReleaseHold(ctx context.Context, holdId string) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var h SpendHold
		err := dbtx.Where("hold_id = ?", holdId).First(&h).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHoldNotFound
			}
			return err
		}
		if h.Status != StatusActive {
			return nil
		}

		claimed, err := claimRelease(dbtx, holdId)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		return decrementHeld(dbtx, h.UserID, h.Amount)
	})
}

// ConvertHold releases the hold and applies the final debit in one database
// transaction, so the wallet never shows coins that are neither held nor
// debited nor available.
func (r *HoldRepositoryImpl) ConvertHold(ctx context.Context, holdId string, tx *wallet.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var h SpendHold
		err := dbtx.Where("hold_id = ?", holdId).First(&h).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHoldNotFound
			}
			return err
		}
		if h.Status != StatusActive {
			return ErrHoldNotActive
		}

		// The debit always lands on the hold's owner; the request cannot
		// redirect it to another wallet.
		tx.UserID = h.UserID

		claimed, err := claimRelease(dbtx, holdId)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrHoldNotActive
		}

		var w wallet.Wallet
		if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", h.UserID).First(&w).Error; err != nil {
			return err
		}

		// The hold's coins come back into availability before the debit check.
		heldAfter := w.HeldBalance - h.Amount
		if heldAfter < 0 {
			heldAfter = 0
		}
		available := w.Balance - heldAfter
		if tx.Amount < 0 && available < -tx.Amount {
			return &wallet.InsufficientBalanceError{
				Required:  -tx.Amount,
				Available: available,
				Total:     w.Balance,
				Held:      heldAfter,
			}
		}

		newBalance := w.Balance + tx.Amount

		result := dbtx.Model(&wallet.Wallet{}).Where("wallet_id = ? AND version = ?", w.WalletID, w.Version).
			Updates(map[string]interface{}{
				"balance":      newBalance,
				"held_balance": heldAfter,
				"version":      gorm.Expr("version + 1"),
				"updated_at":   time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return wallet.ErrOptimisticLock
		}

		tx.TransactionID = uuid.NewString()
		tx.BalanceBefore = w.Balance
		tx.BalanceAfter = newBalance
		tx.Status = wallet.StatusCompleted
		tx.CreatedAt = time.Now()

		if err := dbtx.Create(tx).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return wallet.ErrDuplicateTransaction
			}
			return err
		}

		return nil
	})
}

func (r *HoldRepositoryImpl) ActiveHolds(ctx context.Context, userId string) ([]SpendHold, error) {
	var holds []SpendHold
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userId, StatusActive).
		Order("created_at ASC").
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *HoldRepositoryImpl) StaleHolds(ctx context.Context, cutoff time.Time) ([]SpendHold, error) {
	var holds []SpendHold
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", StatusActive, cutoff).
		Order("user_id ASC, created_at ASC").
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

// ReleaseBatch force-releases the given holds as a single database transaction.
// Each hold is claimed individually, so a legitimate release that slipped in
// between the stale query and this batch is simply skipped, never
// double-decremented. All-or-nothing: any failure rolls the whole batch back.
func (r *HoldRepositoryImpl) ReleaseBatch(ctx context.Context, holds []SpendHold) (int, int, error) {
	released := 0
	affected := 0

	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		perUser := make(map[string]int64)
		for _, h := range holds {
			claimed, err := claimRelease(dbtx, h.HoldID)
			if err != nil {
				return err
			}
			if !claimed {
				continue
			}
			released++
			perUser[h.UserID] += h.Amount
		}

		for userId, total := range perUser {
			if err := decrementHeld(dbtx, userId, total); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return released, affected, nil
}

func claimRelease(dbtx *gorm.DB, holdId string) (bool, error) {
	result := dbtx.Model(&SpendHold{}).
		Where("hold_id = ? AND status = ?", holdId, StatusActive).
		Updates(map[string]interface{}{
			"status":      StatusReleased,
			"released_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func decrementHeld(dbtx *gorm.DB, userId string, amount int64) error {
	return dbtx.Model(&wallet.Wallet{}).Where("user_id = ?", userId).
		Updates(map[string]interface{}{
			"held_balance": gorm.Expr("GREATEST(held_balance - ?, 0)", amount),
			"version":      gorm.Expr("version + 1"),
			"updated_at":   time.Now(),
		}).Error
}
