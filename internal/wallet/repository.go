package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrOptimisticLock         = errors.New("optimistic lock error")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrMissingIdempotencyKey  = errors.New("idempotency key is required")
	ErrZeroAmount             = errors.New("transaction amount must be nonzero")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
)

// InsufficientBalanceError carries the exact numbers so callers can tell a user
// why a spend failed (e.g. coins locked for an active call).
type InsufficientBalanceError struct {
	Required  int64
	Available int64
	Total     int64
	Held      int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d (total %d, held %d)",
		e.Required, e.Available, e.Total, e.Held)
}

type WalletRepository interface {
	GetWallet(ctx context.Context, userId string) (*Wallet, error)
	GetTransactionByKey(ctx context.Context, idempotencyKey string) (*Transaction, error)
	ApplyTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, userId string, limit, offset int) ([]Transaction, error)
}

type WalletRepositoryImpl struct {
	db *gorm.DB
}

func NewWalletRepositoryImpl(db *gorm.DB) WalletRepository {
	return &WalletRepositoryImpl{db: db}
}

func (r *WalletRepositoryImpl) GetWallet(ctx context.Context, userId string) (*Wallet, error) {
	var w Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userId).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepositoryImpl) GetTransactionByKey(ctx context.Context, idempotencyKey string) (*Transaction, error) {
	var t Transaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", idempotencyKey).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ApplyTransaction runs the balance check, the balance mutation and the ledger
// insert as one database transaction. The wallet row is locked on read so
// concurrent writers for the same user serialize; the version guard catches the
// lazy-create race and callers retry on ErrOptimisticLock.
func (r *WalletRepositoryImpl) ApplyTransaction(ctx context.Context, tx *Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var w Wallet
		err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", tx.UserID).First(&w).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			// Wallets are created lazily on the first write.
			if tx.Amount < 0 {
				return &InsufficientBalanceError{Required: -tx.Amount}
			}
			w = Wallet{WalletID: uuid.NewString(), UserID: tx.UserID, Version: 1}
			if err := dbtx.Create(&w).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrOptimisticLock
				}
				return err
			}
		}

		if tx.Amount < 0 && w.AvailableBalance() < -tx.Amount {
			return &InsufficientBalanceError{
				Required:  -tx.Amount,
				Available: w.AvailableBalance(),
				Total:     w.Balance,
				Held:      w.HeldBalance,
			}
		}

		newBalance := w.Balance + tx.Amount

		result := dbtx.Model(&Wallet{}).Where("wallet_id = ? AND version = ?", w.WalletID, w.Version).
			Updates(map[string]interface{}{
				"balance":    newBalance,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrOptimisticLock
		}

		tx.TransactionID = uuid.NewString()
		tx.BalanceBefore = w.Balance
		tx.BalanceAfter = newBalance
		tx.Status = StatusCompleted
		tx.CreatedAt = time.Now()

		if err := dbtx.Create(tx).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateTransaction
			}
			return err
		}

		return nil
	})
}

func (r *WalletRepositoryImpl) ListTransactions(ctx context.Context, userId string, limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
