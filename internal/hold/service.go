package hold

import (
	"context"
	"errors"
	"time"

	"coinwallet/internal/wallet"

	"go.uber.org/zap"
)

type Service struct {
	repo    HoldRepository
	wallets wallet.WalletRepository
	log     *zap.Logger
}

func NewService(repo HoldRepository, wallets wallet.WalletRepository, log *zap.Logger) *Service {
	return &Service{repo: repo, wallets: wallets, log: log}
}

func (s *Service) CreateHold(ctx context.Context, userId string, amount int64) (*SpendHold, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var h *SpendHold
	var err error
	for i := 0; i < wallet.MaxRetries; i++ {
		h, err = s.repo.CreateHold(ctx, userId, amount)
		if err == nil {
			return h, nil
		}
		if errors.Is(err, wallet.ErrOptimisticLock) {
			time.Sleep(wallet.RetryDelay)
			continue
		}
		return nil, err
	}
	return nil, err
}

// ReleaseHold drops the reservation without charging anything. Releasing an
// already-released hold is a no-op.
func (s *Service) ReleaseHold(ctx context.Context, holdId string) error {
	return s.repo.ReleaseHold(ctx, holdId)
}

// ConvertHoldToTransaction finishes a held interaction: the hold is released and
// the final cost (which may differ from the held amount) is debited in one
// atomic operation. finalAmount is the cost in coins, always positive.
func (s *Service) ConvertHoldToTransaction(ctx context.Context, holdId string, finalAmount int64, req wallet.TransactionRequest) (*wallet.Transaction, error) {
	if finalAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.IdempotencyKey == "" {
		return nil, wallet.ErrMissingIdempotencyKey
	}
	if !wallet.KnownType(req.Type) {
		return nil, wallet.ErrUnknownTransactionType
	}

	// Retried conversions answer from the ledger, not by re-charging.
	existing, err := s.wallets.GetTransactionByKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tx := &wallet.Transaction{
		UserID:         req.UserID,
		Amount:         -finalAmount,
		Type:           req.Type,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	}

	for i := 0; i < wallet.MaxRetries; i++ {
		err = s.repo.ConvertHold(ctx, holdId, tx)
		if err == nil {
			return tx, nil
		}
		if errors.Is(err, wallet.ErrOptimisticLock) {
			time.Sleep(wallet.RetryDelay)
			continue
		}
		if errors.Is(err, wallet.ErrDuplicateTransaction) {
			return s.wallets.GetTransactionByKey(ctx, req.IdempotencyKey)
		}
		return nil, err
	}
	return nil, err
}

func (s *Service) ActiveHolds(ctx context.Context, userId string) ([]SpendHold, error) {
	return s.repo.ActiveHolds(ctx, userId)
}
