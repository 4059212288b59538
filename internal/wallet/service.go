package wallet

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	MaxRetries = 3
	RetryDelay = 10 * time.Millisecond
)

var knownTypes = map[string]bool{
	TypeCoinPurchase:         true,
	TypeTip:                  true,
	TypeGift:                 true,
	TypeCallPayment:          true,
	TypeCallEarnings:         true,
	TypeMessageEarnings:      true,
	TypeStreamTip:            true,
	TypeSubscriptionEarnings: true,
	TypePPVUnlock:            true,
	TypeCreatorPayout:        true,
	TypeRefund:               true,
}

// KnownType reports whether t is one of the ledger's transaction types. Every
// path that appends a ledger row checks it, not just CreateTransaction.
func KnownType(t string) bool {
	return knownTypes[t]
}

type Service struct {
	repo   WalletRepository
	payout PayoutCalculator
	log    *zap.Logger
}

func NewService(repo WalletRepository, payout PayoutCalculator, log *zap.Logger) *Service {
	return &Service{repo: repo, payout: payout, log: log}
}

// GetBalance never fails for display callers: a missing wallet and a transient
// storage error both degrade to an all-zero snapshot. Write paths do not degrade.
func (s *Service) GetBalance(ctx context.Context, userId string) Balance {
	w, err := s.repo.GetWallet(ctx, userId)
	if err != nil {
		if !errors.Is(err, ErrWalletNotFound) {
			s.log.Warn("balance read degraded to zero", zap.String("user_id", userId), zap.Error(err))
		}
		return Balance{}
	}
	return Balance{
		Balance:          w.Balance,
		HeldBalance:      w.HeldBalance,
		AvailableBalance: w.AvailableBalance(),
	}
}

// CreateTransaction applies a signed-amount transaction exactly once per
// idempotency key. Replays return the original transaction unchanged, even when
// the retry carries different parameters (a caller bug, logged but never honored).
func (s *Service) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}
	if req.Amount == 0 {
		return nil, ErrZeroAmount
	}
	if !KnownType(req.Type) {
		return nil, ErrUnknownTransactionType
	}

	existing, err := s.repo.GetTransactionByKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Amount != req.Amount || existing.Type != req.Type {
			s.log.Warn("idempotency key replayed with different parameters",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("original_amount", existing.Amount),
				zap.Int64("replay_amount", req.Amount))
		}
		return existing, nil
	}

	tx := &Transaction{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Type:           req.Type,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	}

	for i := 0; i < MaxRetries; i++ {
		err = s.repo.ApplyTransaction(ctx, tx)
		if err == nil {
			return tx, nil
		}
		if errors.Is(err, ErrOptimisticLock) {
			time.Sleep(RetryDelay)
			continue
		}
		if errors.Is(err, ErrDuplicateTransaction) {
			// Lost the race against a concurrent replay of the same key.
			return s.repo.GetTransactionByKey(ctx, req.IdempotencyKey)
		}
		return nil, err
	}
	return nil, err
}

// CreatePayout debits a creator's coins and records the quoted cash value in the
// transaction description. The quote itself never touches the balance.
func (s *Service) CreatePayout(ctx context.Context, userId string, coins int64, idempotencyKey string) (*Transaction, *PayoutQuote, error) {
	quote, err := s.payout.Quote(coins)
	if err != nil {
		return nil, nil, err
	}
	tx, err := s.CreateTransaction(ctx, TransactionRequest{
		UserID:         userId,
		Amount:         -coins,
		Type:           TypeCreatorPayout,
		Description:    quote.Description(),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, nil, err
	}
	return tx, quote, nil
}

func (s *Service) ListTransactions(ctx context.Context, userId string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userId, limit, offset)
}
