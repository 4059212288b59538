package hold

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reclaimer force-releases holds whose owning session never cleaned up (crashed
// call, abandoned ticket). It claims holds through the same active -> released
// transition as a normal release, so it can run concurrently with live traffic.
type Reclaimer struct {
	repo      HoldRepository
	threshold time.Duration
	interval  time.Duration
	log       *zap.Logger
}

type SweepResult struct {
	ReleasedCount int `json:"released_count"`
	AffectedUsers int `json:"affected_users"`
}

func NewReclaimer(repo HoldRepository, threshold, interval time.Duration, log *zap.Logger) *Reclaimer {
	return &Reclaimer{repo: repo, threshold: threshold, interval: interval, log: log}
}

// Sweep releases every active hold older than the staleness threshold as one
// all-or-nothing batch. A failed sweep changes nothing and is simply retried on
// the next invocation.
func (r *Reclaimer) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().Add(-r.threshold)

	stale, err := r.repo.StaleHolds(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return &SweepResult{}, nil
	}

	released, affected, err := r.repo.ReleaseBatch(ctx, stale)
	if err != nil {
		return nil, err
	}

	r.log.Info("reclaimed stale holds",
		zap.Int("released", released),
		zap.Int("affected_users", affected),
		zap.Time("cutoff", cutoff))

	return &SweepResult{ReleasedCount: released, AffectedUsers: affected}, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("stale hold sweep failed", zap.Error(err))
			}
		}
	}
}
