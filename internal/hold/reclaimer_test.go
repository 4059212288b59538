package hold_test

import (
	"context"
	"testing"
	"time"

	"coinwallet/internal/hold"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func backdate(t *testing.T, holdId string, age time.Duration) {
	err := db.Model(&hold.SpendHold{}).
		Where("hold_id = ?", holdId).
		Update("created_at", time.Now().Add(-age)).Error
	require.NoError(t, err)
}

// staleFor narrows the sweep query to one user so tests stay deterministic on a
// shared database.
func staleFor(t *testing.T, f *fixture, userId string, threshold time.Duration) []hold.SpendHold {
	stale, err := f.repo.StaleHolds(context.Background(), time.Now().Add(-threshold))
	require.NoError(t, err)

	var mine []hold.SpendHold
	for _, s := range stale {
		if s.UserID == userId {
			mine = append(mine, s)
		}
	}
	return mine
}

func TestSweepReleasesOnlyStaleActiveHolds(t *testing.T) {
	f := setUp(t)
	userId := uuid.NewString()
	f.credit(t, userId, 1000)

	// A: 25h old, active. B: 1h old, active. C: 48h old, already released.
	a, err := f.holds.CreateHold(context.Background(), userId, 400)
	require.NoError(t, err)
	b, err := f.holds.CreateHold(context.Background(), userId, 100)
	require.NoError(t, err)
	c, err := f.holds.CreateHold(context.Background(), userId, 200)
	require.NoError(t, err)
	require.NoError(t, f.holds.ReleaseHold(context.Background(), c.HoldID))

	backdate(t, a.HoldID, 25*time.Hour)
	backdate(t, b.HoldID, 1*time.Hour)
	backdate(t, c.HoldID, 48*time.Hour)

	stale := staleFor(t, f, userId, 24*time.Hour)
	require.Len(t, stale, 1, "only A is stale and active")
	require.Equal(t, a.HoldID, stale[0].HoldID)

	released, affected, err := f.repo.ReleaseBatch(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, 1, released)
	require.Equal(t, 1, affected)

	ha, err := f.repo.GetHold(context.Background(), a.HoldID)
	require.NoError(t, err)
	require.Equal(t, hold.StatusReleased, ha.Status)
	require.NotNil(t, ha.ReleasedAt)

	hb, err := f.repo.GetHold(context.Background(), b.HoldID)
	require.NoError(t, err)
	require.Equal(t, hold.StatusActive, hb.Status)

	balance := f.wallets.GetBalance(context.Background(), userId)
	require.Equal(t, b.Amount, balance.HeldBalance, "only the fresh hold stays reserved")
	f.requireConserved(t, userId)
}

func TestReclaimerSweep(t *testing.T) {
	f := setUp(t)
	userId := uuid.NewString()
	f.credit(t, userId, 500)

	h, err := f.holds.CreateHold(context.Background(), userId, 500)
	require.NoError(t, err)
	backdate(t, h.HoldID, 30*time.Hour)

	reclaimer := hold.NewReclaimer(f.repo, 24*time.Hour, time.Minute, zap.NewNop())

	result, err := reclaimer.Sweep(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.ReleasedCount, 1)
	require.GreaterOrEqual(t, result.AffectedUsers, 1)

	// the sweep is safe to repeat: everything stale is already claimed
	result, err = reclaimer.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ReleasedCount)
	require.Equal(t, 0, result.AffectedUsers)

	balance := f.wallets.GetBalance(context.Background(), userId)
	require.Equal(t, int64(0), balance.HeldBalance)
	require.Equal(t, int64(500), balance.Balance)
	f.requireConserved(t, userId)
}

func TestSweepDoesNotRaceNormalRelease(t *testing.T) {
	f := setUp(t)
	userId := uuid.NewString()
	f.credit(t, userId, 300)

	h, err := f.holds.CreateHold(context.Background(), userId, 300)
	require.NoError(t, err)
	backdate(t, h.HoldID, 25*time.Hour)

	// the stale query sees the hold, then a legitimate release beats the batch
	stale := staleFor(t, f, userId, 24*time.Hour)
	require.Len(t, stale, 1)

	require.NoError(t, f.holds.ReleaseHold(context.Background(), h.HoldID))

	released, affected, err := f.repo.ReleaseBatch(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, 0, released, "claim already taken by the normal release")
	require.Equal(t, 0, affected)

	// no double decrement
	balance := f.wallets.GetBalance(context.Background(), userId)
	require.Equal(t, int64(0), balance.HeldBalance)
	require.Equal(t, int64(300), balance.Balance)
}
