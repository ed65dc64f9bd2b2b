package sharedstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/types"
)

func newStore(t *testing.T) *sharedstore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return sharedstore.New(mr.Addr(), "", 0)
}

func TestGetExecModeDefaultsToDry(t *testing.T) {
	s := newStore(t)
	st, err := s.GetExecMode(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.ModeDry, st.Mode)
	require.False(t, st.EmergencyStop)
}

func TestSetThenGetExecModeRoundTrips(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetExecMode(ctx, types.ExecModeState{Mode: types.ModeLive, EmergencyStop: true}))

	st, err := s.GetExecMode(ctx)
	require.NoError(t, err)
	require.Equal(t, types.ModeLive, st.Mode)
	require.True(t, st.EmergencyStop)
	require.False(t, st.UpdatedAt.IsZero())
}

func TestNextNonceIncrementsFromZero(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	n1, err := s.NextNonce(ctx, "0xabc")
	require.NoError(t, err)
	n2, err := s.NextNonce(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(0), n1)
	require.Equal(t, uint64(1), n2)
}

func TestSeedNonceOnlyAppliesOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedNonce(ctx, "0xabc", 100))
	require.NoError(t, s.SeedNonce(ctx, "0xabc", 500)) // should not rewind

	n, err := s.NextNonce(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(100), n)
}

func TestResyncNonceForcesValue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedNonce(ctx, "0xabc", 100))
	require.NoError(t, s.ResyncNonce(ctx, "0xabc", 42))

	n, err := s.NextNonce(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)
}

func TestAllowRateLimitBlocksAfterLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := s.AllowRateLimit(ctx, "user-1", "opens_per_min", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, err := s.AllowRateLimit(ctx, "user-1", "opens_per_min", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestIncrNotionalAccumulates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	total, err := s.IncrNotional(ctx, "user-1", "hourly_notional_usd", 4_000, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(4_000), total)

	total, err = s.IncrNotional(ctx, "user-1", "hourly_notional_usd", 3_000, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(7_000), total)
}

func TestMarkSignalSeenIsOneShot(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	first, err := s.MarkSignalSeen(ctx, "sig-1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := s.MarkSignalSeen(ctx, "sig-1")
	require.NoError(t, err)
	require.False(t, second)
}
