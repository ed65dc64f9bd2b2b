package chatapi_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/chatapi"
	"github.com/avantisbot/copytrader/internal/leaderboard"
	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

func newHandler(t *testing.T) (*chatapi.Handler, *sharedstore.Store) {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	follow := store.NewFollowStore(db)
	stats := store.NewStatsStore(db)
	lb := leaderboard.NewService(stats, leaderboard.DefaultConfig())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	shared := sharedstore.New(mr.Addr(), "", 0)

	return chatapi.NewHandler(follow, shared, lb), shared
}

func TestFollowThenGetFollowingRoundTrips(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()
	trader := common.HexToAddress("0xLeader1")

	require.NoError(t, h.Follow(ctx, "user-1", trader, types.FollowConfig{
		SizingMode:  types.SizingFixedNotional,
		SizingValue: 500_000_000,
		AutoCopy:    true,
	}))

	following, err := h.GetFollowing(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, following, 1)
	require.Equal(t, trader, following[0].TraderKey)
	require.Equal(t, "user-1", following[0].UserID)
}

func TestUnfollowRemovesConfig(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()
	trader := common.HexToAddress("0xLeader2")

	require.NoError(t, h.Follow(ctx, "user-1", trader, types.FollowConfig{SizingMode: types.SizingFixedNotional}))
	require.NoError(t, h.Unfollow(ctx, "user-1", trader))

	following, err := h.GetFollowing(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, following)
}

func TestSetExecModePreservesEmergencyStopAndRecordsAdmin(t *testing.T) {
	h, shared := newHandler(t)
	ctx := context.Background()

	require.NoError(t, h.EmergencyStop(ctx, "admin-1", true))
	require.NoError(t, h.SetExecMode(ctx, "admin-2", types.ModeLive))

	st, err := shared.GetExecMode(ctx)
	require.NoError(t, err)
	require.Equal(t, types.ModeLive, st.Mode)
	require.True(t, st.EmergencyStop)
	require.Equal(t, "admin-2", st.UpdatedBy)
}

func TestEmergencyStopTogglesWithoutChangingMode(t *testing.T) {
	h, shared := newHandler(t)
	ctx := context.Background()

	require.NoError(t, h.SetExecMode(ctx, "admin-1", types.ModeLive))
	require.NoError(t, h.EmergencyStop(ctx, "admin-2", true))

	st, err := shared.GetExecMode(ctx)
	require.NoError(t, err)
	require.Equal(t, types.ModeLive, st.Mode)
	require.True(t, st.EmergencyStop)
}

func TestGetLeaderboardReturnsEmptyBeforeAnyRefresh(t *testing.T) {
	h, _ := newHandler(t)
	entries, err := h.GetLeaderboard(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}
