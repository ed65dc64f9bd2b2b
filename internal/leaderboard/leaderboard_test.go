package leaderboard_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/leaderboard"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

func newStats(t *testing.T) *store.StatsStore {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	return store.NewStatsStore(db)
}

func upsert(t *testing.T, stats *store.StatsStore, trader string, volume, pnl, drawdown int64, winRate float64, trades int64, lastTrade time.Time) {
	t.Helper()
	require.NoError(t, stats.Upsert(context.Background(), types.TraderStats30d{
		TraderAddress:     common.HexToAddress(trader),
		LastTradeTS:       lastTrade,
		TradeCount30d:     trades,
		VolumeUSD30d:      big.NewInt(volume),
		MedianTradeUSD30d: big.NewInt(volume / max64(trades, 1)),
		RealizedPnL30d:    big.NewInt(pnl),
		WinRate30d:        winRate,
		MaxDrawdown30d:    big.NewInt(drawdown),
		LastUpdated:       time.Now(),
	}))
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func TestRefreshExcludesInactiveAndLowVolumeTraders(t *testing.T) {
	stats := newStats(t)
	cfg := leaderboard.DefaultConfig()
	cfg.ActiveWindow = 72 * time.Hour
	cfg.MinTrades30d = 10
	cfg.MinVolumeUSD30d = 1_000
	svc := leaderboard.NewService(stats, cfg)

	now := time.Now()
	upsert(t, stats, "0x01", 50_000, 500, 100, 0.6, 20, now)               // eligible
	upsert(t, stats, "0x02", 50_000, 500, 100, 0.6, 5, now)                // too few trades
	upsert(t, stats, "0x03", 100, 500, 100, 0.6, 20, now)                  // too little volume
	upsert(t, stats, "0x04", 50_000, 500, 100, 0.6, 20, now.AddDate(0, 0, -10)) // stale

	require.NoError(t, svc.Refresh(context.Background()))
	entries := svc.Top(10)
	require.Len(t, entries, 1)
	require.Equal(t, common.HexToAddress("0x01").Hex(), entries[0].TraderAddress)
}

func TestTopOrdersByScoreDescending(t *testing.T) {
	stats := newStats(t)
	cfg := leaderboard.DefaultConfig()
	cfg.MinTrades30d = 1
	cfg.MinVolumeUSD30d = 1
	svc := leaderboard.NewService(stats, cfg)

	now := time.Now()
	upsert(t, stats, "0xA1", 1_000_000, 50_000, 1_000, 0.8, 50, now)
	upsert(t, stats, "0xA2", 10_000, -5_000, 20_000, 0.2, 10, now)
	upsert(t, stats, "0xA3", 500_000, 10_000, 5_000, 0.5, 30, now)

	require.NoError(t, svc.Refresh(context.Background()))
	entries := svc.Top(10)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		require.GreaterOrEqual(t, entries[i-1].Score, entries[i].Score)
	}
	require.Equal(t, common.HexToAddress("0xA1").Hex(), entries[0].TraderAddress)
}

func TestTopTruncatesToRequestedLimit(t *testing.T) {
	stats := newStats(t)
	cfg := leaderboard.DefaultConfig()
	cfg.MinTrades30d = 1
	cfg.MinVolumeUSD30d = 1
	svc := leaderboard.NewService(stats, cfg)

	now := time.Now()
	for i := 0; i < 5; i++ {
		upsert(t, stats, common.BigToAddress(big.NewInt(int64(i+1))).Hex(), 10_000, 1_000, 100, 0.5, 10, now)
	}
	require.NoError(t, svc.Refresh(context.Background()))
	require.Len(t, svc.Top(2), 2)
	require.Len(t, svc.Top(100), 5)
}

func TestCacheAgeBeforeRefreshIsVeryLarge(t *testing.T) {
	stats := newStats(t)
	svc := leaderboard.NewService(stats, leaderboard.DefaultConfig())
	require.Greater(t, svc.CacheAge(), 24*time.Hour)
}
