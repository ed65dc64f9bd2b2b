package pnl_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/pnl"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

func newEngine(t *testing.T) (*pnl.Engine, *store.FillStore, *store.LotStore, *store.StatsStore) {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	fills := store.NewFillStore(db)
	lots := store.NewLotStore(db)
	stats := store.NewStatsStore(db)
	return pnl.NewEngine(lots, stats, fills, zerolog.Nop()), fills, lots, stats
}

func seedFill(t *testing.T, fills *store.FillStore, f types.Fill) {
	t.Helper()
	err := fills.InsertBatchAndAdvanceCursor(context.Background(), nil, []types.Fill{f}, types.IndexerCursor{
		ChainID:       8453,
		Contract:      common.HexToAddress("0xCCCC"),
		LastSafeBlock: f.BlockNumber,
		LastSeenBlock: f.BlockNumber,
	})
	require.NoError(t, err)
}

func TestApplyFillOpenThenFullClose(t *testing.T) {
	engine, fills, lots, stats := newEngine(t)
	ctx := context.Background()
	trader := common.HexToAddress("0xAAAA")

	open := types.Fill{
		ID:             1,
		ChainTxHash:    common.HexToHash("0x01"),
		LogIndex:       0,
		BlockNumber:    100,
		BlockTimestamp: time.Now().Add(-time.Hour),
		TraderAddress:  trader,
		PairID:         1,
		IsLong:         true,
		Side:           types.SideOpen,
		SizeUSD1e6:     big.NewInt(1_000_000_000), // 1000 USD
		Price1e8:       big.NewInt(100_00000000),  // 100.00
		FeeUSD1e6:      big.NewInt(0),
		LeverageBps:    50_000,
	}
	seedFill(t, fills, open)
	require.NoError(t, engine.ApplyFill(ctx, open))

	openLots, err := lots.OpenLots(ctx, trader.Hex(), 1, types.DirLong)
	require.NoError(t, err)
	require.Len(t, openLots, 1)
	require.Equal(t, 0, openLots[0].RemainingSizeUSD.Cmp(open.SizeUSD1e6))

	closeFill := types.Fill{
		ID:             2,
		ChainTxHash:    common.HexToHash("0x02"),
		LogIndex:       0,
		BlockNumber:    101,
		BlockTimestamp: time.Now(),
		TraderAddress:  trader,
		PairID:         1,
		IsLong:         true,
		Side:           types.SideClose,
		SizeUSD1e6:     big.NewInt(1_000_000_000),
		Price1e8:       big.NewInt(110_00000000), // 10% gain
		FeeUSD1e6:      big.NewInt(0),
		LeverageBps:    50_000,
	}
	seedFill(t, fills, closeFill)
	require.NoError(t, engine.ApplyFill(ctx, closeFill))

	openLots, err = lots.OpenLots(ctx, trader.Hex(), 1, types.DirLong)
	require.NoError(t, err)
	require.Empty(t, openLots)

	st, found, err := stats.Get(ctx, trader.Hex())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(2), st.TradeCount30d)
	// realized pnl = 1000 * (110-100)/100 = 100 USD, scaled 1e6 -> 100_000_000
	require.Equal(t, big.NewInt(100_000_000).String(), st.RealizedPnL30d.String())
	require.InDelta(t, 1.0, st.WinRate30d, 1e-9)
}

func TestApplyFillPartialCloseLeavesResidualLot(t *testing.T) {
	engine, fills, lots, _ := newEngine(t)
	ctx := context.Background()
	trader := common.HexToAddress("0xBBBB")

	open := types.Fill{
		ID:             1,
		ChainTxHash:    common.HexToHash("0x11"),
		BlockNumber:    10,
		BlockTimestamp: time.Now(),
		TraderAddress:  trader,
		PairID:         2,
		IsLong:         false,
		Side:           types.SideOpen,
		SizeUSD1e6:     big.NewInt(2_000_000_000),
		Price1e8:       big.NewInt(50_00000000),
		FeeUSD1e6:      big.NewInt(0),
	}
	seedFill(t, fills, open)
	require.NoError(t, engine.ApplyFill(ctx, open))

	partialClose := types.Fill{
		ID:             2,
		ChainTxHash:    common.HexToHash("0x12"),
		BlockNumber:    11,
		BlockTimestamp: time.Now(),
		TraderAddress:  trader,
		PairID:         2,
		IsLong:         false,
		Side:           types.SideClose,
		SizeUSD1e6:     big.NewInt(500_000_000),
		Price1e8:       big.NewInt(45_00000000),
		FeeUSD1e6:      big.NewInt(0),
	}
	seedFill(t, fills, partialClose)
	require.NoError(t, engine.ApplyFill(ctx, partialClose))

	openLots, err := lots.OpenLots(ctx, trader.Hex(), 2, types.DirShort)
	require.NoError(t, err)
	require.Len(t, openLots, 1)
	require.Equal(t, big.NewInt(1_500_000_000).String(), openLots[0].RemainingSizeUSD.String())
}

func TestApplyFillUnknownSideRejected(t *testing.T) {
	engine, fills, _, _ := newEngine(t)
	ctx := context.Background()
	f := types.Fill{
		ID:             1,
		ChainTxHash:    common.HexToHash("0x21"),
		BlockNumber:    1,
		BlockTimestamp: time.Now(),
		TraderAddress:  common.HexToAddress("0xCCCC"),
		PairID:         1,
		Side:           "BOGUS",
		SizeUSD1e6:     big.NewInt(1),
		Price1e8:       big.NewInt(1),
		FeeUSD1e6:      big.NewInt(0),
	}
	seedFill(t, fills, f)
	require.Error(t, engine.ApplyFill(ctx, f))
}
