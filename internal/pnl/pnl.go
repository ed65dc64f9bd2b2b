// Package pnl maintains FIFO position lots and rolling 30-day trader
// statistics from the fills stream. FIFO matching and per-trader
// bookkeeping mirror chidi150c-coinbase's trader.go (a single running
// position processed fill-by-fill), generalized from one account to one
// FIFO queue per (trader, pair, direction).
package pnl

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

const windowDays = 30

// Engine is the single writer of position_lots and trader_stats, per
// spec §5's single-writer-per-trader rule.
type Engine struct {
	lots  *store.LotStore
	stats *store.StatsStore
	fills *store.FillStore
	log   zerolog.Logger
}

func NewEngine(lots *store.LotStore, stats *store.StatsStore, fills *store.FillStore, log zerolog.Logger) *Engine {
	return &Engine{lots: lots, stats: stats, fills: fills, log: log}
}

// ApplyFill processes a single new fill for a trader, updating open lots
// and the trader's rolling 30-day stats. Callers must invoke this in
// (block_number, log_index) order per trader, per spec §5.
func (e *Engine) ApplyFill(ctx context.Context, f types.Fill) error {
	trader := f.TraderAddress.Hex()

	switch f.Side {
	case types.SideOpen:
		lot := types.PositionLot{
			TraderAddress:    f.TraderAddress,
			PairID:           f.PairID,
			Direction:        types.DirectionOf(f.IsLong),
			RemainingSizeUSD: new(big.Int).Set(f.SizeUSD1e6),
			EntryPrice1e8:    new(big.Int).Set(f.Price1e8),
			EntryTS:          f.BlockTimestamp,
			SourceFillID:     f.ID,
		}
		if err := e.lots.CreateLot(ctx, lot); err != nil {
			return fmt.Errorf("create lot: %w", err)
		}
	case types.SideClose, types.SideLiquidation:
		// A CLOSE of a long position consumes the long lot queue; the
		// position direction being closed is the fill's own IsLong flag,
		// not a "close side" distinct from it.
		dir := types.DirectionOf(f.IsLong)
		if err := e.matchAgainstQueue(ctx, trader, f, dir); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown fill side %q", f.Side)
	}

	return e.recomputeStats(ctx, f.TraderAddress)
}

// matchAgainstQueue consumes open lots FIFO until the close size is
// satisfied or the queue is exhausted. A residual close (more size than
// open lots cover) is dropped per spec §4.3 ("pre-indexer fills missing").
func (e *Engine) matchAgainstQueue(ctx context.Context, trader string, f types.Fill, dir types.Direction) error {
	queue, err := e.lots.OpenLots(ctx, trader, f.PairID, dir)
	if err != nil {
		return fmt.Errorf("load open lots: %w", err)
	}

	remaining := new(big.Int).Set(f.SizeUSD1e6)

	for _, lot := range queue {
		if remaining.Sign() <= 0 {
			break
		}
		matched := new(big.Int).Set(lot.RemainingSizeUSD)
		if matched.Cmp(remaining) > 0 {
			matched = new(big.Int).Set(remaining)
		}

		newRemaining := new(big.Int).Sub(lot.RemainingSizeUSD, matched)
		if err := e.lots.ReduceLot(ctx, lot.ID, newRemaining); err != nil {
			return fmt.Errorf("reduce lot %d: %w", lot.ID, err)
		}
		remaining.Sub(remaining, matched)
	}

	if remaining.Sign() > 0 {
		e.log.Warn().
			Str("trader", trader).
			Uint16("pair_id", f.PairID).
			Str("residual_usd1e6", remaining.String()).
			Msg("close size exceeds open lot queue, residual dropped")
	}

	return nil
}

// realizedPnL implements spec §4.3's formula:
//
//	pnl = matched_size * (exit_price - entry_price) / entry_price * direction_sign - proportional_fees
func realizedPnL(matched, entryPrice, exitPrice, dirSign *big.Int, proportionalFee *big.Int) *big.Int {
	if entryPrice.Sign() == 0 {
		return big.NewInt(0)
	}
	priceDelta := new(big.Int).Sub(exitPrice, entryPrice)
	gross := new(big.Int).Mul(matched, priceDelta)
	gross.Div(gross, entryPrice)
	gross.Mul(gross, dirSign)
	return gross.Sub(gross, proportionalFee)
}

func proportionalFee(matched, totalCloseSize, totalFee *big.Int) *big.Int {
	if totalCloseSize == nil || totalCloseSize.Sign() == 0 || totalFee == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(matched, totalFee)
	fee.Div(fee, totalCloseSize)
	return fee
}

// RebuildTraderAddress discards a trader's lots and replays every fill
// from scratch, re-deriving lots and stats from the fills table alone
// (spec §8 property 4, PnL rebuildability). It does not compare the
// rebuilt state with the state it replaced.
func (e *Engine) RebuildTraderAddress(ctx context.Context, traderHex string) error {
	if err := e.lots.DeleteAllForTrader(ctx, traderHex); err != nil {
		return fmt.Errorf("clear lots: %w", err)
	}
	fills, err := e.fills.AllFillsForTrader(ctx, traderHex)
	if err != nil {
		return fmt.Errorf("load fills: %w", err)
	}
	for _, f := range fills {
		if err := e.ApplyFill(ctx, f); err != nil {
			return fmt.Errorf("replay fill %s:%d: %w", f.ChainTxHash.Hex(), f.LogIndex, err)
		}
	}
	return nil
}

// recomputeStats derives the full 30-day window by replaying the FIFO
// match sequence against the trader's fills. Re-scanning on every fill
// keeps the engine a pure function of persisted state (rebuildable, per
// spec §4.3) at the cost of re-deriving the window each time; acceptable
// given the 30-day bound.
func (e *Engine) recomputeStats(ctx context.Context, traderAddr common.Address) error {
	trader := traderAddr.Hex()
	cutoff := time.Now().AddDate(0, 0, -windowDays)

	fills, err := e.fills.AllFillsForTrader(ctx, trader)
	if err != nil {
		return fmt.Errorf("load fills for stats: %w", err)
	}

	lotQueues := map[string][]simLot{}
	var (
		tradeCount   int64
		volume       = big.NewInt(0)
		realized     = big.NewInt(0)
		tradeSizes   []*big.Int
		winSamples   int64
		totalSamples int64
		dailyPnL     = map[string]*big.Int{}
		lastTrade    time.Time
	)

	for _, f := range fills {
		key := fmt.Sprintf("%d:%s", f.PairID, types.DirectionOf(f.IsLong))
		switch f.Side {
		case types.SideOpen:
			lotQueues[key] = append(lotQueues[key], simLot{
				remaining: new(big.Int).Set(f.SizeUSD1e6),
				entry:     new(big.Int).Set(f.Price1e8),
			})
		case types.SideClose, types.SideLiquidation:
			queue := lotQueues[key]
			remaining := new(big.Int).Set(f.SizeUSD1e6)
			dirSign := big.NewInt(types.DirectionOf(f.IsLong).Sign())
			idx := 0
			for idx < len(queue) && remaining.Sign() > 0 {
				lot := &queue[idx]
				matched := new(big.Int).Set(lot.remaining)
				if matched.Cmp(remaining) > 0 {
					matched = new(big.Int).Set(remaining)
				}
				fee := proportionalFee(matched, f.SizeUSD1e6, f.FeeUSD1e6)
				pnl := realizedPnL(matched, lot.entry, f.Price1e8, dirSign, fee)

				lot.remaining.Sub(lot.remaining, matched)
				remaining.Sub(remaining, matched)

				if f.BlockTimestamp.After(cutoff) {
					realized.Add(realized, pnl)
					totalSamples++
					if pnl.Sign() > 0 {
						winSamples++
					}
					day := f.BlockTimestamp.Format("2006-01-02")
					if dailyPnL[day] == nil {
						dailyPnL[day] = big.NewInt(0)
					}
					dailyPnL[day].Add(dailyPnL[day], pnl)
				}

				if lot.remaining.Sign() == 0 {
					idx++
				}
			}
			lotQueues[key] = queue[idx:]
		}

		if f.BlockTimestamp.After(cutoff) {
			tradeCount++
			volume.Add(volume, f.SizeUSD1e6)
			tradeSizes = append(tradeSizes, f.SizeUSD1e6)
			if f.BlockTimestamp.After(lastTrade) {
				lastTrade = f.BlockTimestamp
			}
		}
	}

	winRate := 0.0
	if totalSamples > 0 {
		winRate = float64(winSamples) / float64(totalSamples)
	}

	stats := types.TraderStats30d{
		TraderAddress:     traderAddr,
		LastTradeTS:       lastTrade,
		TradeCount30d:     tradeCount,
		VolumeUSD30d:      volume,
		MedianTradeUSD30d: medianBigInt(tradeSizes),
		RealizedPnL30d:    realized,
		WinRate30d:        winRate,
		MaxDrawdown30d:    maxDrawdown(dailyPnL),
		LastUpdated:       time.Now(),
	}
	if err := e.stats.Upsert(ctx, stats); err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

type simLot struct {
	remaining *big.Int
	entry     *big.Int
}

// medianBigInt sorts the window's fill sizes and returns the middle
// value (average of the two middle values for an even count). Exact
// computation, not an approximating sketch — see SPEC_FULL.md §4.3.
func medianBigInt(vs []*big.Int) *big.Int {
	if len(vs) == 0 {
		return big.NewInt(0)
	}
	sorted := make([]*big.Int, len(vs))
	copy(sorted, vs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Int).Set(sorted[mid])
	}
	sum := new(big.Int).Add(sorted[mid-1], sorted[mid])
	return sum.Div(sum, big.NewInt(2))
}

// maxDrawdown computes peak-to-trough of cumulative realized PnL across
// day buckets, per spec §4.3.
func maxDrawdown(dailyPnL map[string]*big.Int) *big.Int {
	if len(dailyPnL) == 0 {
		return big.NewInt(0)
	}
	days := make([]string, 0, len(dailyPnL))
	for d := range dailyPnL {
		days = append(days, d)
	}
	sort.Strings(days)

	cumulative := big.NewInt(0)
	peak := big.NewInt(0)
	worst := big.NewInt(0)
	for _, d := range days {
		cumulative.Add(cumulative, dailyPnL[d])
		if cumulative.Cmp(peak) > 0 {
			peak = new(big.Int).Set(cumulative)
		}
		drawdown := new(big.Int).Sub(peak, cumulative)
		if drawdown.Cmp(worst) > 0 {
			worst = drawdown
		}
	}
	return worst
}
