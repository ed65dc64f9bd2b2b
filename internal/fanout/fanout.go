// Package fanout turns a finalized fill from a followed trader into
// per-follower CopyIntents (C7). Dispatch uses a bounded worker pool via
// panjf2000/ants, mirroring the teacher's single-producer/many-worker
// split between live.go's loop goroutine and its I/O calls.
package fanout

import (
	"context"
	"fmt"
	"math/big"

	"github.com/oklog/ulid/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/avantisbot/copytrader/internal/metrics"
	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

// NotificationSink is the chat front-end collaborator for notify-only
// and signal events (§6: "Event stream (core -> chat)").
type NotificationSink interface {
	NotifySignal(ctx context.Context, userID string, sig types.TraderSignal, status types.IntentStatus, reason types.ReasonCode) error
}

// EquitySource provides the sizing inputs PCT_EQUITY and MIRROR need.
type EquitySource interface {
	UserEquityUSD1e6(ctx context.Context, userID string) (*big.Int, bool, error)
	LeaderEquityUSD1e6(ctx context.Context, trader string) (*big.Int, bool, error)
}

// IntentSubmitter hands a freshly created PENDING intent to the
// execution worker pool (C9), kept as an interface so fanout never
// imports execworker directly.
type IntentSubmitter interface {
	Submit(ctx context.Context, intentID string) error
}

// Dispatcher is the bounded worker pool that fans a single signal out to
// every follower of its trader.
type Dispatcher struct {
	follow    *store.FollowStore
	intents   *store.IntentStore
	shared    *sharedstore.Store
	equity    EquitySource
	notify    NotificationSink
	submitter IntentSubmitter
	pool      *ants.Pool
	log       zerolog.Logger
}

func NewDispatcher(follow *store.FollowStore, intents *store.IntentStore, shared *sharedstore.Store, equity EquitySource, notify NotificationSink, submitter IntentSubmitter, workers int, log zerolog.Logger) (*Dispatcher, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Dispatcher{follow: follow, intents: intents, shared: shared, equity: equity, notify: notify, submitter: submitter, pool: pool, log: log}, nil
}

func (d *Dispatcher) Release() { d.pool.Release() }

// Dispatch emits a TraderSignal for fill, looks up the trader's
// followers via the reverse index, and submits one worker task per
// follower to the shared pool. Tasks run independently: different users
// run concurrently, and the tasks one user gets from successive fills
// are not serialized, so their relative order is not guaranteed.
func (d *Dispatcher) Dispatch(ctx context.Context, fill types.Fill, emergencyStop bool) error {
	sig := types.TraderSignal{
		TraderAddress: fill.TraderAddress,
		PairID:        fill.PairID,
		IsLong:        fill.IsLong,
		Side:          fill.Side,
		SizeUSD1e6:    fill.SizeUSD1e6,
		LeverageBps:   fill.LeverageBps,
		SourceFillID:  fill.ID,
		BlockNumber:   fill.BlockNumber,
	}

	firstSeen, err := d.shared.MarkSignalSeen(ctx, sig.Identity())
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if !firstSeen {
		return nil
	}

	followers, err := d.follow.UsersByTrader(ctx, fill.TraderAddress.Hex())
	if err != nil {
		return fmt.Errorf("load followers: %w", err)
	}

	for _, cfg := range followers {
		cfg := cfg
		task := func() {
			if err := d.handleFollower(ctx, sig, cfg, emergencyStop); err != nil {
				d.log.Error().Err(err).Str("user_id", cfg.UserID).Msg("fanout follower task failed")
			}
		}
		if err := d.pool.Submit(task); err != nil {
			metrics.FanoutDroppedTotal.WithLabelValues("overload").Inc()
			d.log.Warn().Str("user_id", cfg.UserID).Msg("fanout queue full, signal dropped")
			continue
		}
	}
	return nil
}

func (d *Dispatcher) handleFollower(ctx context.Context, sig types.TraderSignal, cfg types.FollowConfig, emergencyStop bool) error {
	if !cfg.Allowed(sig.PairID) {
		return nil
	}

	if !cfg.AutoCopy {
		if cfg.Notify {
			return d.notify.NotifySignal(ctx, cfg.UserID, sig, "", types.ReasonNone)
		}
		return nil
	}

	if emergencyStop {
		return d.recordSkipped(ctx, sig, cfg, types.ReasonEmergencyStop)
	}

	collateral, reason, ok := d.sizeIntent(ctx, sig, cfg)
	if !ok {
		return d.recordSkipped(ctx, sig, cfg, reason)
	}

	leverage := sig.LeverageBps
	if cfg.MaxLeverage > 0 && leverage > uint32(cfg.MaxLeverage)*10_000 {
		leverage = uint32(cfg.MaxLeverage) * 10_000
	}

	intentID := ulid.Make().String()
	intent := types.CopyIntent{
		IntentID:         intentID,
		UserID:           cfg.UserID,
		SourceFillID:     sig.SourceFillID,
		PairID:           sig.PairID,
		IsLong:           sig.IsLong,
		Side:             sig.Side,
		CollateralUSD1e6: collateral,
		LeverageBps:      leverage,
		Status:           types.IntentPending,
	}
	if err := d.intents.Create(ctx, intent); err != nil {
		if err == store.ErrDuplicateIntent {
			return nil
		}
		return fmt.Errorf("create intent: %w", err)
	}
	if err := d.submitter.Submit(ctx, intentID); err != nil {
		d.log.Warn().Err(err).Str("intent_id", intentID).Msg("failed to hand intent to execution worker pool")
	}

	if cfg.Notify {
		return d.notify.NotifySignal(ctx, cfg.UserID, sig, types.IntentPending, types.ReasonNone)
	}
	return nil
}

func (d *Dispatcher) recordSkipped(ctx context.Context, sig types.TraderSignal, cfg types.FollowConfig, reason types.ReasonCode) error {
	intentID := ulid.Make().String()
	intent := types.CopyIntent{
		IntentID:     intentID,
		UserID:       cfg.UserID,
		SourceFillID: sig.SourceFillID,
		PairID:       sig.PairID,
		IsLong:       sig.IsLong,
		Side:         sig.Side,
		Status:       types.IntentSkipped,
		ReasonCode:   reason,
	}
	if intent.CollateralUSD1e6 == nil {
		intent.CollateralUSD1e6 = big.NewInt(0)
	}
	if err := d.intents.Create(ctx, intent); err != nil && err != store.ErrDuplicateIntent {
		return fmt.Errorf("record skipped intent: %w", err)
	}
	if cfg.Notify {
		return d.notify.NotifySignal(ctx, cfg.UserID, sig, types.IntentSkipped, reason)
	}
	return nil
}

// sizeIntent translates a leader fill into a follower's sized collateral
// per spec §4.6's three sizing modes.
func (d *Dispatcher) sizeIntent(ctx context.Context, sig types.TraderSignal, cfg types.FollowConfig) (*big.Int, types.ReasonCode, bool) {
	switch cfg.SizingMode {
	case types.SizingFixedNotional:
		collateral := new(big.Int).SetUint64(cfg.SizingValue)
		if cfg.PerTradeCapUSD1e6 != nil && cfg.PerTradeCapUSD1e6.Sign() > 0 && collateral.Cmp(cfg.PerTradeCapUSD1e6) > 0 {
			collateral = new(big.Int).Set(cfg.PerTradeCapUSD1e6)
		}
		return collateral, types.ReasonNone, true

	case types.SizingPctEquity:
		equity, ok, err := d.equity.UserEquityUSD1e6(ctx, cfg.UserID)
		if err != nil || !ok || equity == nil {
			return nil, types.ReasonNoEquity, false
		}
		pct := new(big.Int).SetUint64(cfg.SizingValue) // sizing_value carries the pct in bps (e.g. 500 = 5%)
		collateral := new(big.Int).Mul(equity, pct)
		collateral.Div(collateral, big.NewInt(10_000))
		return collateral, types.ReasonNone, true

	case types.SizingMirror:
		leaderEquity, ok, err := d.equity.LeaderEquityUSD1e6(ctx, sig.TraderAddress.Hex())
		if err != nil || !ok || leaderEquity == nil || leaderEquity.Sign() == 0 {
			return nil, types.ReasonNoEquity, false
		}
		followerEquity, ok, err := d.equity.UserEquityUSD1e6(ctx, cfg.UserID)
		if err != nil || !ok || followerEquity == nil {
			return nil, types.ReasonNoEquity, false
		}
		collateral := new(big.Int).Mul(sig.SizeUSD1e6, followerEquity)
		collateral.Div(collateral, leaderEquity)
		return collateral, types.ReasonNone, true

	default:
		return nil, types.ReasonNone, false
	}
}
