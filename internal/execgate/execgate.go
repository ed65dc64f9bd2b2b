// Package execgate implements the global DRY/LIVE execution gate and the
// rate limiters of spec §4.7 (C8). It is the single place that decides
// whether an intent may proceed toward signing, and it always runs
// before the risk validator so "no execution at all" is enforced first.
package execgate

import (
	"context"
	"time"

	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/types"
)

// Limits mirrors spec §4.7's rate-limit buckets.
type Limits struct {
	OpensPerMinute     int64
	TradesPerDay       int64
	HourlyNotionalCap  int64 // USD, whole-dollar granularity is sufficient for a rate limit
}

func DefaultLimits() Limits {
	return Limits{OpensPerMinute: 5, TradesPerDay: 50, HourlyNotionalCap: 10_000}
}

// Gate reads ExecModeState from the shared store and enforces the
// per-user fixed-window rate limits before handing an intent to the risk
// validator. Every limit is keyed by user; there is no global
// (cross-user) limit.
type Gate struct {
	shared *sharedstore.Store
	limits Limits
}

func NewGate(shared *sharedstore.Store, limits Limits) *Gate {
	return &Gate{shared: shared, limits: limits}
}

// Decision is the gate's verdict: either the intent may proceed, or it
// must terminate immediately with the given reason.
type Decision struct {
	Proceed bool
	Reason  types.ReasonCode
}

// Check evaluates the DRY/LIVE/emergency-stop gate and the rate limiters
// for userID, in that order — spec §4.7: DRY and emergency-stop are
// checked before rate limits are even consulted.
func (g *Gate) Check(ctx context.Context, userID string) (Decision, error) {
	mode, err := g.shared.GetExecMode(ctx)
	if err != nil {
		return Decision{}, err
	}
	if mode.Mode == types.ModeDry {
		return Decision{Proceed: false, Reason: types.ReasonDryRun}, nil
	}
	if mode.EmergencyStop {
		return Decision{Proceed: false, Reason: types.ReasonEmergencyStop}, nil
	}

	allowed, err := g.shared.AllowRateLimit(ctx, userID, "opens_per_min", g.limits.OpensPerMinute, time.Minute)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		return Decision{Proceed: false, Reason: types.ReasonRateLimited}, nil
	}

	allowed, err = g.shared.AllowRateLimit(ctx, userID, "trades_per_day", g.limits.TradesPerDay, 24*time.Hour)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		return Decision{Proceed: false, Reason: types.ReasonRateLimited}, nil
	}

	return Decision{Proceed: true}, nil
}

// CheckNotionalCap additionally enforces the hourly notional cap, kept
// separate from Check because it needs the intent's sized collateral,
// not just the user ID.
func (g *Gate) CheckNotionalCap(ctx context.Context, userID string, collateralUSD int64) (Decision, error) {
	total, err := g.shared.IncrNotional(ctx, userID, "hourly_notional_usd", collateralUSD, time.Hour)
	if err != nil {
		return Decision{}, err
	}
	if total > g.limits.HourlyNotionalCap {
		return Decision{Proceed: false, Reason: types.ReasonRateLimited}, nil
	}
	return Decision{Proceed: true}, nil
}
