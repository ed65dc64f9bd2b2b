// Package risk implements the per-intent validator of spec §4.7 (C9):
// position size, account risk percentage, leverage, liquidation buffer,
// daily loss cap, and price freshness/divergence checks. Thresholds are
// the direct generalization of chidi150c-coinbase's Config fields
// (RiskPerTradePct, MaxDailyLossPct, StopLossPct, TakeProfitPct,
// OrderMinUSD) from a single-account spot bot to a multi-follower perp
// copy-trading system.
package risk

import (
	"context"
	"math/big"
	"time"

	"github.com/avantisbot/copytrader/internal/priceprovider"
	"github.com/avantisbot/copytrader/internal/types"
)

// Config mirrors spec §6's risk env vars.
type Config struct {
	MaxPositionSizeUSD1e6 *big.Int
	MaxAccountRiskPct     float64
	MaxLeverageBps        uint32
	LiquidationBufferPct  float64
	MaxDailyLossPct       float64
	MaxPriceAge           time.Duration
	MaxPriceDivergencePct float64
}

func DefaultConfig() Config {
	return Config{
		MaxPositionSizeUSD1e6: bigFromInt64(100_000_000_000), // 100,000 USD at 1e6
		MaxAccountRiskPct:     0.10,
		MaxLeverageBps:        500 * 10_000,
		LiquidationBufferPct:  0.05,
		MaxDailyLossPct:       0.20,
		MaxPriceAge:           5 * time.Second,
		MaxPriceDivergencePct: 0.005,
	}
}

func bigFromInt64(v int64) *big.Int { return big.NewInt(v) }

// EquityProvider supplies the account-level figures the validator needs
// but which live outside this module's ownership (portfolio/equity and
// daily PnL tracking are external collaborators per spec §1).
type EquityProvider interface {
	UserEquityUSD1e6(ctx context.Context, userID string) (*big.Int, bool, error)
	DailyRealizedAndUnrealizedLossUSD1e6(ctx context.Context, userID string) (*big.Int, error)
}

// Validator runs the risk checks of spec §4.7 against a candidate intent.
type Validator struct {
	cfg      Config
	equity   EquityProvider
	primary  priceprovider.PriceProvider
	secondary priceprovider.PriceProvider
}

func NewValidator(cfg Config, equity EquityProvider, primary, secondary priceprovider.PriceProvider) *Validator {
	return &Validator{cfg: cfg, equity: equity, primary: primary, secondary: secondary}
}

// Validate returns ("", true) if intent passes every check, or a
// ReasonCode naming the first failing rule.
func (v *Validator) Validate(ctx context.Context, intent types.CopyIntent) (types.ReasonCode, bool) {
	if intent.CollateralUSD1e6.Cmp(v.cfg.MaxPositionSizeUSD1e6) > 0 {
		return types.ReasonRiskPositionSz, false
	}
	if intent.LeverageBps > v.cfg.MaxLeverageBps {
		return types.ReasonRiskLeverage, false
	}

	equity, ok, err := v.equity.UserEquityUSD1e6(ctx, intent.UserID)
	if err != nil || !ok || equity == nil || equity.Sign() == 0 {
		return types.ReasonNoEquity, false
	}
	maxByAccountPct := new(big.Float).Mul(new(big.Float).SetInt(equity), big.NewFloat(v.cfg.MaxAccountRiskPct))
	collateralF := new(big.Float).SetInt(intent.CollateralUSD1e6)
	if collateralF.Cmp(maxByAccountPct) > 0 {
		return types.ReasonRiskAccountPct, false
	}

	quote, err := priceprovider.CrossCheck(ctx, v.primary, v.secondary, intent.PairID, v.cfg.MaxPriceAge, v.cfg.MaxPriceDivergencePct, time.Now())
	if err != nil {
		if err == priceprovider.ErrStalePrice {
			return types.ReasonStalePrice, false
		}
		if err == priceprovider.ErrPriceOutlier {
			return types.ReasonPriceOutlier, false
		}
		return types.ReasonStalePrice, false
	}

	if !v.liquidationBufferOK(intent, quote) {
		return types.ReasonLiqBuffer, false
	}

	dailyLoss, err := v.equity.DailyRealizedAndUnrealizedLossUSD1e6(ctx, intent.UserID)
	if err == nil && dailyLoss != nil {
		maxDailyLoss := new(big.Float).Mul(new(big.Float).SetInt(equity), big.NewFloat(v.cfg.MaxDailyLossPct))
		if new(big.Float).SetInt(dailyLoss).Cmp(maxDailyLoss) > 0 {
			return types.ReasonDailyLossCap, false
		}
	}

	return types.ReasonNone, true
}

// liquidationBufferOK estimates distance-to-liquidation from leverage
// alone: at leverage L, a position liquidates at roughly a 1/L
// fractional adverse move, and the check requires that 1/L be at least
// LiquidationBufferPct. The quote's price does not enter the estimate.
func (v *Validator) liquidationBufferOK(intent types.CopyIntent, quote priceprovider.Quote) bool {
	if intent.LeverageBps == 0 {
		return true
	}
	leverage := float64(intent.LeverageBps) / 10_000
	liqDistance := 1 / leverage
	return liqDistance >= v.cfg.LiquidationBufferPct
}
