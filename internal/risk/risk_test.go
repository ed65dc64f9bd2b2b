package risk_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/priceprovider"
	"github.com/avantisbot/copytrader/internal/risk"
	"github.com/avantisbot/copytrader/internal/types"
)

type fakeEquity struct {
	equity    *big.Int
	found     bool
	equityErr error
	dailyLoss *big.Int
	lossErr   error
}

func (f *fakeEquity) UserEquityUSD1e6(ctx context.Context, userID string) (*big.Int, bool, error) {
	return f.equity, f.found, f.equityErr
}

func (f *fakeEquity) DailyRealizedAndUnrealizedLossUSD1e6(ctx context.Context, userID string) (*big.Int, error) {
	return f.dailyLoss, f.lossErr
}

type fakePrice struct {
	price1e8 int64
	age      time.Duration
	err      error
}

func (f *fakePrice) GetPrice(ctx context.Context, pairID uint16) (priceprovider.Quote, error) {
	if f.err != nil {
		return priceprovider.Quote{}, f.err
	}
	return priceprovider.Quote{Price1e8: f.price1e8, Timestamp: time.Now().Add(-f.age), SourceID: "fake"}, nil
}

func baseIntent() types.CopyIntent {
	return types.CopyIntent{
		IntentID:         "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		UserID:           "user-1",
		PairID:           1,
		IsLong:           true,
		Side:             types.SideOpen,
		CollateralUSD1e6: big.NewInt(1_000_000_000), // 1000 USD
		LeverageBps:      50_000,                     // 5x
	}
}

func newValidator(equity *fakeEquity, primary, secondary *fakePrice) *risk.Validator {
	return risk.NewValidator(risk.DefaultConfig(), equity, primary, secondary)
}

func TestValidatePassesWithinAllLimits(t *testing.T) {
	equity := &fakeEquity{equity: big.NewInt(100_000_000_000), found: true, dailyLoss: big.NewInt(0)}
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 100_10000000}

	v := newValidator(equity, primary, secondary)
	reason, ok := v.Validate(context.Background(), baseIntent())
	require.True(t, ok)
	require.Equal(t, types.ReasonNone, reason)
}

func TestValidateRejectsOversizedPosition(t *testing.T) {
	equity := &fakeEquity{equity: big.NewInt(100_000_000_000), found: true}
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 100_00000000}

	v := newValidator(equity, primary, secondary)
	intent := baseIntent()
	intent.CollateralUSD1e6 = big.NewInt(200_000_000_000) // 200,000 USD > 100,000 cap
	reason, ok := v.Validate(context.Background(), intent)
	require.False(t, ok)
	require.Equal(t, types.ReasonRiskPositionSz, reason)
}

func TestValidateRejectsExcessiveLeverage(t *testing.T) {
	equity := &fakeEquity{equity: big.NewInt(100_000_000_000), found: true}
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 100_00000000}

	v := newValidator(equity, primary, secondary)
	intent := baseIntent()
	intent.LeverageBps = 600 * 10_000 // 600x > 500x cap
	reason, ok := v.Validate(context.Background(), intent)
	require.False(t, ok)
	require.Equal(t, types.ReasonRiskLeverage, reason)
}

func TestValidateRejectsMissingEquity(t *testing.T) {
	equity := &fakeEquity{found: false}
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 100_00000000}

	v := newValidator(equity, primary, secondary)
	reason, ok := v.Validate(context.Background(), baseIntent())
	require.False(t, ok)
	require.Equal(t, types.ReasonNoEquity, reason)
}

func TestValidateRejectsOverAccountRiskPct(t *testing.T) {
	// equity small enough that 1000 USD collateral exceeds 10% of equity
	equity := &fakeEquity{equity: big.NewInt(5_000_000_000), found: true} // 5000 USD equity, 10% = 500 USD
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 100_00000000}

	v := newValidator(equity, primary, secondary)
	reason, ok := v.Validate(context.Background(), baseIntent())
	require.False(t, ok)
	require.Equal(t, types.ReasonRiskAccountPct, reason)
}

func TestValidateRejectsStalePrice(t *testing.T) {
	equity := &fakeEquity{equity: big.NewInt(100_000_000_000), found: true}
	primary := &fakePrice{price1e8: 100_00000000, age: time.Minute}
	secondary := &fakePrice{price1e8: 100_00000000}

	v := newValidator(equity, primary, secondary)
	reason, ok := v.Validate(context.Background(), baseIntent())
	require.False(t, ok)
	require.Equal(t, types.ReasonStalePrice, reason)
}

func TestValidateRejectsPriceDivergence(t *testing.T) {
	equity := &fakeEquity{equity: big.NewInt(100_000_000_000), found: true}
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 110_00000000} // 10% divergence > 0.5% tolerance

	v := newValidator(equity, primary, secondary)
	reason, ok := v.Validate(context.Background(), baseIntent())
	require.False(t, ok)
	require.Equal(t, types.ReasonPriceOutlier, reason)
}

func TestValidateRejectsInsufficientLiquidationBuffer(t *testing.T) {
	equity := &fakeEquity{equity: big.NewInt(100_000_000_000), found: true}
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 100_00000000}

	v := newValidator(equity, primary, secondary)
	intent := baseIntent()
	// at >20x leverage, 1/leverage headroom drops below the 5% buffer
	intent.LeverageBps = 25 * 10_000
	reason, ok := v.Validate(context.Background(), intent)
	require.False(t, ok)
	require.Equal(t, types.ReasonLiqBuffer, reason)
}

func TestValidateRejectsDailyLossCapExceeded(t *testing.T) {
	equity := &fakeEquity{
		equity:    big.NewInt(100_000_000_000), // 100,000 USD
		found:     true,
		dailyLoss: big.NewInt(30_000_000_000), // 30,000 USD > 20% cap
	}
	primary := &fakePrice{price1e8: 100_00000000}
	secondary := &fakePrice{price1e8: 100_00000000}

	v := newValidator(equity, primary, secondary)
	reason, ok := v.Validate(context.Background(), baseIntent())
	require.False(t, ok)
	require.Equal(t, types.ReasonDailyLossCap, reason)
}
