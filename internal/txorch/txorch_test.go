package txorch

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/types"
)

func TestBumpFeesIncreasesByAtLeast12Percent(t *testing.T) {
	o := &Orchestrator{}
	txi := types.TxIntent{
		MaxFeePerGas:         big.NewInt(100_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		Status:               types.TxBroadcast,
	}
	bumped := o.bumpFees(txi)
	require.Equal(t, big.NewInt(112_000_000_000).String(), bumped.MaxFeePerGas.String())
	require.Equal(t, big.NewInt(1_120_000_000).String(), bumped.MaxPriorityFeePerGas.String())
	require.Equal(t, types.TxBuilt, bumped.Status)
}

func TestIsNonceTooLowMatchesKnownErrorText(t *testing.T) {
	require.True(t, isNonceTooLow(errors.New("nonce too low")))
	require.True(t, isNonceTooLow(errors.New("Nonce Too Low: expected 5")))
	require.False(t, isNonceTooLow(errors.New("insufficient funds")))
}

func TestIsNonceAlreadyUsedMatchesKnownVariants(t *testing.T) {
	require.True(t, isNonceAlreadyUsed(errors.New("nonce already used")))
	require.True(t, isNonceAlreadyUsed(errors.New("already known")))
	require.True(t, isNonceAlreadyUsed(errors.New("replacement transaction underpriced")))
	require.False(t, isNonceAlreadyUsed(errors.New("execution reverted")))
}

func TestDefaultConfigUsesReasonableFeeFloor(t *testing.T) {
	cfg := DefaultConfig(8453)
	require.Equal(t, int64(8453), cfg.ChainID)
	require.Equal(t, big.NewInt(1_000_000_000).String(), cfg.PriorityFeeFloor.String())
	require.Equal(t, 3, cfg.MaxReplacements)
}
