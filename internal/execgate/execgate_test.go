package execgate_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/execgate"
	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/types"
)

func newGate(t *testing.T, limits execgate.Limits) (*execgate.Gate, *sharedstore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	shared := sharedstore.New(mr.Addr(), "", 0)
	return execgate.NewGate(shared, limits), shared
}

func TestCheckBlocksInDryMode(t *testing.T) {
	gate, shared := newGate(t, execgate.DefaultLimits())
	ctx := context.Background()
	require.NoError(t, shared.SetExecMode(ctx, types.ExecModeState{Mode: types.ModeDry}))

	d, err := gate.Check(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, d.Proceed)
	require.Equal(t, types.ReasonDryRun, d.Reason)
}

func TestCheckBlocksOnEmergencyStopEvenInLiveMode(t *testing.T) {
	gate, shared := newGate(t, execgate.DefaultLimits())
	ctx := context.Background()
	require.NoError(t, shared.SetExecMode(ctx, types.ExecModeState{Mode: types.ModeLive, EmergencyStop: true}))

	d, err := gate.Check(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, d.Proceed)
	require.Equal(t, types.ReasonEmergencyStop, d.Reason)
}

func TestCheckProceedsInLiveModeUnderLimits(t *testing.T) {
	gate, shared := newGate(t, execgate.DefaultLimits())
	ctx := context.Background()
	require.NoError(t, shared.SetExecMode(ctx, types.ExecModeState{Mode: types.ModeLive}))

	d, err := gate.Check(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, d.Proceed)
	require.Equal(t, types.ReasonNone, d.Reason)
}

func TestCheckEnforcesOpensPerMinuteLimit(t *testing.T) {
	limits := execgate.DefaultLimits()
	limits.OpensPerMinute = 2
	gate, shared := newGate(t, limits)
	ctx := context.Background()
	require.NoError(t, shared.SetExecMode(ctx, types.ExecModeState{Mode: types.ModeLive}))

	for i := 0; i < 2; i++ {
		d, err := gate.Check(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, d.Proceed)
	}
	d, err := gate.Check(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, d.Proceed)
	require.Equal(t, types.ReasonRateLimited, d.Reason)
}

func TestCheckRateLimitsArePerUser(t *testing.T) {
	limits := execgate.DefaultLimits()
	limits.OpensPerMinute = 1
	gate, shared := newGate(t, limits)
	ctx := context.Background()
	require.NoError(t, shared.SetExecMode(ctx, types.ExecModeState{Mode: types.ModeLive}))

	d1, err := gate.Check(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, d1.Proceed)

	d2, err := gate.Check(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, d2.Proceed)
}

func TestCheckNotionalCapBlocksAboveThreshold(t *testing.T) {
	limits := execgate.DefaultLimits()
	limits.HourlyNotionalCap = 10_000
	gate, _ := newGate(t, limits)
	ctx := context.Background()

	d, err := gate.CheckNotionalCap(ctx, "user-1", 6_000)
	require.NoError(t, err)
	require.True(t, d.Proceed)

	d, err = gate.CheckNotionalCap(ctx, "user-1", 5_000)
	require.NoError(t, err)
	require.False(t, d.Proceed)
	require.Equal(t, types.ReasonRateLimited, d.Reason)
}
