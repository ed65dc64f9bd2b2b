package fanout_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/avantisbot/copytrader/internal/fanout"
	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

type fakeEquity struct {
	userEquity   map[string]*big.Int
	leaderEquity map[string]*big.Int
}

func (f *fakeEquity) UserEquityUSD1e6(ctx context.Context, userID string) (*big.Int, bool, error) {
	v, ok := f.userEquity[userID]
	return v, ok, nil
}

func (f *fakeEquity) LeaderEquityUSD1e6(ctx context.Context, trader string) (*big.Int, bool, error) {
	v, ok := f.leaderEquity[trader]
	return v, ok, nil
}

type notifyCall struct {
	userID string
	status types.IntentStatus
	reason types.ReasonCode
}

type fakeNotify struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotify) NotifySignal(ctx context.Context, userID string, sig types.TraderSignal, status types.IntentStatus, reason types.ReasonCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{userID: userID, status: status, reason: reason})
	return nil
}

func (f *fakeNotify) snapshot() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notifyCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, intentID)
	return nil
}

func (f *fakeSubmitter) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submitted))
	copy(out, f.submitted)
	return out
}

type fixture struct {
	dispatcher *fanout.Dispatcher
	follow     *store.FollowStore
	intents    *store.IntentStore
	notify     *fakeNotify
	submitter  *fakeSubmitter
	equity     *fakeEquity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	follow := store.NewFollowStore(db)
	intents := store.NewIntentStore(db)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	shared := sharedstore.New(mr.Addr(), "", 0)

	equity := &fakeEquity{userEquity: map[string]*big.Int{}, leaderEquity: map[string]*big.Int{}}
	notify := &fakeNotify{}
	submitter := &fakeSubmitter{}

	d, err := fanout.NewDispatcher(follow, intents, shared, equity, notify, submitter, 4, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(d.Release)

	return &fixture{dispatcher: d, follow: follow, intents: intents, notify: notify, submitter: submitter, equity: equity}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func sampleFill(trader common.Address, pair uint16) types.Fill {
	return types.Fill{
		ID:            1,
		TraderAddress: trader,
		PairID:        pair,
		IsLong:        true,
		Side:          types.SideOpen,
		SizeUSD1e6:    big.NewInt(1_000_000_000),
		LeverageBps:   50_000,
		BlockNumber:   100,
	}
}

func TestDispatchCreatesIntentAndSubmitsForFixedNotionalAutoCopy(t *testing.T) {
	fx := newFixture(t)
	trader := common.HexToAddress("0xLeader1")
	require.NoError(t, fx.follow.Upsert(context.Background(), types.FollowConfig{
		UserID:      "user-1",
		TraderKey:   trader,
		SizingMode:  types.SizingFixedNotional,
		SizingValue: 250_000_000,
		AutoCopy:    true,
		Notify:      true,
	}))

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), sampleFill(trader, 1), false))

	waitFor(t, func() bool { return len(fx.submitter.snapshot()) == 1 })
	submitted := fx.submitter.snapshot()
	require.Len(t, submitted, 1)

	intent, found, err := fx.intents.Get(context.Background(), submitted[0])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.IntentPending, intent.Status)
	require.Equal(t, big.NewInt(250_000_000).String(), intent.CollateralUSD1e6.String())

	waitFor(t, func() bool { return len(fx.notify.snapshot()) == 1 })
	notified := fx.notify.snapshot()[0]
	require.Equal(t, types.IntentPending, notified.status)
}

func TestDispatchAppliesPerTradeCap(t *testing.T) {
	fx := newFixture(t)
	trader := common.HexToAddress("0xLeader2")
	require.NoError(t, fx.follow.Upsert(context.Background(), types.FollowConfig{
		UserID:            "user-1",
		TraderKey:         trader,
		SizingMode:        types.SizingFixedNotional,
		SizingValue:       1_000_000_000,
		PerTradeCapUSD1e6: big.NewInt(400_000_000),
		AutoCopy:          true,
	}))

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), sampleFill(trader, 1), false))
	waitFor(t, func() bool { return len(fx.submitter.snapshot()) == 1 })

	intent, found, err := fx.intents.Get(context.Background(), fx.submitter.snapshot()[0])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, big.NewInt(400_000_000).String(), intent.CollateralUSD1e6.String())
}

func TestDispatchNotifyOnlyFollowerNeverCreatesIntent(t *testing.T) {
	fx := newFixture(t)
	trader := common.HexToAddress("0xLeader3")
	require.NoError(t, fx.follow.Upsert(context.Background(), types.FollowConfig{
		UserID:     "user-1",
		TraderKey:  trader,
		SizingMode: types.SizingFixedNotional,
		AutoCopy:   false,
		Notify:     true,
	}))

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), sampleFill(trader, 1), false))
	waitFor(t, func() bool { return len(fx.notify.snapshot()) == 1 })
	require.Empty(t, fx.submitter.snapshot())
}

func TestDispatchSkipsOnEmergencyStop(t *testing.T) {
	fx := newFixture(t)
	trader := common.HexToAddress("0xLeader4")
	require.NoError(t, fx.follow.Upsert(context.Background(), types.FollowConfig{
		UserID:     "user-1",
		TraderKey:  trader,
		SizingMode: types.SizingFixedNotional,
		AutoCopy:   true,
		Notify:     true,
	}))

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), sampleFill(trader, 1), true))
	waitFor(t, func() bool { return len(fx.notify.snapshot()) == 1 })
	require.Empty(t, fx.submitter.snapshot())
	require.Equal(t, types.ReasonEmergencyStop, fx.notify.snapshot()[0].reason)
}

func TestDispatchSkipsPctEquitySizingWhenEquityUnknown(t *testing.T) {
	fx := newFixture(t)
	trader := common.HexToAddress("0xLeader5")
	require.NoError(t, fx.follow.Upsert(context.Background(), types.FollowConfig{
		UserID:      "user-1",
		TraderKey:   trader,
		SizingMode:  types.SizingPctEquity,
		SizingValue: 500,
		AutoCopy:    true,
		Notify:      true,
	}))

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), sampleFill(trader, 1), false))
	waitFor(t, func() bool { return len(fx.notify.snapshot()) == 1 })
	require.Empty(t, fx.submitter.snapshot())
	require.Equal(t, types.ReasonNoEquity, fx.notify.snapshot()[0].reason)
}

func TestDispatchSkipsBlockedPair(t *testing.T) {
	fx := newFixture(t)
	trader := common.HexToAddress("0xLeader6")
	require.NoError(t, fx.follow.Upsert(context.Background(), types.FollowConfig{
		UserID:       "user-1",
		TraderKey:    trader,
		SizingMode:   types.SizingFixedNotional,
		SizingValue:  100_000_000,
		AutoCopy:     true,
		Notify:       true,
		PairBlockSet: []uint16{1},
	}))

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), sampleFill(trader, 1), false))
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, fx.submitter.snapshot())
	require.Empty(t, fx.notify.snapshot())
}

func TestDispatchDedupsRepeatedFill(t *testing.T) {
	fx := newFixture(t)
	trader := common.HexToAddress("0xLeader7")
	require.NoError(t, fx.follow.Upsert(context.Background(), types.FollowConfig{
		UserID:      "user-1",
		TraderKey:   trader,
		SizingMode:  types.SizingFixedNotional,
		SizingValue: 100_000_000,
		AutoCopy:    true,
	}))

	fill := sampleFill(trader, 1)
	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), fill, false))
	waitFor(t, func() bool { return len(fx.submitter.snapshot()) == 1 })
	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), fill, false))
	time.Sleep(50 * time.Millisecond)
	require.Len(t, fx.submitter.snapshot(), 1)
}
