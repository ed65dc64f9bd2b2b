// FILE: main.go
// Package main – Program entrypoint, component wiring, and graceful
// shutdown for the copy-trading core.
//
// Boot sequence (mirrors the teacher's main.go numbering, widened to
// this system's component set):
//   1) config.LoadDotEnv()         – read .env (no shell exports required)
//   2) cfg := config.Load()        – build the runtime Config
//   3) connect Postgres + Redis, run AutoMigrate
//   4) dial the chain client, load the trading-contract ABI schema
//   5) wire stores -> pnl engine -> leaderboard -> execgate -> risk ->
//      tx orchestrator -> execution workers -> fanout
//   6) start the indexer and the health/metrics server
//   7) block on SIGINT/SIGTERM, then drain in the order spec §5 names
//
// Flags:
//   -migrate         Run AutoMigrate and exit (no indexing/serving)
//   -dry-run-once    Decode one bounded indexer pass and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/avantisbot/copytrader/internal/chain"
	"github.com/avantisbot/copytrader/internal/chatapi"
	"github.com/avantisbot/copytrader/internal/config"
	"github.com/avantisbot/copytrader/internal/execgate"
	"github.com/avantisbot/copytrader/internal/execworker"
	"github.com/avantisbot/copytrader/internal/external"
	"github.com/avantisbot/copytrader/internal/fanout"
	"github.com/avantisbot/copytrader/internal/health"
	"github.com/avantisbot/copytrader/internal/indexer"
	"github.com/avantisbot/copytrader/internal/leaderboard"
	"github.com/avantisbot/copytrader/internal/logging"
	"github.com/avantisbot/copytrader/internal/pnl"
	"github.com/avantisbot/copytrader/internal/risk"
	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/signer"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/txorch"
	"github.com/avantisbot/copytrader/internal/types"
)

func main() {
	var migrateOnly bool
	var dryRunOnce bool
	flag.BoolVar(&migrateOnly, "migrate", false, "run schema migration and exit")
	flag.BoolVar(&dryRunOnce, "dry-run-once", false, "run one indexer pass and exit")
	flag.Parse()

	log := logging.New("main", os.Getenv("LOG_PRETTY") == "1")

	config.LoadDotEnv()
	cfg := config.Load()

	db, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	if migrateOnly {
		log.Info().Msg("migration complete")
		return
	}

	fillStore := store.NewFillStore(db)
	quarantineStore := store.NewQuarantineStore(db)
	lotStore := store.NewLotStore(db)
	statsStore := store.NewStatsStore(db)
	followStore := store.NewFollowStore(db)
	intentStore := store.NewIntentStore(db)

	shared := sharedstore.New(cfg.RedisAddr, "", 0)
	defer shared.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := shared.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}

	chainID := chainIDFromEnv()

	chainCfg := chain.DefaultConfig(cfg.BaseRPCURL, cfg.BaseWSURL, cfg.IndexerPage)
	chainClient, err := chain.Dial(ctx, chainCfg, logging.New("chain", false))
	if err != nil {
		log.Fatal().Err(err).Msg("dial chain rpc")
	}

	schema, err := chain.LoadTradeEventSchema(cfg.TradingContractABI)
	if err != nil {
		log.Fatal().Err(err).Msg("load trading contract abi")
	}
	contract := common.HexToAddress(cfg.TradingContract)

	pnlEngine := pnl.NewEngine(lotStore, statsStore, fillStore, logging.New("pnl", false))

	lbCfg := leaderboard.DefaultConfig()
	lbCfg.ActiveWindow = cfg.LeaderActiveHours
	lbCfg.MinTrades30d = cfg.LeaderMinTrades30d
	lbCfg.MinVolumeUSD30d = cfg.LeaderMinVolume30dUSD
	lbService := leaderboard.NewService(statsStore, lbCfg)
	go runLeaderboardRefresh(ctx, lbService, cfg.LeaderboardCacheTTL, logging.New("leaderboard", false))

	gateLimits := execgate.DefaultLimits()
	gateLimits.OpensPerMinute = int64(cfg.RateLimitOpensPerMin)
	gateLimits.TradesPerDay = int64(cfg.RateLimitTradesPerDay)
	gateLimits.HourlyNotionalCap = int64(cfg.HourlyNotionalCapUSD)
	gate := execgate.NewGate(shared, gateLimits)

	if _, err := shared.GetExecMode(ctx); err != nil {
		log.Warn().Err(err).Msg("failed reading initial exec mode")
	}
	if err := shared.SetExecMode(ctx, types.ExecModeState{Mode: types.ExecMode(cfg.DefaultExecMode), EmergencyStop: cfg.EmergencyStop}); err != nil {
		log.Warn().Err(err).Msg("failed to seed initial exec mode")
	}

	portfolio := external.NewPortfolioClient(os.Getenv("PORTFOLIO_SERVICE_URL"))
	primaryOracle := external.NewOracleClient(os.Getenv("PRICE_ORACLE_PRIMARY_URL"), "primary")
	secondaryOracle := external.NewOracleClient(os.Getenv("PRICE_ORACLE_SECONDARY_URL"), "secondary")

	riskCfg := risk.DefaultConfig()
	riskCfg.MaxAccountRiskPct = cfg.MaxAccountRiskPct
	riskCfg.LiquidationBufferPct = cfg.LiquidationBufferPct
	riskCfg.MaxDailyLossPct = cfg.MaxDailyLossPct
	riskCfg.MaxPriceDivergencePct = cfg.PriceOutlierPct
	riskCfg.MaxPriceAge = time.Duration(cfg.PriceMaxAgeSeconds) * time.Second
	riskCfg.MaxLeverageBps = uint32(cfg.MaxLeverage) * 10_000
	validator := risk.NewValidator(riskCfg, portfolio, primaryOracle, secondaryOracle)

	privKey := os.Getenv("EXECUTOR_PRIVATE_KEY")
	var txSigner signer.Signer
	if privKey != "" {
		ls, err := signer.NewLocalSignerFromHex(privKey)
		if err != nil {
			log.Fatal().Err(err).Msg("init local signer")
		}
		txSigner = ls
	} else {
		log.Warn().Msg("no EXECUTOR_PRIVATE_KEY set, running with a no-op signer (DRY mode only)")
		txSigner = noopSigner{}
	}

	txCfg := txorch.DefaultConfig(chainID)
	txCfg.StuckTimeout = time.Duration(cfg.StuckTimeoutSeconds) * time.Second
	txCfg.ReceiptPollInterval = cfg.ReceiptPollInterval
	txCfg.ConfirmTimeout = cfg.ConfirmTimeout
	txCfg.MaxReplacements = cfg.MaxReplacements
	txCfg.FinalityDepth = cfg.IndexerFinalityDepth
	orch := txorch.NewOrchestrator(chainClient, txSigner, intentStore, shared, txCfg, logging.New("txorch", false))

	calldata := external.NewTradingContractCalldata(schema, contract)
	execPool, err := execworker.New(intentStore, gate, validator, orch, calldata, cfg.ExecutionWorkers, logging.New("execworker", false))
	if err != nil {
		log.Fatal().Err(err).Msg("create execution worker pool")
	}
	defer execPool.Release()

	notifyClient := external.NewNotifyClient(os.Getenv("CHAT_WEBHOOK_URL"))
	signalNotifier := external.NewSignalNotifier(notifyClient)

	dispatcher, err := fanout.NewDispatcher(followStore, intentStore, shared, portfolio, signalNotifier, execPool, cfg.ExecutionWorkers, logging.New("fanout", false))
	if err != nil {
		log.Fatal().Err(err).Msg("create fanout dispatcher")
	}
	defer dispatcher.Release()

	chatHandler := chatapi.NewHandler(followStore, shared, lbService)
	_ = chatHandler // wired into the chat transport by the front-end integration, not owned here

	sink := fillSink{engine: pnlEngine, dispatcher: dispatcher, shared: shared}

	idxCfg := indexer.DefaultConfig(uint64(chainID), contract)
	idxCfg.BackfillRange = cfg.IndexerBackfillRange
	idxCfg.Page = cfg.IndexerPage
	idxCfg.SleepWS = cfg.IndexerSleepWS
	idxCfg.SleepHTTP = cfg.IndexerSleepHTTP
	idxCfg.FinalityDepth = cfg.IndexerFinalityDepth
	idxCfg.AlarmThreshold = cfg.IndexerAlarmBlocks
	idx := indexer.New(chainClient, schema, fillStore, quarantineStore, idxCfg, sink, logging.New("indexer", false))

	if dryRunOnce {
		runOnce, cancelOnce := context.WithTimeout(ctx, 30*time.Second)
		defer cancelOnce()
		if err := idx.Run(runOnce); err != nil && runOnce.Err() == nil {
			log.Error().Err(err).Msg("dry run indexer pass failed")
		}
		return
	}

	indexerDone := make(chan error, 1)
	go func() { indexerDone <- idx.Run(ctx) }()

	healthSrv := health.New(
		fmt.Sprintf(":%d", cfg.HealthPort),
		health.DBChecker(db),
		health.SharedStoreChecker(shared),
		health.ChainFreshnessChecker(chainClient, 30*time.Second),
	)
	httpSrv, httpErrs := healthSrv.ListenAndServe()
	log.Info().Int("port", cfg.HealthPort).Msg("health/metrics server listening")

	indexerExited := false
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, draining")
	case err := <-indexerDone:
		indexerExited = true
		if err != nil {
			log.Error().Err(err).Msg("indexer exited unexpectedly")
		}
	case err := <-httpErrs:
		if err != nil {
			log.Error().Err(err).Msg("health server exited unexpectedly")
		}
	}
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer drainCancel()
	_ = httpSrv.Shutdown(drainCtx)

	if !indexerExited {
		select {
		case <-indexerDone:
		case <-drainCtx.Done():
			log.Warn().Msg("indexer did not stop within the drain timeout")
		}
	}
	log.Info().Msg("shutdown complete")
}

// fillSink adapts the PnL engine and fanout dispatcher into the single
// indexer.FillSink the indexer drives, per spec §4.2's "downstream
// consumers" note.
type fillSink struct {
	engine     *pnl.Engine
	dispatcher *fanout.Dispatcher
	shared     *sharedstore.Store
}

func (s fillSink) OnFill(ctx context.Context, f types.Fill) error {
	if err := s.engine.ApplyFill(ctx, f); err != nil {
		return fmt.Errorf("apply fill to pnl engine: %w", err)
	}
	st, err := s.shared.GetExecMode(ctx)
	if err != nil {
		return fmt.Errorf("load exec mode for fanout: %w", err)
	}
	if err := s.dispatcher.Dispatch(ctx, f, st.EmergencyStop); err != nil {
		return fmt.Errorf("dispatch fill: %w", err)
	}
	return nil
}

func runLeaderboardRefresh(ctx context.Context, svc *leaderboard.Service, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("leaderboard refresh failed")
			}
		}
	}
}

func chainIDFromEnv() int64 {
	v := os.Getenv("BASE_CHAIN_ID")
	if v == "" {
		return 8453 // Base mainnet
	}
	var id int64
	_, _ = fmt.Sscanf(v, "%d", &id)
	if id == 0 {
		return 8453
	}
	return id
}

// noopSigner lets the process boot without a configured key; any attempt
// to actually sign fails loudly instead of panicking, so an operator who
// forgets EXECUTOR_PRIVATE_KEY finds out at the first LIVE submission
// rather than from a nil-pointer crash.
type noopSigner struct{}

func (noopSigner) Address() common.Address { return common.Address{} }

func (noopSigner) SignTx(ctx context.Context, tx *gethtypes.Transaction, chainID int64) (*gethtypes.Transaction, error) {
	return nil, fmt.Errorf("no signer configured: set EXECUTOR_PRIVATE_KEY before enabling LIVE mode")
}
