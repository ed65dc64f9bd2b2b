package config

import "time"

// Config holds every runtime knob listed in spec.md §6. It is loaded once
// at boot and treated as immutable; the one admin-mutable piece
// (DRY/LIVE + emergency stop) lives in the shared store, not here — see
// sharedstore.Store's GetExecMode/SetExecMode.
type Config struct {
	// Chain endpoints
	BaseRPCURL string
	BaseWSURL  string

	// Database / shared store
	PostgresDSN string
	RedisAddr   string

	// Indexer (C1/C2)
	IndexerBackfillRange uint64
	IndexerPage          uint64
	IndexerSleepWS       time.Duration
	IndexerSleepHTTP     time.Duration
	IndexerFinalityDepth uint64
	IndexerAlarmBlocks   uint64
	TradingContract      string
	TradingContractABI   string

	// Leaderboard (C5)
	LeaderActiveHours     time.Duration
	LeaderMinTrades30d    int64
	LeaderMinVolume30dUSD float64
	LeaderboardCacheTTL   time.Duration

	// Execution gate (C8)
	DefaultExecMode    string // DRY|LIVE
	EmergencyStop      bool
	HourlyNotionalCapUSD float64
	RateLimitOpensPerMin  int
	RateLimitTradesPerDay int
	RateLimitChatPerMin   int

	// Risk manager (C9)
	MaxPositionSizeUSD  float64
	MaxAccountRiskPct   float64
	MaxLeverage         uint16
	LiquidationBufferPct float64
	MaxDailyLossPct     float64
	PriceMaxAgeSeconds  int
	PriceOutlierPct     float64

	// Tx orchestrator (C10)
	GasPriorityFeeFloorGwei float64
	StuckTimeoutSeconds     int
	MaxReplacements         int
	ReceiptPollInterval     time.Duration
	ConfirmTimeout          time.Duration

	// Fanout / workers (C7)
	FanoutQueueSize int
	ExecutionWorkers int
	DedupTTL         time.Duration

	// Ops
	HealthPort    int
	DrainTimeout  time.Duration
	RPCDeadline   time.Duration
}

// Load reads the process env (hydrated by LoadDotEnv) into a Config,
// falling back to the defaults documented in spec.md §6.
func Load() Config {
	return Config{
		BaseRPCURL: getEnv("BASE_RPC_URL", ""),
		BaseWSURL:  getEnv("BASE_WS_URL", ""),

		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/copytrader?sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "127.0.0.1:6379"),

		IndexerBackfillRange: getEnvUint64("INDEXER_BACKFILL_RANGE", 50000),
		IndexerPage:          getEnvUint64("INDEXER_PAGE", 2000),
		IndexerSleepWS:       time.Duration(getEnvInt("INDEXER_SLEEP_WS", 2)) * time.Second,
		IndexerSleepHTTP:     time.Duration(getEnvInt("INDEXER_SLEEP_HTTP", 5)) * time.Second,
		IndexerFinalityDepth: getEnvUint64("INDEXER_FINALITY_DEPTH", 12),
		IndexerAlarmBlocks:   getEnvUint64("INDEXER_ALARM_BLOCKS", 50),
		TradingContract:      getEnv("TRADING_CONTRACT_ADDR", ""),
		TradingContractABI:   getEnv("TRADING_CONTRACT_ABI_PATH", "abi/avantis_trading.json"),

		LeaderActiveHours:     time.Duration(getEnvInt("LEADER_ACTIVE_HOURS", 72)) * time.Hour,
		LeaderMinTrades30d:    int64(getEnvInt("LEADER_MIN_TRADES_30D", 300)),
		LeaderMinVolume30dUSD: getEnvFloat("LEADER_MIN_VOLUME_30D_USD", 10_000_000),
		LeaderboardCacheTTL:   time.Duration(getEnvInt("LEADERBOARD_CACHE_TTL", 60)) * time.Second,

		DefaultExecMode:       getEnv("COPY_EXECUTION_MODE", "DRY"),
		EmergencyStop:         getEnvBool("EMERGENCY_STOP", false),
		HourlyNotionalCapUSD:  getEnvFloat("HOURLY_NOTIONAL_CAP_USD", 10000),
		RateLimitOpensPerMin:  getEnvInt("RATE_LIMIT_OPENS_PER_MIN", 5),
		RateLimitTradesPerDay: getEnvInt("RATE_LIMIT_TRADES_PER_DAY", 50),
		RateLimitChatPerMin:   getEnvInt("RATE_LIMIT_CHAT_PER_MIN", 30),

		MaxPositionSizeUSD:   getEnvFloat("MAX_POSITION_SIZE_USD", 100000),
		MaxAccountRiskPct:    getEnvFloat("MAX_ACCOUNT_RISK_PCT", 0.10),
		MaxLeverage:          uint16(getEnvInt("MAX_LEVERAGE", 500)),
		LiquidationBufferPct: getEnvFloat("LIQUIDATION_BUFFER_PCT", 0.05),
		MaxDailyLossPct:      getEnvFloat("MAX_DAILY_LOSS_PCT", 0.20),
		PriceMaxAgeSeconds:   getEnvInt("PRICE_MAX_AGE_SECONDS", 5),
		PriceOutlierPct:      getEnvFloat("PRICE_OUTLIER_PCT", 0.005),

		GasPriorityFeeFloorGwei: getEnvFloat("GAS_PRIORITY_FEE_FLOOR_GWEI", 0.01),
		StuckTimeoutSeconds:     getEnvInt("STUCK_TIMEOUT_SECONDS", 60),
		MaxReplacements:         getEnvInt("MAX_REPLACEMENTS", 3),
		ReceiptPollInterval:     time.Duration(getEnvInt("RECEIPT_POLL_INTERVAL_MS", 1500)) * time.Millisecond,
		ConfirmTimeout:          time.Duration(getEnvInt("CONFIRM_TIMEOUT_SECONDS", 180)) * time.Second,

		FanoutQueueSize:  getEnvInt("FANOUT_QUEUE_SIZE", 10000),
		ExecutionWorkers: getEnvInt("EXECUTION_WORKERS", 16),
		DedupTTL:         time.Duration(getEnvInt("DEDUP_TTL_SECONDS", 300)) * time.Second,

		HealthPort:   getEnvInt("HEALTH_PORT", 8080),
		DrainTimeout: time.Duration(getEnvInt("DRAIN_TIMEOUT_SECONDS", 30)) * time.Second,
		RPCDeadline:  time.Duration(getEnvInt("RPC_DEADLINE_SECONDS", 10)) * time.Second,
	}
}
