// Package types holds the domain model shared across the copy-trading
// pipeline: fills, lots, follower configs, and the intent state machines.
// Money and price fields use fixed-point big.Int the way the chain
// represents them (no float64 for anything that touches settlement).
// These are plain domain structs with no persistence tags — the gorm row
// shapes and domain<->row conversions live in internal/store, mirroring
// ChoSanghyuk-blackholedex's split between CurrentAssetSnapshot (domain)
// and AssetSnapshotRecord (gorm row with its own bigIntToString helper).
package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FillSide mirrors the three trade-side events the indexer decodes.
type FillSide string

const (
	SideOpen        FillSide = "OPEN"
	SideClose       FillSide = "CLOSE"
	SideLiquidation FillSide = "LIQUIDATION"
)

// Fill is the canonical, immutable record of one trader-side trade event.
// (chain_tx_hash, log_index) is its natural key.
type Fill struct {
	ID             uint64
	ChainTxHash    common.Hash
	LogIndex       uint32
	BlockNumber    uint64
	BlockTimestamp time.Time
	TraderAddress  common.Address
	PairID         uint16
	IsLong         bool
	Side           FillSide
	SizeUSD1e6     *big.Int
	Price1e8       *big.Int
	FeeUSD1e6      *big.Int
	LeverageBps    uint32
}

// Key returns the natural uniqueness key for a fill.
func (f Fill) Key() (common.Hash, uint32) { return f.ChainTxHash, f.LogIndex }

// IndexerCursor is the single row per (chain, contract) indexing position.
type IndexerCursor struct {
	ChainID       uint64
	Contract      common.Address
	LastSafeBlock uint64
	LastSeenBlock uint64
	SchemaVersion int
}

// Valid reports the cursor invariant: last_safe_block <= last_seen_block - finality_depth.
func (c IndexerCursor) Valid(finalityDepth uint64) bool {
	if c.LastSeenBlock < finalityDepth {
		return c.LastSafeBlock == 0
	}
	return c.LastSafeBlock <= c.LastSeenBlock-finalityDepth
}

// Direction is long/short, used as part of the FIFO lot key.
type Direction string

const (
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
)

func DirectionOf(isLong bool) Direction {
	if isLong {
		return DirLong
	}
	return DirShort
}

// Sign returns +1 for long lots, -1 for short lots, per the FIFO PnL
// formula in spec §4.3.
func (d Direction) Sign() int64 {
	if d == DirLong {
		return 1
	}
	return -1
}

// PositionLot is one open FIFO lot derived from an OPEN fill.
type PositionLot struct {
	ID               uint64
	TraderAddress    common.Address
	PairID           uint16
	Direction        Direction
	RemainingSizeUSD *big.Int
	EntryPrice1e8    *big.Int
	EntryTS          time.Time
	SourceFillID     uint64
}

// TraderStats30d is the rolling aggregate maintained per trader.
type TraderStats30d struct {
	TraderAddress     common.Address
	LastTradeTS       time.Time
	TradeCount30d     int64
	VolumeUSD30d      *big.Int
	MedianTradeUSD30d *big.Int
	RealizedPnL30d    *big.Int
	WinRate30d        float64
	MaxDrawdown30d    *big.Int
	LastUpdated       time.Time
}

// SizingMode is how a follower's collateral is derived from a leader fill.
type SizingMode string

const (
	SizingFixedNotional SizingMode = "FIXED_NOTIONAL"
	SizingPctEquity     SizingMode = "PCT_EQUITY"
	SizingMirror        SizingMode = "MIRROR"
)

// FollowConfig is a user's copy-trading configuration for one leader.
type FollowConfig struct {
	UserID            string
	TraderKey         common.Address
	SizingMode        SizingMode
	SizingValue       uint64
	MaxLeverage       uint16
	MaxSlippageBps    uint16
	PerTradeCapUSD1e6 *big.Int
	DailyCapUSD1e6    *big.Int
	PairAllowSet      []uint16
	PairBlockSet      []uint16
	Notify            bool
	AutoCopy          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Allowed reports whether pairID passes the allow/block filters. An empty
// allow-set means "all pairs allowed" unless explicitly blocked.
func (c FollowConfig) Allowed(pairID uint16) bool {
	for _, p := range c.PairBlockSet {
		if p == pairID {
			return false
		}
	}
	if len(c.PairAllowSet) == 0 {
		return true
	}
	for _, p := range c.PairAllowSet {
		if p == pairID {
			return true
		}
	}
	return false
}

// IntentStatus is the CopyIntent state machine. Forward-only except
// SUBMITTED -> FAILED on receipt failure.
type IntentStatus string

const (
	IntentPending   IntentStatus = "PENDING"
	IntentValidated IntentStatus = "VALIDATED"
	IntentSubmitted IntentStatus = "SUBMITTED"
	IntentConfirmed IntentStatus = "CONFIRMED"
	IntentFailed    IntentStatus = "FAILED"
	IntentSkipped   IntentStatus = "SKIPPED"
)

// ReasonCode is the closed set of explanations attached to terminal
// intents, per the error taxonomy in spec §7.
type ReasonCode string

const (
	ReasonNone           ReasonCode = ""
	ReasonDryRun         ReasonCode = "DRY_RUN"
	ReasonEmergencyStop  ReasonCode = "EMERGENCY_STOP"
	ReasonNoEquity       ReasonCode = "NO_EQUITY"
	ReasonOverload       ReasonCode = "OVERLOAD"
	ReasonRiskPositionSz ReasonCode = "RISK_POSITION_SIZE"
	ReasonRiskAccountPct ReasonCode = "RISK_ACCOUNT_PCT"
	ReasonRiskLeverage   ReasonCode = "RISK_LEVERAGE"
	ReasonLiqBuffer      ReasonCode = "LIQ_BUFFER"
	ReasonDailyLossCap   ReasonCode = "DAILY_LOSS_CAP"
	ReasonStalePrice     ReasonCode = "STALE_PRICE"
	ReasonPriceOutlier   ReasonCode = "PRICE_OUTLIER"
	ReasonStuck          ReasonCode = "STUCK"
	ReasonNonceUsed      ReasonCode = "NONCE_USED"
	ReasonRateLimited    ReasonCode = "RATE_LIMITED"
	ReasonPairBlocked    ReasonCode = "PAIR_BLOCKED"
	ReasonRevert         ReasonCode = "TX_REVERTED"
)

// CopyIntent is a derived, in-flight record produced by the fanout and
// driven forward by the execution gate, risk manager, and tx orchestrator.
type CopyIntent struct {
	IntentID         string // ULID
	UserID           string
	SourceFillID     uint64
	PairID           uint16
	IsLong           bool
	Side             FillSide
	CollateralUSD1e6 *big.Int
	LeverageBps      uint32
	Status           IntentStatus
	ReasonCode       ReasonCode
	CreatedAt        time.Time
	UpdatedAt        time.Time
	TxHash           *common.Hash
}

// TxStatus is the low-level chain submission state machine (C10).
type TxStatus string

const (
	TxBuilt     TxStatus = "BUILT"
	TxSigned    TxStatus = "SIGNED"
	TxBroadcast TxStatus = "BROADCAST"
	TxMinedOK   TxStatus = "MINED_OK"
	TxMinedFail TxStatus = "MINED_FAIL"
	TxDropped   TxStatus = "DROPPED"
)

// TxIntent is the low-level transaction the orchestrator drives through
// build -> sign -> broadcast -> confirm.
type TxIntent struct {
	ID                   uint64
	CopyIntentID         string
	Nonce                uint64
	To                   common.Address
	Data                 []byte
	Value                *big.Int
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Attempts             int
	Status               TxStatus
	ReceiptBlock         uint64
	ReceiptGasUsed       uint64
	Hash                 common.Hash
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ExecMode is the process-wide DRY/LIVE switch.
type ExecMode string

const (
	ModeDry  ExecMode = "DRY"
	ModeLive ExecMode = "LIVE"
)

// ExecModeState is the singleton execution-mode record, normally persisted
// in the shared store with a durable fallback.
type ExecModeState struct {
	Mode          ExecMode
	EmergencyStop bool
	UpdatedBy     string
	UpdatedAt     time.Time
}

// TraderSignal is what the indexer/fanout emits for every finalized fill
// belonging to a followed trader.
type TraderSignal struct {
	TraderAddress common.Address
	PairID        uint16
	IsLong        bool
	Side          FillSide
	SizeUSD1e6    *big.Int
	LeverageBps   uint32
	SourceFillID  uint64
	BlockNumber   uint64
}

// Identity returns the dedup key for notification suppression (spec §4.6).
func (s TraderSignal) Identity() string {
	return fmt.Sprintf("%s:%d:%s:%d", s.TraderAddress.Hex(), s.PairID, s.Side, s.SourceFillID)
}

// QuarantinedLog records a single log the indexer could not decode; the
// cursor must not advance past it without operator acknowledgement.
type QuarantinedLog struct {
	ID           uint64
	ChainTxHash  common.Hash
	LogIndex     uint32
	BlockNumber  uint64
	Reason       string
	Acknowledged bool
	CreatedAt    time.Time
}
