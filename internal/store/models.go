package store

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avantisbot/copytrader/internal/types"
)

// Row DTOs translate domain types that embed go-ethereum's common.Hash /
// common.Address / *big.Int (none of which implement sql.Scanner /
// driver.Valuer) into plain string columns gorm can map directly. The
// split and the bigIntToString/stringToBigInt helpers are grounded on
// ChoSanghyuk-blackholedex/internal/db/transaction_recorder.go's
// AssetSnapshotRecord, which does the same hex/decimal-string conversion
// for its on-chain snapshot fields.

func bigIntToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func stringToBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func hashPtrToString(h *common.Hash) string {
	if h == nil {
		return ""
	}
	return h.Hex()
}

func stringToHashPtr(s string) *common.Hash {
	if s == "" {
		return nil
	}
	h := common.HexToHash(s)
	return &h
}

// FillRow is the gorm row for types.Fill.
type FillRow struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	ChainTxHash    string `gorm:"size:66;index:idx_fill_natural_key,unique"`
	LogIndex       uint32 `gorm:"index:idx_fill_natural_key,unique"`
	BlockNumber    uint64 `gorm:"index"`
	BlockTimestamp time.Time
	TraderAddress  string `gorm:"size:42;index:idx_fill_trader"`
	PairID         uint16 `gorm:"index:idx_fill_trader"`
	IsLong         bool
	Side           string `gorm:"size:16"`
	SizeUSD1e6     string `gorm:"size:78"`
	Price1e8       string `gorm:"size:78"`
	FeeUSD1e6      string `gorm:"size:78"`
	LeverageBps    uint32
}

func (FillRow) TableName() string { return "fills" }

func FillFromDomain(f types.Fill) FillRow {
	return FillRow{
		ID:             f.ID,
		ChainTxHash:    f.ChainTxHash.Hex(),
		LogIndex:       f.LogIndex,
		BlockNumber:    f.BlockNumber,
		BlockTimestamp: f.BlockTimestamp,
		TraderAddress:  f.TraderAddress.Hex(),
		PairID:         f.PairID,
		IsLong:         f.IsLong,
		Side:           string(f.Side),
		SizeUSD1e6:     bigIntToString(f.SizeUSD1e6),
		Price1e8:       bigIntToString(f.Price1e8),
		FeeUSD1e6:      bigIntToString(f.FeeUSD1e6),
		LeverageBps:    f.LeverageBps,
	}
}

func (r FillRow) ToDomain() types.Fill {
	return types.Fill{
		ID:             r.ID,
		ChainTxHash:    common.HexToHash(r.ChainTxHash),
		LogIndex:       r.LogIndex,
		BlockNumber:    r.BlockNumber,
		BlockTimestamp: r.BlockTimestamp,
		TraderAddress:  common.HexToAddress(r.TraderAddress),
		PairID:         r.PairID,
		IsLong:         r.IsLong,
		Side:           types.FillSide(r.Side),
		SizeUSD1e6:     stringToBigInt(r.SizeUSD1e6),
		Price1e8:       stringToBigInt(r.Price1e8),
		FeeUSD1e6:      stringToBigInt(r.FeeUSD1e6),
		LeverageBps:    r.LeverageBps,
	}
}

// CursorRow is the gorm row for types.IndexerCursor.
type CursorRow struct {
	ChainID       uint64 `gorm:"primaryKey"`
	Contract      string `gorm:"primaryKey;size:42"`
	LastSafeBlock uint64
	LastSeenBlock uint64
	SchemaVersion int
}

func (CursorRow) TableName() string { return "indexer_cursors" }

func CursorFromDomain(c types.IndexerCursor) CursorRow {
	return CursorRow{
		ChainID:       c.ChainID,
		Contract:      c.Contract.Hex(),
		LastSafeBlock: c.LastSafeBlock,
		LastSeenBlock: c.LastSeenBlock,
		SchemaVersion: c.SchemaVersion,
	}
}

func (r CursorRow) ToDomain() types.IndexerCursor {
	return types.IndexerCursor{
		ChainID:       r.ChainID,
		Contract:      common.HexToAddress(r.Contract),
		LastSafeBlock: r.LastSafeBlock,
		LastSeenBlock: r.LastSeenBlock,
		SchemaVersion: r.SchemaVersion,
	}
}

// LotRow is the gorm row for types.PositionLot.
type LotRow struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	TraderAddress    string `gorm:"size:42;index:idx_lot_key"`
	PairID           uint16 `gorm:"index:idx_lot_key"`
	Direction        string `gorm:"size:8;index:idx_lot_key"`
	RemainingSizeUSD string `gorm:"size:78"`
	EntryPrice1e8    string `gorm:"size:78"`
	EntryTS          time.Time
	SourceFillID     uint64 `gorm:"index"`
}

func (LotRow) TableName() string { return "position_lots" }

func LotFromDomain(l types.PositionLot) LotRow {
	return LotRow{
		ID:               l.ID,
		TraderAddress:    l.TraderAddress.Hex(),
		PairID:           l.PairID,
		Direction:        string(l.Direction),
		RemainingSizeUSD: bigIntToString(l.RemainingSizeUSD),
		EntryPrice1e8:    bigIntToString(l.EntryPrice1e8),
		EntryTS:          l.EntryTS,
		SourceFillID:     l.SourceFillID,
	}
}

func (r LotRow) ToDomain() types.PositionLot {
	return types.PositionLot{
		ID:               r.ID,
		TraderAddress:    common.HexToAddress(r.TraderAddress),
		PairID:           r.PairID,
		Direction:        types.Direction(r.Direction),
		RemainingSizeUSD: stringToBigInt(r.RemainingSizeUSD),
		EntryPrice1e8:    stringToBigInt(r.EntryPrice1e8),
		EntryTS:          r.EntryTS,
		SourceFillID:     r.SourceFillID,
	}
}

// StatsRow is the gorm row for types.TraderStats30d.
type StatsRow struct {
	TraderAddress     string `gorm:"primaryKey;size:42"`
	LastTradeTS       time.Time
	TradeCount30d     int64
	VolumeUSD30d      string `gorm:"size:78"`
	MedianTradeUSD30d string `gorm:"size:78"`
	RealizedPnL30d    string `gorm:"size:78"`
	WinRate30d        float64
	MaxDrawdown30d    string `gorm:"size:78"`
	LastUpdated       time.Time
}

func (StatsRow) TableName() string { return "trader_stats_30d" }

func StatsFromDomain(s types.TraderStats30d) StatsRow {
	return StatsRow{
		TraderAddress:     s.TraderAddress.Hex(),
		LastTradeTS:       s.LastTradeTS,
		TradeCount30d:     s.TradeCount30d,
		VolumeUSD30d:      bigIntToString(s.VolumeUSD30d),
		MedianTradeUSD30d: bigIntToString(s.MedianTradeUSD30d),
		RealizedPnL30d:    bigIntToString(s.RealizedPnL30d),
		WinRate30d:        s.WinRate30d,
		MaxDrawdown30d:    bigIntToString(s.MaxDrawdown30d),
		LastUpdated:       s.LastUpdated,
	}
}

func (r StatsRow) ToDomain() types.TraderStats30d {
	return types.TraderStats30d{
		TraderAddress:     common.HexToAddress(r.TraderAddress),
		LastTradeTS:       r.LastTradeTS,
		TradeCount30d:     r.TradeCount30d,
		VolumeUSD30d:      stringToBigInt(r.VolumeUSD30d),
		MedianTradeUSD30d: stringToBigInt(r.MedianTradeUSD30d),
		RealizedPnL30d:    stringToBigInt(r.RealizedPnL30d),
		WinRate30d:        r.WinRate30d,
		MaxDrawdown30d:    stringToBigInt(r.MaxDrawdown30d),
		LastUpdated:       r.LastUpdated,
	}
}

// FollowRow is the gorm row for types.FollowConfig. Pair allow/block sets
// are stored as comma-joined uint16 lists; small enough that a join table
// would be overkill for what is effectively a per-user filter list.
type FollowRow struct {
	UserID            string `gorm:"primaryKey"`
	TraderKey         string `gorm:"primaryKey;size:42;index:idx_follow_trader"`
	SizingMode        string `gorm:"size:16"`
	SizingValue       uint64
	MaxLeverage       uint16
	MaxSlippageBps    uint16
	PerTradeCapUSD1e6 string `gorm:"size:78"`
	DailyCapUSD1e6    string `gorm:"size:78"`
	PairAllowCSV      string
	PairBlockCSV      string
	Notify            bool
	AutoCopy          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (FollowRow) TableName() string { return "follow_configs" }

func FollowFromDomain(f types.FollowConfig) FollowRow {
	return FollowRow{
		UserID:            f.UserID,
		TraderKey:         f.TraderKey.Hex(),
		SizingMode:        string(f.SizingMode),
		SizingValue:       f.SizingValue,
		MaxLeverage:       f.MaxLeverage,
		MaxSlippageBps:    f.MaxSlippageBps,
		PerTradeCapUSD1e6: bigIntToString(f.PerTradeCapUSD1e6),
		DailyCapUSD1e6:    bigIntToString(f.DailyCapUSD1e6),
		PairAllowCSV:      uint16SliceToCSV(f.PairAllowSet),
		PairBlockCSV:      uint16SliceToCSV(f.PairBlockSet),
		Notify:            f.Notify,
		AutoCopy:          f.AutoCopy,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
	}
}

func (r FollowRow) ToDomain() types.FollowConfig {
	return types.FollowConfig{
		UserID:            r.UserID,
		TraderKey:         common.HexToAddress(r.TraderKey),
		SizingMode:        types.SizingMode(r.SizingMode),
		SizingValue:       r.SizingValue,
		MaxLeverage:       r.MaxLeverage,
		MaxSlippageBps:    r.MaxSlippageBps,
		PerTradeCapUSD1e6: stringToBigInt(r.PerTradeCapUSD1e6),
		DailyCapUSD1e6:    stringToBigInt(r.DailyCapUSD1e6),
		PairAllowSet:      csvToUint16Slice(r.PairAllowCSV),
		PairBlockSet:      csvToUint16Slice(r.PairBlockCSV),
		Notify:            r.Notify,
		AutoCopy:          r.AutoCopy,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// IntentRow is the gorm row for types.CopyIntent.
type IntentRow struct {
	IntentID         string `gorm:"primaryKey;size:32"`
	UserID           string `gorm:"index:idx_intent_idem,unique"`
	SourceFillID     uint64 `gorm:"index:idx_intent_idem,unique"`
	PairID           uint16
	IsLong           bool
	Side             string `gorm:"size:16"`
	CollateralUSD1e6 string `gorm:"size:78"`
	LeverageBps      uint32
	Status           string `gorm:"size:16;index"`
	ReasonCode       string `gorm:"size:32"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	TxHash           string `gorm:"size:66"`
}

func (IntentRow) TableName() string { return "copy_intents" }

func IntentFromDomain(i types.CopyIntent) IntentRow {
	return IntentRow{
		IntentID:         i.IntentID,
		UserID:           i.UserID,
		SourceFillID:     i.SourceFillID,
		PairID:           i.PairID,
		IsLong:           i.IsLong,
		Side:             string(i.Side),
		CollateralUSD1e6: bigIntToString(i.CollateralUSD1e6),
		LeverageBps:      i.LeverageBps,
		Status:           string(i.Status),
		ReasonCode:       string(i.ReasonCode),
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
		TxHash:           hashPtrToString(i.TxHash),
	}
}

func (r IntentRow) ToDomain() types.CopyIntent {
	return types.CopyIntent{
		IntentID:         r.IntentID,
		UserID:           r.UserID,
		SourceFillID:     r.SourceFillID,
		PairID:           r.PairID,
		IsLong:           r.IsLong,
		Side:             types.FillSide(r.Side),
		CollateralUSD1e6: stringToBigInt(r.CollateralUSD1e6),
		LeverageBps:      r.LeverageBps,
		Status:           types.IntentStatus(r.Status),
		ReasonCode:       types.ReasonCode(r.ReasonCode),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		TxHash:           stringToHashPtr(r.TxHash),
	}
}

// TxIntentRow is the gorm row for types.TxIntent.
type TxIntentRow struct {
	ID                   uint64 `gorm:"primaryKey;autoIncrement"`
	CopyIntentID         string `gorm:"index"`
	Nonce                uint64 `gorm:"index"`
	To                   string `gorm:"size:42"`
	Data                 []byte
	Value                string `gorm:"size:78"`
	GasLimit             uint64
	MaxFeePerGas         string `gorm:"size:78"`
	MaxPriorityFeePerGas string `gorm:"size:78"`
	Attempts             int
	Status               string `gorm:"size:16;index"`
	ReceiptBlock         uint64
	ReceiptGasUsed       uint64
	Hash                 string `gorm:"size:66;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (TxIntentRow) TableName() string { return "tx_intents" }

func TxIntentFromDomain(t types.TxIntent) TxIntentRow {
	return TxIntentRow{
		ID:                   t.ID,
		CopyIntentID:         t.CopyIntentID,
		Nonce:                t.Nonce,
		To:                   t.To.Hex(),
		Data:                 t.Data,
		Value:                bigIntToString(t.Value),
		GasLimit:             t.GasLimit,
		MaxFeePerGas:         bigIntToString(t.MaxFeePerGas),
		MaxPriorityFeePerGas: bigIntToString(t.MaxPriorityFeePerGas),
		Attempts:             t.Attempts,
		Status:               string(t.Status),
		ReceiptBlock:         t.ReceiptBlock,
		ReceiptGasUsed:       t.ReceiptGasUsed,
		Hash:                 t.Hash.Hex(),
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func (r TxIntentRow) ToDomain() types.TxIntent {
	return types.TxIntent{
		ID:                   r.ID,
		CopyIntentID:         r.CopyIntentID,
		Nonce:                r.Nonce,
		To:                   common.HexToAddress(r.To),
		Data:                 r.Data,
		Value:                stringToBigInt(r.Value),
		GasLimit:             r.GasLimit,
		MaxFeePerGas:         stringToBigInt(r.MaxFeePerGas),
		MaxPriorityFeePerGas: stringToBigInt(r.MaxPriorityFeePerGas),
		Attempts:             r.Attempts,
		Status:               types.TxStatus(r.Status),
		ReceiptBlock:         r.ReceiptBlock,
		ReceiptGasUsed:       r.ReceiptGasUsed,
		Hash:                 common.HexToHash(r.Hash),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

// QuarantineRow is the gorm row for types.QuarantinedLog.
type QuarantineRow struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	ChainTxHash  string `gorm:"size:66;uniqueIndex:idx_quarantine_log"`
	LogIndex     uint32 `gorm:"uniqueIndex:idx_quarantine_log"`
	BlockNumber  uint64
	Reason       string
	Acknowledged bool `gorm:"index"`
	CreatedAt    time.Time
}

func (QuarantineRow) TableName() string { return "quarantined_logs" }

func QuarantineFromDomain(q types.QuarantinedLog) QuarantineRow {
	return QuarantineRow{
		ID:           q.ID,
		ChainTxHash:  q.ChainTxHash.Hex(),
		LogIndex:     q.LogIndex,
		BlockNumber:  q.BlockNumber,
		Reason:       q.Reason,
		Acknowledged: q.Acknowledged,
		CreatedAt:    q.CreatedAt,
	}
}

func (r QuarantineRow) ToDomain() types.QuarantinedLog {
	return types.QuarantinedLog{
		ID:           r.ID,
		ChainTxHash:  common.HexToHash(r.ChainTxHash),
		LogIndex:     r.LogIndex,
		BlockNumber:  r.BlockNumber,
		Reason:       r.Reason,
		Acknowledged: r.Acknowledged,
		CreatedAt:    r.CreatedAt,
	}
}
