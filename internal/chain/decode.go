package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/avantisbot/copytrader/internal/types"
)

// tradeEventFields is the set of ABI field names this mapping table
// expects on TradeOpened/TradeClosed/Liquidated, per spec §4.2 ("a
// mapping table converts ABI fields to Fill columns"). The exact field
// list is an open question (spec §9) pending the real Avantis ABI; these
// names are the contract's documented trade-event shape and the mapping
// is centralized here so a real ABI only requires editing this table.
type tradeEventFields struct {
	Trader      common.Address
	PairIndex   uint16
	IsLong      bool
	SizeUSDC    *big.Int
	Price       *big.Int
	Fee         *big.Int
	Leverage    *big.Int
}

// DecodeFill maps one decoded contract log into a normalized Fill. side
// must be the FillSide corresponding to the event that produced log
// (TradeOpened -> OPEN, TradeClosed -> CLOSE, Liquidated -> LIQUIDATION).
func DecodeFill(schema *TradeEventSchema, side types.FillSide, log gethtypes.Log, blockTimestamp time.Time) (types.Fill, error) {
	var event abi.Event
	switch side {
	case types.SideOpen:
		event = schema.TradeOpened
	case types.SideClose:
		event = schema.TradeClosed
	case types.SideLiquidation:
		event = schema.Liquidated
	default:
		return types.Fill{}, fmt.Errorf("unknown fill side %q", side)
	}

	unpacked, err := unpackEvent(schema.ABI, event, log)
	if err != nil {
		return types.Fill{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	leverageBps, err := leverageToBps(unpacked.Leverage)
	if err != nil {
		return types.Fill{}, err
	}

	return types.Fill{
		ChainTxHash:    log.TxHash,
		LogIndex:       uint32(log.Index),
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: blockTimestamp,
		TraderAddress:  unpacked.Trader,
		PairID:         unpacked.PairIndex,
		IsLong:         unpacked.IsLong,
		Side:           side,
		SizeUSD1e6:     unpacked.SizeUSDC,
		Price1e8:       unpacked.Price,
		FeeUSD1e6:      unpacked.Fee,
		LeverageBps:    leverageBps,
	}, nil
}

func leverageToBps(leverage *big.Int) (uint32, error) {
	if leverage == nil {
		return 0, fmt.Errorf("missing leverage field")
	}
	if !leverage.IsUint64() || leverage.Uint64() > 1<<32-1 {
		return 0, fmt.Errorf("leverage out of range: %s", leverage.String())
	}
	return uint32(leverage.Uint64()), nil
}

// unpackEvent unpacks both indexed (topics) and non-indexed (data)
// arguments of a log into the fixed tradeEventFields shape.
func unpackEvent(contractABI abi.ABI, event abi.Event, log gethtypes.Log) (tradeEventFields, error) {
	out := tradeEventFields{}

	dataValues := map[string]interface{}{}
	if err := contractABI.UnpackIntoMap(dataValues, event.Name, log.Data); err != nil {
		return out, fmt.Errorf("unpack data: %w", err)
	}

	indexed := indexedArguments(event.Inputs)
	if len(indexed) > 0 && len(log.Topics) > 1 {
		if err := abi.ParseTopicsIntoMap(dataValues, indexed, log.Topics[1:]); err != nil {
			return out, fmt.Errorf("unpack topics: %w", err)
		}
	}

	var ok bool
	if out.Trader, ok = dataValues["trader"].(common.Address); !ok {
		return out, fmt.Errorf("field %q missing or wrong type", "trader")
	}
	if pairIndex, ok2 := dataValues["pairIndex"].(*big.Int); ok2 {
		out.PairIndex = uint16(pairIndex.Uint64())
	} else if pairIndex16, ok3 := dataValues["pairIndex"].(uint16); ok3 {
		out.PairIndex = pairIndex16
	} else {
		return out, fmt.Errorf("field %q missing or wrong type", "pairIndex")
	}
	if isLong, ok2 := dataValues["long"].(bool); ok2 {
		out.IsLong = isLong
	} else if isLong, ok2 := dataValues["isLong"].(bool); ok2 {
		out.IsLong = isLong
	} else {
		return out, fmt.Errorf("field %q missing or wrong type", "long/isLong")
	}
	out.SizeUSDC = bigOrZero(dataValues["positionSizeUSDC"])
	out.Price = bigOrZero(dataValues["price"])
	out.Fee = bigOrZero(dataValues["fee"])
	out.Leverage = bigOrZero(dataValues["leverage"])
	return out, nil
}

func bigOrZero(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok && b != nil {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func indexedArguments(inputs abi.Arguments) abi.Arguments {
	var out abi.Arguments
	for _, in := range inputs {
		if in.Indexed {
			out = append(out, in)
		}
	}
	return out
}
