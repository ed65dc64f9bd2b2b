package external

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/avantisbot/copytrader/internal/chain"
	"github.com/avantisbot/copytrader/internal/types"
)

// TradingContractCalldata implements execworker.CalldataBuilder by ABI-
// encoding a call into the Avantis trading contract. The exact method
// name and argument order are an open question pending the real ABI
// (same open question decode.go documents for event field names); this
// assumes an "openTrade(pairIndex,isLong,collateralUSDC,leverage)"
// method, which only requires editing this file once the real contract
// interface is confirmed.
type TradingContractCalldata struct {
	contractABI abi.ABI
	contract    common.Address
	methodName  string
}

func NewTradingContractCalldata(schema *chain.TradeEventSchema, contract common.Address) *TradingContractCalldata {
	return &TradingContractCalldata{contractABI: schema.ABI, contract: contract, methodName: "openTrade"}
}

func (c *TradingContractCalldata) BuildOpenTx(intent types.CopyIntent) (common.Address, []byte, *big.Int, error) {
	method, ok := c.contractABI.Methods[c.methodName]
	if !ok {
		return common.Address{}, nil, nil, fmt.Errorf("trading contract abi missing method %q", c.methodName)
	}
	data, err := c.contractABI.Pack(method.Name, intent.PairID, intent.IsLong, intent.CollateralUSD1e6, big.NewInt(int64(intent.LeverageBps)))
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("pack %s: %w", c.methodName, err)
	}
	return c.contract, data, big.NewInt(0), nil
}
