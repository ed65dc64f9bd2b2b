package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func stringsReader(b []byte) io.Reader { return bytes.NewReader(b) }

// TradeEventSchema is the decoded ABI plus the located trade-event
// signatures the indexer needs. Loading refuses to silently fall back —
// spec §4.2 requires startup to fail if the schema lookup fails.
type TradeEventSchema struct {
	ABI           abi.ABI
	TradeOpened   abi.Event
	TradeClosed   abi.Event
	Liquidated    abi.Event
}

// hardhatArtifact is the subset of a Hardhat/Foundry build artifact this
// loader needs, grounded on ChoSanghyuk-blackholedex's
// util.LoadABIFromHardhatArtifact (a Hardhat artifact's top-level "abi"
// field holds the standard ABI JSON array).
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadTradeEventSchema reads the Avantis trading contract's ABI from a
// Hardhat-style build artifact and locates the three event signatures the
// indexer decodes. It returns an error (never a default schema) if the
// artifact is missing or any required event is absent.
func LoadTradeEventSchema(path string) (*TradeEventSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi artifact %s: %w", path, err)
	}

	var parsedABI abi.ABI
	var art hardhatArtifact
	if err := json.Unmarshal(raw, &art); err == nil && len(art.ABI) > 0 {
		parsedABI, err = abi.JSON(stringsReader(art.ABI))
		if err != nil {
			return nil, fmt.Errorf("parse abi from hardhat artifact %s: %w", path, err)
		}
	} else {
		// Fall back to a bare ABI JSON array (no Hardhat wrapper).
		parsedABI, err = abi.JSON(stringsReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse abi %s: %w", path, err)
		}
	}

	schema := &TradeEventSchema{ABI: parsedABI}
	for name, dst := range map[string]*abi.Event{
		"TradeOpened": &schema.TradeOpened,
		"TradeClosed": &schema.TradeClosed,
		"Liquidated":  &schema.Liquidated,
	} {
		ev, ok := parsedABI.Events[name]
		if !ok {
			return nil, fmt.Errorf("abi %s missing required event %q", path, name)
		}
		*dst = ev
	}
	return schema, nil
}
