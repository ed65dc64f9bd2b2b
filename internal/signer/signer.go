// Package signer declares the narrow capability contract the tx
// orchestrator consumes. Key custody (private key / KMS signing) is an
// external collaborator per spec §1 — the core never sees raw keys.
package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer signs transactions on behalf of one on-chain address. A real
// implementation wraps a KMS or hardware signer; tests use a fixed
// in-memory key.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID int64) (*types.Transaction, error)
}
