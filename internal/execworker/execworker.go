// Package execworker is the bounded copy-execution worker pool (C9 in
// spec §2's table: "Copy-execution workers (bounded pool, default 16
// workers)"). It drains PENDING CopyIntents through the execution gate,
// the risk validator, and finally the tx orchestrator, advancing each
// intent's status as it goes. Pool shape mirrors fanout.Dispatcher's
// ants.Pool usage, which itself mirrors the teacher's single-producer/
// many-worker split between live.go's loop and its I/O calls.
package execworker

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/avantisbot/copytrader/internal/execgate"
	"github.com/avantisbot/copytrader/internal/metrics"
	"github.com/avantisbot/copytrader/internal/risk"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/txorch"
	"github.com/avantisbot/copytrader/internal/types"
)

// CalldataBuilder encodes a CopyIntent into a trading-contract call. The
// concrete ABI-encoding (open/close position, slippage, pair index) is an
// external collaborator per spec §1 ("the Avantis contract interface");
// only the narrow capability is core.
type CalldataBuilder interface {
	BuildOpenTx(intent types.CopyIntent) (to common.Address, data []byte, value *big.Int, err error)
}

// Pool is the bounded worker pool driving intents from PENDING to a
// terminal status.
type Pool struct {
	intents  *store.IntentStore
	gate     *execgate.Gate
	risk     *risk.Validator
	orch     *txorch.Orchestrator
	calldata CalldataBuilder
	pool     *ants.Pool
	log      zerolog.Logger
}

func New(intents *store.IntentStore, gate *execgate.Gate, validator *risk.Validator, orch *txorch.Orchestrator, calldata CalldataBuilder, workers int, log zerolog.Logger) (*Pool, error) {
	p, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create execution worker pool: %w", err)
	}
	return &Pool{intents: intents, gate: gate, risk: validator, orch: orch, calldata: calldata, pool: p, log: log}, nil
}

func (p *Pool) Release() { p.pool.Release() }

// Submit enqueues a single PENDING intent for processing. Fanout calls
// this immediately after creating each CopyIntent.
func (p *Pool) Submit(ctx context.Context, intentID string) error {
	return p.pool.Submit(func() {
		if err := p.process(ctx, intentID); err != nil {
			p.log.Error().Err(err).Str("intent_id", intentID).Msg("execution worker failed")
		}
	})
}

// ResumePending re-enqueues every intent left PENDING/VALIDATED by a
// prior process (spec §5's crash-recovery requirement for in-flight work).
func (p *Pool) ResumePending(ctx context.Context, userIDs []string) error {
	for _, u := range userIDs {
		pending, err := p.intents.PendingForUser(ctx, u)
		if err != nil {
			return fmt.Errorf("load pending intents for %s: %w", u, err)
		}
		for _, in := range pending {
			if in.Status == types.IntentPending || in.Status == types.IntentValidated {
				if err := p.Submit(ctx, in.IntentID); err != nil {
					p.log.Warn().Err(err).Str("intent_id", in.IntentID).Msg("failed to resubmit pending intent")
				}
			}
		}
	}
	return nil
}

func (p *Pool) process(ctx context.Context, intentID string) error {
	intent, found, err := p.intents.Get(ctx, intentID)
	if err != nil {
		return fmt.Errorf("load intent: %w", err)
	}
	if !found {
		return fmt.Errorf("intent %s not found", intentID)
	}
	if intent.Status != types.IntentPending && intent.Status != types.IntentValidated {
		return nil
	}

	decision, err := p.gate.Check(ctx, intent.UserID)
	if err != nil {
		return fmt.Errorf("exec gate check: %w", err)
	}
	if !decision.Proceed {
		return p.terminate(ctx, intent, types.IntentSkipped, decision.Reason)
	}

	reason, ok := p.risk.Validate(ctx, intent)
	if !ok {
		return p.terminate(ctx, intent, types.IntentSkipped, reason)
	}

	collateralUSD := new(big.Int).Div(intent.CollateralUSD1e6, big.NewInt(1_000_000)).Int64()
	notionalDecision, err := p.gate.CheckNotionalCap(ctx, intent.UserID, collateralUSD)
	if err != nil {
		return fmt.Errorf("notional cap check: %w", err)
	}
	if !notionalDecision.Proceed {
		return p.terminate(ctx, intent, types.IntentSkipped, notionalDecision.Reason)
	}

	if err := p.intents.UpdateStatus(ctx, intent.IntentID, types.IntentValidated, types.ReasonNone, nil); err != nil {
		return fmt.Errorf("mark validated: %w", err)
	}

	to, data, value, err := p.calldata.BuildOpenTx(intent)
	if err != nil {
		return p.terminate(ctx, intent, types.IntentFailed, types.ReasonRevert)
	}

	if err := p.intents.UpdateStatus(ctx, intent.IntentID, types.IntentSubmitted, types.ReasonNone, nil); err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}

	txi, reason, err := p.orch.Submit(ctx, intent.IntentID, to, data, value)
	hashStr := txi.Hash.Hex()
	if err != nil {
		metrics.IntentsByStatus.WithLabelValues(string(types.IntentFailed), string(reason)).Inc()
		return p.intents.UpdateStatus(ctx, intent.IntentID, types.IntentFailed, reason, &hashStr)
	}

	status := types.IntentConfirmed
	reasonCode := types.ReasonNone
	if txi.Status == types.TxMinedFail {
		status = types.IntentFailed
		reasonCode = types.ReasonRevert
	}
	metrics.IntentsByStatus.WithLabelValues(string(status), string(reasonCode)).Inc()
	return p.intents.UpdateStatus(ctx, intent.IntentID, status, reasonCode, &hashStr)
}

func (p *Pool) terminate(ctx context.Context, intent types.CopyIntent, status types.IntentStatus, reason types.ReasonCode) error {
	metrics.IntentsByStatus.WithLabelValues(string(status), string(reason)).Inc()
	return p.intents.UpdateStatus(ctx, intent.IntentID, status, reason, nil)
}
