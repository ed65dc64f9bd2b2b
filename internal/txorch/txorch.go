// Package txorch drives a TxIntent through build -> sign -> broadcast ->
// confirm (C10), with nonce allocation from the shared store, EIP-1559
// gas pricing, and stuck-transaction replacement. The poll-interval/
// timeout shape is grounded on ChoSanghyuk-blackholedex's
// txlistener.NewTxListener(client, WithPollInterval, WithTimeout) usage
// in cmd/main.go, reimplemented here as a durable state machine instead
// of an in-memory listener so a crash mid-confirmation can resume.
package txorch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/avantisbot/copytrader/internal/chain"
	"github.com/avantisbot/copytrader/internal/metrics"
	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/signer"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

// Config mirrors spec §4.8's tunables.
type Config struct {
	StuckTimeout         time.Duration
	ReceiptPollInterval  time.Duration
	ConfirmTimeout       time.Duration
	MaxReplacements      int
	FinalityDepth        uint64
	ChainID              int64
	PriorityFeeFloor     *big.Int
}

func DefaultConfig(chainID int64) Config {
	return Config{
		StuckTimeout:        60 * time.Second,
		ReceiptPollInterval: 1500 * time.Millisecond,
		ConfirmTimeout:      180 * time.Second,
		MaxReplacements:     3,
		FinalityDepth:       12,
		ChainID:             chainID,
		PriorityFeeFloor:    big.NewInt(1_000_000_000), // 1 gwei
	}
}

// Orchestrator owns the durable BUILT->SIGNED->BROADCAST->terminal state
// machine for every TxIntent submitted on behalf of a CopyIntent.
type Orchestrator struct {
	chain   *chain.Client
	signer  signer.Signer
	store   *store.IntentStore
	shared  *sharedstore.Store
	cfg     Config
	log     zerolog.Logger
}

func NewOrchestrator(c *chain.Client, s signer.Signer, intents *store.IntentStore, shared *sharedstore.Store, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{chain: c, signer: s, store: intents, shared: shared, cfg: cfg, log: log}
}

// Submit builds, signs, and broadcasts a transaction for intent, then
// blocks polling for confirmation. It returns once the TxIntent reaches
// a terminal status (MINED_OK, MINED_FAIL, DROPPED) or ctx is cancelled.
// The returned TxIntent is always the last-known state — including its
// broadcast Hash, if one was ever assigned — even on a non-nil error, and
// the ReasonCode classifies why, rather than leaving the caller to guess.
func (o *Orchestrator) Submit(ctx context.Context, copyIntentID string, to common.Address, data []byte, value *big.Int) (types.TxIntent, types.ReasonCode, error) {
	nonce, err := o.allocateNonce(ctx)
	if err != nil {
		return types.TxIntent{}, types.ReasonStuck, fmt.Errorf("allocate nonce: %w", err)
	}

	baseFee, tip, err := o.chain.SuggestFeeTip(ctx)
	if err != nil {
		return types.TxIntent{}, types.ReasonStuck, fmt.Errorf("suggest fee: %w", err)
	}
	maxPriorityFee := tip
	if maxPriorityFee.Cmp(o.cfg.PriorityFeeFloor) < 0 {
		maxPriorityFee = new(big.Int).Set(o.cfg.PriorityFeeFloor)
	}
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, maxPriorityFee)

	txi := types.TxIntent{
		CopyIntentID:         copyIntentID,
		Nonce:                nonce,
		To:                   to,
		Data:                 data,
		Value:                value,
		GasLimit:             500_000,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriorityFee,
		Status:               types.TxBuilt,
	}
	id, err := o.store.CreateTxIntent(ctx, txi)
	if err != nil {
		return types.TxIntent{}, types.ReasonStuck, fmt.Errorf("persist tx intent: %w", err)
	}
	txi.ID = id

	return o.driveToTerminal(ctx, txi)
}

func (o *Orchestrator) allocateNonce(ctx context.Context) (uint64, error) {
	addr := o.signer.Address()
	chainNonce, err := o.chain.GetNonce(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("read pending nonce: %w", err)
	}
	// SeedNonce only takes effect while the counter key does not exist yet.
	if err := o.shared.SeedNonce(ctx, addr.Hex(), chainNonce); err != nil {
		return 0, err
	}
	return o.shared.NextNonce(ctx, addr.Hex())
}

// driveToTerminal signs, broadcasts, and polls a TxIntent, issuing a
// fee-bumped replacement if it goes unconfirmed past StuckTimeout.
func (o *Orchestrator) driveToTerminal(ctx context.Context, txi types.TxIntent) (types.TxIntent, types.ReasonCode, error) {
	replacements := 0
	nonceResynced := false
	for {
		signed, err := o.signAndBroadcast(ctx, txi)
		if err != nil {
			if isNonceTooLow(err) {
				if nonceResynced {
					return o.fail(ctx, txi, types.ReasonNonceUsed)
				}
				nonceResynced = true
				resynced, rerr := o.resyncAndRetryOnce(ctx, txi)
				if rerr != nil {
					return o.fail(ctx, txi, types.ReasonNonceUsed)
				}
				txi = resynced
				continue
			}
			if isNonceAlreadyUsed(err) {
				if chainNonce, nerr := o.chain.GetNonce(ctx, o.signer.Address()); nerr == nil {
					if rerr := o.shared.ResyncNonce(ctx, o.signer.Address().Hex(), chainNonce); rerr != nil {
						o.log.Warn().Err(rerr).Msg("nonce resync after already-used failure failed")
					}
				}
				o.log.Error().Str("copy_intent", txi.CopyIntentID).Msg("nonce already used, dropping intent, operator alert")
				return o.fail(ctx, txi, types.ReasonNonceUsed)
			}
			return txi, types.ReasonStuck, fmt.Errorf("broadcast: %w", err)
		}
		txi = signed
		metrics.TxAttemptsTotal.WithLabelValues("broadcast").Inc()

		mined, reason, err := o.pollForReceipt(ctx, txi)
		if err == nil {
			return mined, types.ReasonNone, nil
		}
		if !errors.Is(err, errStuck) {
			return txi, reason, err
		}

		replacements++
		if replacements > o.cfg.MaxReplacements {
			return o.fail(ctx, txi, types.ReasonStuck)
		}
		txi = o.bumpFees(txi)
		o.log.Warn().Str("copy_intent", txi.CopyIntentID).Int("replacement", replacements).Msg("transaction stuck, replacing with bumped fees")
	}
}

func (o *Orchestrator) signAndBroadcast(ctx context.Context, txi types.TxIntent) (types.TxIntent, error) {
	unsigned := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(o.cfg.ChainID),
		Nonce:     txi.Nonce,
		GasTipCap: txi.MaxPriorityFeePerGas,
		GasFeeCap: txi.MaxFeePerGas,
		Gas:       txi.GasLimit,
		To:        &txi.To,
		Value:     txi.Value,
		Data:      txi.Data,
	})
	signed, err := o.signer.SignTx(ctx, unsigned, o.cfg.ChainID)
	if err != nil {
		return types.TxIntent{}, fmt.Errorf("sign tx: %w", err)
	}
	txi.Hash = signed.Hash()
	txi.Status = types.TxSigned
	txi.Attempts++
	if err := o.store.UpdateTxIntent(ctx, txi); err != nil {
		return types.TxIntent{}, fmt.Errorf("persist signed state: %w", err)
	}

	hash, err := o.chain.SendRawTransaction(ctx, signed)
	if err != nil {
		metrics.TxAttemptsTotal.WithLabelValues("broadcast_failed").Inc()
		return types.TxIntent{}, err
	}
	txi.Hash = hash
	txi.Status = types.TxBroadcast
	if err := o.store.UpdateTxIntent(ctx, txi); err != nil {
		return types.TxIntent{}, fmt.Errorf("persist broadcast state: %w", err)
	}
	return txi, nil
}

var errStuck = errors.New("transaction stuck past timeout")

// pollForReceipt polls until the receipt is mined with sufficient
// confirmations, the confirm timeout elapses (errStuck), or a terminal
// revert/confirm timeout is reached. txi (with its broadcast Hash) is
// always returned alongside a classifying ReasonCode, even on error, so
// a caller can persist the real hash instead of a zero value.
func (o *Orchestrator) pollForReceipt(ctx context.Context, txi types.TxIntent) (types.TxIntent, types.ReasonCode, error) {
	deadline := time.Now().Add(o.cfg.ConfirmTimeout)
	stuckAt := time.Now().Add(o.cfg.StuckTimeout)
	ticker := time.NewTicker(o.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return txi, types.ReasonStuck, ctx.Err()
		case <-ticker.C:
			receipt, err := o.chain.GetTransactionReceipt(ctx, txi.Hash)
			if err == nil {
				latest, lerr := o.chain.LatestBlock(ctx)
				if lerr == nil && latest >= receipt.BlockNumber.Uint64()+o.cfg.FinalityDepth {
					mined, ferr := o.finalize(ctx, txi, receipt)
					if ferr != nil {
						return txi, types.ReasonStuck, ferr
					}
					reason := types.ReasonNone
					if mined.Status == types.TxMinedFail {
						reason = types.ReasonRevert
					}
					return mined, reason, nil
				}
				continue
			}
			if !errors.Is(err, chain.ErrReceiptNotYet) {
				return txi, types.ReasonStuck, fmt.Errorf("poll receipt: %w", err)
			}
			if time.Now().After(stuckAt) {
				return txi, types.ReasonStuck, errStuck
			}
			if time.Now().After(deadline) {
				return txi, types.ReasonStuck, errStuck
			}
		}
	}
}

func (o *Orchestrator) finalize(ctx context.Context, txi types.TxIntent, receipt *gethtypes.Receipt) (types.TxIntent, error) {
	txi.ReceiptBlock = receipt.BlockNumber.Uint64()
	txi.ReceiptGasUsed = receipt.GasUsed
	if receipt.Status == gethtypes.ReceiptStatusSuccessful {
		txi.Status = types.TxMinedOK
		metrics.TxAttemptsTotal.WithLabelValues("mined_ok").Inc()
	} else {
		txi.Status = types.TxMinedFail
		metrics.TxAttemptsTotal.WithLabelValues("mined_fail").Inc()
	}
	if err := o.store.UpdateTxIntent(ctx, txi); err != nil {
		return txi, fmt.Errorf("persist final state: %w", err)
	}
	return txi, nil
}

func (o *Orchestrator) fail(ctx context.Context, txi types.TxIntent, reason types.ReasonCode) (types.TxIntent, types.ReasonCode, error) {
	txi.Status = types.TxDropped
	if err := o.store.UpdateTxIntent(ctx, txi); err != nil {
		o.log.Error().Err(err).Msg("failed to persist dropped tx intent")
	}
	return txi, reason, fmt.Errorf("tx intent %d dropped: %s", txi.ID, reason)
}

// bumpFees increases both fee fields by at least 12%, per spec §4.8.
func (o *Orchestrator) bumpFees(txi types.TxIntent) types.TxIntent {
	bump := func(v *big.Int) *big.Int {
		n := new(big.Int).Mul(v, big.NewInt(112))
		return n.Div(n, big.NewInt(100))
	}
	txi.MaxFeePerGas = bump(txi.MaxFeePerGas)
	txi.MaxPriorityFeePerGas = bump(txi.MaxPriorityFeePerGas)
	txi.Status = types.TxBuilt
	return txi
}

func (o *Orchestrator) resyncAndRetryOnce(ctx context.Context, txi types.TxIntent) (types.TxIntent, error) {
	chainNonce, err := o.chain.GetNonce(ctx, o.signer.Address())
	if err != nil {
		return types.TxIntent{}, err
	}
	if err := o.shared.ResyncNonce(ctx, o.signer.Address().Hex(), chainNonce); err != nil {
		return types.TxIntent{}, err
	}
	txi.Nonce = chainNonce
	txi.Status = types.TxBuilt
	return txi, nil
}

func isNonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

func isNonceAlreadyUsed(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce already used") || strings.Contains(msg, "already known") || strings.Contains(msg, "replacement transaction underpriced")
}
