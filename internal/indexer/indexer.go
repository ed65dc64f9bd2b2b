// Package indexer maintains the fills stream and its reorg-safe cursor
// (C2). Backfill/tail structure and the ABI-driven decode path are
// grounded on ChoSanghyuk-blackholedex's contract-log consumption idiom
// (util.LoadABIFromHardhatArtifact + go-ethereum/accounts/abi), paired
// with the teacher's (chidi150c-coinbase) main-loop cadence in live.go.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/avantisbot/copytrader/internal/chain"
	"github.com/avantisbot/copytrader/internal/metrics"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

// Config mirrors spec §6's indexer env vars.
type Config struct {
	ChainID        uint64
	Contract       common.Address
	BackfillRange  uint64
	Page           uint64
	SleepWS        time.Duration
	SleepHTTP      time.Duration
	FinalityDepth  uint64
	AlarmThreshold uint64
}

func DefaultConfig(chainID uint64, contract common.Address) Config {
	return Config{
		ChainID:        chainID,
		Contract:       contract,
		BackfillRange:  50_000,
		Page:           2000,
		SleepWS:        2 * time.Second,
		SleepHTTP:      5 * time.Second,
		FinalityDepth:  12,
		AlarmThreshold: 50,
	}
}

// FillSink receives each newly finalized fill, used by the indexer to
// drive the PnL engine and signal fanout without importing them
// directly (keeps C2 a pure projection of the chain, per spec §4.2).
type FillSink interface {
	OnFill(ctx context.Context, f types.Fill) error
}

// Indexer is the single writer of fills and the cursor, per spec §5.
type Indexer struct {
	client  *chain.Client
	schema  *chain.TradeEventSchema
	fills   *store.FillStore
	quar    *store.QuarantineStore
	cfg     Config
	sink    FillSink
	log     zerolog.Logger

	lastBlockHashes map[uint64]common.Hash // recent block hashes, for reorg comparison
}

func New(client *chain.Client, schema *chain.TradeEventSchema, fills *store.FillStore, quar *store.QuarantineStore, cfg Config, sink FillSink, log zerolog.Logger) *Indexer {
	return &Indexer{
		client:          client,
		schema:          schema,
		fills:           fills,
		quar:            quar,
		cfg:             cfg,
		sink:            sink,
		log:             log,
		lastBlockHashes: make(map[uint64]common.Hash),
	}
}

// Run drives backfill then tail mode until ctx is cancelled. It never
// returns a "normal" error for transient RPC failures — those are
// retried inside the chain client; Run only returns on ctx cancellation
// or a non-transient failure.
func (ix *Indexer) Run(ctx context.Context) error {
	cursor, found, err := ix.fills.Cursor(ctx, ix.cfg.ChainID, ix.cfg.Contract.Hex())
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !found {
		latest, err := ix.client.LatestBlock(ctx)
		if err != nil {
			return fmt.Errorf("latest block for initial backfill: %w", err)
		}
		start := uint64(0)
		if latest > ix.cfg.BackfillRange {
			start = latest - ix.cfg.BackfillRange
		}
		cursor = types.IndexerCursor{
			ChainID:       ix.cfg.ChainID,
			Contract:      ix.cfg.Contract,
			LastSafeBlock: start,
			LastSeenBlock: start,
			SchemaVersion: 1,
		}
	}

	// heads delivers new head notifications over WS when available,
	// falling back to HTTP polling at cfg.SleepHTTP otherwise; tail mode
	// waits on it instead of always sleeping a fixed cfg.SleepWS, so a
	// configured WS connection actually shortens the wake-up latency it
	// promises.
	heads := ix.client.SubscribeNewHeads(ctx, ix.cfg.SleepHTTP)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		latest, err := ix.client.LatestBlock(ctx)
		if err != nil {
			ix.log.Warn().Err(err).Msg("latest block fetch failed, backing off")
			time.Sleep(ix.cfg.SleepHTTP)
			continue
		}

		ix.reportLag(latest, cursor.LastSeenBlock)

		if latest <= cursor.LastSeenBlock+ix.cfg.FinalityDepth {
			// tail mode: head is within finality depth of our cursor.
			next, err := ix.processRange(ctx, cursor, cursor.LastSeenBlock+1, latest)
			if err != nil {
				return err
			}
			cursor = next
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-heads:
				if !ok {
					// subscription goroutine exited (ctx done); loop will
					// observe ctx.Done() above.
					time.Sleep(ix.cfg.SleepWS)
				}
			case <-time.After(ix.cfg.SleepWS):
			}
			continue
		}

		to := cursor.LastSeenBlock + ix.cfg.Page
		if to > latest {
			to = latest
		}
		next, err := ix.processRange(ctx, cursor, cursor.LastSeenBlock+1, to)
		if err != nil {
			return err
		}
		if next.LastSeenBlock == cursor.LastSeenBlock {
			// Blocked on an unacknowledged quarantine entry: back off
			// instead of hammering GetLogs on the same stuck range.
			time.Sleep(ix.cfg.SleepHTTP)
		}
		cursor = next
	}
}

// processRange decodes and commits logs in [from, to], after checking
// for a reorg against the block range already covered by the cursor.
// The committed range is capped at the earliest unacknowledged
// quarantine entry, if any, so the cursor never advances past a log an
// operator hasn't resolved yet (spec's quarantine invariant).
func (ix *Indexer) processRange(ctx context.Context, cursor types.IndexerCursor, from, to uint64) (types.IndexerCursor, error) {
	if from > to {
		return cursor, nil
	}

	var reorgFromBlock *uint64
	if reorgPoint, reorged, err := ix.detectReorg(ctx, cursor); err != nil {
		return cursor, err
	} else if reorged {
		ix.log.Warn().Uint64("reorg_point", reorgPoint).Msg("reorg detected, rolling back fills")
		deleteFrom := reorgPoint + 1
		reorgFromBlock = &deleteFrom
		metrics.IndexerReorgsTotal.Inc()
		cursor.LastSeenBlock = reorgPoint
		from = reorgPoint + 1
	}

	logs, err := ix.client.GetLogs(ctx, from, to, ix.cfg.Contract, nil)
	if err != nil {
		return cursor, fmt.Errorf("get logs [%d,%d]: %w", from, to, err)
	}

	decoded := make([]types.Fill, 0, len(logs))
	for _, l := range logs {
		f, err := ix.decodeLog(ctx, l)
		if err != nil {
			if err := ix.quarantineLog(ctx, l, err); err != nil {
				return cursor, fmt.Errorf("quarantine log: %w", err)
			}
			continue
		}
		decoded = append(decoded, f)
	}

	commitTo := to
	unacked, err := ix.quar.Unacknowledged(ctx)
	if err != nil {
		return cursor, fmt.Errorf("load unacknowledged quarantine: %w", err)
	}
	if len(unacked) > 0 && unacked[0].BlockNumber > 0 {
		blockedAt := unacked[0].BlockNumber - 1
		if blockedAt < commitTo {
			commitTo = blockedAt
		}
	}

	// Only commit fills within the portion of the range that is actually
	// safe to advance the cursor over; anything beyond commitTo is
	// re-fetched (idempotently) on the next pass once the block is
	// acknowledged.
	fills := decoded[:0:0]
	for _, f := range decoded {
		if f.BlockNumber <= commitTo {
			fills = append(fills, f)
		}
	}

	latest, err := ix.client.LatestBlock(ctx)
	if err != nil {
		return cursor, fmt.Errorf("latest block for cursor advance: %w", err)
	}
	nextSafe := commitTo
	if latest > ix.cfg.FinalityDepth && latest-ix.cfg.FinalityDepth < nextSafe {
		nextSafe = latest - ix.cfg.FinalityDepth
	}
	if nextSafe > commitTo {
		nextSafe = commitTo
	}

	nextCursor := types.IndexerCursor{
		ChainID:       ix.cfg.ChainID,
		Contract:      ix.cfg.Contract,
		LastSeenBlock: commitTo,
		LastSafeBlock: nextSafe,
		SchemaVersion: cursor.SchemaVersion,
	}
	if commitTo < from {
		// Blocked before this range even starts: nothing new to commit,
		// leave the cursor exactly where it was.
		nextCursor = cursor
	}

	if err := ix.fills.InsertBatchAndAdvanceCursor(ctx, reorgFromBlock, fills, nextCursor); err != nil {
		return cursor, fmt.Errorf("commit batch: %w", err)
	}
	metrics.IndexerBlocksProcessed.Add(float64(to - from + 1))
	metrics.IndexerFillsPerMin.Add(float64(len(fills)))

	for _, f := range fills {
		if f.BlockNumber <= nextCursor.LastSafeBlock {
			if err := ix.sink.OnFill(ctx, f); err != nil {
				ix.log.Error().Err(err).Str("tx", f.ChainTxHash.Hex()).Msg("fill sink failed")
			}
		}
	}

	if commitTo >= from {
		ix.rememberBlockHash(ctx, commitTo)
	}
	return nextCursor, nil
}

// decodeLog maps a raw log into a Fill via the ABI schema, selecting the
// event side by matching its topic0 against the schema's known events.
func (ix *Indexer) decodeLog(ctx context.Context, l gethtypes.Log) (types.Fill, error) {
	if len(l.Topics) == 0 {
		return types.Fill{}, fmt.Errorf("log has no topics")
	}
	side, err := ix.sideForTopic(l.Topics[0])
	if err != nil {
		return types.Fill{}, err
	}
	header, err := ix.blockTimestamp(ctx, l.BlockNumber)
	if err != nil {
		return types.Fill{}, err
	}
	return chain.DecodeFill(ix.schema, side, l, header)
}

func (ix *Indexer) sideForTopic(topic common.Hash) (types.FillSide, error) {
	switch topic {
	case ix.schema.TradeOpened.ID:
		return types.SideOpen, nil
	case ix.schema.TradeClosed.ID:
		return types.SideClose, nil
	case ix.schema.Liquidated.ID:
		return types.SideLiquidation, nil
	default:
		return "", fmt.Errorf("unrecognized event topic %s", topic.Hex())
	}
}

func (ix *Indexer) blockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	return ix.client.BlockTimestamp(ctx, blockNumber)
}

func (ix *Indexer) quarantineLog(ctx context.Context, l gethtypes.Log, decodeErr error) error {
	metrics.IndexerQuarantineTotal.Inc()
	return ix.quar.Insert(ctx, types.QuarantinedLog{
		ChainTxHash: l.TxHash,
		LogIndex:    uint32(l.Index),
		BlockNumber: l.BlockNumber,
		Reason:      decodeErr.Error(),
		CreatedAt:   time.Now(),
	})
}

func (ix *Indexer) reportLag(latest, lastSeen uint64) {
	lag := int64(latest) - int64(lastSeen)
	if lag < 0 {
		lag = 0
	}
	metrics.IndexerLagBlocks.Set(float64(lag))
}

// detectReorg walks backward from the last seen block, within the
// finality window, comparing each remembered hash against the chain's
// current header hash at that height. The highest block where the two
// still agree is the reorg point; everything above it gets rolled back.
func (ix *Indexer) detectReorg(ctx context.Context, cursor types.IndexerCursor) (uint64, bool, error) {
	checkFrom := cursor.LastSafeBlock
	if cursor.LastSeenBlock > checkFrom+ix.cfg.FinalityDepth {
		checkFrom = cursor.LastSeenBlock - ix.cfg.FinalityDepth
	}

	reorgPoint := cursor.LastSeenBlock
	reorged := false
	for b := cursor.LastSeenBlock; b >= checkFrom && b > 0; b-- {
		known, ok := ix.lastBlockHashes[b]
		if !ok {
			continue
		}
		current, err := ix.client.BlockHash(ctx, b)
		if err != nil {
			return 0, false, fmt.Errorf("block hash at %d: %w", b, err)
		}
		if current == known {
			break
		}
		reorgPoint = b - 1
		reorged = true
	}
	return reorgPoint, reorged, nil
}

func (ix *Indexer) rememberBlockHash(ctx context.Context, block uint64) {
	hash, err := ix.client.BlockHash(ctx, block)
	if err != nil {
		ix.log.Warn().Err(err).Uint64("block", block).Msg("failed to record block hash for reorg detection")
		return
	}
	ix.lastBlockHashes[block] = hash
	// Bound memory: only the trailing finality window matters.
	if block > ix.cfg.FinalityDepth {
		delete(ix.lastBlockHashes, block-ix.cfg.FinalityDepth-1)
	}
}
